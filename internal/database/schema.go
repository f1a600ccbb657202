package database

const schema = `
CREATE TABLE IF NOT EXISTS entitlements (
    user_id VARCHAR(64) PRIMARY KEY,
    daily_limit INT NOT NULL DEFAULT 3,
    used_today INT NOT NULL DEFAULT 0,
    last_reset DATE NOT NULL,
    referral_bonus INT NOT NULL DEFAULT 0,
    service_bonus INT NOT NULL DEFAULT 0,
    reward_bonus INT NOT NULL DEFAULT 0,
    vip_expiry DATE NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS caption_logs (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    event_id VARCHAR(64) NOT NULL,
    source VARCHAR(16) NOT NULL,
    topic TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_caption_logs_user_day (user_id, created_at)
);

CREATE TABLE IF NOT EXISTS referral_codes (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    code VARCHAR(64) NOT NULL UNIQUE,
    bonus INT NOT NULL,
    max_uses INT NOT NULL,
    uses INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS referral_redemptions (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    referral_code_id BIGINT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE KEY uniq_user_code (user_id, referral_code_id),
    FOREIGN KEY (referral_code_id) REFERENCES referral_codes(id)
);
`
