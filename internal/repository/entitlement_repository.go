package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mediarise/captionbot/internal/models"
)

type EntitlementRepository struct {
	db *sql.DB
}

func NewEntitlementRepository(db *sql.DB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

func (r *EntitlementRepository) DB() *sql.DB {
	return r.db
}

// Find returns the stored entitlement or nil when the user has never been seen.
func (r *EntitlementRepository) Find(ctx context.Context, userID string) (*models.Entitlement, error) {
	const query = `
SELECT user_id, daily_limit, used_today, last_reset, referral_bonus, service_bonus, reward_bonus, vip_expiry, created_at, updated_at
FROM entitlements WHERE user_id = ?`
	row := r.db.QueryRowContext(ctx, query, userID)
	var e models.Entitlement
	var vipExpiry sql.NullTime
	if err := row.Scan(&e.UserID, &e.DailyLimit, &e.UsedToday, &e.LastReset, &e.ReferralBonus, &e.ServiceBonus, &e.RewardBonus, &vipExpiry, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan entitlement: %w", err)
	}
	if vipExpiry.Valid {
		expiry := vipExpiry.Time
		e.VIPExpiry = &expiry
	}
	return &e, nil
}

// Save durably persists the full record, creating the row on first write.
func (r *EntitlementRepository) Save(ctx context.Context, e *models.Entitlement) error {
	const query = `
INSERT INTO entitlements (user_id, daily_limit, used_today, last_reset, referral_bonus, service_bonus, reward_bonus, vip_expiry)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    daily_limit = VALUES(daily_limit),
    used_today = VALUES(used_today),
    last_reset = VALUES(last_reset),
    referral_bonus = VALUES(referral_bonus),
    service_bonus = VALUES(service_bonus),
    reward_bonus = VALUES(reward_bonus),
    vip_expiry = VALUES(vip_expiry),
    updated_at = NOW()`
	var vipExpiry sql.NullTime
	if e.VIPExpiry != nil {
		vipExpiry = sql.NullTime{Time: *e.VIPExpiry, Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, query, e.UserID, e.DailyLimit, e.UsedToday, e.LastReset, e.ReferralBonus, e.ServiceBonus, e.RewardBonus, vipExpiry); err != nil {
		return fmt.Errorf("save entitlement: %w", err)
	}
	return nil
}

func (r *EntitlementRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT user_id FROM entitlements`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
