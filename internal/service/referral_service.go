package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mediarise/captionbot/internal/config"
	"github.com/mediarise/captionbot/internal/models"
	"github.com/mediarise/captionbot/internal/quota"
	"github.com/mediarise/captionbot/internal/repository"
)

var (
	ErrReferralInvalid         = errors.New("referral code invalid")
	ErrReferralAlreadyRedeemed = errors.New("referral code already redeemed")
	ErrReferralExhausted       = errors.New("referral code exhausted")
)

// ReferralService redeems referral codes into the referral bonus pool. The
// redemption runs in one MySQL transaction with the code row locked, and under
// the same per-user lock as every other entitlement mutation.
type ReferralService struct {
	cfg   config.Config
	codes *repository.ReferralRepository
	locks *KeyedMutex
	now   func() time.Time
}

func NewReferralService(cfg config.Config, codes *repository.ReferralRepository, locks *KeyedMutex) *ReferralService {
	return &ReferralService{
		cfg:   cfg,
		codes: codes,
		locks: locks,
		now:   time.Now,
	}
}

// Redeem credits the code's bonus to the user's referral pool. Each code is
// redeemable once per user and at most max_uses times overall.
func (s *ReferralService) Redeem(ctx context.Context, userID, code string) (int, error) {
	referral, err := s.codes.GetByCode(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("get referral code: %w", err)
	}
	if referral == nil {
		return 0, ErrReferralInvalid
	}

	if redeemed, err := s.codes.HasUserRedeemed(ctx, userID, referral.ID); err != nil {
		return 0, fmt.Errorf("check redemption: %w", err)
	} else if redeemed {
		return 0, ErrReferralAlreadyRedeemed
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	tx, err := s.codes.DB().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var uses, maxUses, bonus int
	row := tx.QueryRowContext(ctx, `SELECT uses, max_uses, bonus FROM referral_codes WHERE id = ? FOR UPDATE`, referral.ID)
	if err := row.Scan(&uses, &maxUses, &bonus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrReferralInvalid
		}
		return 0, fmt.Errorf("lock referral code: %w", err)
	}
	if uses >= maxUses {
		return 0, ErrReferralExhausted
	}

	row = tx.QueryRowContext(ctx, `SELECT 1 FROM referral_redemptions WHERE user_id = ? AND referral_code_id = ?`, userID, referral.ID)
	var dummy int
	if err := row.Scan(&dummy); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("check redemption: %w", err)
		}
	} else {
		return 0, ErrReferralAlreadyRedeemed
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO referral_redemptions (user_id, referral_code_id) VALUES (?, ?)`, userID, referral.ID); err != nil {
		return 0, fmt.Errorf("insert redemption: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE referral_codes SET uses = uses + 1 WHERE id = ?`, referral.ID); err != nil {
		return 0, fmt.Errorf("increment code uses: %w", err)
	}

	// A user can redeem before ever sending an image, so the entitlement row
	// may not exist yet.
	const credit = `
INSERT INTO entitlements (user_id, daily_limit, used_today, last_reset, referral_bonus)
VALUES (?, ?, 0, ?, ?)
ON DUPLICATE KEY UPDATE referral_bonus = referral_bonus + VALUES(referral_bonus), updated_at = NOW()`
	if _, err := tx.ExecContext(ctx, credit, userID, s.cfg.FreeDailyCaptions, quota.DateOnly(s.now()), bonus); err != nil {
		return 0, fmt.Errorf("credit referral bonus: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit referral tx: %w", err)
	}

	return bonus, nil
}

func (s *ReferralService) List(ctx context.Context) ([]models.ReferralCode, error) {
	return s.codes.List(ctx)
}

func (s *ReferralService) GetByID(ctx context.Context, id int64) (*models.ReferralCode, error) {
	return s.codes.GetByID(ctx, id)
}

func (s *ReferralService) Create(ctx context.Context, code string, bonus, maxUses int) (*models.ReferralCode, error) {
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}
	if bonus <= 0 || maxUses <= 0 {
		return nil, fmt.Errorf("bonus and max_uses must be positive")
	}
	return s.codes.Create(ctx, code, bonus, maxUses)
}

func (s *ReferralService) Update(ctx context.Context, id int64, code string, bonus, maxUses, uses int) (*models.ReferralCode, error) {
	if uses > maxUses {
		return nil, fmt.Errorf("uses cannot exceed max_uses")
	}
	return s.codes.Update(ctx, id, code, bonus, maxUses, uses)
}

func (s *ReferralService) Delete(ctx context.Context, id int64) error {
	return s.codes.Delete(ctx, id)
}
