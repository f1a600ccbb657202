package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mediarise/captionbot/internal/models"
)

type ReferralRepository struct {
	db *sql.DB
}

func NewReferralRepository(db *sql.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

func (r *ReferralRepository) DB() *sql.DB {
	return r.db
}

func (r *ReferralRepository) GetByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	const query = `SELECT id, code, bonus, max_uses, uses, created_at FROM referral_codes WHERE code = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, code))
}

func (r *ReferralRepository) GetByID(ctx context.Context, id int64) (*models.ReferralCode, error) {
	const query = `SELECT id, code, bonus, max_uses, uses, created_at FROM referral_codes WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *ReferralRepository) scanOne(row *sql.Row) (*models.ReferralCode, error) {
	var code models.ReferralCode
	if err := row.Scan(&code.ID, &code.Code, &code.Bonus, &code.MaxUses, &code.Uses, &code.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan referral code: %w", err)
	}
	return &code, nil
}

func (r *ReferralRepository) List(ctx context.Context) ([]models.ReferralCode, error) {
	const query = `SELECT id, code, bonus, max_uses, uses, created_at FROM referral_codes ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list referral codes: %w", err)
	}
	defer rows.Close()

	var codes []models.ReferralCode
	for rows.Next() {
		var code models.ReferralCode
		if err := rows.Scan(&code.ID, &code.Code, &code.Bonus, &code.MaxUses, &code.Uses, &code.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan referral code list: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (r *ReferralRepository) Create(ctx context.Context, code string, bonus, maxUses int) (*models.ReferralCode, error) {
	const query = `
INSERT INTO referral_codes (code, bonus, max_uses, uses)
VALUES (?, ?, ?, 0)`
	res, err := r.db.ExecContext(ctx, query, code, bonus, maxUses)
	if err != nil {
		return nil, fmt.Errorf("create referral code: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("referral code last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *ReferralRepository) Update(ctx context.Context, id int64, code string, bonus, maxUses, uses int) (*models.ReferralCode, error) {
	const query = `
UPDATE referral_codes
SET code = ?, bonus = ?, max_uses = ?, uses = ?
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, code, bonus, maxUses, uses, id); err != nil {
		return nil, fmt.Errorf("update referral code: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *ReferralRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM referral_codes WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete referral code: %w", err)
	}
	return nil
}

func (r *ReferralRepository) HasUserRedeemed(ctx context.Context, userID string, codeID int64) (bool, error) {
	const query = `SELECT 1 FROM referral_redemptions WHERE user_id = ? AND referral_code_id = ?`
	row := r.db.QueryRowContext(ctx, query, userID, codeID)
	var dummy int
	if err := row.Scan(&dummy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check referral redemption: %w", err)
	}
	return true, nil
}
