package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mediarise/captionbot/internal/models"
)

type CaptionRepository struct {
	db *sql.DB
}

func NewCaptionRepository(db *sql.DB) *CaptionRepository {
	return &CaptionRepository{db: db}
}

func (r *CaptionRepository) Log(ctx context.Context, userID, eventID string, source models.DebitSource, topic string) error {
	const query = `
INSERT INTO caption_logs (user_id, event_id, source, topic)
VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, userID, eventID, source, topic); err != nil {
		return fmt.Errorf("insert caption log: %w", err)
	}
	return nil
}

func (r *CaptionRepository) CountForDay(ctx context.Context, userID string, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	const query = `
SELECT COUNT(*) FROM caption_logs
WHERE user_id = ? AND created_at >= ? AND created_at < ?`
	row := r.db.QueryRowContext(ctx, query, userID, start, end)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count daily captions: %w", err)
	}
	return count, nil
}
