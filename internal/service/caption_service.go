package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mediarise/captionbot/internal/config"
	"github.com/mediarise/captionbot/internal/models"
	"github.com/mediarise/captionbot/internal/openai"
	"github.com/mediarise/captionbot/internal/quota"
)

// ErrQuotaExhausted is the normal denied outcome: every balance is spent.
var ErrQuotaExhausted = errors.New("caption quota exhausted")

// EntitlementStore is the durable per-user record. Find returns nil for an
// unseen user; Save persists the full record.
type EntitlementStore interface {
	Find(ctx context.Context, userID string) (*models.Entitlement, error)
	Save(ctx context.Context, ent *models.Entitlement) error
}

// CaptionLogbook records successful generations; failures to log never fail
// the request.
type CaptionLogbook interface {
	Log(ctx context.Context, userID, eventID string, source models.DebitSource, topic string) error
}

// Generator abstracts the remote caption model call.
type Generator interface {
	GenerateCaptions(ctx context.Context, image []byte, mime string, styles []config.CaptionStyle) (*openai.Result, error)
}

type CaptionRequest struct {
	UserID  string
	EventID string
	Image   []byte
	Mime    string
}

// CaptionResult carries the generated captions together with the entitlement
// snapshot taken after the debit was committed.
type CaptionResult struct {
	Captions    []models.Caption
	Entitlement *models.Entitlement
	Source      models.DebitSource
}

type CaptionService struct {
	cfg   config.Config
	log   *slog.Logger
	store EntitlementStore
	logs  CaptionLogbook
	gen   Generator
	locks *KeyedMutex
	now   func() time.Time
}

func NewCaptionService(cfg config.Config, log *slog.Logger, store EntitlementStore, logs CaptionLogbook, gen Generator, locks *KeyedMutex) *CaptionService {
	return &CaptionService{
		cfg:   cfg,
		log:   log,
		store: store,
		logs:  logs,
		gen:   gen,
		locks: locks,
		now:   time.Now,
	}
}

// HandleImage runs one inbound image event end to end: resolve quota, call the
// generation gateway, then commit the debit. The whole sequence, including the
// remote call, runs inside the per-user exclusive section; debit and
// generation success commit together or not at all.
func (s *CaptionService) HandleImage(ctx context.Context, req CaptionRequest) (*CaptionResult, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	requestID := uuid.NewString()

	unlock := s.locks.Lock(req.UserID)
	defer unlock()

	now := s.now()
	ent, err := s.loadOrDefault(ctx, req.UserID, now)
	if err != nil {
		return nil, err
	}

	decision := quota.Resolve(ent, now)
	if decision.DayRolled {
		// The daily reset is persisted even when the request is denied.
		if err := s.store.Save(ctx, ent); err != nil {
			return nil, fmt.Errorf("persist daily reset: %w", err)
		}
	}
	if !decision.Allowed {
		s.log.Info("caption request denied",
			"request_id", requestID, "user_id", req.UserID, "event_id", req.EventID)
		return nil, ErrQuotaExhausted
	}

	genCtx, cancel := context.WithTimeout(ctx, s.requestTimeout())
	defer cancel()
	result, err := s.gen.GenerateCaptions(genCtx, req.Image, req.Mime, s.cfg.Templates.CaptionStyles)
	if err != nil {
		s.log.Error("caption generation failed",
			"request_id", requestID, "user_id", req.UserID, "event_id", req.EventID, "err", err)
		return nil, fmt.Errorf("generate captions: %w", err)
	}

	// Stage the debit on a copy so a failed save discards the decision and
	// leaves every balance as it was before the request.
	staged := ent.Clone()
	if err := quota.Apply(staged, decision); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, staged); err != nil {
		s.log.Error("debit persist failed",
			"request_id", requestID, "user_id", req.UserID, "source", decision.Source, "err", err)
		return nil, fmt.Errorf("persist debit: %w", err)
	}

	if s.logs != nil {
		if err := s.logs.Log(ctx, req.UserID, req.EventID, decision.Source, result.Topic); err != nil {
			s.log.Error("failed to log caption", "request_id", requestID, "err", err)
		}
	}

	s.log.Info("caption request served",
		"request_id", requestID, "user_id", req.UserID, "event_id", req.EventID,
		"source", decision.Source, "captions", len(result.Captions))

	return &CaptionResult{
		Captions:    result.Captions,
		Entitlement: staged,
		Source:      decision.Source,
	}, nil
}

// Now reads the service clock, so reply composition sees the same time base
// as quota decisions.
func (s *CaptionService) Now() time.Time {
	return s.now()
}

// loadOrDefault returns the stored record or a fresh, not yet persisted
// default for an unseen user.
func (s *CaptionService) loadOrDefault(ctx context.Context, userID string, now time.Time) (*models.Entitlement, error) {
	ent, err := s.store.Find(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find entitlement: %w", err)
	}
	if ent == nil {
		ent = defaultEntitlement(userID, s.cfg.FreeDailyCaptions, now)
	}
	return ent, nil
}

func (s *CaptionService) requestTimeout() time.Duration {
	if s.cfg.RequestTimeout > 0 {
		return s.cfg.RequestTimeout
	}
	return 60 * time.Second
}

func defaultEntitlement(userID string, dailyLimit int, now time.Time) *models.Entitlement {
	return &models.Entitlement{
		UserID:     userID,
		DailyLimit: dailyLimit,
		LastReset:  quota.DateOnly(now),
	}
}
