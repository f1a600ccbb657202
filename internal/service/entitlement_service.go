package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mediarise/captionbot/internal/config"
	"github.com/mediarise/captionbot/internal/models"
	"github.com/mediarise/captionbot/internal/quota"
)

// UserLister enumerates every known user, used for broadcast delivery.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// EntitlementService exposes the administrative operations on entitlement
// records: status snapshots, bonus top-ups, and VIP grants. Every mutation
// takes the same per-user lock as the caption path, so a top-up can never be
// overwritten by a concurrent debit.
type EntitlementService struct {
	cfg    config.Config
	store  EntitlementStore
	lister UserLister
	locks  *KeyedMutex
	now    func() time.Time
}

func NewEntitlementService(cfg config.Config, store EntitlementStore, lister UserLister, locks *KeyedMutex) *EntitlementService {
	return &EntitlementService{
		cfg:    cfg,
		store:  store,
		lister: lister,
		locks:  locks,
		now:    time.Now,
	}
}

// Status returns the current record with the lazy daily reset applied. A
// rollover observed on access is persisted immediately; a fresh default for an
// unseen user is returned without being stored.
func (s *EntitlementService) Status(ctx context.Context, userID string) (*models.Entitlement, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.now()
	ent, err := s.store.Find(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find entitlement: %w", err)
	}
	if ent == nil {
		return defaultEntitlement(userID, s.cfg.FreeDailyCaptions, now), nil
	}
	if quota.ResetIfNewDay(ent, now) {
		if err := s.store.Save(ctx, ent); err != nil {
			return nil, fmt.Errorf("persist daily reset: %w", err)
		}
	}
	return ent, nil
}

// TopUp adjusts one bonus pool by delta, clamping the result at zero.
func (s *EntitlementService) TopUp(ctx context.Context, userID string, pool models.BonusPool, delta int) (*models.Entitlement, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.now()
	ent, err := s.store.Find(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find entitlement: %w", err)
	}
	if ent == nil {
		ent = defaultEntitlement(userID, s.cfg.FreeDailyCaptions, now)
	}
	quota.ResetIfNewDay(ent, now)

	switch pool {
	case models.PoolReferral:
		ent.ReferralBonus = clampZero(ent.ReferralBonus + delta)
	case models.PoolService:
		ent.ServiceBonus = clampZero(ent.ServiceBonus + delta)
	case models.PoolReward:
		ent.RewardBonus = clampZero(ent.RewardBonus + delta)
	default:
		return nil, fmt.Errorf("unknown bonus pool %q", pool)
	}

	if err := s.store.Save(ctx, ent); err != nil {
		return nil, fmt.Errorf("save top-up: %w", err)
	}
	return ent, nil
}

// GrantVIP extends unmetered status by the given number of days, counted from
// today or from the current expiry, whichever is later.
func (s *EntitlementService) GrantVIP(ctx context.Context, userID string, days int) (*models.Entitlement, error) {
	if days <= 0 {
		return nil, fmt.Errorf("vip days must be positive")
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.now()
	ent, err := s.store.Find(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find entitlement: %w", err)
	}
	if ent == nil {
		ent = defaultEntitlement(userID, s.cfg.FreeDailyCaptions, now)
	}
	quota.ResetIfNewDay(ent, now)

	base := quota.DateOnly(now)
	if ent.VIPExpiry != nil && quota.DateOnly(*ent.VIPExpiry).After(base) {
		base = quota.DateOnly(*ent.VIPExpiry)
	}
	expiry := base.AddDate(0, 0, days)
	ent.VIPExpiry = &expiry

	if err := s.store.Save(ctx, ent); err != nil {
		return nil, fmt.Errorf("save vip grant: %w", err)
	}
	return ent, nil
}

// ClearVIP removes unmetered status.
func (s *EntitlementService) ClearVIP(ctx context.Context, userID string) (*models.Entitlement, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.now()
	ent, err := s.store.Find(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find entitlement: %w", err)
	}
	if ent == nil {
		return defaultEntitlement(userID, s.cfg.FreeDailyCaptions, now), nil
	}
	quota.ResetIfNewDay(ent, now)
	ent.VIPExpiry = nil

	if err := s.store.Save(ctx, ent); err != nil {
		return nil, fmt.Errorf("save vip clear: %w", err)
	}
	return ent, nil
}

func (s *EntitlementService) ListUserIDs(ctx context.Context) ([]string, error) {
	ids, err := s.lister.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return ids, nil
}

func clampZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
