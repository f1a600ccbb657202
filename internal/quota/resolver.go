// Package quota decides whether a caption request is permitted and which
// balance the single consumed unit comes from. It is pure: persistence and
// locking live in the service layer.
package quota

import (
	"errors"
	"fmt"
	"time"

	"github.com/mediarise/captionbot/internal/models"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// Decision is the outcome of resolving one request. When Allowed, Source names
// the one balance to debit; the debit itself is deferred until the downstream
// generation succeeds. DayRolled reports that the lazy daily reset fired and
// must be persisted regardless of the final outcome.
type Decision struct {
	Allowed   bool
	Source    models.DebitSource
	DayRolled bool
}

// Resolve applies the lazy daily reset in place and picks the debit source:
// VIP bypass, then the daily free limit, then the bonus pools in fixed
// referral, service, reward order. It never mutates any balance.
func Resolve(ent *models.Entitlement, now time.Time) Decision {
	d := Decision{DayRolled: ResetIfNewDay(ent, now)}

	switch {
	case VIPActive(ent, now):
		d.Allowed = true
		d.Source = models.SourceVIP
	case ent.UsedToday < ent.DailyLimit:
		d.Allowed = true
		d.Source = models.SourceDaily
	case ent.ReferralBonus > 0:
		d.Allowed = true
		d.Source = models.SourceReferral
	case ent.ServiceBonus > 0:
		d.Allowed = true
		d.Source = models.SourceService
	case ent.RewardBonus > 0:
		d.Allowed = true
		d.Source = models.SourceReward
	}
	return d
}

// ResetIfNewDay zeroes UsedToday when the stored reset day differs from the
// current UTC day. Calling it twice on the same day is a no-op the second time.
func ResetIfNewDay(ent *models.Entitlement, now time.Time) bool {
	today := DateOnly(now)
	if ent.LastReset.Equal(today) {
		return false
	}
	ent.UsedToday = 0
	ent.LastReset = today
	return true
}

// Apply performs the single debit planned by a permitting decision. It fails
// closed: a debit that would drive any counter negative is rejected and the
// entitlement is left untouched.
func Apply(ent *models.Entitlement, d Decision) error {
	if !d.Allowed {
		return fmt.Errorf("apply on denied decision: %w", ErrInsufficientBalance)
	}
	switch d.Source {
	case models.SourceVIP:
		// Unmetered; nothing to debit.
	case models.SourceDaily:
		if ent.UsedToday >= ent.DailyLimit {
			return fmt.Errorf("daily limit already spent: %w", ErrInsufficientBalance)
		}
		ent.UsedToday++
	case models.SourceReferral:
		if ent.ReferralBonus <= 0 {
			return fmt.Errorf("referral pool empty: %w", ErrInsufficientBalance)
		}
		ent.ReferralBonus--
	case models.SourceService:
		if ent.ServiceBonus <= 0 {
			return fmt.Errorf("service pool empty: %w", ErrInsufficientBalance)
		}
		ent.ServiceBonus--
	case models.SourceReward:
		if ent.RewardBonus <= 0 {
			return fmt.Errorf("reward pool empty: %w", ErrInsufficientBalance)
		}
		ent.RewardBonus--
	default:
		return fmt.Errorf("unknown debit source %q", d.Source)
	}
	return nil
}

// VIPActive reports whether the user is unmetered at the given instant.
// An expiry on today's date still counts as active.
func VIPActive(ent *models.Entitlement, now time.Time) bool {
	if ent.VIPExpiry == nil {
		return false
	}
	return !DateOnly(*ent.VIPExpiry).Before(DateOnly(now))
}

// VIPDaysLeft returns the whole days until expiry, clamped at zero. The second
// return is false when no VIP expiry is set.
func VIPDaysLeft(ent *models.Entitlement, now time.Time) (int, bool) {
	if ent.VIPExpiry == nil {
		return 0, false
	}
	days := int(DateOnly(*ent.VIPExpiry).Sub(DateOnly(now)).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, true
}

// RemainingToday is the free-limit remainder shown to the user, never negative.
func RemainingToday(ent *models.Entitlement) int {
	remaining := ent.DailyLimit - ent.UsedToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// DateOnly truncates to a UTC calendar date. All quota day arithmetic is UTC.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
