package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediarise/captionbot/internal/models"
)

var day1 = time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)

func entitlement(used int) *models.Entitlement {
	return &models.Entitlement{
		UserID:     "U1",
		DailyLimit: 3,
		UsedToday:  used,
		LastReset:  DateOnly(day1),
	}
}

func TestResolve_DailyLimitSequence(t *testing.T) {
	ent := entitlement(0)

	for i := 1; i <= 3; i++ {
		d := Resolve(ent, day1)
		require.True(t, d.Allowed, "request %d should be permitted", i)
		assert.Equal(t, models.SourceDaily, d.Source)
		require.NoError(t, Apply(ent, d))
		assert.Equal(t, i, ent.UsedToday)
	}

	d := Resolve(ent, day1)
	assert.False(t, d.Allowed, "request 4 should be denied")
	assert.Equal(t, 3, ent.UsedToday)
}

func TestResolve_BonusPoolAfterLimit(t *testing.T) {
	ent := entitlement(3)
	ent.ReferralBonus = 1

	d := Resolve(ent, day1)
	require.True(t, d.Allowed)
	assert.Equal(t, models.SourceReferral, d.Source)
	require.NoError(t, Apply(ent, d))
	assert.Equal(t, 0, ent.ReferralBonus)
	assert.Equal(t, 3, ent.UsedToday, "daily counter stays at the limit")

	d = Resolve(ent, day1)
	assert.False(t, d.Allowed)
}

func TestResolve_PoolPriorityOrder(t *testing.T) {
	ent := entitlement(3)
	ent.ReferralBonus = 1
	ent.ServiceBonus = 1
	ent.RewardBonus = 1

	expected := []models.DebitSource{models.SourceReferral, models.SourceService, models.SourceReward}
	for _, want := range expected {
		d := Resolve(ent, day1)
		require.True(t, d.Allowed)
		assert.Equal(t, want, d.Source)
		require.NoError(t, Apply(ent, d))
	}

	assert.False(t, Resolve(ent, day1).Allowed)
	assert.Zero(t, ent.ReferralBonus)
	assert.Zero(t, ent.ServiceBonus)
	assert.Zero(t, ent.RewardBonus)
}

func TestResolve_ExactlyOneUnitPerRequest(t *testing.T) {
	ent := entitlement(2)
	ent.ReferralBonus = 5

	d := Resolve(ent, day1)
	require.True(t, d.Allowed)
	require.NoError(t, Apply(ent, d))

	// One unit from one source: the daily counter moved, the pool did not.
	assert.Equal(t, 3, ent.UsedToday)
	assert.Equal(t, 5, ent.ReferralBonus)
}

func TestResolve_VIPBypassesAllBalances(t *testing.T) {
	ent := entitlement(3)
	expiry := DateOnly(day1).AddDate(0, 0, 5)
	ent.VIPExpiry = &expiry

	for i := 0; i < 10; i++ {
		d := Resolve(ent, day1)
		require.True(t, d.Allowed)
		assert.Equal(t, models.SourceVIP, d.Source)
		require.NoError(t, Apply(ent, d))
	}

	assert.Equal(t, 3, ent.UsedToday, "no field decremented under VIP")
	assert.Zero(t, ent.ReferralBonus)

	days, ok := VIPDaysLeft(ent, day1)
	require.True(t, ok)
	assert.Equal(t, 5, days)
}

func TestVIPActive_ExpiryBoundaries(t *testing.T) {
	ent := entitlement(0)

	today := DateOnly(day1)
	ent.VIPExpiry = &today
	assert.True(t, VIPActive(ent, day1), "expiry on today still counts")

	yesterday := today.AddDate(0, 0, -1)
	ent.VIPExpiry = &yesterday
	assert.False(t, VIPActive(ent, day1))

	days, ok := VIPDaysLeft(ent, day1)
	require.True(t, ok)
	assert.Equal(t, 0, days, "expired VIP clamps at zero days")

	ent.VIPExpiry = nil
	_, ok = VIPDaysLeft(ent, day1)
	assert.False(t, ok)
}

func TestResetIfNewDay(t *testing.T) {
	ent := entitlement(3)
	ent.LastReset = DateOnly(day1).AddDate(0, 0, -1)

	rolled := ResetIfNewDay(ent, day1)
	assert.True(t, rolled)
	assert.Equal(t, 0, ent.UsedToday)
	assert.Equal(t, DateOnly(day1), ent.LastReset)

	// Second call on the same day is a no-op.
	ent.UsedToday = 2
	rolled = ResetIfNewDay(ent, day1)
	assert.False(t, rolled)
	assert.Equal(t, 2, ent.UsedToday)
}

func TestResolve_ResetHappensBeforeDecision(t *testing.T) {
	ent := entitlement(3)
	ent.LastReset = DateOnly(day1).AddDate(0, 0, -1)

	d := Resolve(ent, day1)
	require.True(t, d.Allowed, "yesterday's maxed counter resets before deciding")
	assert.True(t, d.DayRolled)
	assert.Equal(t, models.SourceDaily, d.Source)
	assert.Equal(t, 0, ent.UsedToday, "resolve itself never debits")
}

func TestResolve_ZeroDailyLimitForcesPools(t *testing.T) {
	ent := entitlement(0)
	ent.DailyLimit = 0
	ent.ServiceBonus = 2

	d := Resolve(ent, day1)
	require.True(t, d.Allowed)
	assert.Equal(t, models.SourceService, d.Source)
}

func TestResolve_DenialMutatesNothingBeyondReset(t *testing.T) {
	ent := entitlement(3)
	before := *ent

	d := Resolve(ent, day1)
	require.False(t, d.Allowed)
	assert.Equal(t, before, *ent)
}

func TestApply_FailsClosed(t *testing.T) {
	ent := entitlement(3)

	err := Apply(ent, Decision{Allowed: true, Source: models.SourceReferral})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 0, ent.ReferralBonus, "never wraps below zero")

	err = Apply(ent, Decision{Allowed: true, Source: models.SourceDaily})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 3, ent.UsedToday)

	err = Apply(ent, Decision{})
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestRemainingToday_NeverNegative(t *testing.T) {
	ent := entitlement(3)
	assert.Equal(t, 0, RemainingToday(ent))

	ent.UsedToday = 1
	assert.Equal(t, 2, RemainingToday(ent))

	ent.UsedToday = 7
	assert.Equal(t, 0, RemainingToday(ent))
}
