package models

import "time"

// DebitSource names where a permitted caption request takes its single unit from.
type DebitSource string

const (
	SourceVIP      DebitSource = "vip"
	SourceDaily    DebitSource = "daily"
	SourceReferral DebitSource = "referral"
	SourceService  DebitSource = "service"
	SourceReward   DebitSource = "reward"
)

// BonusPool identifies one of the administratively topped-up balances.
type BonusPool string

const (
	PoolReferral BonusPool = "referral"
	PoolService  BonusPool = "service"
	PoolReward   BonusPool = "reward"
)

// Entitlement is the per-user usage record. UserID is the opaque platform
// identifier. UsedToday is only meaningful relative to LastReset; counts are
// never negative and VIPExpiry is absent unless granted.
type Entitlement struct {
	UserID        string
	DailyLimit    int
	UsedToday     int
	LastReset     time.Time
	ReferralBonus int
	ServiceBonus  int
	RewardBonus   int
	VIPExpiry     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone returns a deep copy so callers can stage mutations and discard them.
func (e *Entitlement) Clone() *Entitlement {
	cp := *e
	if e.VIPExpiry != nil {
		expiry := *e.VIPExpiry
		cp.VIPExpiry = &expiry
	}
	return &cp
}

// Caption is one styled (title, body) pair produced by the generation gateway.
type Caption struct {
	Label string
	Title string
	Body  string
}

type CaptionLog struct {
	ID        int64
	UserID    string
	EventID   string
	Source    DebitSource
	Topic     string
	CreatedAt time.Time
}

type ReferralCode struct {
	ID        int64
	Code      string
	Bonus     int
	MaxUses   int
	Uses      int
	CreatedAt time.Time
}
