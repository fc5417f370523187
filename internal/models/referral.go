package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Referral tiers. Indexed as typed constants so a bad tier is a
// load-time error, not a runtime lookup miss.
type ReferralTier int

const (
	TierBronze ReferralTier = iota
	TierSilver
	TierGold
	TierPlatinum
)

func (t ReferralTier) String() string {
	switch t {
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	case TierPlatinum:
		return "platinum"
	default:
		return "bronze"
	}
}

// ReferralProfile tracks a user's referral standing and accumulated
// referral earnings. Earnings are paid through the ledger's bonus
// credit primitive, so they reconcile like any other balance change.
type ReferralProfile struct {
	UserID       string  `gorm:"primaryKey;type:uuid"`
	ReferredByID *string `gorm:"type:uuid;index"`

	Tier ReferralTier `gorm:"not null;default:0"`

	TotalReferrals int64 `gorm:"not null;default:0"`

	TotalEarnings   decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0"`
	SignupEarnings  decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0"`
	DepositEarnings decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (ReferralProfile) TableName() string {
	return "referral_profiles"
}
