package referral

import (
	"github.com/shopspring/decimal"

	"predictmarket/internal/models"
)

// TierConfig is the payout schedule for one referral tier.
type TierConfig struct {
	SignupBonus       decimal.Decimal
	DepositCommission decimal.Decimal // fraction of the referred deposit
	PromoteAt         int64           // referrals needed to reach the next tier
}

// tierTable is indexed by models.ReferralTier, so an out-of-range tier
// is impossible to construct from config rather than failing at lookup
// time.
var tierTable = [...]TierConfig{
	models.TierBronze:   {SignupBonus: decimal.NewFromInt(2), DepositCommission: decimal.NewFromFloat(0.01), PromoteAt: 10},
	models.TierSilver:   {SignupBonus: decimal.NewFromInt(5), DepositCommission: decimal.NewFromFloat(0.02), PromoteAt: 50},
	models.TierGold:     {SignupBonus: decimal.NewFromInt(10), DepositCommission: decimal.NewFromFloat(0.03), PromoteAt: 200},
	models.TierPlatinum: {SignupBonus: decimal.NewFromInt(20), DepositCommission: decimal.NewFromFloat(0.05), PromoteAt: 0},
}

// ConfigFor returns the schedule for a tier, clamping unknown values to
// bronze.
func ConfigFor(tier models.ReferralTier) TierConfig {
	if tier < models.TierBronze || int(tier) >= len(tierTable) {
		return tierTable[models.TierBronze]
	}
	return tierTable[tier]
}

// NextTier returns the tier after promotion, capped at platinum.
func NextTier(tier models.ReferralTier) models.ReferralTier {
	if tier >= models.TierPlatinum {
		return models.TierPlatinum
	}
	return tier + 1
}
