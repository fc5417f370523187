package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bet statuses. Won, lost and refunded are terminal.
const (
	BetStatusActive   = "active"
	BetStatusWon      = "won"
	BetStatusLost     = "lost"
	BetStatusRefunded = "refunded"
)

// Bet is a single stake on one outcome of one market. OddsAtBet is locked
// at placement time and never recomputed; the parimutuel payout at
// resolution is derived from pool shares, not from these odds.
type Bet struct {
	ID       string `gorm:"primaryKey;type:uuid"`
	UserID   string `gorm:"type:uuid;not null;index:idx_bets_user_placed"`
	MarketID string `gorm:"type:uuid;not null;index:idx_bets_market_outcome"`

	Outcome string `gorm:"type:varchar(10);not null;index:idx_bets_market_outcome"`

	Amount          decimal.Decimal `gorm:"type:numeric(15,6);not null"`
	OddsAtBet       decimal.Decimal `gorm:"type:numeric(8,4);not null"`
	PotentialPayout decimal.Decimal `gorm:"type:numeric(20,6);not null"`

	Status       string           `gorm:"type:varchar(20);not null;default:'active';index"`
	ActualPayout *decimal.Decimal `gorm:"type:numeric(20,6)"`
	FeesPaid     decimal.Decimal  `gorm:"type:numeric(10,6);not null;default:0"`

	PlacedAt   time.Time  `gorm:"type:timestamptz;autoCreateTime;index:idx_bets_user_placed"`
	ResolvedAt *time.Time `gorm:"type:timestamptz"`
}

func (Bet) TableName() string {
	return "bets"
}

// Terminal reports whether the bet has reached a final state.
func (b *Bet) Terminal() bool {
	return b.Status == BetStatusWon || b.Status == BetStatusLost || b.Status == BetStatusRefunded
}
