package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Market types.
const (
	MarketTypePrice  = "price"
	MarketTypeEvent  = "event"
	MarketTypeQuick  = "quick"
	MarketTypeTarget = "target"
)

// Market statuses. Resolved and cancelled are terminal.
const (
	MarketStatusActive    = "active"
	MarketStatusClosed    = "closed"
	MarketStatusResolved  = "resolved"
	MarketStatusCancelled = "cancelled"
)

// Outcome keys. Price/quick/target markets use UP/DOWN/FLAT,
// event markets use YES/NO.
const (
	OutcomeUp   = "UP"
	OutcomeDown = "DOWN"
	OutcomeFlat = "FLAT"
	OutcomeYes  = "YES"
	OutcomeNo   = "NO"
)

// OutcomeVolumes maps an outcome key to its accumulated stake. Stored as
// jsonb with decimal values serialized as strings so no precision is lost.
type OutcomeVolumes map[string]decimal.Decimal

func (v OutcomeVolumes) Value() (driver.Value, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (v *OutcomeVolumes) Scan(src any) error {
	if src == nil {
		*v = OutcomeVolumes{}
		return nil
	}
	var raw []byte
	switch x := src.(type) {
	case []byte:
		raw = x
	case string:
		raw = []byte(x)
	default:
		return errors.New("outcome_volumes: unsupported scan type")
	}
	if len(raw) == 0 {
		*v = OutcomeVolumes{}
		return nil
	}
	return json.Unmarshal(raw, v)
}

func (OutcomeVolumes) GormDataType() string {
	return "jsonb"
}

// Sum returns the total of all outcome pools.
func (v OutcomeVolumes) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, amt := range v {
		total = total.Add(amt)
	}
	return total
}

// Market is a wagering pool with per-outcome buckets.
type Market struct {
	ID         string `gorm:"primaryKey;type:uuid"`
	Title      string `gorm:"type:text;not null"`
	CreatorID  string `gorm:"type:uuid;index;not null"`
	MarketType string `gorm:"type:varchar(10);not null;default:'price';index"`

	// Asset symbol the market is about, e.g. BTC. Used by price and
	// target markets for resolution.
	Symbol string `gorm:"type:varchar(20);index"`

	Status         string  `gorm:"type:varchar(20);not null;default:'active';index"`
	WinningOutcome *string `gorm:"type:varchar(10)"`

	OutcomeVolumes OutcomeVolumes  `gorm:"type:jsonb;not null"`
	TotalVolume    decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0"`

	MinBet decimal.Decimal `gorm:"type:numeric(10,2);not null;default:1"`
	MaxBet decimal.Decimal `gorm:"type:numeric(15,2);not null;default:10000"`

	CreatorFeePct  decimal.Decimal `gorm:"type:numeric(5,4);not null;default:0.02"`
	PlatformFeePct decimal.Decimal `gorm:"type:numeric(5,4);not null;default:0.01"`

	// Price markets: start price captured at creation, final price at
	// resolution.
	StartPrice    *decimal.Decimal `gorm:"type:numeric(15,6)"`
	RoundEndPrice *decimal.Decimal `gorm:"type:numeric(15,6)"`

	// Target markets: first-touch rule state. HighestPriceReached is a
	// monotonic high-water mark persisted by the price monitor.
	TargetPrice         *decimal.Decimal `gorm:"type:numeric(15,2)"`
	HighestPriceReached *decimal.Decimal `gorm:"type:numeric(15,2)"`

	ResolutionDate time.Time  `gorm:"type:timestamptz;not null;index"`
	ResolvedAt     *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Market) TableName() string {
	return "markets"
}

// OutcomesForType returns the fixed outcome key set for a market type.
func OutcomesForType(marketType string) []string {
	switch marketType {
	case MarketTypeEvent:
		return []string{OutcomeYes, OutcomeNo}
	default:
		return []string{OutcomeUp, OutcomeDown, OutcomeFlat}
	}
}

// ValidOutcome reports whether outcome is one of the market's outcome keys.
func (m *Market) ValidOutcome(outcome string) bool {
	for _, key := range OutcomesForType(m.MarketType) {
		if key == outcome {
			return true
		}
	}
	return false
}

// IsOpen reports whether the market still accepts bets at the given time.
func (m *Market) IsOpen(now time.Time) bool {
	return m.Status == MarketStatusActive && now.Before(m.ResolutionDate)
}
