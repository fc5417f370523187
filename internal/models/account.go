package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the per-user balance row. Balance is mutated only through
// ledger-producing operations; it must never go negative.
type Account struct {
	ID string `gorm:"primaryKey;type:uuid"`

	Balance       decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0"`
	TotalVolume   decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0"`
	TotalWinnings decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0"`

	WonBets  int64 `gorm:"not null;default:0"`
	LostBets int64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Account) TableName() string {
	return "accounts"
}
