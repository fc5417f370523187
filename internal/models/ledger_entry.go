package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Ledger entry types.
const (
	EntryTypeDeposit    = "deposit"
	EntryTypeWithdrawal = "withdrawal"
	EntryTypeBet        = "bet"
	EntryTypePayout     = "payout"
	EntryTypeRefund     = "refund"
	EntryTypeFee        = "fee"
	EntryTypeBonus      = "bonus"
)

// Ledger entry statuses.
const (
	EntryStatusPending   = "pending"
	EntryStatusCompleted = "completed"
	EntryStatusFailed    = "failed"
	EntryStatusCancelled = "cancelled"
)

// LedgerEntry is an immutable record of one balance-affecting event.
// Amount is signed: debits are negative. For every entry
// BalanceAfter == BalanceBefore + Amount; replaying all completed entries
// for a user in creation order reproduces the live account balance.
type LedgerEntry struct {
	ID     string `gorm:"primaryKey;type:uuid"`
	UserID string `gorm:"type:uuid;not null;index:idx_ledger_user_created"`

	EntryType string `gorm:"type:varchar(20);not null;index:idx_ledger_type_status"`

	Amount        decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,6);not null"`

	Status string `gorm:"type:varchar(20);not null;default:'pending';index:idx_ledger_type_status"`

	BetID    *string `gorm:"type:uuid;index"`
	MarketID *string `gorm:"type:uuid;index"`

	// ExternalID deduplicates entries created from externally delivered
	// events (payment webhooks); inserts conflict-ignore on it.
	ExternalID *string `gorm:"type:varchar(100);uniqueIndex"`

	Description string         `gorm:"type:text"`
	Metadata    datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index:idx_ledger_user_created"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
