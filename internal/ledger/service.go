// Package ledger exposes the balance-affecting primitives shared by the
// betting core, payment-gateway callbacks and the referral subsystem.
// Every credit or debit goes through here, so the replay-the-ledger
// reconciliation invariant holds platform-wide.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"predictmarket/internal/metrics"
	"predictmarket/internal/models"
	"predictmarket/internal/repository"
)

var (
	ErrAmountNotPositive = errors.New("ledger: amount must be positive")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
)

type Service struct {
	Repo   repository.Repository
	Logger *zap.Logger

	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// CreditRequest describes an externally triggered balance credit.
type CreditRequest struct {
	UserID    string
	Amount    decimal.Decimal
	EntryType string // deposit or bonus

	// ExternalID deduplicates repeated deliveries of the same external
	// event. Empty means no idempotency key.
	ExternalID  string
	Description string
	Metadata    datatypes.JSON
}

// Credit adds funds to an account and writes the matching completed
// ledger entry in the same transaction. When the request carries an
// ExternalID that was already recorded, the duplicate is collapsed: no
// second entry, no balance change, and the original entry is returned
// with inserted false so callers can skip their own side effects.
func (s *Service) Credit(ctx context.Context, req CreditRequest) (*models.LedgerEntry, bool, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, false, ErrAmountNotPositive
	}
	if req.EntryType == "" {
		req.EntryType = models.EntryTypeDeposit
	}
	now := s.now()

	var out *models.LedgerEntry
	wrote := false
	err := s.Repo.InTx(ctx, func(tx repository.Repository) error {
		account, err := tx.GetAccountForUpdate(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}

		entry := &models.LedgerEntry{
			ID:            uuid.NewString(),
			UserID:        req.UserID,
			EntryType:     req.EntryType,
			Amount:        req.Amount,
			BalanceBefore: account.Balance,
			BalanceAfter:  account.Balance.Add(req.Amount),
			Status:        models.EntryStatusCompleted,
			Description:   req.Description,
			Metadata:      req.Metadata,
			CreatedAt:     now,
		}

		if req.ExternalID != "" {
			externalID := req.ExternalID
			entry.ExternalID = &externalID
			inserted, err := tx.CreateLedgerEntryIdempotent(ctx, entry)
			if err != nil {
				return fmt.Errorf("create ledger entry: %w", err)
			}
			if !inserted {
				existing, err := tx.GetLedgerEntryByExternalID(ctx, externalID)
				if err != nil {
					return fmt.Errorf("load duplicate entry: %w", err)
				}
				if s.Logger != nil {
					s.Logger.Info("duplicate external credit collapsed",
						zap.String("external_id", externalID),
						zap.String("user_id", req.UserID),
					)
				}
				out = existing
				return nil
			}
		} else {
			if err := tx.CreateLedgerEntry(ctx, entry); err != nil {
				return fmt.Errorf("create ledger entry: %w", err)
			}
		}

		account.Balance = entry.BalanceAfter
		if err := tx.SaveAccount(ctx, account); err != nil {
			return fmt.Errorf("credit account: %w", err)
		}
		out = entry
		wrote = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if wrote {
		metrics.LedgerEntries.WithLabelValues(req.EntryType).Inc()
	}
	return out, wrote, nil
}

// Withdraw debits an account, rejecting overdrafts.
func (s *Service) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, externalID, description string) (*models.LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrAmountNotPositive
	}
	now := s.now()

	var out *models.LedgerEntry
	err := s.Repo.InTx(ctx, func(tx repository.Repository) error {
		account, err := tx.GetAccountForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		if account.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}

		entry := &models.LedgerEntry{
			ID:            uuid.NewString(),
			UserID:        userID,
			EntryType:     models.EntryTypeWithdrawal,
			Amount:        amount.Neg(),
			BalanceBefore: account.Balance,
			BalanceAfter:  account.Balance.Sub(amount),
			Status:        models.EntryStatusCompleted,
			Description:   description,
			CreatedAt:     now,
		}
		if externalID != "" {
			id := externalID
			entry.ExternalID = &id
			inserted, err := tx.CreateLedgerEntryIdempotent(ctx, entry)
			if err != nil {
				return fmt.Errorf("create ledger entry: %w", err)
			}
			if !inserted {
				existing, err := tx.GetLedgerEntryByExternalID(ctx, externalID)
				if err != nil {
					return fmt.Errorf("load duplicate entry: %w", err)
				}
				out = existing
				return nil
			}
		} else {
			if err := tx.CreateLedgerEntry(ctx, entry); err != nil {
				return fmt.Errorf("create ledger entry: %w", err)
			}
		}

		account.Balance = entry.BalanceAfter
		if err := tx.SaveAccount(ctx, account); err != nil {
			return fmt.Errorf("debit account: %w", err)
		}
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.LedgerEntries.WithLabelValues(models.EntryTypeWithdrawal).Inc()
	return out, nil
}

// Report is the outcome of replaying one account's ledger.
type Report struct {
	UserID         string
	ReplayedAmount decimal.Decimal
	LiveBalance    decimal.Decimal
	Entries        int
	Consistent     bool
}

// Reconcile replays all completed entries for a user from zero and
// compares the result to the live balance. A mismatch means the
// append-only invariant was violated somewhere and is alert-worthy.
//
// The balance read and the ledger walk run in one transaction under the
// account lock, so a credit landing mid-walk cannot show up as drift.
func (s *Service) Reconcile(ctx context.Context, userID string) (*Report, error) {
	var report *Report
	err := s.Repo.InTx(ctx, func(tx repository.Repository) error {
		account, err := tx.GetAccountForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		completed := models.EntryStatusCompleted
		replayed := decimal.Zero
		count := 0
		const page = 500
		for offset := 0; ; offset += page {
			entries, err := tx.ListLedgerEntriesByUser(ctx, userID, repository.ListLedgerParams{
				Status: &completed,
				Limit:  page,
				Offset: offset,
			})
			if err != nil {
				return fmt.Errorf("list entries: %w", err)
			}
			for _, e := range entries {
				if !e.BalanceAfter.Equal(e.BalanceBefore.Add(e.Amount)) {
					if s.Logger != nil {
						s.Logger.Error("ledger entry internally inconsistent",
							zap.String("entry_id", e.ID),
							zap.String("user_id", userID),
						)
					}
					report = &Report{UserID: userID, LiveBalance: account.Balance, Entries: count}
					return nil
				}
				replayed = replayed.Add(e.Amount)
			}
			count += len(entries)
			if len(entries) < page {
				break
			}
		}

		report = &Report{
			UserID:         userID,
			ReplayedAmount: replayed,
			LiveBalance:    account.Balance,
			Entries:        count,
			Consistent:     replayed.Equal(account.Balance),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !report.Consistent {
		metrics.ReconciliationDrift.Set(1)
		if s.Logger != nil {
			s.Logger.Error("ledger reconciliation mismatch",
				zap.String("user_id", userID),
				zap.String("replayed", report.ReplayedAmount.String()),
				zap.String("live", report.LiveBalance.String()),
			)
		}
	}
	return report, nil
}

// AuditAll reconciles every account and returns how many drifted. Meant
// for the periodic audit job; a clean pass resets the drift gauge.
func (s *Service) AuditAll(ctx context.Context) (int, error) {
	drifted := 0
	const page = 200
	for offset := 0; ; offset += page {
		accounts, err := s.Repo.ListAccounts(ctx, page, offset)
		if err != nil {
			return drifted, fmt.Errorf("list accounts: %w", err)
		}
		for _, acc := range accounts {
			report, err := s.Reconcile(ctx, acc.ID)
			if err != nil {
				return drifted, err
			}
			if !report.Consistent {
				drifted++
			}
		}
		if len(accounts) < page {
			break
		}
	}
	if drifted == 0 {
		metrics.ReconciliationDrift.Set(0)
	}
	return drifted, nil
}
