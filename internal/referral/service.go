// Package referral pays signup bonuses and deposit commissions through
// the ledger's bonus credit primitive. It has no settlement logic of its
// own; all balance changes reconcile like any other ledger entry.
package referral

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"predictmarket/internal/ledger"
	"predictmarket/internal/models"
	"predictmarket/internal/repository"
)

type Service struct {
	Repo   repository.Repository
	Ledger *ledger.Service
	Logger *zap.Logger

	// NewUserBonus is the flat welcome credit for the referred user.
	NewUserBonus decimal.Decimal
}

// ProcessSignup credits the referrer's tier signup bonus and the new
// user's welcome bonus when a referred registration completes.
func (s *Service) ProcessSignup(ctx context.Context, referrerID, newUserID string) error {
	profile, err := s.Repo.GetReferralProfile(ctx, referrerID)
	if err != nil {
		return fmt.Errorf("load referrer profile: %w", err)
	}
	cfg := ConfigFor(profile.Tier)

	_, inserted, err := s.Ledger.Credit(ctx, ledger.CreditRequest{
		UserID:      referrerID,
		Amount:      cfg.SignupBonus,
		EntryType:   models.EntryTypeBonus,
		ExternalID:  "referral:signup:" + newUserID,
		Description: "referral signup bonus",
	})
	if err != nil {
		return fmt.Errorf("credit referrer: %w", err)
	}

	// The profile counters move together with the bonus entry. A
	// redelivered signup event collapses in the ledger, so it must not
	// re-count the referral or promote the tier a second time.
	if inserted {
		if err := s.Repo.InTx(ctx, func(tx repository.Repository) error {
			locked, err := tx.GetReferralProfileForUpdate(ctx, referrerID)
			if err != nil {
				return err
			}
			locked.TotalReferrals++
			locked.TotalEarnings = locked.TotalEarnings.Add(cfg.SignupBonus)
			locked.SignupEarnings = locked.SignupEarnings.Add(cfg.SignupBonus)
			if cfg.PromoteAt > 0 && locked.TotalReferrals >= cfg.PromoteAt {
				locked.Tier = NextTier(locked.Tier)
			}
			return tx.SaveReferralProfile(ctx, locked)
		}); err != nil {
			return fmt.Errorf("update referrer profile: %w", err)
		}
	}

	if s.NewUserBonus.GreaterThan(decimal.Zero) {
		if _, _, err := s.Ledger.Credit(ctx, ledger.CreditRequest{
			UserID:      newUserID,
			Amount:      s.NewUserBonus,
			EntryType:   models.EntryTypeBonus,
			ExternalID:  "referral:welcome:" + newUserID,
			Description: "referral welcome bonus",
		}); err != nil {
			return fmt.Errorf("credit new user: %w", err)
		}
	}

	if s.Logger != nil {
		s.Logger.Info("referral signup processed",
			zap.String("referrer_id", referrerID),
			zap.String("new_user_id", newUserID),
			zap.String("bonus", cfg.SignupBonus.String()),
		)
	}
	return nil
}

// ProcessDeposit pays the referrer their tier commission on a referred
// user's completed deposit. The ledger entry is keyed on the deposit's
// external ID so redelivered webhooks cannot double-pay.
func (s *Service) ProcessDeposit(ctx context.Context, userID string, depositAmount decimal.Decimal, depositExternalID string) error {
	profile, err := s.Repo.GetReferralProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil // user was not referred
		}
		return fmt.Errorf("load profile: %w", err)
	}
	if profile.ReferredByID == nil {
		return nil
	}
	referrerID := *profile.ReferredByID

	refProfile, err := s.Repo.GetReferralProfile(ctx, referrerID)
	if err != nil {
		return fmt.Errorf("load referrer profile: %w", err)
	}
	cfg := ConfigFor(refProfile.Tier)
	commission := depositAmount.Mul(cfg.DepositCommission)
	if commission.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	_, inserted, err := s.Ledger.Credit(ctx, ledger.CreditRequest{
		UserID:      referrerID,
		Amount:      commission,
		EntryType:   models.EntryTypeBonus,
		ExternalID:  "referral:deposit:" + depositExternalID,
		Description: "referral deposit commission",
	})
	if err != nil {
		return fmt.Errorf("credit commission: %w", err)
	}
	if !inserted {
		return nil // redelivered deposit event, already paid and counted
	}

	return s.Repo.InTx(ctx, func(tx repository.Repository) error {
		locked, err := tx.GetReferralProfileForUpdate(ctx, referrerID)
		if err != nil {
			return err
		}
		locked.TotalEarnings = locked.TotalEarnings.Add(commission)
		locked.DepositEarnings = locked.DepositEarnings.Add(commission)
		return tx.SaveReferralProfile(ctx, locked)
	})
}
