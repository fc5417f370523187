// Package memory provides a map-backed repository.Repository used by
// tests and local development. Transactions run against a deep copy of
// the state and commit by swapping it in, so a failed transaction leaves
// no partial writes — the same rollback guarantee the postgres
// implementation gets from real transactions.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"predictmarket/internal/models"
	"predictmarket/internal/repository"
)

type state struct {
	accounts map[string]models.Account
	markets  map[string]models.Market
	bets     map[string]models.Bet
	ledger   map[string]models.LedgerEntry
	referral map[string]models.ReferralProfile

	ledgerSeq []string // insertion order of ledger entry IDs
	betSeq    []string
}

func newState() *state {
	return &state{
		accounts: map[string]models.Account{},
		markets:  map[string]models.Market{},
		bets:     map[string]models.Bet{},
		ledger:   map[string]models.LedgerEntry{},
		referral: map[string]models.ReferralProfile{},
	}
}

func (st *state) clone() *state {
	next := newState()
	for k, v := range st.accounts {
		next.accounts[k] = v
	}
	for k, v := range st.markets {
		v.OutcomeVolumes = cloneVolumes(v.OutcomeVolumes)
		next.markets[k] = v
	}
	for k, v := range st.bets {
		next.bets[k] = v
	}
	for k, v := range st.ledger {
		next.ledger[k] = v
	}
	for k, v := range st.referral {
		next.referral[k] = v
	}
	next.ledgerSeq = append([]string(nil), st.ledgerSeq...)
	next.betSeq = append([]string(nil), st.betSeq...)
	return next
}

func cloneVolumes(v models.OutcomeVolumes) models.OutcomeVolumes {
	out := make(models.OutcomeVolumes, len(v))
	for k, amt := range v {
		out[k] = amt
	}
	return out
}

// Store is the in-memory repository. The zero value is not usable; call New.
type Store struct {
	mu sync.Mutex
	st *state

	// inTx is set on the transaction-scoped view handed to InTx callbacks.
	inTx bool
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(tx repository.Repository) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	txView := &Store{st: s.st.clone(), inTx: true}
	if err := fn(txView); err != nil {
		return err
	}
	s.st = txView.st
	return nil
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// --- Accounts ---------------------------------------------------------------

func (s *Store) CreateAccount(ctx context.Context, item *models.Account) error {
	defer s.lock()()
	s.st.accounts[item.ID] = *item
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	defer s.lock()()
	item, ok := s.st.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (s *Store) GetAccountForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return s.GetAccount(ctx, id)
}

func (s *Store) GetAccountForUpdateNoWait(ctx context.Context, id string) (*models.Account, error) {
	return s.GetAccount(ctx, id)
}

func (s *Store) SaveAccount(ctx context.Context, item *models.Account) error {
	defer s.lock()()
	if _, ok := s.st.accounts[item.ID]; !ok {
		return repository.ErrNotFound
	}
	s.st.accounts[item.ID] = *item
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, limit, offset int) ([]models.Account, error) {
	defer s.lock()()
	ids := make([]string, 0, len(s.st.accounts))
	for id := range s.st.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	items := make([]models.Account, 0, len(ids))
	for _, id := range ids {
		items = append(items, s.st.accounts[id])
	}
	return paginate(items, limit, offset), nil
}

// --- Markets ----------------------------------------------------------------

func (s *Store) CreateMarket(ctx context.Context, item *models.Market) error {
	defer s.lock()()
	cp := *item
	cp.OutcomeVolumes = cloneVolumes(item.OutcomeVolumes)
	s.st.markets[item.ID] = cp
	return nil
}

func (s *Store) GetMarket(ctx context.Context, id string) (*models.Market, error) {
	defer s.lock()()
	item, ok := s.st.markets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	item.OutcomeVolumes = cloneVolumes(item.OutcomeVolumes)
	return &item, nil
}

func (s *Store) GetMarketForUpdate(ctx context.Context, id string) (*models.Market, error) {
	return s.GetMarket(ctx, id)
}

func (s *Store) SaveMarket(ctx context.Context, item *models.Market) error {
	defer s.lock()()
	if _, ok := s.st.markets[item.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *item
	cp.OutcomeVolumes = cloneVolumes(item.OutcomeVolumes)
	s.st.markets[item.ID] = cp
	return nil
}

func (s *Store) ListMarkets(ctx context.Context, params repository.ListMarketsParams) ([]models.Market, error) {
	defer s.lock()()
	var items []models.Market
	for _, m := range s.st.markets {
		if params.Status != nil && m.Status != *params.Status {
			continue
		}
		if params.MarketType != nil && m.MarketType != *params.MarketType {
			continue
		}
		if params.Symbol != nil && m.Symbol != *params.Symbol {
			continue
		}
		m.OutcomeVolumes = cloneVolumes(m.OutcomeVolumes)
		items = append(items, m)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (s *Store) ListActiveTargetMarkets(ctx context.Context) ([]models.Market, error) {
	defer s.lock()()
	var items []models.Market
	for _, m := range s.st.markets {
		if m.MarketType != models.MarketTypeTarget || m.Status != models.MarketStatusActive {
			continue
		}
		m.OutcomeVolumes = cloneVolumes(m.OutcomeVolumes)
		items = append(items, m)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ResolutionDate.Before(items[j].ResolutionDate) })
	return items, nil
}

func (s *Store) ListActiveMarketsDue(ctx context.Context, now time.Time) ([]models.Market, error) {
	defer s.lock()()
	var items []models.Market
	for _, m := range s.st.markets {
		if m.MarketType == models.MarketTypeTarget || m.Status != models.MarketStatusActive {
			continue
		}
		if m.ResolutionDate.After(now) {
			continue
		}
		m.OutcomeVolumes = cloneVolumes(m.OutcomeVolumes)
		items = append(items, m)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ResolutionDate.Before(items[j].ResolutionDate) })
	return items, nil
}

// --- Bets -------------------------------------------------------------------

func (s *Store) CreateBet(ctx context.Context, item *models.Bet) error {
	defer s.lock()()
	s.st.bets[item.ID] = *item
	s.st.betSeq = append(s.st.betSeq, item.ID)
	return nil
}

func (s *Store) GetBet(ctx context.Context, id string) (*models.Bet, error) {
	defer s.lock()()
	item, ok := s.st.bets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (s *Store) SaveBet(ctx context.Context, item *models.Bet) error {
	defer s.lock()()
	if _, ok := s.st.bets[item.ID]; !ok {
		return repository.ErrNotFound
	}
	s.st.bets[item.ID] = *item
	return nil
}

func (s *Store) ListBetsByMarket(ctx context.Context, marketID string, status *string) ([]models.Bet, error) {
	defer s.lock()()
	var items []models.Bet
	for _, id := range s.st.betSeq {
		b := s.st.bets[id]
		if b.MarketID != marketID {
			continue
		}
		if status != nil && b.Status != *status {
			continue
		}
		items = append(items, b)
	}
	return items, nil
}

func (s *Store) ListBetsByUser(ctx context.Context, userID string, params repository.ListBetsParams) ([]models.Bet, error) {
	defer s.lock()()
	var items []models.Bet
	for _, id := range s.st.betSeq {
		b := s.st.bets[id]
		if b.UserID != userID {
			continue
		}
		if params.Status != nil && b.Status != *params.Status {
			continue
		}
		if params.MarketID != nil && b.MarketID != *params.MarketID {
			continue
		}
		items = append(items, b)
	}
	return items, nil
}

// --- Ledger -----------------------------------------------------------------

func (s *Store) CreateLedgerEntry(ctx context.Context, item *models.LedgerEntry) error {
	defer s.lock()()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.st.ledger[item.ID] = *item
	s.st.ledgerSeq = append(s.st.ledgerSeq, item.ID)
	return nil
}

func (s *Store) CreateLedgerEntryIdempotent(ctx context.Context, item *models.LedgerEntry) (bool, error) {
	defer s.lock()()
	if item.ExternalID != nil {
		for _, existing := range s.st.ledger {
			if existing.ExternalID != nil && *existing.ExternalID == *item.ExternalID {
				return false, nil
			}
		}
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.st.ledger[item.ID] = *item
	s.st.ledgerSeq = append(s.st.ledgerSeq, item.ID)
	return true, nil
}

func (s *Store) GetLedgerEntryByExternalID(ctx context.Context, externalID string) (*models.LedgerEntry, error) {
	defer s.lock()()
	for _, item := range s.st.ledger {
		if item.ExternalID != nil && *item.ExternalID == externalID {
			return &item, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListLedgerEntriesByUser(ctx context.Context, userID string, params repository.ListLedgerParams) ([]models.LedgerEntry, error) {
	defer s.lock()()
	var items []models.LedgerEntry
	for _, id := range s.st.ledgerSeq {
		e := s.st.ledger[id]
		if e.UserID != userID {
			continue
		}
		if params.EntryType != nil && e.EntryType != strings.TrimSpace(*params.EntryType) {
			continue
		}
		if params.Status != nil && e.Status != strings.TrimSpace(*params.Status) {
			continue
		}
		if params.Since != nil && e.CreatedAt.Before(*params.Since) {
			continue
		}
		items = append(items, e)
	}
	return paginate(items, params.Limit, params.Offset), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *Store) ListLedgerEntriesByMarket(ctx context.Context, marketID string) ([]models.LedgerEntry, error) {
	defer s.lock()()
	var items []models.LedgerEntry
	for _, id := range s.st.ledgerSeq {
		e := s.st.ledger[id]
		if e.MarketID != nil && *e.MarketID == marketID {
			items = append(items, e)
		}
	}
	return items, nil
}

// --- Referral profiles ------------------------------------------------------

func (s *Store) CreateReferralProfile(ctx context.Context, item *models.ReferralProfile) error {
	defer s.lock()()
	s.st.referral[item.UserID] = *item
	return nil
}

func (s *Store) GetReferralProfile(ctx context.Context, userID string) (*models.ReferralProfile, error) {
	defer s.lock()()
	item, ok := s.st.referral[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (s *Store) GetReferralProfileForUpdate(ctx context.Context, userID string) (*models.ReferralProfile, error) {
	return s.GetReferralProfile(ctx, userID)
}

func (s *Store) SaveReferralProfile(ctx context.Context, item *models.ReferralProfile) error {
	defer s.lock()()
	if _, ok := s.st.referral[item.UserID]; !ok {
		return repository.ErrNotFound
	}
	s.st.referral[item.UserID] = *item
	return nil
}
