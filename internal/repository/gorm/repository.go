package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"predictmarket/internal/models"
	"predictmarket/internal/repository"
)

// Store is the gorm/postgres implementation of repository.Repository.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx repository.Repository) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// --- Accounts ---------------------------------------------------------------

func (s *Store) CreateAccount(ctx context.Context, item *models.Account) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var item models.Account
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &item, nil
}

func (s *Store) GetAccountForUpdate(ctx context.Context, id string) (*models.Account, error) {
	var item models.Account
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, "id = ?", id).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &item, nil
}

func (s *Store) GetAccountForUpdateNoWait(ctx context.Context, id string) (*models.Account, error) {
	var item models.Account
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
		First(&item, "id = ?", id).Error
	if err != nil {
		return nil, mapLockError(err)
	}
	return &item, nil
}

func (s *Store) SaveAccount(ctx context.Context, item *models.Account) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) ListAccounts(ctx context.Context, limit, offset int) ([]models.Account, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Account
	err := s.db.WithContext(ctx).
		Order("created_at asc").
		Limit(normalizeLimit(limit, 200)).
		Offset(normalizeOffset(offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Markets ----------------------------------------------------------------

func (s *Store) CreateMarket(ctx context.Context, item *models.Market) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetMarket(ctx context.Context, id string) (*models.Market, error) {
	var item models.Market
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &item, nil
}

func (s *Store) GetMarketForUpdate(ctx context.Context, id string) (*models.Market, error) {
	var item models.Market
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, "id = ?", id).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &item, nil
}

func (s *Store) SaveMarket(ctx context.Context, item *models.Market) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) ListMarkets(ctx context.Context, params repository.ListMarketsParams) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Market{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.MarketType != nil && strings.TrimSpace(*params.MarketType) != "" {
		query = query.Where("market_type = ?", strings.TrimSpace(*params.MarketType))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.Market
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActiveTargetMarkets(ctx context.Context) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Market
	err := s.db.WithContext(ctx).
		Where("market_type = ?", models.MarketTypeTarget).
		Where("status = ?", models.MarketStatusActive).
		Order("resolution_date asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActiveMarketsDue(ctx context.Context, now time.Time) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var items []models.Market
	err := s.db.WithContext(ctx).
		Where("status = ?", models.MarketStatusActive).
		Where("market_type <> ?", models.MarketTypeTarget).
		Where("resolution_date <= ?", now).
		Order("resolution_date asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Bets -------------------------------------------------------------------

func (s *Store) CreateBet(ctx context.Context, item *models.Bet) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetBet(ctx context.Context, id string) (*models.Bet, error) {
	var item models.Bet
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &item, nil
}

func (s *Store) SaveBet(ctx context.Context, item *models.Bet) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) ListBetsByMarket(ctx context.Context, marketID string, status *string) ([]models.Bet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Where("market_id = ?", marketID)
	if status != nil && strings.TrimSpace(*status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*status))
	}
	var items []models.Bet
	if err := query.Order("placed_at asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListBetsByUser(ctx context.Context, userID string, params repository.ListBetsParams) ([]models.Bet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.MarketID != nil && strings.TrimSpace(*params.MarketID) != "" {
		query = query.Where("market_id = ?", strings.TrimSpace(*params.MarketID))
	}
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.Bet
	if err := query.Order("placed_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Ledger -----------------------------------------------------------------

func (s *Store) CreateLedgerEntry(ctx context.Context, item *models.LedgerEntry) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) CreateLedgerEntryIdempotent(ctx context.Context, item *models.LedgerEntry) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) GetLedgerEntryByExternalID(ctx context.Context, externalID string) (*models.LedgerEntry, error) {
	var item models.LedgerEntry
	err := s.db.WithContext(ctx).First(&item, "external_id = ?", externalID).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &item, nil
}

func (s *Store) ListLedgerEntriesByUser(ctx context.Context, userID string, params repository.ListLedgerParams) ([]models.LedgerEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if params.EntryType != nil && strings.TrimSpace(*params.EntryType) != "" {
		query = query.Where("entry_type = ?", strings.TrimSpace(*params.EntryType))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.LedgerEntry
	if err := query.Order("created_at asc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListLedgerEntriesByMarket(ctx context.Context, marketID string) ([]models.LedgerEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("created_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Referral profiles ------------------------------------------------------

func (s *Store) CreateReferralProfile(ctx context.Context, item *models.ReferralProfile) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetReferralProfile(ctx context.Context, userID string) (*models.ReferralProfile, error) {
	var item models.ReferralProfile
	err := s.db.WithContext(ctx).First(&item, "user_id = ?", userID).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &item, nil
}

func (s *Store) GetReferralProfileForUpdate(ctx context.Context, userID string) (*models.ReferralProfile, error) {
	var item models.ReferralProfile
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, "user_id = ?", userID).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &item, nil
}

func (s *Store) SaveReferralProfile(ctx context.Context, item *models.ReferralProfile) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

// --- helpers ----------------------------------------------------------------

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrNotFound
	}
	return err
}

// mapLockError translates postgres lock_not_available (55P03, raised by
// NOWAIT) into the retryable sentinel.
func mapLockError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
		return repository.ErrLockUnavailable
	}
	return mapNotFound(err)
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
