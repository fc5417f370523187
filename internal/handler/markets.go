package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"predictmarket/internal/models"
	"predictmarket/internal/odds"
	"predictmarket/internal/pricefeed"
	"predictmarket/internal/repository"
)

type MarketHandler struct {
	Repo repository.Repository
	Feed pricefeed.Feed
	Odds odds.Params
}

func (h *MarketHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/markets")
	group.GET("", h.listMarkets)
	group.POST("", h.createMarket)
	group.GET("/:id", h.getMarket)
	group.GET("/:id/odds", h.getOdds)
	group.GET("/:id/bets", h.listBets)
}

func (h *MarketHandler) listMarkets(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListMarketsParams{
		Limit:  parseIntQuery(c, "limit", 50),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if s := strings.TrimSpace(c.Query("status")); s != "" {
		params.Status = &s
	}
	if t := strings.TrimSpace(c.Query("type")); t != "" {
		params.MarketType = &t
	}
	if sym := strings.TrimSpace(c.Query("symbol")); sym != "" {
		params.Symbol = &sym
	}
	items, err := h.Repo.ListMarkets(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

type createMarketRequest struct {
	Title          string           `json:"title" binding:"required"`
	CreatorID      string           `json:"creator_id" binding:"required"`
	MarketType     string           `json:"market_type"`
	Symbol         string           `json:"symbol"`
	StartPrice     *decimal.Decimal `json:"start_price"`
	TargetPrice    *decimal.Decimal `json:"target_price"`
	MinBet         decimal.Decimal  `json:"min_bet"`
	MaxBet         decimal.Decimal  `json:"max_bet"`
	CreatorFeePct  decimal.Decimal  `json:"creator_fee_pct"`
	PlatformFeePct decimal.Decimal  `json:"platform_fee_pct"`
	ResolutionDate time.Time        `json:"resolution_date" binding:"required"`
}

func (h *MarketHandler) createMarket(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req createMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.MarketType == "" {
		req.MarketType = models.MarketTypePrice
	}
	switch req.MarketType {
	case models.MarketTypePrice, models.MarketTypeEvent, models.MarketTypeQuick, models.MarketTypeTarget:
	default:
		Error(c, http.StatusBadRequest, "unknown market_type", nil)
		return
	}
	if req.MarketType == models.MarketTypeTarget && req.TargetPrice == nil {
		Error(c, http.StatusBadRequest, "target_price required for target markets", nil)
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.MarketType != models.MarketTypeEvent && symbol == "" {
		Error(c, http.StatusBadRequest, "symbol required for "+req.MarketType+" markets", nil)
		return
	}
	// Price-tracking markets resolve against the price at creation, so
	// one must exist before any bet is taken. Capture it from the feed
	// when the caller leaves it out.
	startPrice := req.StartPrice
	if startPrice == nil && (req.MarketType == models.MarketTypePrice || req.MarketType == models.MarketTypeQuick) {
		if h.Feed == nil {
			Error(c, http.StatusBadRequest, "start_price required", nil)
			return
		}
		price, err := h.Feed.GetPrice(c.Request.Context(), symbol)
		if err != nil {
			Error(c, http.StatusBadGateway, "start price lookup: "+err.Error(), nil)
			return
		}
		startPrice = &price
	}
	if !req.ResolutionDate.After(time.Now().UTC()) {
		Error(c, http.StatusBadRequest, "resolution_date must be in the future", nil)
		return
	}
	if req.MinBet.LessThanOrEqual(decimal.Zero) {
		req.MinBet = decimal.NewFromInt(1)
	}
	if req.MaxBet.LessThanOrEqual(decimal.Zero) {
		req.MaxBet = decimal.NewFromInt(10000)
	}
	if req.MaxBet.LessThan(req.MinBet) {
		Error(c, http.StatusBadRequest, "max_bet below min_bet", nil)
		return
	}

	market := &models.Market{
		ID:             uuid.NewString(),
		Title:          req.Title,
		CreatorID:      req.CreatorID,
		MarketType:     req.MarketType,
		Status:         models.MarketStatusActive,
		Symbol:         symbol,
		StartPrice:     startPrice,
		TargetPrice:    req.TargetPrice,
		MinBet:         req.MinBet,
		MaxBet:         req.MaxBet,
		CreatorFeePct:  req.CreatorFeePct,
		PlatformFeePct: req.PlatformFeePct,
		OutcomeVolumes: models.OutcomeVolumes{},
		ResolutionDate: req.ResolutionDate.UTC(),
	}
	if err := h.Repo.CreateMarket(c.Request.Context(), market); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, market, nil)
}

func (h *MarketHandler) getMarket(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	item, err := h.Repo.GetMarket(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			Error(c, http.StatusNotFound, "market not found", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

func (h *MarketHandler) getOdds(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	market, err := h.Repo.GetMarket(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			Error(c, http.StatusNotFound, "market not found", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{
		"market_id":    market.ID,
		"total_volume": market.TotalVolume,
		"odds":         odds.All(market, h.Odds),
	}, nil)
}

func (h *MarketHandler) listBets(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var status *string
	if s := strings.TrimSpace(c.Query("status")); s != "" {
		status = &s
	}
	items, err := h.Repo.ListBetsByMarket(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
