package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"predictmarket/internal/engine"
	"predictmarket/internal/metrics"
	"predictmarket/internal/repository"
)

type BetHandler struct {
	Betting *engine.BettingEngine
	Repo    repository.Repository
}

func (h *BetHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/bets", h.placeBet)
	r.GET("/api/v1/users/:id/bets", h.listUserBets)
}

type placeBetRequest struct {
	UserID   string          `json:"user_id" binding:"required"`
	MarketID string          `json:"market_id" binding:"required"`
	Outcome  string          `json:"outcome" binding:"required"`
	Amount   decimal.Decimal `json:"amount" binding:"required"`
}

func (h *BetHandler) placeBet(c *gin.Context) {
	if h.Betting == nil {
		Error(c, http.StatusInternalServerError, "betting engine unavailable", nil)
		return
	}
	var req placeBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	res, err := h.Betting.PlaceBet(c.Request.Context(), req.UserID, req.MarketID, strings.ToUpper(req.Outcome), req.Amount)
	if err != nil {
		status, reason := placementStatus(err)
		if reason != "" {
			metrics.BetsRejected.WithLabelValues(reason).Inc()
		}
		Error(c, status, err.Error(), nil)
		return
	}
	Ok(c, gin.H{
		"bet":         res.Bet,
		"new_balance": res.NewBalance,
		"odds":        res.Odds,
	}, nil)
}

// placementStatus maps engine rejections onto HTTP statuses. Lock
// contention is 409 so clients know to retry.
func placementStatus(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, engine.ErrMarketNotActive):
		return http.StatusConflict, "market_not_active"
	case errors.Is(err, engine.ErrMarketClosed):
		return http.StatusConflict, "market_closed"
	case errors.Is(err, engine.ErrInvalidOutcome):
		return http.StatusBadRequest, "invalid_outcome"
	case errors.Is(err, engine.ErrAmountOutOfBounds):
		return http.StatusBadRequest, "amount_out_of_bounds"
	case errors.Is(err, repository.ErrLockUnavailable):
		return http.StatusConflict, "lock_contention"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, ""
	default:
		return http.StatusBadGateway, ""
	}
}

func (h *BetHandler) listUserBets(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListBetsParams{
		Limit:  parseIntQuery(c, "limit", 50),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if s := strings.TrimSpace(c.Query("status")); s != "" {
		params.Status = &s
	}
	items, err := h.Repo.ListBetsByUser(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}
