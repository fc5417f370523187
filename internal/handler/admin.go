package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"predictmarket/internal/engine"
	"predictmarket/internal/ledger"
	"predictmarket/internal/models"
	"predictmarket/internal/referral"
	"predictmarket/internal/repository"
)

// AdminHandler exposes the operator surface: resolving and cancelling
// markets, and crediting deposits reported by the payment gateway.
type AdminHandler struct {
	Settlement *engine.SettlementEngine
	Ledger     *ledger.Service
	Referral   *referral.Service
}

func (h *AdminHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/admin")
	group.POST("/markets/:id/resolve", h.resolveMarket)
	group.POST("/markets/:id/cancel", h.cancelMarket)
	group.POST("/deposits", h.credit)
	group.POST("/withdrawals", h.withdraw)
	group.POST("/referrals/signup", h.referralSignup)
}

type referralSignupRequest struct {
	ReferrerID string `json:"referrer_id" binding:"required"`
	NewUserID  string `json:"new_user_id" binding:"required"`
}

func (h *AdminHandler) referralSignup(c *gin.Context) {
	if h.Referral == nil {
		Error(c, http.StatusInternalServerError, "referral unavailable", nil)
		return
	}
	var req referralSignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.Referral.ProcessSignup(c.Request.Context(), req.ReferrerID, req.NewUserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			Error(c, http.StatusNotFound, "referrer not found", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"referrer_id": req.ReferrerID, "new_user_id": req.NewUserID}, nil)
}

type resolveRequest struct {
	Outcome    *string          `json:"outcome"`
	FinalPrice *decimal.Decimal `json:"final_price"`
}

func (h *AdminHandler) resolveMarket(c *gin.Context) {
	if h.Settlement == nil {
		Error(c, http.StatusInternalServerError, "settlement unavailable", nil)
		return
	}
	var req resolveRequest
	_ = c.ShouldBindJSON(&req)
	if req.Outcome != nil {
		o := strings.ToUpper(strings.TrimSpace(*req.Outcome))
		req.Outcome = &o
	}

	err := h.Settlement.Resolve(c.Request.Context(), c.Param("id"), engine.ResolveOptions{
		Outcome:    req.Outcome,
		FinalPrice: req.FinalPrice,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			Error(c, http.StatusNotFound, "market not found", nil)
		case errors.Is(err, engine.ErrOutcomeRequired), errors.Is(err, engine.ErrFinalPriceRequired), errors.Is(err, engine.ErrInvalidOutcome):
			Error(c, http.StatusBadRequest, err.Error(), nil)
		default:
			Error(c, http.StatusBadGateway, err.Error(), nil)
		}
		return
	}
	Ok(c, gin.H{"market_id": c.Param("id")}, nil)
}

func (h *AdminHandler) cancelMarket(c *gin.Context) {
	if h.Settlement == nil {
		Error(c, http.StatusInternalServerError, "settlement unavailable", nil)
		return
	}
	if err := h.Settlement.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			Error(c, http.StatusNotFound, "market not found", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"market_id": c.Param("id")}, nil)
}

type creditRequest struct {
	UserID      string          `json:"user_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	ExternalID  string          `json:"external_id"`
	Description string          `json:"description"`
}

func (h *AdminHandler) credit(c *gin.Context) {
	if h.Ledger == nil {
		Error(c, http.StatusInternalServerError, "ledger unavailable", nil)
		return
	}
	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	entry, _, err := h.Ledger.Credit(c.Request.Context(), ledger.CreditRequest{
		UserID:      req.UserID,
		Amount:      req.Amount,
		EntryType:   models.EntryTypeDeposit,
		ExternalID:  req.ExternalID,
		Description: req.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			Error(c, http.StatusNotFound, "account not found", nil)
		case errors.Is(err, ledger.ErrAmountNotPositive):
			Error(c, http.StatusBadRequest, err.Error(), nil)
		default:
			Error(c, http.StatusBadGateway, err.Error(), nil)
		}
		return
	}

	// Referral commission rides on the same external id, so a
	// redelivered deposit cannot double-pay the referrer either.
	if h.Referral != nil && req.ExternalID != "" {
		if err := h.Referral.ProcessDeposit(c.Request.Context(), req.UserID, req.Amount, req.ExternalID); err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
	}
	Ok(c, entry, nil)
}

func (h *AdminHandler) withdraw(c *gin.Context) {
	if h.Ledger == nil {
		Error(c, http.StatusInternalServerError, "ledger unavailable", nil)
		return
	}
	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	entry, err := h.Ledger.Withdraw(c.Request.Context(), req.UserID, req.Amount, req.ExternalID, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			Error(c, http.StatusNotFound, "account not found", nil)
		case errors.Is(err, ledger.ErrAmountNotPositive):
			Error(c, http.StatusBadRequest, err.Error(), nil)
		case errors.Is(err, ledger.ErrInsufficientFunds):
			Error(c, http.StatusUnprocessableEntity, err.Error(), nil)
		default:
			Error(c, http.StatusBadGateway, err.Error(), nil)
		}
		return
	}
	Ok(c, entry, nil)
}
