package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"predictmarket/internal/ledger"
	"predictmarket/internal/models"
	"predictmarket/internal/repository"
)

type AccountHandler struct {
	Repo   repository.Repository
	Ledger *ledger.Service
}

func (h *AccountHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/accounts")
	group.POST("", h.createAccount)
	group.GET("/:id", h.getAccount)
	group.GET("/:id/balance", h.getBalance)
	group.GET("/:id/ledger", h.listLedger)
	group.GET("/:id/reconcile", h.reconcile)
}

type createAccountRequest struct {
	ID string `json:"id"`
}

func (h *AccountHandler) createAccount(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	// The body is optional; an empty or absent id gets generated.
	var req createAccountRequest
	_ = c.ShouldBindJSON(&req)
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	account := &models.Account{ID: req.ID}
	if err := h.Repo.CreateAccount(c.Request.Context(), account); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, account, nil)
}

func (h *AccountHandler) getAccount(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	account, err := h.Repo.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			Error(c, http.StatusNotFound, "account not found", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, account, nil)
}

func (h *AccountHandler) getBalance(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	account, err := h.Repo.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			Error(c, http.StatusNotFound, "account not found", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"user_id": account.ID, "balance": account.Balance}, nil)
}

func (h *AccountHandler) listLedger(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListLedgerParams{
		Limit:  parseIntQuery(c, "limit", 50),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if t := strings.TrimSpace(c.Query("type")); t != "" {
		params.EntryType = &t
	}
	if s := strings.TrimSpace(c.Query("status")); s != "" {
		params.Status = &s
	}
	items, err := h.Repo.ListLedgerEntriesByUser(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *AccountHandler) reconcile(c *gin.Context) {
	if h.Ledger == nil {
		Error(c, http.StatusInternalServerError, "ledger unavailable", nil)
		return
	}
	report, err := h.Ledger.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			Error(c, http.StatusNotFound, "account not found", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, report, nil)
}
