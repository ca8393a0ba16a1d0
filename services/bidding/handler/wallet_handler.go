package handler

import (
	"context"
	"net/http"

	"auction-market/services/bidding/helpers"
	"auction-market/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type WalletHandler struct {
	ledger WalletLedger
}

func NewWalletHandler(ledger WalletLedger) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

// CreateWalletHandler handles POST /wallets
func (h *WalletHandler) CreateWalletHandler(c *gin.Context) {
	var req helpers.CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateWalletHandler", err)
		return
	}

	initial := decimal.Zero
	if req.InitialBalance != nil {
		initial = *req.InitialBalance
	}

	w, err := h.ledger.CreateWallet(c.Request.Context(), req.UserID, req.CardNumber, initial)
	if err != nil {
		helpers.RespondError(c, "CreateWalletHandler", err, map[string]any{"user_id": req.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, w, "wallet created successfully")
	helpers.LogSuccess("CreateWalletHandler", "wallet created", map[string]any{"user_id": w.UserID})
}

// GetWalletHandler handles GET /wallets/:user_id
func (h *WalletHandler) GetWalletHandler(c *gin.Context) {
	userID := c.Param("user_id")
	w, err := h.ledger.GetWallet(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondError(c, "GetWalletHandler", err, map[string]any{"user_id": userID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, w, "wallet retrieved successfully")
}

// DebitHandler handles POST /wallets/:user_id/debit
func (h *WalletHandler) DebitHandler(c *gin.Context) {
	h.adjust(c, "DebitHandler", h.ledger.Debit)
}

// CreditHandler handles POST /wallets/:user_id/credit
func (h *WalletHandler) CreditHandler(c *gin.Context) {
	h.adjust(c, "CreditHandler", h.ledger.Credit)
}

type adjustFunc func(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)

func (h *WalletHandler) adjust(c *gin.Context, handlerName string, op adjustFunc) {
	userID := c.Param("user_id")

	var req helpers.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, handlerName, err)
		return
	}

	balance, err := op(c.Request.Context(), userID, *req.Amount)
	if err != nil {
		helpers.RespondError(c, handlerName, err, map[string]any{
			"user_id": userID,
			"amount":  req.Amount.String(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.BalanceResponse{UserID: userID, Balance: balance}, "balance updated")
	helpers.LogSuccess(handlerName, "balance updated", map[string]any{
		"user_id": userID,
		"balance": balance.StringFixed(2),
	})
}
