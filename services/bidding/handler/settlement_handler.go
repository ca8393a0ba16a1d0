package handler

import (
	"net/http"

	"auction-market/services/bidding/helpers"
	"auction-market/utils"

	"github.com/gin-gonic/gin"
)

type SettlementHandler struct {
	settler Settler
}

func NewSettlementHandler(settler Settler) *SettlementHandler {
	return &SettlementHandler{settler: settler}
}

// SettleHandler handles POST /auctions/:auction_id/settle. Settling twice
// is not an error; the second call reports the recorded result.
func (h *SettlementHandler) SettleHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	outcome, err := h.settler.Settle(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "SettleHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewSettlementResponse(outcome), "auction settled")
	helpers.LogSuccess("SettleHandler", "auction settled", map[string]any{
		"auction_id": auctionID,
		"outcome":    outcome.Kind,
	})
}
