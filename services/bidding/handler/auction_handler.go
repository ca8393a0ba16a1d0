package handler

import (
	"net/http"

	"auction-market/internal/models"
	"auction-market/services/bidding/helpers"
	"auction-market/utils"

	"github.com/gin-gonic/gin"
)

// CreateCategoryHandler handles POST /categories
func (h *BiddingHandler) CreateCategoryHandler(c *gin.Context) {
	var req helpers.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateCategoryHandler", err)
		return
	}

	category, err := h.service.CreateCategory(c.Request.Context(), req.Name)
	if err != nil {
		helpers.RespondError(c, "CreateCategoryHandler", err, map[string]any{"name": req.Name})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, category, "category created successfully")
	helpers.LogSuccess("CreateCategoryHandler", "category created", map[string]any{"category_id": category.CategoryID})
}

// ListCategoriesHandler handles GET /categories
func (h *BiddingHandler) ListCategoriesHandler(c *gin.Context) {
	categories, err := h.service.ListCategories(c.Request.Context())
	if err != nil {
		helpers.RespondError(c, "ListCategoriesHandler", err, nil)
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}
	utils.JSONResponse(c, http.StatusOK, categories, "categories retrieved successfully")
}

// DeleteCategoryHandler handles DELETE /categories/:category_id
func (h *BiddingHandler) DeleteCategoryHandler(c *gin.Context) {
	categoryID := c.Param("category_id")
	if err := h.service.DeleteCategory(c.Request.Context(), categoryID); err != nil {
		helpers.RespondError(c, "DeleteCategoryHandler", err, map[string]any{"category_id": categoryID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"category_id": categoryID}, "category deleted successfully")
	helpers.LogSuccess("DeleteCategoryHandler", "category deleted", map[string]any{"category_id": categoryID})
}

// CreateAuctionHandler handles POST /auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	auction, err := h.service.CreateAuction(c.Request.Context(), req.ToModel())
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"auctioneer_id": req.AuctioneerID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, auction, "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created", map[string]any{
		"auction_id":    auction.AuctionID,
		"auctioneer_id": auction.AuctioneerID,
	})
}

// ListAuctionsHandler handles GET /auctions?search=&category=
func (h *BiddingHandler) ListAuctionsHandler(c *gin.Context) {
	filter := models.AuctionFilter{CategoryID: c.Query("category")}
	if search, ok := c.GetQuery("search"); ok {
		filter.Search = &search
	}

	auctions, err := h.service.ListAuctions(c.Request.Context(), filter)
	if err != nil {
		helpers.RespondError(c, "ListAuctionsHandler", err, map[string]any{"category": filter.CategoryID})
		return
	}
	if auctions == nil {
		auctions = []models.Auction{}
	}

	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
	helpers.LogSuccess("ListAuctionsHandler", "auctions retrieved successfully", map[string]any{"count": len(auctions)})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, auction, "auction retrieved successfully")
}

// UpdateAuctionHandler handles PATCH /auctions/:auction_id
func (h *BiddingHandler) UpdateAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.UpdateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateAuctionHandler", err)
		return
	}

	auction, err := h.service.UpdateAuction(c.Request.Context(), auctionID, req.EditorID, req.ToModel())
	if err != nil {
		helpers.RespondError(c, "UpdateAuctionHandler", err, map[string]any{
			"auction_id": auctionID,
			"editor_id":  req.EditorID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction updated successfully")
	helpers.LogSuccess("UpdateAuctionHandler", "auction updated", map[string]any{"auction_id": auctionID})
}

// GetAuctionsByUserHandler handles GET /users/:user_id/auctions
func (h *BiddingHandler) GetAuctionsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	auctions, err := h.service.ListAuctionsByAuctioneer(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionsByUserHandler", err, map[string]any{"user_id": userID})
		return
	}
	if auctions == nil {
		auctions = []models.Auction{}
	}

	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
	helpers.LogSuccess("GetAuctionsByUserHandler", "auctions retrieved successfully", map[string]any{
		"user_id":        userID,
		"auctions_count": len(auctions),
	})
}
