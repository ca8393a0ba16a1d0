package server

import (
	"net/http"

	"auction-market/internal/metrics"
	handler "auction-market/services/bidding/handler"

	"github.com/gin-gonic/gin"
)

// Deps are the services the HTTP surface is a thin adapter over
type Deps struct {
	Bidding handler.BiddingServiceInterface
	Settler handler.Settler
	Wallets handler.WalletLedger
	Metrics *metrics.Metrics
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(d Deps) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestIDMiddleware)     // correlate logs with responses
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(d.Bidding)
	settlementHandler := handler.NewSettlementHandler(d.Settler)
	walletHandler := handler.NewWalletHandler(d.Wallets)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	categories := router.Group("/categories")
	{
		categories.POST("", biddingHandler.CreateCategoryHandler)
		categories.GET("", biddingHandler.ListCategoriesHandler)
		categories.DELETE("/:category_id", biddingHandler.DeleteCategoryHandler)
	}

	auctions := router.Group("/auctions")
	{
		auctions.POST("", biddingHandler.CreateAuctionHandler)
		auctions.GET("", biddingHandler.ListAuctionsHandler)
		auctions.GET("/:auction_id", biddingHandler.GetAuctionHandler)
		auctions.PATCH("/:auction_id", biddingHandler.UpdateAuctionHandler)
		auctions.POST("/:auction_id/bids", biddingHandler.ProposeBidHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/winning", biddingHandler.GetWinningBidHandler)
		auctions.POST("/:auction_id/settle", settlementHandler.SettleHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/auctions", biddingHandler.GetAuctionsByUserHandler)
		users.GET("/:user_id/bids", biddingHandler.GetBidsByUserHandler)
	}

	wallets := router.Group("/wallets")
	{
		wallets.POST("", walletHandler.CreateWalletHandler)
		wallets.GET("/:user_id", walletHandler.GetWalletHandler)
		wallets.POST("/:user_id/debit", walletHandler.DebitHandler)
		wallets.POST("/:user_id/credit", walletHandler.CreditHandler)
	}

	return router
}
