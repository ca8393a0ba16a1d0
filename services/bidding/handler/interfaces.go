package handler

//go:generate mockgen -source=interfaces.go -destination=mock_handler.go -package=handler

import (
	"context"

	"auction-market/internal/models"
	"auction-market/internal/settlement"

	"github.com/shopspring/decimal"
)

type BiddingServiceInterface interface {
	ProposeBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (models.Bid, error)
	ListBids(ctx context.Context, auctionID string) ([]models.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error)
	ListBidsByBidder(ctx context.Context, userID string) ([]models.Bid, error)

	CreateCategory(ctx context.Context, name string) (models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error

	CreateAuction(ctx context.Context, draft models.Auction) (models.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (models.Auction, error)
	ListAuctions(ctx context.Context, filter models.AuctionFilter) ([]models.Auction, error)
	ListAuctionsByAuctioneer(ctx context.Context, userID string) ([]models.Auction, error)
	UpdateAuction(ctx context.Context, auctionID, editorID string, changes models.AuctionUpdate) (models.Auction, error)
}

type Settler interface {
	Settle(ctx context.Context, auctionID string) (settlement.Outcome, error)
}

type WalletLedger interface {
	CreateWallet(ctx context.Context, userID, cardNumber string, initial decimal.Decimal) (models.UserWallet, error)
	GetWallet(ctx context.Context, userID string) (models.UserWallet, error)
	Debit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
}
