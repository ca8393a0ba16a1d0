package cli

import (
	"context"
	"fmt"
	"time"

	"auction-market/internal/models"

	"github.com/shopspring/decimal"
)

// seedDemo adds a category, a few auctions and wallets so a fresh in-memory
// server has something to bid on.
func (a *app) seedDemo(ctx context.Context) error {
	cat, err := a.service.CreateCategory(ctx, "Demo")
	if err != nil {
		return fmt.Errorf("seed category: %w", err)
	}

	closing := time.Now().UTC().Add(24 * time.Hour)
	drafts := []models.Auction{
		{Title: "title1", Description: "description1", Price: decimal.NewFromInt(100)},
		{Title: "title2", Description: "description2", Price: decimal.NewFromInt(200)},
		{Title: "title3", Description: "description3", Price: decimal.NewFromInt(150)},
	}
	for _, d := range drafts {
		d.ClosingDate = closing
		d.Stock = 1
		d.Rating = decimal.NewFromInt(5)
		d.CategoryID = cat.CategoryID
		d.AuctioneerID = "seller"
		if _, err := a.service.CreateAuction(ctx, d); err != nil {
			return fmt.Errorf("seed auction: %w", err)
		}
	}

	for _, user := range []string{"seller", "user1", "user2"} {
		if _, err := a.ledger.CreateWallet(ctx, user, "4111111111111111", decimal.NewFromInt(1000)); err != nil {
			return fmt.Errorf("seed wallet: %w", err)
		}
	}
	return nil
}
