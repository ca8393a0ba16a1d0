package bidding

import (
	"context"
	"fmt"
	"strings"

	"auction-market/internal/biddingerrors"
	"auction-market/internal/models"
	"auction-market/utils"

	"github.com/shopspring/decimal"
)

const maxCategoryName = 50

// CreateCategory adds a category with a unique name
func (s *BiddingService) CreateCategory(ctx context.Context, name string) (models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxCategoryName {
		return models.Category{}, fmt.Errorf("service: %w - category name must be 1-%d characters", biddingerrors.ErrValidation, maxCategoryName)
	}

	c := models.Category{
		CategoryID: utils.GenerateID(),
		Name:       name,
		CreatedAt:  s.now(),
	}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return models.Category{}, fmt.Errorf("service: %w", err)
	}

	utils.Info("category created", map[string]any{"category_id": c.CategoryID, "name": name})
	return c, nil
}

func (s *BiddingService) ListCategories(ctx context.Context) ([]models.Category, error) {
	cats, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return cats, nil
}

// DeleteCategory removes a category, its auctions and their bids
func (s *BiddingService) DeleteCategory(ctx context.Context, categoryID string) error {
	if categoryID == "" {
		return fmt.Errorf("service: %w - empty category ID", biddingerrors.ErrValidation)
	}
	if err := s.repo.DeleteCategory(ctx, categoryID); err != nil {
		return fmt.Errorf("service: %w", err)
	}

	utils.Info("category deleted", map[string]any{"category_id": categoryID})
	return nil
}

// CreateAuction lists a new auction. Id, creation date and status are
// assigned here; the closing date must lie in the future.
func (s *BiddingService) CreateAuction(ctx context.Context, draft models.Auction) (models.Auction, error) {
	now := s.now()

	a := draft
	a.AuctionID = utils.GenerateID()
	a.Title = strings.TrimSpace(a.Title)
	a.CreationDate = now
	a.Status = models.StateOpen
	a.WinningBidID, a.WinnerID, a.SettledAt = "", "", nil
	a.SettledAmount = decimal.Zero
	a.Category = nil

	if err := a.Validate(); err != nil {
		return models.Auction{}, fmt.Errorf("service: %w", err)
	}
	if !a.ClosingDate.After(now) {
		return models.Auction{}, fmt.Errorf("service: %w - closing date must be in the future", biddingerrors.ErrValidation)
	}

	if err := s.repo.CreateAuction(ctx, a); err != nil {
		return models.Auction{}, fmt.Errorf("service: %w", err)
	}

	utils.Info("auction created", map[string]any{
		"auction_id":    a.AuctionID,
		"auctioneer_id": a.AuctioneerID,
		"closing_date":  a.ClosingDate,
	})
	return a, nil
}

// GetAuction returns an auction with its effective state at the current time
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrValidation)
	}

	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: %w", err)
	}
	a.Status = a.StateAt(s.now())
	return a, nil
}

// ListAuctions returns auctions matching filter. A search term that is
// present but blank is rejected.
func (s *BiddingService) ListAuctions(ctx context.Context, filter models.AuctionFilter) ([]models.Auction, error) {
	if filter.Search != nil {
		term := strings.TrimSpace(*filter.Search)
		if len(term) < 1 {
			return nil, fmt.Errorf("service: %w - search must have at least 1 character", biddingerrors.ErrSearchTooShort)
		}
		filter.Search = &term
	}

	auctions, err := s.repo.ListAuctions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return s.withEffectiveState(auctions), nil
}

// ListAuctionsByAuctioneer returns the auctions a user has listed
func (s *BiddingService) ListAuctionsByAuctioneer(ctx context.Context, userID string) ([]models.Auction, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrValidation)
	}

	auctions, err := s.repo.ListAuctionsByAuctioneer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for user %s: %w", userID, err)
	}
	return s.withEffectiveState(auctions), nil
}

func (s *BiddingService) withEffectiveState(auctions []models.Auction) []models.Auction {
	now := s.now()
	for i := range auctions {
		auctions[i].Status = auctions[i].StateAt(now)
	}
	return auctions
}

// UpdateAuction applies owner edits while the auction is open. The first
// bid freezes the price and keeps stock at one or more.
func (s *BiddingService) UpdateAuction(ctx context.Context, auctionID, editorID string, changes models.AuctionUpdate) (models.Auction, error) {
	if auctionID == "" || editorID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - missing auctionID or editorID", biddingerrors.ErrValidation)
	}

	unlock, err := s.locks.Lock(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: %w", err)
	}
	defer unlock()

	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: %w", err)
	}
	if a.AuctioneerID != editorID {
		return models.Auction{}, fmt.Errorf("service: %w", biddingerrors.ErrNotOwner)
	}

	now := s.now()
	if !a.IsOpenAt(now) {
		return models.Auction{}, fmt.Errorf("service: %w - auction is %s", biddingerrors.ErrAuctionLocked, a.StateAt(now))
	}

	repricing := changes.Price != nil && !changes.Price.Equal(a.Price)
	emptying := changes.Stock != nil && *changes.Stock < 1
	if repricing || emptying {
		n, err := s.repo.CountBids(ctx, auctionID)
		if err != nil {
			return models.Auction{}, fmt.Errorf("service: %w", err)
		}
		if n > 0 && repricing {
			return models.Auction{}, fmt.Errorf("service: %w - price cannot change once bids exist", biddingerrors.ErrAuctionLocked)
		}
		if n > 0 {
			return models.Auction{}, fmt.Errorf("service: %w - stock cannot drop to zero once bids exist", biddingerrors.ErrAuctionLocked)
		}
	}

	applyUpdate(&a, changes)
	if err := a.Validate(); err != nil {
		return models.Auction{}, fmt.Errorf("service: %w", err)
	}
	if changes.ClosingDate != nil && !a.ClosingDate.After(now) {
		return models.Auction{}, fmt.Errorf("service: %w - closing date must be in the future", biddingerrors.ErrValidation)
	}

	if err := s.repo.UpdateAuction(ctx, a); err != nil {
		return models.Auction{}, fmt.Errorf("service: %w", err)
	}

	utils.Info("auction updated", map[string]any{"auction_id": auctionID, "editor_id": editorID})
	a.Status = a.StateAt(now)
	return a, nil
}

func applyUpdate(a *models.Auction, u models.AuctionUpdate) {
	if u.Title != nil {
		a.Title = strings.TrimSpace(*u.Title)
	}
	if u.Description != nil {
		a.Description = *u.Description
	}
	if u.ClosingDate != nil {
		a.ClosingDate = *u.ClosingDate
	}
	if u.Price != nil {
		a.Price = *u.Price
	}
	if u.Stock != nil {
		a.Stock = *u.Stock
	}
	if u.Rating != nil {
		a.Rating = *u.Rating
	}
	if u.Brand != nil {
		a.Brand = *u.Brand
	}
	if u.CategoryID != nil {
		a.CategoryID = *u.CategoryID
	}
}
