package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"auction-market/internal/biddingerrors"
	"auction-market/internal/models"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

// AuctionDB defines the auction, category and bid storage of the marketplace
type AuctionDB interface {
	CreateCategory(ctx context.Context, category models.Category) error
	GetCategory(ctx context.Context, categoryID string) (models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error

	CreateAuction(ctx context.Context, auction models.Auction) error
	GetAuction(ctx context.Context, auctionID string) (models.Auction, error)
	UpdateAuction(ctx context.Context, auction models.Auction) error
	ListAuctions(ctx context.Context, filter models.AuctionFilter) ([]models.Auction, error)
	ListAuctionsByAuctioneer(ctx context.Context, userID string) ([]models.Auction, error)
	ListDueAuctions(ctx context.Context, now time.Time) ([]models.Auction, error)
	MarkClosed(ctx context.Context, auctionID string) error
	CloseWithoutSale(ctx context.Context, auctionID string, at time.Time) error

	// RecordBidForAuction appends a bid. It fails with ErrAuctionClosed when
	// the auction is not open at the bid's creation time and ErrBidTooLow when
	// the bid does not exceed the current highest.
	RecordBidForAuction(ctx context.Context, bid models.Bid) error
	GetBidsByAuction(ctx context.Context, auctionID string) ([]models.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error)
	GetBidsByBidder(ctx context.Context, userID string) ([]models.Bid, error)
	CountBids(ctx context.Context, auctionID string) (int, error)
}

// WalletDB defines wallet storage. AdjustBalance is the only balance mutation.
type WalletDB interface {
	CreateWallet(ctx context.Context, wallet models.UserWallet) error
	GetWallet(ctx context.Context, userID string) (models.UserWallet, error)
	AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error)
}

// SettlementDB applies a sale: debit winner, credit auctioneer, decrement
// stock and mark the auction settled, all or nothing.
type SettlementDB interface {
	ApplySettlement(ctx context.Context, settlement models.Settlement) error
}

// Store is the full persistence surface
type Store interface {
	AuctionDB
	WalletDB
	SettlementDB
}

// MemoryRepo is a concurrency-safe in-memory implementation of Store
type MemoryRepo struct {
	mu            sync.RWMutex
	categories    map[string]models.Category
	categoryNames map[string]string         // key: lowercase name -> value: categoryID
	auctions      map[string]models.Auction // key: auctionID -> value: auction
	bids          map[string][]models.Bid   // key: auctionID -> value: bids in acceptance order
	bidders       map[string][]string       // key: userID -> value: auctionIDs the user has bid on
	wallets       map[string]models.UserWallet
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		categories:    make(map[string]models.Category),
		categoryNames: make(map[string]string),
		auctions:      make(map[string]models.Auction),
		bids:          make(map[string][]models.Bid),
		bidders:       make(map[string][]string),
		wallets:       make(map[string]models.UserWallet),
	}
}

var _ Store = (*MemoryRepo)(nil)

// CreateCategory stores a category with a unique name
func (r *MemoryRepo) CreateCategory(_ context.Context, category models.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(category.Name)
	if _, ok := r.categoryNames[key]; ok {
		return fmt.Errorf("create category %q: %w", category.Name, biddingerrors.ErrCategoryExists)
	}
	r.categories[category.CategoryID] = category
	r.categoryNames[key] = category.CategoryID
	return nil
}

// GetCategory returns a category by id
func (r *MemoryRepo) GetCategory(_ context.Context, categoryID string) (models.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.categories[categoryID]
	if !ok {
		return models.Category{}, fmt.Errorf("get category %s: %w", categoryID, biddingerrors.ErrCategoryNotFound)
	}
	return c, nil
}

// ListCategories returns all categories ordered by name
func (r *MemoryRepo) ListCategories(_ context.Context) ([]models.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Category, 0, len(r.categories))
	for _, c := range r.categories {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b models.Category) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// DeleteCategory removes a category together with its auctions and their bids
func (r *MemoryRepo) DeleteCategory(_ context.Context, categoryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.categories[categoryID]
	if !ok {
		return fmt.Errorf("delete category %s: %w", categoryID, biddingerrors.ErrCategoryNotFound)
	}

	for id, a := range r.auctions {
		if a.CategoryID != categoryID {
			continue
		}
		for _, b := range r.bids[id] {
			r.bidders[b.BidderID] = slices.DeleteFunc(r.bidders[b.BidderID], func(aid string) bool { return aid == id })
			if len(r.bidders[b.BidderID]) == 0 {
				delete(r.bidders, b.BidderID)
			}
		}
		delete(r.bids, id)
		delete(r.auctions, id)
	}

	delete(r.categoryNames, strings.ToLower(c.Name))
	delete(r.categories, categoryID)
	return nil
}

// CreateAuction stores a new auction. Its category must exist.
func (r *MemoryRepo) CreateAuction(_ context.Context, auction models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.categories[auction.CategoryID]; !ok {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, biddingerrors.ErrCategoryNotFound)
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

// GetAuction returns an auction by id
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return models.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return a, nil
}

// UpdateAuction replaces the stored auction
func (r *MemoryRepo) UpdateAuction(_ context.Context, auction models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[auction.AuctionID]; !ok {
		return fmt.Errorf("update auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	if _, ok := r.categories[auction.CategoryID]; !ok {
		return fmt.Errorf("update auction %s: %w", auction.AuctionID, biddingerrors.ErrCategoryNotFound)
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

// ListAuctions returns auctions matching the filter, oldest first
func (r *MemoryRepo) ListAuctions(_ context.Context, filter models.AuctionFilter) ([]models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var term string
	if filter.Search != nil {
		term = strings.ToLower(*filter.Search)
	}

	out := make([]models.Auction, 0)
	for _, a := range r.auctions {
		if filter.CategoryID != "" && a.CategoryID != filter.CategoryID {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(a.Title), term) && !strings.Contains(strings.ToLower(a.Description), term) {
			continue
		}
		out = append(out, a)
	}
	sortAuctions(out)
	return out, nil
}

// ListAuctionsByAuctioneer returns the auctions owned by userID
func (r *MemoryRepo) ListAuctionsByAuctioneer(_ context.Context, userID string) ([]models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Auction, 0)
	for _, a := range r.auctions {
		if a.AuctioneerID == userID {
			out = append(out, a)
		}
	}
	sortAuctions(out)
	return out, nil
}

// ListDueAuctions returns unsettled auctions that are closed at now
func (r *MemoryRepo) ListDueAuctions(_ context.Context, now time.Time) ([]models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Auction, 0)
	for _, a := range r.auctions {
		if a.StateAt(now) == models.StateClosed {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b models.Auction) int { return a.ClosingDate.Compare(b.ClosingDate) })
	return out, nil
}

// MarkClosed records that an open auction has closed
func (r *MemoryRepo) MarkClosed(_ context.Context, auctionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return fmt.Errorf("close auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if a.Status == models.StateOpen {
		a.Status = models.StateClosed
		r.auctions[auctionID] = a
	}
	return nil
}

// CloseWithoutSale settles an auction with no funds or stock movement
func (r *MemoryRepo) CloseWithoutSale(_ context.Context, auctionID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return fmt.Errorf("close auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err := a.Transition(models.StateSettled, at); err != nil {
		if a.Status == models.StateSettled {
			return fmt.Errorf("close auction %s: %w", auctionID, biddingerrors.ErrAlreadySettled)
		}
		return err
	}
	a.SettledAt = &at
	r.auctions[auctionID] = a
	return nil
}

// RecordBidForAuction records a bid if it is the new strict maximum
func (r *MemoryRepo) RecordBidForAuction(_ context.Context, bid models.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[bid.AuctionID]
	if !ok {
		return fmt.Errorf("record bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	if !a.IsOpenAt(bid.CreatedAt) {
		return fmt.Errorf("record bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionClosed)
	}

	existing := r.bids[bid.AuctionID]
	if n := len(existing); n > 0 && !bid.Amount.GreaterThan(existing[n-1].Amount) {
		return fmt.Errorf("record bid for auction %s: %w - current highest bid is %s",
			bid.AuctionID, biddingerrors.ErrBidTooLow, existing[n-1].Amount.StringFixed(2))
	}

	r.bids[bid.AuctionID] = append(existing, bid)

	for _, id := range r.bidders[bid.BidderID] {
		if id == bid.AuctionID {
			return nil
		}
	}
	r.bidders[bid.BidderID] = append(r.bidders[bid.BidderID], bid.AuctionID)

	return nil
}

// GetBidsByAuction returns all bids for an auction, highest and earliest first
func (r *MemoryRepo) GetBidsByAuction(_ context.Context, auctionID string) ([]models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	bids := slices.Clone(r.bids[auctionID])
	if bids == nil {
		bids = []models.Bid{}
	}
	models.SortBids(bids)
	return bids, nil
}

// GetWinningBid returns the highest bid for an auction
func (r *MemoryRepo) GetWinningBid(_ context.Context, auctionID string) (models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids, ok := r.bids[auctionID]
	if !ok || len(bids) == 0 {
		return models.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}

	winning := bids[0]
	for _, b := range bids[1:] {
		if models.Outranks(b, winning) {
			winning = b
		}
	}
	return winning, nil
}

// GetBidsByBidder returns every bid placed by userID, newest first
func (r *MemoryRepo) GetBidsByBidder(_ context.Context, userID string) ([]models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Bid, 0)
	for _, auctionID := range r.bidders[userID] {
		for _, b := range r.bids[auctionID] {
			if b.BidderID == userID {
				out = append(out, b)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b models.Bid) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// CountBids returns the number of bids recorded for an auction
func (r *MemoryRepo) CountBids(_ context.Context, auctionID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bids[auctionID]), nil
}

// CreateWallet stores a wallet; a user may own only one
func (r *MemoryRepo) CreateWallet(_ context.Context, wallet models.UserWallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.wallets[wallet.UserID]; ok {
		return fmt.Errorf("create wallet for user %s: %w", wallet.UserID, biddingerrors.ErrWalletExists)
	}
	r.wallets[wallet.UserID] = wallet
	return nil
}

// GetWallet returns the wallet of userID
func (r *MemoryRepo) GetWallet(_ context.Context, userID string) (models.UserWallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.wallets[userID]
	if !ok {
		return models.UserWallet{}, fmt.Errorf("get wallet for user %s: %w", userID, biddingerrors.ErrWalletNotFound)
	}
	return w, nil
}

// AdjustBalance adds delta to a balance, refusing to go below zero
func (r *MemoryRepo) AdjustBalance(_ context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wallets[userID]
	if !ok {
		return decimal.Zero, fmt.Errorf("adjust balance for user %s: %w", userID, biddingerrors.ErrWalletNotFound)
	}
	next := w.Balance.Add(delta)
	if next.IsNegative() {
		return w.Balance, fmt.Errorf("adjust balance for user %s by %s: %w", userID, delta, biddingerrors.ErrInsufficientFunds)
	}
	w.Balance = next
	w.UpdatedAt = time.Now().UTC()
	r.wallets[userID] = w
	return next, nil
}

// ApplySettlement applies a sale atomically under the repository lock
func (r *MemoryRepo) ApplySettlement(_ context.Context, s models.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[s.AuctionID]
	if !ok {
		return fmt.Errorf("settle auction %s: %w", s.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	if a.Status == models.StateSettled {
		return fmt.Errorf("settle auction %s: %w", s.AuctionID, biddingerrors.ErrAlreadySettled)
	}
	if a.Stock < 1 {
		return fmt.Errorf("settle auction %s: %w", s.AuctionID, biddingerrors.ErrOutOfStock)
	}

	winner, ok := r.wallets[s.WinnerID]
	if !ok {
		return fmt.Errorf("settle auction %s winner %s: %w", s.AuctionID, s.WinnerID, biddingerrors.ErrWalletNotFound)
	}
	seller, ok := r.wallets[s.AuctioneerID]
	if !ok {
		return fmt.Errorf("settle auction %s auctioneer %s: %w", s.AuctionID, s.AuctioneerID, biddingerrors.ErrWalletNotFound)
	}
	if winner.Balance.LessThan(s.Amount) {
		return fmt.Errorf("settle auction %s winner %s: %w", s.AuctionID, s.WinnerID, biddingerrors.ErrInsufficientFunds)
	}
	if err := a.Transition(models.StateSettled, s.SettledAt); err != nil {
		return err
	}

	winner.Balance = winner.Balance.Sub(s.Amount)
	winner.UpdatedAt = s.SettledAt
	seller.Balance = seller.Balance.Add(s.Amount)
	seller.UpdatedAt = s.SettledAt

	a.Stock--
	a.WinningBidID = s.BidID
	a.WinnerID = s.WinnerID
	a.SettledAmount = s.Amount
	settledAt := s.SettledAt
	a.SettledAt = &settledAt

	r.wallets[winner.UserID] = winner
	r.wallets[seller.UserID] = seller
	r.auctions[a.AuctionID] = a
	return nil
}

// AddCategory seeds a category. This method is intended for tests and demo data.
func (r *MemoryRepo) AddCategory(category models.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories[category.CategoryID] = category
	r.categoryNames[strings.ToLower(category.Name)] = category.CategoryID
}

// AddAuction seeds an auction without validation. Intended for tests.
func (r *MemoryRepo) AddAuction(auction models.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[auction.AuctionID] = auction
}

func sortAuctions(auctions []models.Auction) {
	slices.SortFunc(auctions, func(a, b models.Auction) int {
		if c := a.CreationDate.Compare(b.CreationDate); c != 0 {
			return c
		}
		return strings.Compare(a.AuctionID, b.AuctionID)
	})
}
