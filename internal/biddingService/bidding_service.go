package bidding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-market/internal/biddingerrors"
	"auction-market/internal/events"
	"auction-market/internal/locker"
	"auction-market/internal/metrics"
	"auction-market/internal/models"
	"auction-market/internal/repository"
	"auction-market/utils"

	"github.com/shopspring/decimal"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 25 * time.Millisecond
)

// BiddingService defines the business logic for auctions and bidding.
// Every decision that depends on an auction's current state is taken while
// holding that auction's lock.
type BiddingService struct {
	repo      repository.AuctionDB
	locks     *locker.Locker
	now       func() time.Time
	attempts  int
	backoff   time.Duration
	publisher events.Publisher
	metrics   *metrics.Metrics
}

type Option func(*BiddingService)

// WithLocker shares the per-auction locker, typically with the settlement
// coordinator.
func WithLocker(l *locker.Locker) Option {
	return func(s *BiddingService) {
		if l != nil {
			s.locks = l
		}
	}
}

// WithClock overrides the time source used for state checks
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetry sets how often a retryable failure is attempted and the first
// backoff, which doubles after each attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *BiddingService) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if backoff >= 0 {
			s.backoff = backoff
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *BiddingService) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *BiddingService) {
		s.metrics = m
	}
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:      repo,
		locks:     locker.New("auction", locker.DefaultWait),
		now:       func() time.Time { return time.Now().UTC() },
		attempts:  defaultRetryAttempts,
		backoff:   defaultRetryBackoff,
		publisher: events.Noop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProposeBid validates and records a bid. Checks run in order, under the
// auction lock: the auction exists and is open at the current time, the
// amount is valid, it beats the current highest bid (or meets the price
// when there is none), and the bidder does not own the auction.
func (s *BiddingService) ProposeBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (models.Bid, error) {
	if strings.TrimSpace(auctionID) == "" || strings.TrimSpace(bidderID) == "" {
		return models.Bid{}, fmt.Errorf("service: %w - missing auctionID or bidderID", biddingerrors.ErrValidation)
	}

	var bid models.Bid
	err := s.withRetry(ctx, "propose bid", func() error {
		var err error
		bid, err = s.proposeOnce(ctx, auctionID, bidderID, amount)
		return err
	})
	s.metrics.ObserveBid(err)

	if err != nil {
		fields := map[string]any{
			"auction_id": auctionID,
			"bidder_id":  bidderID,
			"amount":     amount.String(),
			"error":      err.Error(),
		}
		if biddingerrors.IsBidRejected(err) {
			utils.Info("bid rejected", fields)
		} else {
			utils.Warn("bid failed", fields)
		}
		return models.Bid{}, err
	}

	utils.Info("bid accepted", map[string]any{
		"auction_id": auctionID,
		"bid_id":     bid.BidID,
		"bidder_id":  bidderID,
		"amount":     bid.Amount.StringFixed(2),
	})
	events.Emit(ctx, s.publisher, events.New(events.TypeBidAccepted, auctionID, bid.CreatedAt, events.BidAccepted{
		BidID:    bid.BidID,
		BidderID: bid.BidderID,
		Amount:   bid.Amount,
	}))
	return bid, nil
}

func (s *BiddingService) proposeOnce(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (models.Bid, error) {
	unlock, err := s.locks.Lock(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: %w", err)
	}
	defer unlock()

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: %w", err)
	}

	now := s.now()
	if !auction.IsOpenAt(now) {
		return models.Bid{}, fmt.Errorf("service: %w - auction %s is %s", biddingerrors.ErrAuctionClosed, auctionID, auction.StateAt(now))
	}
	if err := models.CheckAmount(amount); err != nil {
		return models.Bid{}, fmt.Errorf("service: %w", err)
	}

	highest, err := s.repo.GetWinningBid(ctx, auctionID)
	switch {
	case err == nil:
		if !amount.GreaterThan(highest.Amount) {
			return models.Bid{}, fmt.Errorf("service: %w - current highest bid is %s", biddingerrors.ErrBidTooLow, highest.Amount.StringFixed(2))
		}
	case errors.Is(err, biddingerrors.ErrNoBids):
		if amount.LessThan(auction.Price) {
			return models.Bid{}, fmt.Errorf("service: %w - price is %s", biddingerrors.ErrBidTooLow, auction.Price.StringFixed(2))
		}
	default:
		return models.Bid{}, fmt.Errorf("service: failed to check winning bid: %w", err)
	}

	if bidderID == auction.AuctioneerID {
		return models.Bid{}, fmt.Errorf("service: %w", biddingerrors.ErrSelfBid)
	}

	// a caller that gave up must not leave a bid behind
	if err := ctx.Err(); err != nil {
		return models.Bid{}, fmt.Errorf("service: %w", err)
	}

	bid := models.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: now,
	}
	if err := s.repo.RecordBidForAuction(ctx, bid); err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to record bid for auction %s by user %s: %w", auctionID, bidderID, err)
	}
	return bid, nil
}

// withRetry runs op until it succeeds, fails with a non-retryable error, or
// runs out of attempts. The wait between attempts doubles each time.
func (s *BiddingService) withRetry(ctx context.Context, name string, op func() error) error {
	backoff := s.backoff
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || !biddingerrors.IsRetryable(err) || attempt >= s.attempts {
			return err
		}

		utils.Debug("retrying", map[string]any{"op": name, "attempt": attempt, "backoff": backoff.String()})
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return err
		}
		backoff *= 2
	}
}

// ListBids returns all bids for an auction, highest and earliest first
func (s *BiddingService) ListBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrValidation)
	}

	bids, err := s.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// GetWinningBid returns the current highest bid for an auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	if auctionID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrValidation)
	}
	if _, err := s.repo.GetAuction(ctx, auctionID); err != nil {
		return models.Bid{}, fmt.Errorf("service: %w", err)
	}

	winningBid, err := s.repo.GetWinningBid(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}
	return winningBid, nil
}

// ListBidsByBidder returns every bid a user has placed, newest first
func (s *BiddingService) ListBidsByBidder(ctx context.Context, userID string) ([]models.Bid, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrValidation)
	}

	bids, err := s.repo.GetBidsByBidder(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for user %s: %w", userID, err)
	}
	return bids, nil
}
