// Package settlement finalizes closed auctions: it picks the highest bidder
// who can pay, moves the funds, and decrements stock as one atomic step.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
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

// OutcomeKind is the result of a settle call
type OutcomeKind string

const (
	OutcomeSold           OutcomeKind = "sold"
	OutcomeNoSale         OutcomeKind = "no_sale"
	OutcomeAlreadySettled OutcomeKind = "already_settled"
)

// Outcome describes how an auction was settled. For AlreadySettled it
// repeats the recorded result of the first settlement.
type Outcome struct {
	Kind      OutcomeKind
	AuctionID string
	BidID     string
	WinnerID  string
	Amount    decimal.Decimal
	SettledAt time.Time

	// Reason explains a NoSale: nil when there were no bids,
	// ErrNoSolventBidder when no bidder could pay, ErrOutOfStock when the
	// stock ran out before the sale.
	Reason error
}

// Store is the persistence the coordinator needs
type Store interface {
	repository.AuctionDB
	repository.SettlementDB
	GetWallet(ctx context.Context, userID string) (models.UserWallet, error)
}

// Ledger serializes access to wallets
type Ledger interface {
	WithWallets(ctx context.Context, userIDs []string, fn func(ctx context.Context) error) error
}

// Coordinator is the settlement coordinator
type Coordinator struct {
	store     Store
	ledger    Ledger
	locks     *locker.Locker
	now       func() time.Time
	publisher events.Publisher
	metrics   *metrics.Metrics

	mu       sync.Mutex
	inFlight map[string]struct{}
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.publisher = p
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// New creates a Coordinator. locks must be the same per-auction locker the
// bidding service uses, so bids and settlement share one serialization point.
func New(store Store, ledger Ledger, locks *locker.Locker, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		ledger:    ledger,
		locks:     locks,
		now:       func() time.Time { return time.Now().UTC() },
		publisher: events.Noop{},
		inFlight:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settle finalizes a closed auction. Calling it on a settled auction
// returns OutcomeAlreadySettled and changes nothing. Calling it on an
// open auction fails with ErrAuctionOpen.
func (c *Coordinator) Settle(ctx context.Context, auctionID string) (Outcome, error) {
	if auctionID == "" {
		return Outcome{}, fmt.Errorf("settlement: %w - empty auction ID", biddingerrors.ErrValidation)
	}

	start := time.Now()
	outcome, err := c.settle(ctx, auctionID)
	if err != nil {
		c.metrics.ObserveSettlement("error", time.Since(start))
		utils.Warn("settlement failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return Outcome{}, err
	}
	c.metrics.ObserveSettlement(string(outcome.Kind), time.Since(start))

	fields := map[string]any{"auction_id": auctionID, "outcome": outcome.Kind}
	if outcome.Kind == OutcomeSold {
		fields["winner_id"] = outcome.WinnerID
		fields["amount"] = outcome.Amount.StringFixed(2)
	}
	if outcome.Reason != nil {
		fields["reason"] = outcome.Reason.Error()
	}
	utils.Info("auction settled", fields)

	if outcome.Kind != OutcomeAlreadySettled {
		payload := events.AuctionSettled{
			Outcome:  string(outcome.Kind),
			BidID:    outcome.BidID,
			WinnerID: outcome.WinnerID,
			Amount:   outcome.Amount,
		}
		if outcome.Reason != nil {
			payload.Reason = outcome.Reason.Error()
		}
		events.Emit(ctx, c.publisher, events.New(events.TypeAuctionSettled, auctionID, outcome.SettledAt, payload))
	}
	return outcome, nil
}

func (c *Coordinator) settle(ctx context.Context, auctionID string) (Outcome, error) {
	auction, bids, done, err := c.closeAndSnapshot(ctx, auctionID)
	if err != nil || done != nil {
		return outcomeOf(done), err
	}
	defer c.release(auctionID)

	if len(bids) > 0 {
		if _, err := c.store.GetWallet(ctx, auction.AuctioneerID); err != nil {
			return Outcome{}, fmt.Errorf("settlement: auctioneer of %s: %w", auctionID, err)
		}
	}

	var reason error
candidates:
	for _, bid := range bids {
		s := models.Settlement{
			AuctionID:    auctionID,
			AuctioneerID: auction.AuctioneerID,
			BidID:        bid.BidID,
			WinnerID:     bid.BidderID,
			Amount:       bid.Amount,
			SettledAt:    c.now(),
		}
		err := c.ledger.WithWallets(ctx, []string{bid.BidderID, auction.AuctioneerID}, func(ctx context.Context) error {
			return c.store.ApplySettlement(ctx, s)
		})

		switch {
		case err == nil:
			return Outcome{
				Kind:      OutcomeSold,
				AuctionID: auctionID,
				BidID:     bid.BidID,
				WinnerID:  bid.BidderID,
				Amount:    bid.Amount,
				SettledAt: s.SettledAt,
			}, nil
		case errors.Is(err, biddingerrors.ErrInsufficientFunds), errors.Is(err, biddingerrors.ErrWalletNotFound):
			utils.Info("bidder cannot pay, trying next bid", map[string]any{
				"auction_id": auctionID,
				"bid_id":     bid.BidID,
				"bidder_id":  bid.BidderID,
				"error":      err.Error(),
			})
			reason = biddingerrors.ErrNoSolventBidder
		case errors.Is(err, biddingerrors.ErrOutOfStock):
			reason = biddingerrors.ErrOutOfStock
			break candidates
		case errors.Is(err, biddingerrors.ErrAlreadySettled):
			return c.reread(ctx, auctionID)
		default:
			return Outcome{}, fmt.Errorf("settlement: %w", err)
		}
	}

	at := c.now()
	if err := c.store.CloseWithoutSale(ctx, auctionID, at); err != nil {
		if errors.Is(err, biddingerrors.ErrAlreadySettled) {
			return c.reread(ctx, auctionID)
		}
		return Outcome{}, fmt.Errorf("settlement: %w", err)
	}
	return Outcome{Kind: OutcomeNoSale, AuctionID: auctionID, SettledAt: at, Reason: reason}, nil
}

// closeAndSnapshot runs under the auction lock: it checks the effective
// state, records the auction as closed and snapshots its bids in winning
// order. A non-nil done means the call is already answered. On success the
// auction is claimed and the caller must release it.
func (c *Coordinator) closeAndSnapshot(ctx context.Context, auctionID string) (models.Auction, []models.Bid, *Outcome, error) {
	unlock, err := c.locks.Lock(ctx, auctionID)
	if err != nil {
		return models.Auction{}, nil, nil, fmt.Errorf("settlement: %w", err)
	}
	defer unlock()

	a, err := c.store.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, nil, nil, fmt.Errorf("settlement: %w", err)
	}

	switch a.StateAt(c.now()) {
	case models.StateSettled:
		done := alreadySettled(a)
		return a, nil, &done, nil
	case models.StateOpen:
		return a, nil, nil, fmt.Errorf("settlement: %w - closes at %s", biddingerrors.ErrAuctionOpen, a.ClosingDate.Format(time.RFC3339))
	}

	if !c.claim(auctionID) {
		return a, nil, nil, fmt.Errorf("settlement: auction %s: %w", auctionID, biddingerrors.ErrSettlementInUse)
	}

	if err := c.store.MarkClosed(ctx, auctionID); err != nil {
		c.release(auctionID)
		return a, nil, nil, fmt.Errorf("settlement: %w", err)
	}
	bids, err := c.store.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		c.release(auctionID)
		return a, nil, nil, fmt.Errorf("settlement: %w", err)
	}
	models.SortBids(bids)
	return a, bids, nil, nil
}

func (c *Coordinator) reread(ctx context.Context, auctionID string) (Outcome, error) {
	a, err := c.store.GetAuction(ctx, auctionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("settlement: %w", err)
	}
	return alreadySettled(a), nil
}

func alreadySettled(a models.Auction) Outcome {
	o := Outcome{
		Kind:      OutcomeAlreadySettled,
		AuctionID: a.AuctionID,
		BidID:     a.WinningBidID,
		WinnerID:  a.WinnerID,
		Amount:    a.SettledAmount,
	}
	if a.SettledAt != nil {
		o.SettledAt = *a.SettledAt
	}
	return o
}

func outcomeOf(o *Outcome) Outcome {
	if o == nil {
		return Outcome{}
	}
	return *o
}

func (c *Coordinator) claim(auctionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[auctionID]; busy {
		return false
	}
	c.inFlight[auctionID] = struct{}{}
	return true
}

func (c *Coordinator) release(auctionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, auctionID)
}
