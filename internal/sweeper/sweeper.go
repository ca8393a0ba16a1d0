// Package sweeper periodically settles auctions whose closing date has
// passed or whose stock ran out.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-market/internal/biddingerrors"
	"auction-market/internal/models"
	"auction-market/internal/settlement"
	"auction-market/utils"
)

const (
	defaultInterval = 5 * time.Second
	defaultWorkers  = 4
)

// Lister finds auctions due for settlement
type Lister interface {
	ListDueAuctions(ctx context.Context, now time.Time) ([]models.Auction, error)
}

// Settler settles one auction
type Settler interface {
	Settle(ctx context.Context, auctionID string) (settlement.Outcome, error)
}

// Stats summarizes one sweep pass
type Stats struct {
	Due     int
	Settled int
	Skipped int
	Failed  int
}

type Sweeper struct {
	store    Lister
	settler  Settler
	interval time.Duration
	workers  int
	now      func() time.Time
	wg       sync.WaitGroup
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithWorkers(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store Lister, settler Settler, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:    store,
		settler:  settler,
		interval: defaultInterval,
		workers:  defaultWorkers,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the ticker-driven generator and the worker pool. They stop
// when ctx is cancelled; Wait blocks until they have.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	jobs := s.generator(ctx)
	for i := range s.workers {
		s.wg.Add(1)
		go s.worker(ctx, i, jobs)
	}
	utils.Info("sweeper started", map[string]any{"interval": s.interval.String(), "workers": s.workers})
}

// Wait blocks until the goroutines started by Start have returned
func (s *Sweeper) Wait() {
	s.wg.Wait()
}

func (s *Sweeper) generator(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer s.wg.Done()
		defer close(out)
		tick := time.NewTicker(s.interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				utils.Debug("sweep generator stopping", nil)
				return
			case <-tick.C:
				due, err := s.store.ListDueAuctions(ctx, s.now())
				if err != nil {
					utils.Error("failed listing due auctions", map[string]any{"error": err.Error()})
					continue
				}
				if len(due) > 0 {
					utils.Debug("sweep pass", map[string]any{"due": len(due)})
				}
				for _, a := range due {
					select {
					case out <- a.AuctionID:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out
}

func (s *Sweeper) worker(ctx context.Context, id int, jobs <-chan string) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			utils.Debug("sweep worker stopping", map[string]any{"worker": id})
			return
		case auctionID, ok := <-jobs:
			if !ok {
				return
			}
			s.settle(ctx, auctionID)
		}
	}
}

// RunOnce performs a single pass over the due auctions and returns once
// every one of them has been attempted.
func (s *Sweeper) RunOnce(ctx context.Context) (Stats, error) {
	due, err := s.store.ListDueAuctions(ctx, s.now())
	if err != nil {
		return Stats{}, fmt.Errorf("sweep: %w", err)
	}
	stats := Stats{Due: len(due)}
	if len(due) == 0 {
		return stats, nil
	}

	jobs := make(chan string)
	results := make(chan result, len(due))
	var wg sync.WaitGroup
	for range min(s.workers, len(due)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for auctionID := range jobs {
				results <- s.settle(ctx, auctionID)
			}
		}()
	}

dispatch:
	for _, a := range due {
		select {
		case jobs <- a.AuctionID:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	for r := range results {
		switch r {
		case resultSettled:
			stats.Settled++
		case resultSkipped:
			stats.Skipped++
		default:
			stats.Failed++
		}
	}

	utils.Info("sweep finished", map[string]any{
		"due":     stats.Due,
		"settled": stats.Settled,
		"skipped": stats.Skipped,
		"failed":  stats.Failed,
	})
	return stats, ctx.Err()
}

type result int

const (
	resultSettled result = iota
	resultSkipped
	resultFailed
)

func (s *Sweeper) settle(ctx context.Context, auctionID string) result {
	outcome, err := s.settler.Settle(ctx, auctionID)
	switch {
	case err == nil:
		if outcome.Kind == settlement.OutcomeAlreadySettled {
			return resultSkipped
		}
		return resultSettled
	case biddingerrors.IsRetryable(err), errors.Is(err, biddingerrors.ErrAuctionOpen):
		utils.Debug("auction left for next sweep", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return resultSkipped
	default:
		utils.Error("sweep failed to settle auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return resultFailed
	}
}
