package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bidding "auction-market/internal/biddingService"
	"auction-market/internal/biddingerrors"
	"auction-market/internal/events"
	"auction-market/internal/events/eventstest"
	"auction-market/internal/locker"
	"auction-market/internal/metrics"
	"auction-market/internal/models"
	"auction-market/internal/repository"
	"auction-market/internal/wallet"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	repo   *repository.MemoryRepo
	ledger *wallet.Ledger
	locks  *locker.Locker
	clock  *clock
	rec    *eventstest.Recorder
	m      *metrics.Metrics
	coord  *Coordinator
}

// newFixture seeds auction "a1" (price 100, stock 1, owned by "seller",
// closing an hour after t0) and a seller wallet. The clock starts past the
// closing date.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:  repository.NewMemoryRepo(),
		locks: locker.New("auction", time.Second),
		clock: &clock{now: t0.Add(2 * time.Hour)},
		rec:   &eventstest.Recorder{},
		m:     metrics.New(),
	}
	f.ledger = wallet.NewLedger(f.repo, time.Second)
	f.coord = New(f.repo, f.ledger, f.locks,
		WithClock(f.clock.Now), WithPublisher(f.rec), WithMetrics(f.m))

	f.repo.AddCategory(models.Category{CategoryID: "cat1", Name: "Cameras"})
	f.repo.AddAuction(models.Auction{
		AuctionID:    "a1",
		Title:        "Camera",
		Description:  "Mirrorless body",
		ClosingDate:  t0.Add(time.Hour),
		CreationDate: t0,
		Price:        decimal.NewFromInt(100),
		Stock:        1,
		CategoryID:   "cat1",
		AuctioneerID: "seller",
		Status:       models.StateOpen,
	})
	f.wallet(t, "seller", 0)
	return f
}

func (f *fixture) wallet(t *testing.T, user string, balance int64) {
	t.Helper()
	_, err := f.ledger.CreateWallet(context.Background(), user, "4111111111111111", decimal.NewFromInt(balance))
	require.NoError(t, err)
}

func (f *fixture) bid(t *testing.T, id, user string, amount int64, offset time.Duration) {
	t.Helper()
	require.NoError(t, f.repo.RecordBidForAuction(context.Background(), models.Bid{
		BidID:     id,
		AuctionID: "a1",
		BidderID:  user,
		Amount:    decimal.NewFromInt(amount),
		CreatedAt: t0.Add(offset),
	}))
}

func (f *fixture) balance(t *testing.T, user string) decimal.Decimal {
	t.Helper()
	w, err := f.ledger.GetWallet(context.Background(), user)
	require.NoError(t, err)
	return w.Balance
}

func TestCoordinator_SoldAndIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.wallet(t, "A", 1000)
	f.wallet(t, "B", 200)
	f.bid(t, "bA", "A", 120, 0)
	f.bid(t, "bB", "B", 150, time.Minute)

	first, err := f.coord.Settle(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, OutcomeSold, first.Kind)
	require.Equal(t, "B", first.WinnerID)
	require.Equal(t, "bB", first.BidID)
	require.True(t, first.Amount.Equal(decimal.NewFromInt(150)))

	require.True(t, f.balance(t, "B").Equal(decimal.NewFromInt(50)))
	require.True(t, f.balance(t, "seller").Equal(decimal.NewFromInt(150)))
	require.True(t, f.balance(t, "A").Equal(decimal.NewFromInt(1000)))

	a, err := f.repo.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, models.StateSettled, a.Status)
	require.Equal(t, 0, a.Stock)

	second, err := f.coord.Settle(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadySettled, second.Kind)
	require.Equal(t, first.WinnerID, second.WinnerID)
	require.Equal(t, first.BidID, second.BidID)
	require.True(t, first.Amount.Equal(second.Amount))

	// nothing moved the second time
	require.True(t, f.balance(t, "B").Equal(decimal.NewFromInt(50)))
	require.True(t, f.balance(t, "seller").Equal(decimal.NewFromInt(150)))

	require.Len(t, f.rec.Events(events.TypeAuctionSettled), 1)
	require.Equal(t, 1.0, testutil.ToFloat64(f.m.Settlements.WithLabelValues("sold")))
	require.Equal(t, 1.0, testutil.ToFloat64(f.m.Settlements.WithLabelValues("already_settled")))
}

// winner balance 100, winning bid 150: falls back to the next solvent bidder
func TestCoordinator_FallsBackToSolventBidder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.wallet(t, "A", 500)
	f.wallet(t, "B", 100)
	f.wallet(t, "C", 500)
	f.bid(t, "bA", "A", 120, 0)
	f.bid(t, "bC", "C", 140, time.Minute)
	f.bid(t, "bB", "B", 150, 2*time.Minute)

	out, err := f.coord.Settle(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, OutcomeSold, out.Kind)
	require.Equal(t, "C", out.WinnerID)
	require.True(t, out.Amount.Equal(decimal.NewFromInt(140)))

	require.True(t, f.balance(t, "B").Equal(decimal.NewFromInt(100)))
	require.True(t, f.balance(t, "C").Equal(decimal.NewFromInt(360)))
	require.True(t, f.balance(t, "A").Equal(decimal.NewFromInt(500)))
	require.True(t, f.balance(t, "seller").Equal(decimal.NewFromInt(140)))
}

func TestCoordinator_NoSolventBidder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.wallet(t, "A", 10)
	f.bid(t, "bA", "A", 120, 0)
	// bidder without a wallet cannot pay either
	f.bid(t, "bX", "X", 130, time.Minute)

	out, err := f.coord.Settle(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, OutcomeNoSale, out.Kind)
	require.True(t, errors.Is(out.Reason, biddingerrors.ErrNoSolventBidder))

	a, err := f.repo.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, models.StateSettled, a.Status)
	require.Equal(t, 1, a.Stock)
	require.Empty(t, a.WinnerID)

	require.True(t, f.balance(t, "A").Equal(decimal.NewFromInt(10)))
	require.True(t, f.balance(t, "seller").IsZero())

	again, err := f.coord.Settle(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadySettled, again.Kind)
}

func TestCoordinator_NoBids(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	out, err := f.coord.Settle(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, OutcomeNoSale, out.Kind)
	require.NoError(t, out.Reason)

	a, err := f.repo.GetAuction(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, 1, a.Stock)
	require.Equal(t, models.StateSettled, a.Status)
}

// stock emptied after bids were placed: the auction still settles, unsold
func TestCoordinator_OutOfStockClosesWithoutSale(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.wallet(t, "A", 1000)
	f.bid(t, "bA", "A", 150, 0)

	a, err := f.repo.GetAuction(ctx, "a1")
	require.NoError(t, err)
	a.Stock = 0
	f.repo.AddAuction(a)

	out, err := f.coord.Settle(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, OutcomeNoSale, out.Kind)
	require.True(t, errors.Is(out.Reason, biddingerrors.ErrOutOfStock))

	a, err = f.repo.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, models.StateSettled, a.Status)
	require.Equal(t, 0, a.Stock)
	require.Empty(t, a.WinnerID)

	require.True(t, f.balance(t, "A").Equal(decimal.NewFromInt(1000)))
	require.True(t, f.balance(t, "seller").IsZero())

	due, err := f.repo.ListDueAuctions(ctx, f.clock.Now())
	require.NoError(t, err)
	require.Empty(t, due)

	again, err := f.coord.Settle(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadySettled, again.Kind)
}

func TestCoordinator_Refusals(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("open_auction", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.clock.Set(t0)
		_, err := f.coord.Settle(ctx, "a1")
		require.True(t, errors.Is(err, biddingerrors.ErrAuctionOpen))
	})

	t.Run("unknown_auction", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.coord.Settle(ctx, "missing")
		require.True(t, errors.Is(err, biddingerrors.ErrAuctionNotFound))
	})

	t.Run("auctioneer_without_wallet_stays_closed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.repo.AddAuction(models.Auction{
			AuctionID:    "a2",
			ClosingDate:  t0.Add(time.Hour),
			Price:        decimal.NewFromInt(1),
			Stock:        1,
			CategoryID:   "cat1",
			AuctioneerID: "walletless",
			Status:       models.StateOpen,
		})
		f.wallet(t, "A", 100)
		require.NoError(t, f.repo.RecordBidForAuction(ctx, models.Bid{
			BidID: "b1", AuctionID: "a2", BidderID: "A", Amount: decimal.NewFromInt(5), CreatedAt: t0,
		}))

		_, err := f.coord.Settle(ctx, "a2")
		require.True(t, errors.Is(err, biddingerrors.ErrWalletNotFound))

		a, err := f.repo.GetAuction(ctx, "a2")
		require.NoError(t, err)
		require.Equal(t, models.StateClosed, a.Status)

		f.wallet(t, "walletless", 0)
		out, err := f.coord.Settle(ctx, "a2")
		require.NoError(t, err)
		require.Equal(t, OutcomeSold, out.Kind)
	})
}

func TestCoordinator_ConcurrentSettle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.wallet(t, "B", 1000)
	f.bid(t, "bB", "B", 150, 0)

	var sold, repeated, busy int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.coord.Settle(ctx, "a1")
			switch {
			case err != nil:
				require.True(t, biddingerrors.IsRetryable(err), "got %v", err)
				atomic.AddInt32(&busy, 1)
			case out.Kind == OutcomeSold:
				atomic.AddInt32(&sold, 1)
			case out.Kind == OutcomeAlreadySettled:
				require.Equal(t, "B", out.WinnerID)
				atomic.AddInt32(&repeated, 1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), sold)
	require.Equal(t, int32(19), repeated+busy)
	require.True(t, f.balance(t, "B").Equal(decimal.NewFromInt(850)))
	require.True(t, f.balance(t, "seller").Equal(decimal.NewFromInt(150)))
}

// Bidders keep proposing while the clock crosses the closing date and a
// settlement runs. The sale must go to the highest bid ever recorded.
func TestCoordinator_SettleRacesBids(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.clock.Set(t0)
	service := bidding.NewBiddingService(f.repo, bidding.WithLocker(f.locks), bidding.WithClock(f.clock.Now))

	for i := 0; i < 8; i++ {
		f.wallet(t, fmt.Sprintf("u%d", i), 1_000_000)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := int64(0); ; n++ {
				select {
				case <-stop:
					return
				default:
				}
				amount := decimal.NewFromInt(100 + n*8 + int64(i))
				_, err := service.ProposeBid(ctx, "a1", fmt.Sprintf("u%d", i), amount)
				if err != nil && !biddingerrors.IsBidRejected(err) && !biddingerrors.IsRetryable(err) {
					t.Errorf("unexpected bid error: %v", err)
				}
			}
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	f.clock.Set(t0.Add(2 * time.Hour))
	out, err := f.coord.Settle(ctx, "a1")
	require.NoError(t, err)
	close(stop)
	wg.Wait()

	highest, err := f.repo.GetWinningBid(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, OutcomeSold, out.Kind)
	require.Equal(t, highest.BidID, out.BidID)
	require.True(t, highest.Amount.Equal(out.Amount))
	require.True(t, f.balance(t, "seller").Equal(out.Amount))
}
