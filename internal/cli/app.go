package cli

import (
	"context"
	"errors"
	"fmt"

	bidding "auction-market/internal/biddingService"
	"auction-market/internal/config"
	"auction-market/internal/events"
	"auction-market/internal/locker"
	"auction-market/internal/metrics"
	"auction-market/internal/repository"
	"auction-market/internal/settlement"
	"auction-market/internal/sweeper"
	"auction-market/internal/wallet"
	"auction-market/utils"
)

// app holds the wired components shared by every command
type app struct {
	cfg       *config.Config
	store     repository.Store
	publisher events.Publisher
	metrics   *metrics.Metrics
	ledger    *wallet.Ledger
	service   *bidding.BiddingService
	settler   *settlement.Coordinator
	sweeper   *sweeper.Sweeper

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store

	publisher, err := a.openPublisher()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.publisher = publisher

	// bids, edits and settlement of one auction are serialized on this locker
	auctions := locker.New("auction", cfg.Bidding.LockTimeout)
	auctions.OnTimeout = a.metrics.LockTimeout

	a.ledger = wallet.NewLedger(store, cfg.Wallet.LockTimeout, wallet.WithLockTimeoutHook(a.metrics.LockTimeout))
	a.service = bidding.NewBiddingService(store,
		bidding.WithLocker(auctions),
		bidding.WithRetry(cfg.Bidding.RetryAttempts, cfg.Bidding.RetryBackoff),
		bidding.WithPublisher(publisher),
		bidding.WithMetrics(a.metrics),
	)
	a.settler = settlement.New(store, a.ledger, auctions,
		settlement.WithPublisher(publisher),
		settlement.WithMetrics(a.metrics),
	)
	a.sweeper = sweeper.New(store, a.settler,
		sweeper.WithInterval(cfg.Sweep.Interval),
		sweeper.WithWorkers(cfg.Sweep.Workers),
	)
	return a, nil
}

func (a *app) openStore(ctx context.Context) (repository.Store, error) {
	switch a.cfg.Store.Driver {
	case config.DriverPostgres:
		repo, err := repository.NewGormRepo(ctx, a.cfg.Store.DSN, repository.WithSlowThreshold(a.cfg.Store.SlowQuery))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, repo.Close)
		if err := repo.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
		utils.Info("using postgres store", nil)
		return repo, nil
	default:
		utils.Info("using in-memory store", nil)
		return repository.NewMemoryRepo(), nil
	}
}

func (a *app) openPublisher() (events.Publisher, error) {
	switch a.cfg.Events.Driver {
	case config.EventsRabbitMQ:
		p, err := events.NewRabbitPublisher(a.cfg.Events.URL, a.cfg.Events.Exchange)
		if err != nil {
			return nil, fmt.Errorf("events: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		return p, nil
	default:
		return events.Noop{}, nil
	}
}

// Close releases connections in reverse order of opening
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
