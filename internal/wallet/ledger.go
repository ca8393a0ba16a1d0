// Package wallet owns every balance mutation. Debits and credits against one
// user are serialized by a per-user lock with a bounded wait; the store
// re-checks the non-negative balance inside its own transaction.
package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"auction-market/internal/biddingerrors"
	"auction-market/internal/locker"
	"auction-market/internal/models"
	"auction-market/internal/repository"
	"auction-market/utils"

	"github.com/shopspring/decimal"
)

// Ledger is the wallet ledger
type Ledger struct {
	store repository.WalletDB
	locks *locker.Locker
	now   func() time.Time
}

type Option func(*Ledger)

// WithLockTimeoutHook is called with the lock scope on every lock timeout
func WithLockTimeoutHook(fn func(scope string)) Option {
	return func(l *Ledger) {
		l.locks.OnTimeout = fn
	}
}

// WithClock overrides the wallet timestamps' clock
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger creates a ledger over store. wait bounds every lock acquisition.
func NewLedger(store repository.WalletDB, wait time.Duration, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		locks: locker.New("wallet", wait),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateWallet opens a wallet for userID with an optional starting balance
func (l *Ledger) CreateWallet(ctx context.Context, userID, cardNumber string, initial decimal.Decimal) (models.UserWallet, error) {
	if strings.TrimSpace(userID) == "" {
		return models.UserWallet{}, fmt.Errorf("create wallet: %w: user is required", biddingerrors.ErrValidation)
	}
	if !models.ValidCardNumber(cardNumber) {
		return models.UserWallet{}, fmt.Errorf("create wallet: %w: card number must have 13 to 19 characters", biddingerrors.ErrValidation)
	}
	if initial.IsNegative() || !initial.Equal(initial.Round(2)) {
		return models.UserWallet{}, fmt.Errorf("create wallet: %w: initial balance %s", biddingerrors.ErrInvalidAmount, initial)
	}

	now := l.now()
	w := models.UserWallet{
		WalletID:   utils.GenerateID(),
		UserID:     userID,
		CardNumber: strings.TrimSpace(cardNumber),
		Balance:    initial,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := l.store.CreateWallet(ctx, w); err != nil {
		return models.UserWallet{}, fmt.Errorf("ledger: %w", err)
	}

	utils.Info("wallet created", map[string]any{"user_id": userID, "balance": initial.StringFixed(2)})
	return w, nil
}

// GetWallet returns the wallet of userID
func (l *Ledger) GetWallet(ctx context.Context, userID string) (models.UserWallet, error) {
	w, err := l.store.GetWallet(ctx, userID)
	if err != nil {
		return models.UserWallet{}, fmt.Errorf("ledger: %w", err)
	}
	return w, nil
}

// Debit removes amount from the user's balance. It fails with
// ErrInsufficientFunds, leaving the balance untouched, if the result would
// be negative.
func (l *Ledger) Debit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	return l.adjust(ctx, userID, amount, amount.Neg(), "debit")
}

// Credit adds amount to the user's balance
func (l *Ledger) Credit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	return l.adjust(ctx, userID, amount, amount, "credit")
}

func (l *Ledger) adjust(ctx context.Context, userID string, amount, delta decimal.Decimal, op string) (decimal.Decimal, error) {
	if err := models.CheckAmount(amount); err != nil {
		return decimal.Zero, fmt.Errorf("ledger %s: %w", op, err)
	}

	unlock, err := l.locks.Lock(ctx, userID)
	if err != nil {
		utils.Warn("wallet lock timeout", map[string]any{"user_id": userID, "op": op})
		return decimal.Zero, fmt.Errorf("ledger %s: %w", op, err)
	}
	defer unlock()

	balance, err := l.store.AdjustBalance(ctx, userID, delta)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger %s: %w", op, err)
	}

	utils.Debug("wallet "+op, map[string]any{
		"user_id": userID,
		"amount":  amount.StringFixed(2),
		"balance": balance.StringFixed(2),
	})
	return balance, nil
}

// WithWallets runs fn while holding the locks of every listed user, taken
// in sorted order. Used by settlement to move funds between two wallets as
// one step.
func (l *Ledger) WithWallets(ctx context.Context, userIDs []string, fn func(ctx context.Context) error) error {
	unlock, err := l.locks.LockMany(ctx, userIDs...)
	if err != nil {
		utils.Warn("wallet lock timeout", map[string]any{"user_ids": userIDs})
		return fmt.Errorf("ledger: %w", err)
	}
	defer unlock()
	return fn(ctx)
}
