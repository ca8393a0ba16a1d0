package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"auction-market/internal/biddingerrors"

	"github.com/shopspring/decimal"
)

// AuctionState is the lifecycle position of an auction
type AuctionState string

const (
	StateOpen    AuctionState = "open"
	StateClosed  AuctionState = "closed"
	StateSettled AuctionState = "settled"
)

var transitions = map[AuctionState][]AuctionState{
	StateOpen:    {StateClosed},
	StateClosed:  {StateSettled},
	StateSettled: nil,
}

// CanTransition reports whether from -> to is a legal lifecycle step
func CanTransition(from, to AuctionState) bool {
	return slices.Contains(transitions[from], to)
}

// StateAt derives the effective state at now. The persisted Status only ever
// lags behind: an auction past its closing date, or out of stock, is closed
// even if nothing has recorded that yet.
func (a Auction) StateAt(now time.Time) AuctionState {
	switch {
	case a.Status == StateSettled:
		return StateSettled
	case a.Status == StateClosed, !now.Before(a.ClosingDate), a.Stock <= 0:
		return StateClosed
	default:
		return StateOpen
	}
}

// IsOpenAt reports whether bids may be accepted at now
func (a Auction) IsOpenAt(now time.Time) bool {
	return a.StateAt(now) == StateOpen
}

// Transition moves the auction to the given state, validating against the
// effective state at now.
func (a *Auction) Transition(to AuctionState, now time.Time) error {
	from := a.StateAt(now)
	if from == to && to == StateClosed {
		a.Status = StateClosed
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("auction %s %s -> %s: %w", a.AuctionID, from, to, biddingerrors.ErrInvalidTransition)
	}
	a.Status = to
	return nil
}

// Outranks reports whether a ranks before b: highest amount first, earliest
// creation time breaking ties.
func Outranks(a, b Bid) bool {
	if c := a.Amount.Cmp(b.Amount); c != 0 {
		return c > 0
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// SortBids orders bids highest, earliest first
func SortBids(bids []Bid) {
	slices.SortStableFunc(bids, func(a, b Bid) int {
		switch {
		case Outranks(a, b):
			return -1
		case Outranks(b, a):
			return 1
		default:
			return 0
		}
	})
}

// MaxAmount bounds amounts to ten digits with two decimal places.
var MaxAmount = decimal.New(1, 8)

// CheckAmount validates a monetary amount: strictly positive, at most two
// decimal places, below MaxAmount.
func CheckAmount(amount decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return fmt.Errorf("%w: %s must be positive", biddingerrors.ErrInvalidAmount, amount)
	case !amount.Equal(amount.Round(2)):
		return fmt.Errorf("%w: %s has more than two decimal places", biddingerrors.ErrInvalidAmount, amount)
	case amount.GreaterThanOrEqual(MaxAmount):
		return fmt.Errorf("%w: %s exceeds maximum", biddingerrors.ErrInvalidAmount, amount)
	}
	return nil
}

var maxRating = decimal.NewFromInt(5)

// Validate checks the listing fields of an auction
func (a Auction) Validate() error {
	title := strings.TrimSpace(a.Title)
	switch {
	case title == "" || len(title) > 150:
		return fmt.Errorf("%w: title must be 1-150 characters", biddingerrors.ErrValidation)
	case strings.TrimSpace(a.Description) == "":
		return fmt.Errorf("%w: description is required", biddingerrors.ErrValidation)
	case len(a.Brand) > 100:
		return fmt.Errorf("%w: brand must be at most 100 characters", biddingerrors.ErrValidation)
	case a.Price.IsNegative() || !a.Price.Equal(a.Price.Round(2)) || a.Price.GreaterThanOrEqual(MaxAmount):
		return fmt.Errorf("%w: price %s out of range", biddingerrors.ErrValidation, a.Price)
	case a.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", biddingerrors.ErrValidation)
	case a.Rating.IsNegative() || a.Rating.GreaterThan(maxRating):
		return fmt.Errorf("%w: rating must be between 0 and 5", biddingerrors.ErrValidation)
	case a.CategoryID == "":
		return fmt.Errorf("%w: category is required", biddingerrors.ErrValidation)
	case a.AuctioneerID == "":
		return fmt.Errorf("%w: auctioneer is required", biddingerrors.ErrValidation)
	}
	return nil
}

// ValidCardNumber reports whether a card number has 13 to 19 characters
func ValidCardNumber(card string) bool {
	n := len(strings.TrimSpace(card))
	return n >= 13 && n <= 19
}
