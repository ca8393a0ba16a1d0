package biddingerrors

import "errors"

// Kind groups errors by how callers are expected to react to them
type Kind string

const (
	KindValidation Kind = "validation"
	KindRejected   Kind = "rejected"
	KindBusiness   Kind = "business"
	KindRetryable  Kind = "retryable"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

// Validation errors: malformed or out-of-range input, never retried
var (
	ErrValidation     = errors.New("validation failed")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrSearchTooShort = errors.New("search term too short")
)

// Bid rejections
var (
	ErrBidTooLow     = errors.New("bid amount too low")
	ErrAuctionClosed = errors.New("auction is closed")
	ErrSelfBid       = errors.New("auctioneer cannot bid on own auction")
)

// Business outcomes of settlement and ledger operations
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoSolventBidder   = errors.New("no solvent bidder")
	ErrOutOfStock        = errors.New("no stock left")
)

// ErrRetryable is returned when a lock could not be acquired in time
var ErrRetryable = errors.New("resource busy, retry later")

// Repository-level errors
var (
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrWalletNotFound   = errors.New("wallet not found")
	ErrNoBids           = errors.New("no bids found for auction")
)

// Conflicts with current state
var (
	ErrCategoryExists  = errors.New("category already exists")
	ErrWalletExists    = errors.New("wallet already exists")
	ErrAuctionLocked   = errors.New("auction can no longer be edited")
	ErrAuctionOpen     = errors.New("auction is still open")
	ErrAlreadySettled  = errors.New("auction already settled")
	ErrNotOwner        = errors.New("user does not own auction")
	ErrSettlementInUse = errors.New("settlement already in progress")

	ErrInvalidTransition = errors.New("invalid auction state transition")
)

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindRetryable, []error{ErrRetryable, ErrSettlementInUse}},
	{KindRejected, []error{ErrBidTooLow, ErrAuctionClosed, ErrSelfBid}},
	{KindValidation, []error{ErrValidation, ErrInvalidAmount, ErrSearchTooShort}},
	{KindBusiness, []error{ErrInsufficientFunds, ErrNoSolventBidder, ErrOutOfStock}},
	{KindNotFound, []error{ErrAuctionNotFound, ErrCategoryNotFound, ErrWalletNotFound, ErrNoBids}},
	{KindConflict, []error{ErrCategoryExists, ErrWalletExists, ErrAuctionLocked, ErrAuctionOpen, ErrAlreadySettled, ErrNotOwner, ErrInvalidTransition}},
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindInternal
}

// IsBidRejected reports whether err is one of the user-facing bid rejections,
// including a non-positive amount.
func IsBidRejected(err error) bool {
	return KindOf(err) == KindRejected || errors.Is(err, ErrInvalidAmount)
}

// IsRetryable reports whether the operation may succeed if attempted again
func IsRetryable(err error) bool {
	return KindOf(err) == KindRetryable
}
