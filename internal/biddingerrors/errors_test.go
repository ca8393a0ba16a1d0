package biddingerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "wrapped_too_low", err: fmt.Errorf("service: %w", ErrBidTooLow), want: KindRejected},
		{name: "closed", err: ErrAuctionClosed, want: KindRejected},
		{name: "invalid_amount", err: fmt.Errorf("ledger: %w", ErrInvalidAmount), want: KindValidation},
		{name: "insufficient_funds", err: ErrInsufficientFunds, want: KindBusiness},
		{name: "retryable", err: fmt.Errorf("lock auction-1: %w", ErrRetryable), want: KindRetryable},
		{name: "wallet_not_found", err: ErrWalletNotFound, want: KindNotFound},
		{name: "already_settled", err: ErrAlreadySettled, want: KindConflict},
		{name: "unknown", err: errors.New("disk on fire"), want: KindInternal},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestIsBidRejected(t *testing.T) {
	t.Parallel()

	require.True(t, IsBidRejected(fmt.Errorf("x: %w", ErrSelfBid)))
	require.True(t, IsBidRejected(ErrInvalidAmount))
	require.False(t, IsBidRejected(ErrRetryable))
	require.False(t, IsBidRejected(ErrAuctionNotFound))
	require.True(t, IsRetryable(fmt.Errorf("x: %w", ErrSettlementInUse)))
}
