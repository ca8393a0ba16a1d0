package eventstest

import (
	"context"
	"errors"
	"testing"
	"time"

	"auction-market/internal/events"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := &Recorder{}
	now := time.Now().UTC()

	events.Emit(ctx, r, events.New(events.TypeBidAccepted, "a1", now, events.BidAccepted{BidID: "b1", Amount: decimal.NewFromInt(10)}))
	events.Emit(ctx, r, events.New(events.TypeAuctionSettled, "a1", now, events.AuctionSettled{Outcome: "sold"}))

	require.Len(t, r.Events(), 2)
	settled := r.Events(events.TypeAuctionSettled)
	require.Len(t, settled, 1)
	require.Equal(t, "a1", settled[0].AuctionID)
	require.NotEmpty(t, settled[0].ID)

	r.Err = errors.New("broker down")
	events.Emit(ctx, r, events.New(events.TypeBidAccepted, "a1", now, nil))
	require.Len(t, r.Events(), 2)
}
