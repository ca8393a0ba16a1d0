// Package events publishes domain events after state changes commit.
// Delivery is best effort: a failed publish is logged and never undoes the
// change that produced it.
package events

import (
	"context"
	"time"

	"auction-market/utils"

	"github.com/shopspring/decimal"
)

// Event types, also used as routing keys
const (
	TypeBidAccepted    = "bid.accepted"
	TypeAuctionSettled = "auction.settled"
)

// Event is the envelope sent to subscribers
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	AuctionID  string    `json:"auction_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// BidAccepted is the payload of TypeBidAccepted
type BidAccepted struct {
	BidID    string          `json:"bid_id"`
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// AuctionSettled is the payload of TypeAuctionSettled
type AuctionSettled struct {
	Outcome  string          `json:"outcome"`
	BidID    string          `json:"bid_id,omitempty"`
	WinnerID string          `json:"winner_id,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason,omitempty"`
}

// New builds an event with a fresh id
func New(eventType, auctionID string, at time.Time, payload any) Event {
	return Event{
		ID:         utils.GenerateID(),
		Type:       eventType,
		AuctionID:  auctionID,
		OccurredAt: at,
		Payload:    payload,
	}
}

// Publisher sends events to subscribers
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Emit publishes ev and logs, rather than returns, any failure
func Emit(ctx context.Context, p Publisher, ev Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		utils.Warn("event publish failed", map[string]any{
			"event":      ev.Type,
			"auction_id": ev.AuctionID,
			"error":      err.Error(),
		})
	}
}

// Noop discards every event
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
