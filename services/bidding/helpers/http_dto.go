package helpers

import (
	"time"

	"auction-market/internal/models"
	"auction-market/internal/settlement"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs
type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required,max=50"`
}

type CreateAuctionRequest struct {
	Title        string           `json:"title" binding:"required,max=150"`
	Description  string           `json:"description" binding:"required"`
	ClosingDate  *time.Time       `json:"closing_date" binding:"required"`
	Price        *decimal.Decimal `json:"price" binding:"required"`
	Stock        *int             `json:"stock" binding:"required,gte=0"`
	Rating       *decimal.Decimal `json:"rating" binding:"required"`
	Brand        string           `json:"brand"`
	CategoryID   string           `json:"category_id" binding:"required"`
	AuctioneerID string           `json:"auctioneer_id" binding:"required"`
}

// ToModel builds the draft auction; id, creation date and status are left
// for the service to assign.
func (r CreateAuctionRequest) ToModel() models.Auction {
	return models.Auction{
		Title:        r.Title,
		Description:  r.Description,
		ClosingDate:  r.ClosingDate.UTC(),
		Price:        *r.Price,
		Stock:        *r.Stock,
		Rating:       *r.Rating,
		Brand:        r.Brand,
		CategoryID:   r.CategoryID,
		AuctioneerID: r.AuctioneerID,
	}
}

type UpdateAuctionRequest struct {
	EditorID    string           `json:"editor_id" binding:"required"`
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	ClosingDate *time.Time       `json:"closing_date,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Stock       *int             `json:"stock,omitempty"`
	Rating      *decimal.Decimal `json:"rating,omitempty"`
	Brand       *string          `json:"brand,omitempty"`
	CategoryID  *string          `json:"category_id,omitempty"`
}

func (r UpdateAuctionRequest) ToModel() models.AuctionUpdate {
	u := models.AuctionUpdate{
		Title:       r.Title,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		Rating:      r.Rating,
		Brand:       r.Brand,
		CategoryID:  r.CategoryID,
	}
	if r.ClosingDate != nil {
		t := r.ClosingDate.UTC()
		u.ClosingDate = &t
	}
	return u
}

type ProposeBidRequest struct {
	BidderID string           `json:"bidder_id" binding:"required"`
	Amount   *decimal.Decimal `json:"amount" binding:"required"`
}

type BidResponse struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt string          `json:"created_at"`
}

func NewBidResponse(b models.Bid) BidResponse {
	return BidResponse{
		BidID:     b.BidID,
		AuctionID: b.AuctionID,
		BidderID:  b.BidderID,
		Amount:    b.Amount,
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func NewBidResponses(bids []models.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, NewBidResponse(b))
	}
	return out
}

type SettlementResponse struct {
	Outcome   string           `json:"outcome"`
	AuctionID string           `json:"auction_id"`
	BidID     string           `json:"bid_id,omitempty"`
	WinnerID  string           `json:"winner_id,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	SettledAt string           `json:"settled_at,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

func NewSettlementResponse(o settlement.Outcome) SettlementResponse {
	resp := SettlementResponse{
		Outcome:   string(o.Kind),
		AuctionID: o.AuctionID,
		BidID:     o.BidID,
		WinnerID:  o.WinnerID,
	}
	if o.BidID != "" {
		amount := o.Amount
		resp.Amount = &amount
	}
	if !o.SettledAt.IsZero() {
		resp.SettledAt = o.SettledAt.UTC().Format(time.RFC3339Nano)
	}
	if o.Reason != nil {
		resp.Reason = o.Reason.Error()
	}
	return resp
}

type CreateWalletRequest struct {
	UserID         string           `json:"user_id" binding:"required"`
	CardNumber     string           `json:"card_number" binding:"required"`
	InitialBalance *decimal.Decimal `json:"initial_balance,omitempty"`
}

type AmountRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"required"`
}

type BalanceResponse struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}
