package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups auctions. Deleting a category deletes its auctions.
type Category struct {
	CategoryID string    `gorm:"primaryKey;type:varchar(36)" json:"category_id"`
	Name       string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Auction represents a listing that users bid on
type Auction struct {
	AuctionID    string          `gorm:"primaryKey;type:varchar(36)" json:"auction_id"`
	Title        string          `gorm:"type:varchar(150);not null" json:"title"`
	Description  string          `gorm:"type:text;not null" json:"description"`
	ClosingDate  time.Time       `gorm:"not null;index" json:"closing_date"`
	CreationDate time.Time       `gorm:"not null" json:"creation_date"`
	Price        decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	Stock        int             `gorm:"not null" json:"stock"`
	Rating       decimal.Decimal `gorm:"type:numeric(3,2);not null" json:"rating"`
	Brand        string          `gorm:"type:varchar(100)" json:"brand"`
	CategoryID   string          `gorm:"type:varchar(36);not null;index" json:"category_id"`
	AuctioneerID string          `gorm:"type:varchar(64);not null;index" json:"auctioneer_id"`
	Status       AuctionState    `gorm:"type:varchar(16);not null;default:open;index" json:"status"`

	// Filled in once, when the auction is settled with a sale.
	WinningBidID  string          `gorm:"type:varchar(36)" json:"winning_bid_id,omitempty"`
	WinnerID      string          `gorm:"type:varchar(64)" json:"winner_id,omitempty"`
	SettledAmount decimal.Decimal `gorm:"type:numeric(10,2)" json:"settled_amount"`
	SettledAt     *time.Time      `json:"settled_at,omitempty"`

	Category *Category `gorm:"foreignKey:CategoryID;references:CategoryID;constraint:OnDelete:CASCADE" json:"-"`
}

// Bid represents a user's monetary offer on an auction
type Bid struct {
	BidID     string          `gorm:"primaryKey;type:varchar(36)" json:"bid_id"`
	AuctionID string          `gorm:"type:varchar(36);not null;index" json:"auction_id"`
	BidderID  string          `gorm:"type:varchar(64);not null;index" json:"bidder_id"`
	Amount    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`

	Auction *Auction `gorm:"foreignKey:AuctionID;references:AuctionID;constraint:OnDelete:CASCADE" json:"-"`
}

// UserWallet holds a user's balance. One wallet per user.
type UserWallet struct {
	WalletID   string          `gorm:"primaryKey;type:varchar(36)" json:"wallet_id"`
	UserID     string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"`
	CardNumber string          `gorm:"type:varchar(19);not null" json:"card_number"`
	Balance    decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"balance"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// AuctionFilter narrows ListAuctions. A nil Search means no text filter.
type AuctionFilter struct {
	Search     *string
	CategoryID string
}

// AuctionUpdate carries owner edits; nil fields are left unchanged.
type AuctionUpdate struct {
	Title       *string
	Description *string
	ClosingDate *time.Time
	Price       *decimal.Decimal
	Stock       *int
	Rating      *decimal.Decimal
	Brand       *string
	CategoryID  *string
}

// Settlement is the atomic unit applied when an auction is sold
type Settlement struct {
	AuctionID    string
	AuctioneerID string
	BidID        string
	WinnerID     string
	Amount       decimal.Decimal
	SettledAt    time.Time
}
