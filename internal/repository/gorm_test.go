package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"auction-market/internal/biddingerrors"
	"auction-market/internal/models"
	"auction-market/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// newTestGormRepo connects to the database named by AUCTION_TEST_DSN, or
// skips the test when it is unset.
func newTestGormRepo(t *testing.T) *GormRepo {
	t.Helper()

	dsn := os.Getenv("AUCTION_TEST_DSN")
	if dsn == "" {
		t.Skip("AUCTION_TEST_DSN not set")
	}

	ctx := context.Background()
	repo, err := NewGormRepo(ctx, dsn, WithSlowThreshold(time.Second))
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(ctx))
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestContainsPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		term string
		want string
	}{
		{term: "Lens", want: `%lens%`},
		{term: "%", want: `%\%%`},
		{term: "50_off", want: `%50\_off%`},
		{term: `a\b`, want: `%a\\b%`},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, containsPattern(tt.term))
		})
	}
}

func TestGormRepo_BidAndSettle(t *testing.T) {
	repo := newTestGormRepo(t)
	ctx := context.Background()

	seller, buyer := "seller-"+utils.GenerateID(), "buyer-"+utils.GenerateID()
	cat := models.Category{CategoryID: utils.GenerateID(), Name: "cat-" + utils.GenerateID()[:8]}
	require.NoError(t, repo.CreateCategory(ctx, cat))
	t.Cleanup(func() { _ = repo.DeleteCategory(context.Background(), cat.CategoryID) })

	err := repo.CreateCategory(ctx, models.Category{CategoryID: utils.GenerateID(), Name: cat.Name})
	require.True(t, errors.Is(err, biddingerrors.ErrCategoryExists))

	auction := newAuction(utils.GenerateID(), cat.CategoryID, seller, 100)
	require.NoError(t, repo.CreateAuction(ctx, auction))

	require.NoError(t, repo.CreateWallet(ctx, models.UserWallet{WalletID: utils.GenerateID(), UserID: seller, CardNumber: "4111111111111111"}))
	require.NoError(t, repo.CreateWallet(ctx, models.UserWallet{WalletID: utils.GenerateID(), UserID: buyer, CardNumber: "4111111111111111", Balance: decimal.NewFromInt(500)}))

	now := time.Now().UTC()
	require.NoError(t, repo.RecordBidForAuction(ctx, newBid(utils.GenerateID(), auction.AuctionID, buyer, 120, now)))
	err = repo.RecordBidForAuction(ctx, newBid(utils.GenerateID(), auction.AuctionID, buyer, 120, now))
	require.True(t, errors.Is(err, biddingerrors.ErrBidTooLow))

	winning, err := repo.GetWinningBid(ctx, auction.AuctionID)
	require.NoError(t, err)
	require.True(t, winning.Amount.Equal(decimal.NewFromInt(120)))

	require.NoError(t, repo.MarkClosed(ctx, auction.AuctionID))
	require.NoError(t, repo.ApplySettlement(ctx, models.Settlement{
		AuctionID:    auction.AuctionID,
		AuctioneerID: seller,
		BidID:        winning.BidID,
		WinnerID:     buyer,
		Amount:       winning.Amount,
		SettledAt:    now,
	}))

	w, err := repo.GetWallet(ctx, buyer)
	require.NoError(t, err)
	require.True(t, w.Balance.Equal(decimal.NewFromInt(380)))

	got, err := repo.GetAuction(ctx, auction.AuctionID)
	require.NoError(t, err)
	require.Equal(t, models.StateSettled, got.Status)
	require.Equal(t, 0, got.Stock)

	_, err = repo.AdjustBalance(ctx, buyer, decimal.NewFromInt(-1000))
	require.True(t, errors.Is(err, biddingerrors.ErrInsufficientFunds))
}
