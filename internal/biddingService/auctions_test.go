package bidding

import (
	"context"
	"errors"
	"testing"
	"time"

	"auction-market/internal/biddingerrors"
	"auction-market/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestBiddingService_Categories(t *testing.T) {
	t.Parallel()

	service, _ := newMemoryService(t)
	ctx := context.Background()

	_, err := service.CreateCategory(ctx, "   ")
	require.True(t, errors.Is(err, biddingerrors.ErrValidation))

	_, err = service.CreateCategory(ctx, "cameras")
	require.True(t, errors.Is(err, biddingerrors.ErrCategoryExists))

	audio, err := service.CreateCategory(ctx, " Audio ")
	require.NoError(t, err)
	require.Equal(t, "Audio", audio.Name)

	cats, err := service.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)

	_, err = service.ProposeBid(ctx, "a1", "user1", dec("120"))
	require.NoError(t, err)

	require.NoError(t, service.DeleteCategory(ctx, "cat1"))
	_, err = service.GetAuction(ctx, "a1")
	require.True(t, errors.Is(err, biddingerrors.ErrAuctionNotFound))

	err = service.DeleteCategory(ctx, "cat1")
	require.True(t, errors.Is(err, biddingerrors.ErrCategoryNotFound))
}

func TestBiddingService_CreateAuction(t *testing.T) {
	t.Parallel()

	draft := models.Auction{
		Title:        "  Turntable ",
		Description:  "Direct drive",
		ClosingDate:  testNow.Add(24 * time.Hour),
		Price:        dec("250.50"),
		Stock:        1,
		Rating:       dec("4"),
		Brand:        "Technics",
		CategoryID:   "cat1",
		AuctioneerID: "seller",
		Status:       models.StateSettled,
	}

	tests := []struct {
		name    string
		mutate  func(a *models.Auction)
		wantErr error
	}{
		{name: "valid", mutate: func(a *models.Auction) {}},
		{name: "closing_in_past", mutate: func(a *models.Auction) { a.ClosingDate = testNow.Add(-time.Minute) }, wantErr: biddingerrors.ErrValidation},
		{name: "closing_now", mutate: func(a *models.Auction) { a.ClosingDate = testNow }, wantErr: biddingerrors.ErrValidation},
		{name: "bad_rating", mutate: func(a *models.Auction) { a.Rating = dec("7") }, wantErr: biddingerrors.ErrValidation},
		{name: "unknown_category", mutate: func(a *models.Auction) { a.CategoryID = "nope" }, wantErr: biddingerrors.ErrCategoryNotFound},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			service, _ := newMemoryService(t)
			a := draft
			tc.mutate(&a)

			got, err := service.CreateAuction(context.Background(), a)
			if tc.wantErr != nil {
				require.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, got.AuctionID)
			require.Equal(t, "Turntable", got.Title)
			require.Equal(t, models.StateOpen, got.Status)
			require.Equal(t, testNow, got.CreationDate)

			stored, err := service.GetAuction(context.Background(), got.AuctionID)
			require.NoError(t, err)
			require.True(t, stored.Price.Equal(dec("250.50")))
		})
	}
}

func TestBiddingService_ListAuctions(t *testing.T) {
	t.Parallel()

	service, repo := newMemoryService(t)
	ctx := context.Background()

	expired := openAuction("a2")
	expired.Title = "Vintage lens"
	expired.ClosingDate = testNow.Add(-time.Hour)
	repo.AddAuction(expired)

	all, err := service.ListAuctions(ctx, models.AuctionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	found, err := service.ListAuctions(ctx, models.AuctionFilter{Search: ptr(" lens ")})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, models.StateClosed, found[0].Status)

	_, err = service.ListAuctions(ctx, models.AuctionFilter{Search: ptr("  ")})
	require.True(t, errors.Is(err, biddingerrors.ErrSearchTooShort))
	require.Equal(t, biddingerrors.KindValidation, biddingerrors.KindOf(err))

	mine, err := service.ListAuctionsByAuctioneer(ctx, "seller")
	require.NoError(t, err)
	require.Len(t, mine, 2)

	_, err = service.ProposeBid(ctx, "a1", "user1", dec("101"))
	require.NoError(t, err)
	bids, err := service.ListBidsByBidder(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, bids, 1)
}

func TestBiddingService_UpdateAuction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("owner_edits_open_auction", func(t *testing.T) {
		t.Parallel()
		service, _ := newMemoryService(t)

		got, err := service.UpdateAuction(ctx, "a1", "seller", models.AuctionUpdate{
			Title: ptr("Camera kit"),
			Price: ptr(dec("90")),
			Stock: ptr(2),
		})
		require.NoError(t, err)
		require.Equal(t, "Camera kit", got.Title)
		require.True(t, got.Price.Equal(dec("90")))
		require.Equal(t, 2, got.Stock)
	})

	t.Run("only_owner", func(t *testing.T) {
		t.Parallel()
		service, _ := newMemoryService(t)

		_, err := service.UpdateAuction(ctx, "a1", "intruder", models.AuctionUpdate{Title: ptr("Mine now")})
		require.True(t, errors.Is(err, biddingerrors.ErrNotOwner))
	})

	t.Run("price_frozen_after_first_bid", func(t *testing.T) {
		t.Parallel()
		service, _ := newMemoryService(t)

		_, err := service.ProposeBid(ctx, "a1", "user1", dec("120"))
		require.NoError(t, err)

		_, err = service.UpdateAuction(ctx, "a1", "seller", models.AuctionUpdate{Price: ptr(dec("500"))})
		require.True(t, errors.Is(err, biddingerrors.ErrAuctionLocked))

		// same price and other fields are still editable
		_, err = service.UpdateAuction(ctx, "a1", "seller", models.AuctionUpdate{
			Price:       ptr(decimal.NewFromInt(100)),
			Description: ptr("Body and two lenses"),
		})
		require.NoError(t, err)
	})

	t.Run("stock_kept_after_first_bid", func(t *testing.T) {
		t.Parallel()
		service, repo := newMemoryService(t)

		_, err := service.ProposeBid(ctx, "a1", "user1", dec("120"))
		require.NoError(t, err)

		_, err = service.UpdateAuction(ctx, "a1", "seller", models.AuctionUpdate{Stock: ptr(0)})
		require.True(t, errors.Is(err, biddingerrors.ErrAuctionLocked))

		a, err := repo.GetAuction(ctx, "a1")
		require.NoError(t, err)
		require.Equal(t, 1, a.Stock)

		got, err := service.UpdateAuction(ctx, "a1", "seller", models.AuctionUpdate{Stock: ptr(3)})
		require.NoError(t, err)
		require.Equal(t, 3, got.Stock)
	})

	t.Run("stock_emptied_before_bids", func(t *testing.T) {
		t.Parallel()
		service, _ := newMemoryService(t)

		got, err := service.UpdateAuction(ctx, "a1", "seller", models.AuctionUpdate{Stock: ptr(0)})
		require.NoError(t, err)
		require.Equal(t, models.StateClosed, got.Status)
	})

	t.Run("closed_auction_is_read_only", func(t *testing.T) {
		t.Parallel()
		service, repo := newMemoryService(t)
		expired := openAuction("a2")
		expired.ClosingDate = testNow.Add(-time.Second)
		repo.AddAuction(expired)

		_, err := service.UpdateAuction(ctx, "a2", "seller", models.AuctionUpdate{ClosingDate: ptr(testNow.Add(time.Hour))})
		require.True(t, errors.Is(err, biddingerrors.ErrAuctionLocked))
	})

	t.Run("invalid_changes", func(t *testing.T) {
		t.Parallel()
		service, _ := newMemoryService(t)

		_, err := service.UpdateAuction(ctx, "a1", "seller", models.AuctionUpdate{Stock: ptr(-1)})
		require.True(t, errors.Is(err, biddingerrors.ErrValidation))

		_, err = service.UpdateAuction(ctx, "a1", "seller", models.AuctionUpdate{ClosingDate: ptr(testNow.Add(-time.Hour))})
		require.True(t, errors.Is(err, biddingerrors.ErrValidation))

		_, err = service.UpdateAuction(ctx, "a1", "seller", models.AuctionUpdate{CategoryID: ptr("nope")})
		require.True(t, errors.Is(err, biddingerrors.ErrCategoryNotFound))
	})
}
