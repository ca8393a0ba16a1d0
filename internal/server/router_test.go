package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	bidding "auction-market/internal/biddingService"
	"auction-market/internal/locker"
	"auction-market/internal/metrics"
	"auction-market/internal/repository"
	"auction-market/internal/settlement"
	"auction-market/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	locks := locker.New("auction", time.Second)
	m := metrics.New()
	ledger := wallet.NewLedger(repo, time.Second)
	return SetupRouter(Deps{
		Bidding: bidding.NewBiddingService(repo, bidding.WithLocker(locks), bidding.WithMetrics(m)),
		Settler: settlement.New(repo, ledger, locks, settlement.WithMetrics(m)),
		Wallets: ledger,
		Metrics: m,
	})
}

func TestSetupRouter(t *testing.T) {
	router := newRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"list_categories", http.MethodGet, "/categories", http.StatusOK},
		{"list_auctions", http.MethodGet, "/auctions", http.StatusOK},
		{"unknown_auction", http.MethodGet, "/auctions/nope", http.StatusNotFound},
		{"unknown_wallet", http.MethodGet, "/wallets/ghost", http.StatusNotFound},
		{"settle_unknown", http.MethodPost, "/auctions/nope/settle", http.StatusNotFound},
		{"no_route", http.MethodGet, "/items", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			require.Equal(t, tc.wantStatus, w.Code)
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	router := newRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NotEmpty(t, w.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, "req-42", w.Header().Get(requestIDHeader))
}

func TestMetricsRoute(t *testing.T) {
	router := newRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "go_goroutines"))
}
