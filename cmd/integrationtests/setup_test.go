package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	bidding "auction-market/internal/biddingService"
	"auction-market/internal/events/eventstest"
	"auction-market/internal/locker"
	"auction-market/internal/metrics"
	"auction-market/internal/models"
	"auction-market/internal/repository"
	"auction-market/internal/server"
	"auction-market/internal/settlement"
	"auction-market/internal/sweeper"
	"auction-market/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

var start = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// testClock is shared by every component so tests can move past closing dates
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	router  *gin.Engine
	repo    *repository.MemoryRepo
	clock   *testClock
	events  *eventstest.Recorder
	sweeper *sweeper.Sweeper
}

// SetupTestEnv wires the full stack over an in-memory repository
func SetupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		repo:   repository.NewMemoryRepo(),
		clock:  &testClock{now: start},
		events: &eventstest.Recorder{},
	}
	locks := locker.New("auction", time.Second)
	m := metrics.New()
	ledger := wallet.NewLedger(env.repo, time.Second, wallet.WithClock(env.clock.Now))
	service := bidding.NewBiddingService(env.repo,
		bidding.WithLocker(locks),
		bidding.WithClock(env.clock.Now),
		bidding.WithPublisher(env.events),
		bidding.WithMetrics(m),
	)
	coord := settlement.New(env.repo, ledger, locks,
		settlement.WithClock(env.clock.Now),
		settlement.WithPublisher(env.events),
		settlement.WithMetrics(m),
	)
	env.sweeper = sweeper.New(env.repo, coord, sweeper.WithClock(env.clock.Now))
	env.router = server.SetupRouter(server.Deps{Bidding: service, Settler: coord, Wallets: ledger, Metrics: m})
	return env
}

// SeedAuction stores an open auction owned by "seller" in category "cat1"
func (e *testEnv) SeedAuction(id string, price int64, closesIn time.Duration) {
	e.repo.AddCategory(models.Category{CategoryID: "cat1", Name: "Cameras", CreatedAt: start})
	e.repo.AddAuction(models.Auction{
		AuctionID:    id,
		Title:        "Lot " + id,
		Description:  "integration lot",
		ClosingDate:  e.clock.Now().Add(closesIn),
		CreationDate: e.clock.Now(),
		Price:        decimal.NewFromInt(price),
		Stock:        1,
		Rating:       decimal.NewFromInt(4),
		CategoryID:   "cat1",
		AuctioneerID: "seller",
		Status:       models.StateOpen,
	})
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// data returns the object payload of a successful response
func data(resp map[string]any) map[string]any {
	d, _ := resp["data"].(map[string]any)
	return d
}

// list returns the array payload of a successful response
func list(resp map[string]any) []any {
	l, _ := resp["data"].([]any)
	return l
}
