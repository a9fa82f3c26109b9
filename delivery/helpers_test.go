package delivery_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/store/memory"
	"github.com/xraph/courier/webhook"
)

const testSecret = "whsec_test_secret_1234567890abcdef"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// clock is a settable clock shared by the dispatcher and sweeper under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: epoch} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig(c *clock) delivery.Config {
	return delivery.Config{
		Concurrency: 4,
		BatchSize:   10,
		Now:         c.Now,
	}
}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func createWebhook(t *testing.T, s *memory.Store, url string, mutate func(*webhook.Webhook)) *webhook.Webhook {
	t.Helper()
	wh := &webhook.Webhook{
		Entity:         entity.New(),
		ID:             id.NewWebhookID(),
		Name:           "test",
		URL:            url,
		Secret:         testSecret,
		Events:         []string{"issue.created"},
		IsActive:       true,
		MaxRetries:     3,
		TimeoutSeconds: 5,
	}
	if mutate != nil {
		mutate(wh)
	}
	if err := s.CreateWebhook(context.Background(), wh); err != nil {
		t.Fatal(err)
	}
	return wh
}

func listDeliveries(t *testing.T, s *memory.Store, whID id.ID) []*delivery.Delivery {
	t.Helper()
	ds, err := s.ListByWebhook(context.Background(), whID, delivery.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func statusHandler(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}
}
