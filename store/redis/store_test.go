package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/webhook"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s := NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newWebhook(events ...string) *webhook.Webhook {
	return &webhook.Webhook{
		Entity:         entity.New(),
		ID:             id.NewWebhookID(),
		Name:           "orders",
		URL:            "https://example.com/hook",
		Secret:         "0123456789abcdef",
		Events:         events,
		IsActive:       true,
		MaxRetries:     3,
		TimeoutSeconds: 30,
		Headers:        map[string]string{"X-Team": "core"},
	}
}

func newDelivery(whID id.ID, status delivery.State, createdAt time.Time) *delivery.Delivery {
	return &delivery.Delivery{
		Entity:        entity.Entity{CreatedAt: createdAt, UpdatedAt: createdAt},
		ID:            id.NewDeliveryID(),
		WebhookID:     whID,
		EventType:     "issue.created",
		Payload:       map[string]any{"issue": map[string]any{"id": "ISS-1"}},
		Status:        status,
		AttemptNumber: 1,
	}
}

func TestPing(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestWebhookCRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	wh := newWebhook("issue.created")

	if err := s.CreateWebhook(ctx, wh); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetWebhook(ctx, wh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != wh.URL || got.Secret != wh.Secret || got.Headers["X-Team"] != "core" {
		t.Fatalf("got %+v", got)
	}

	got.Events = []string{"issue.updated"}
	if err := s.UpdateWebhook(ctx, got); err != nil {
		t.Fatal(err)
	}
	created, _ := s.ListForEvent(ctx, "issue.created")
	updated, _ := s.ListForEvent(ctx, "issue.updated")
	if len(created) != 0 || len(updated) != 1 {
		t.Fatalf("subscriptions not reindexed: %d created, %d updated", len(created), len(updated))
	}

	got.IsActive = false
	if err := s.UpdateWebhook(ctx, got); err != nil {
		t.Fatal(err)
	}
	updated, _ = s.ListForEvent(ctx, "issue.updated")
	if len(updated) != 0 {
		t.Fatal("inactive webhook still listed for its event")
	}

	if err := s.DeleteWebhook(ctx, wh.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetWebhook(ctx, wh.ID); !errors.Is(err, courier.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound, got %v", err)
	}
	if err := s.UpdateWebhook(ctx, got); !errors.Is(err, courier.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound on update, got %v", err)
	}
	if err := s.DeleteWebhook(ctx, wh.ID); !errors.Is(err, courier.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound on delete, got %v", err)
	}
}

func TestListWebhooks(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var ids []id.ID
	for i := range 3 {
		wh := newWebhook("issue.created")
		wh.CreatedAt = t0.Add(time.Duration(i) * time.Minute)
		wh.IsActive = i != 1
		ids = append(ids, wh.ID)
		if err := s.CreateWebhook(ctx, wh); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListWebhooks(ctx, webhook.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID.String() != ids[2].String() {
		t.Fatalf("expected 3 newest first, got %v", all)
	}

	active := true
	onlyActive, _ := s.ListWebhooks(ctx, webhook.ListOpts{Active: &active})
	if len(onlyActive) != 2 {
		t.Fatalf("expected 2 active, got %d", len(onlyActive))
	}

	page, _ := s.ListWebhooks(ctx, webhook.ListOpts{Offset: 1, Limit: 1})
	if len(page) != 1 || page[0].ID.String() != ids[1].String() {
		t.Fatalf("unexpected page %v", page)
	}
}

func TestDeleteWebhookCascades(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	keep := newWebhook("issue.created")
	drop := newWebhook("issue.created")
	_ = s.CreateWebhook(ctx, keep)
	_ = s.CreateWebhook(ctx, drop)

	kept := newDelivery(keep.ID, delivery.StatePending, t0)
	gone := newDelivery(drop.ID, delivery.StateRetrying, t0)
	next := t0.Add(time.Minute)
	gone.NextRetryAt = &next
	_ = s.CreateDelivery(ctx, kept)
	_ = s.CreateDelivery(ctx, gone)

	if err := s.DeleteWebhook(ctx, drop.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetDelivery(ctx, gone.ID); !errors.Is(err, courier.ErrDeliveryNotFound) {
		t.Fatalf("expected cascade, got %v", err)
	}
	if _, err := s.GetDelivery(ctx, kept.ID); err != nil {
		t.Fatalf("unrelated delivery removed: %v", err)
	}

	subs, _ := s.ListForEvent(ctx, "issue.created")
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscriber left, got %d", len(subs))
	}

	counts, _ := s.CountByStatus(ctx)
	if counts[delivery.StateRetrying] != 0 || counts[delivery.StatePending] != 1 {
		t.Fatalf("counters not adjusted: %v", counts)
	}

	now := t0.Add(time.Hour)
	claimed, _ := s.ClaimDue(ctx, delivery.ClaimOpts{
		Now: now, StaleBefore: now, Token: "x", LeaseUntil: now.Add(time.Minute), Limit: 10,
	})
	if len(claimed) != 1 || claimed[0].ID.String() != kept.ID.String() {
		t.Fatalf("deleted delivery still claimable: %v", claimed)
	}
}

func TestCreateDeliveryRequiresWebhook(t *testing.T) {
	s := setupTestStore(t)
	d := newDelivery(id.NewWebhookID(), delivery.StatePending, t0)
	if err := s.CreateDelivery(context.Background(), d); !errors.Is(err, courier.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound, got %v", err)
	}
}

func TestGetDeliveryRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	wh := newWebhook("issue.created")
	_ = s.CreateWebhook(ctx, wh)

	lease := t0.Add(10 * time.Minute)
	d := newDelivery(wh.ID, delivery.StatePending, t0)
	d.ClaimToken = "dispatch"
	d.ClaimedUntil = &lease
	if err := s.CreateDelivery(ctx, d); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDelivery(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	issue, ok := got.Payload["issue"].(map[string]any)
	if !ok || issue["id"] != "ISS-1" {
		t.Fatalf("payload not preserved: %v", got.Payload)
	}
	if got.ClaimToken != "dispatch" || got.ClaimedUntil == nil || !got.ClaimedUntil.Equal(lease) {
		t.Fatalf("claim not preserved: %q %v", got.ClaimToken, got.ClaimedUntil)
	}
	if !got.CreatedAt.Equal(t0) {
		t.Fatalf("created_at %v", got.CreatedAt)
	}
}

func TestListByWebhook(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	wh := newWebhook("issue.created")
	_ = s.CreateWebhook(ctx, wh)

	states := []delivery.State{delivery.StateSuccess, delivery.StateFailed, delivery.StateSuccess}
	for i, st := range states {
		d := newDelivery(wh.ID, st, t0.Add(time.Duration(i)*time.Second))
		if err := s.CreateDelivery(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListByWebhook(ctx, wh.ID, delivery.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || !all[0].CreatedAt.After(all[1].CreatedAt) {
		t.Fatalf("expected 3 newest first, got %d", len(all))
	}

	st := delivery.StateSuccess
	ok, _ := s.ListByWebhook(ctx, wh.ID, delivery.ListOpts{Status: &st})
	if len(ok) != 2 {
		t.Fatalf("expected 2 successes, got %d", len(ok))
	}
}

func TestClaimDue(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	wh := newWebhook("issue.created")
	_ = s.CreateWebhook(ctx, wh)

	now := t0.Add(time.Hour)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	due := newDelivery(wh.ID, delivery.StateRetrying, t0)
	due.NextRetryAt = &past

	notYet := newDelivery(wh.ID, delivery.StateRetrying, t0)
	notYet.NextRetryAt = &future

	stale := newDelivery(wh.ID, delivery.StatePending, now.Add(-10*time.Minute))
	fresh := newDelivery(wh.ID, delivery.StatePending, now.Add(-time.Minute))

	leased := newDelivery(wh.ID, delivery.StateRetrying, t0)
	leased.NextRetryAt = &past
	leased.ClaimToken = "other"
	leased.ClaimedUntil = &future

	expired := newDelivery(wh.ID, delivery.StatePending, now.Add(-10*time.Minute))
	expired.ClaimToken = "crashed"
	expired.ClaimedUntil = &past

	done := newDelivery(wh.ID, delivery.StateSuccess, t0)

	for _, d := range []*delivery.Delivery{due, notYet, stale, fresh, leased, expired, done} {
		if err := s.CreateDelivery(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	opts := delivery.ClaimOpts{
		Now:         now,
		StaleBefore: now.Add(-5 * time.Minute),
		Token:       "sweep-1",
		LeaseUntil:  now.Add(10 * time.Minute),
		Limit:       10,
	}
	claimed, err := s.ClaimDue(ctx, opts)
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{due.ID.String(): true, stale.ID.String(): true, expired.ID.String(): true}
	if len(claimed) != len(want) {
		t.Fatalf("expected %d claimed, got %d", len(want), len(claimed))
	}
	for _, d := range claimed {
		if !want[d.ID.String()] {
			t.Fatalf("unexpected claim of %s (%s)", d.ID, d.Status)
		}
		if d.ClaimToken != "sweep-1" {
			t.Fatalf("claim not recorded on %s", d.ID)
		}
	}

	opts.Token = "sweep-2"
	again, _ := s.ClaimDue(ctx, opts)
	if len(again) != 0 {
		t.Fatalf("expected no double claim, got %d", len(again))
	}
}

func TestClaimDueConcurrent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	wh := newWebhook("issue.created")
	_ = s.CreateWebhook(ctx, wh)

	now := t0.Add(time.Hour)
	for range 30 {
		_ = s.CreateDelivery(ctx, newDelivery(wh.ID, delivery.StatePending, t0))
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.ClaimDue(ctx, delivery.ClaimOpts{
				Now: now, StaleBefore: now, Token: string(rune('a' + i)),
				LeaseUntil: now.Add(time.Minute), Limit: 10,
			})
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			for _, d := range claimed {
				seen[d.ID.String()]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	for delID, n := range seen {
		if n != 1 {
			t.Fatalf("delivery %s claimed %d times", delID, n)
		}
	}
	if len(seen) != 30 {
		t.Fatalf("expected 30 claimed, got %d", len(seen))
	}
}

func TestCompleteAttempt(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	wh := newWebhook("issue.created")
	_ = s.CreateWebhook(ctx, wh)

	now := t0.Add(time.Hour)
	d := newDelivery(wh.ID, delivery.StatePending, t0)
	_ = s.CreateDelivery(ctx, d)

	claimed, _ := s.ClaimDue(ctx, delivery.ClaimOpts{
		Now: now, StaleBefore: now, Token: "tok", LeaseUntil: now.Add(time.Minute), Limit: 1,
	})
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(claimed))
	}

	next := now.Add(time.Minute)
	res := claimed[0]
	res.Status = delivery.StateRetrying
	res.AttemptNumber = 2
	res.ResponseStatusCode = 503
	res.NextRetryAt = &next

	if err := s.CompleteAttempt(ctx, res, "wrong"); !errors.Is(err, delivery.ErrClaimLost) {
		t.Fatalf("expected ErrClaimLost, got %v", err)
	}
	if err := s.CompleteAttempt(ctx, res, "tok"); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteAttempt(ctx, res, "tok"); !errors.Is(err, delivery.ErrClaimLost) {
		t.Fatalf("expected replay to lose the claim, got %v", err)
	}

	got, _ := s.GetDelivery(ctx, d.ID)
	if got.Status != delivery.StateRetrying || got.AttemptNumber != 2 || got.ClaimToken != "" {
		t.Fatalf("got %+v", got)
	}

	counts, _ := s.CountByStatus(ctx)
	if counts[delivery.StatePending] != 0 || counts[delivery.StateRetrying] != 1 {
		t.Fatalf("counts %v", counts)
	}

	// Due once next_retry_at passes.
	later := next.Add(time.Second)
	again, _ := s.ClaimDue(ctx, delivery.ClaimOpts{
		Now: later, StaleBefore: later.Add(-5 * time.Minute), Token: "tok2", LeaseUntil: later.Add(time.Minute), Limit: 10,
	})
	if len(again) != 1 {
		t.Fatalf("expected retry to be due, got %d", len(again))
	}
}

func TestReleaseClaim(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	wh := newWebhook("issue.created")
	_ = s.CreateWebhook(ctx, wh)

	lease := t0.Add(time.Hour)
	d := newDelivery(wh.ID, delivery.StatePending, t0)
	d.ClaimToken = "tok"
	d.ClaimedUntil = &lease
	_ = s.CreateDelivery(ctx, d)

	if err := s.ReleaseClaim(ctx, d.ID, "other"); !errors.Is(err, delivery.ErrClaimLost) {
		t.Fatalf("expected ErrClaimLost, got %v", err)
	}
	if err := s.ReleaseClaim(ctx, d.ID, "tok"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetDelivery(ctx, d.ID)
	if got.ClaimToken != "" || got.ClaimedUntil != nil {
		t.Fatal("claim not released")
	}
}
