// Package courier is a webhook delivery engine for Go.
//
// Courier is a library, not a service. Applications register webhooks
// (URL, shared secret, subscribed events, retry policy) and call Emit when a
// domain event happens. Courier records one delivery per subscribed webhook,
// signs the canonical JSON payload with HMAC-SHA256, POSTs it with a
// per-webhook timeout and retries failures with exponential backoff
// (1, 2, 4, 8 ... minutes) until the webhook's max_retries is exhausted.
//
// Every delivery is a durable record: pending, retrying, success or failed.
// A sweeper claims due retries with a lease so several processes can share a
// store without attempting the same delivery twice, and it recovers pending
// deliveries abandoned by a crashed process.
//
// Key features:
//   - Closed event-type catalog with JSON Schema payload validation
//   - Composable store pattern with multiple backends (Postgres, SQLite, Bun, MongoDB, Redis, Memory)
//   - Per-webhook rate limiting, metrics and tracing
//   - Admin HTTP API for net/http and Forge
//
// Quick start:
//
//	c, err := courier.New(
//	    courier.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c.Start(ctx)
//	defer c.Stop(ctx)
//
//	wh, err := c.Webhooks().Create(ctx, webhook.Input{
//	    Name:   "ci-bot",
//	    URL:    "https://ci.example.com/hooks/issues",
//	    Secret: "a-long-shared-secret",
//	    Events: []string{catalog.IssueCreated},
//	})
//
//	c.Emit(ctx, catalog.IssueCreated, map[string]any{"issue_id": 42})
package courier
