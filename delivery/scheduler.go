package delivery

import (
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Action is what happens to a delivery after an attempt.
type Action int

const (
	// Terminate moves the delivery to success or failed.
	Terminate Action = iota

	// Retry schedules another attempt at NextRetryAt.
	Retry
)

func (a Action) String() string {
	if a == Retry {
		return "retry"
	}
	return "terminate"
}

// DefaultMaxBackoff caps a single retry delay.
const DefaultMaxBackoff = 24 * time.Hour

// Policy is the retry policy of the owning webhook.
type Policy struct {
	MaxRetries int

	// MaxBackoff caps the delay between attempts. Zero means
	// DefaultMaxBackoff.
	MaxBackoff time.Duration
}

// Decision is the full state change produced by an attempt.
type Decision struct {
	Action Action
	Status State

	AttemptNumber      int
	ResponseStatusCode int
	ResponseBody       string
	ErrorMessage       string
	LatencyMs          int
	DeliveredAt        *time.Time
	NextRetryAt        *time.Time

	DecidedAt time.Time
}

// Decide maps an attempt outcome to the next delivery state. It performs no
// I/O; the result depends only on its arguments.
func Decide(d *Delivery, o Outcome, p Policy, now time.Time) Decision {
	dec := Decision{
		AttemptNumber: d.AttemptNumber,
		LatencyMs:     int(o.latency().Milliseconds()),
		DecidedAt:     now,
	}

	switch o := o.(type) {
	case Success:
		at := now
		dec.Action = Terminate
		dec.Status = StateSuccess
		dec.ResponseStatusCode = o.StatusCode
		dec.ResponseBody = o.Body
		dec.DeliveredAt = &at
		return dec

	case HTTPFailure:
		dec.ResponseStatusCode = o.StatusCode
		dec.ResponseBody = o.Body
		dec.ErrorMessage = "unexpected status " + strconv.Itoa(o.StatusCode)

	case TransportFailure:
		dec.ErrorMessage = o.Message
	}

	// Failed attempt n is retried after Backoff(n) while n <= MaxRetries, so
	// a webhook gets MaxRetries+1 attempts in total.
	if n := dec.AttemptNumber; n <= p.MaxRetries {
		next := now.Add(Backoff(n, p.MaxBackoff))
		dec.Action = Retry
		dec.Status = StateRetrying
		dec.AttemptNumber = n + 1
		dec.NextRetryAt = &next
		return dec
	}

	dec.Action = Terminate
	dec.Status = StateFailed
	return dec
}

// Abort fails a delivery without retry. It is used when the request could
// not be built, which would fail identically on every attempt.
func Abort(d *Delivery, err error, now time.Time) Decision {
	return Decision{
		Action:        Terminate,
		Status:        StateFailed,
		AttemptNumber: d.AttemptNumber,
		ErrorMessage:  err.Error(),
		DecidedAt:     now,
	}
}

// Apply writes the decision onto d.
func (dec Decision) Apply(d *Delivery) {
	d.Status = dec.Status
	d.AttemptNumber = dec.AttemptNumber
	d.ResponseStatusCode = dec.ResponseStatusCode
	d.ResponseBody = dec.ResponseBody
	d.ErrorMessage = dec.ErrorMessage
	d.LatencyMs = dec.LatencyMs
	d.DeliveredAt = dec.DeliveredAt
	d.NextRetryAt = dec.NextRetryAt
	d.UpdatedAt = dec.DecidedAt
}

// Backoff returns the delay before retry n: 2^(n-1) minutes, capped at
// maxBackoff (DefaultMaxBackoff when zero). There is no jitter.
func Backoff(n int, maxBackoff time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	if maxBackoff <= 0 {
		maxBackoff = DefaultMaxBackoff
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Minute
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	var delay time.Duration
	for range n {
		delay = b.NextBackOff()
	}
	return min(delay, maxBackoff)
}
