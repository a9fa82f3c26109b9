package delivery

import "time"

// Outcome is the classified result of one attempt. It is one of Success,
// HTTPFailure or TransportFailure.
type Outcome interface {
	isOutcome()
	latency() time.Duration
}

// Success is a 2xx response.
type Success struct {
	StatusCode int
	Body       string
	Latency    time.Duration
}

// HTTPFailure is any response outside 2xx.
type HTTPFailure struct {
	StatusCode int
	Body       string
	Latency    time.Duration
}

// TransportFailure is a request that produced no response: DNS failure,
// refused connection, reset, timeout.
type TransportFailure struct {
	Message string
	Latency time.Duration
}

func (Success) isOutcome()          {}
func (HTTPFailure) isOutcome()      {}
func (TransportFailure) isOutcome() {}

func (o Success) latency() time.Duration          { return o.Latency }
func (o HTTPFailure) latency() time.Duration      { return o.Latency }
func (o TransportFailure) latency() time.Duration { return o.Latency }
