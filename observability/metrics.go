// Package observability provides metric instruments and trace spans for the
// delivery engine.
package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds the engine's instruments, backed by any go-utils
// MetricFactory (for example the forge-managed metrics system).
type Metrics struct {
	EventsEmittedTotal gu.Counter
	DeliveriesTotal    gu.Counter
	DiscardedTotal     gu.Counter
	DeliveryLatency    gu.Histogram
	InFlight           gu.Gauge
}

// NewMetrics creates the instruments using factory.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		EventsEmittedTotal: factory.Counter("courier_events_emitted_total"),
		DeliveriesTotal:    factory.Counter("courier_delivery_attempts_total"),
		DiscardedTotal:     factory.Counter("courier_attempts_discarded_total"),
		DeliveryLatency:    factory.Histogram("courier_delivery_latency_seconds"),
		InFlight:           factory.Gauge("courier_attempts_in_flight"),
	}
}

// RecordDelivery counts an attempt by the status it produced and observes its
// latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabels(map[string]string{"status": status}).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

// RecordDiscarded counts an attempt whose result was dropped because its
// claim was lost.
func (m *Metrics) RecordDiscarded() {
	m.DiscardedTotal.Inc()
}
