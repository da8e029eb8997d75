package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts webhook deliveries by event type and outcome.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billing",
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Total provider events by event type and outcome.",
	}, []string{"event_type", "outcome"})

	// EventDuration tracks the time spent applying one event.
	EventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "billing",
		Subsystem: "webhook",
		Name:      "event_duration_seconds",
		Help:      "Provider event processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// UnknownCustomerTotal counts subscription events for unmapped customers.
	UnknownCustomerTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "billing",
		Subsystem: "reconcile",
		Name:      "unknown_customer_total",
		Help:      "Subscription events referencing a customer without local mapping.",
	})

	// PropagationWarningsTotal counts failed billing detail copies.
	PropagationWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "billing",
		Subsystem: "reconcile",
		Name:      "propagation_warnings_total",
		Help:      "Billing detail propagations that failed after a subscription write.",
	})

	// UnknownStatusTotal counts subscriptions stored with an undocumented status.
	UnknownStatusTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "billing",
		Subsystem: "reconcile",
		Name:      "unknown_status_total",
		Help:      "Subscriptions written with a status outside the documented set.",
	})

	// UpsertsTotal counts rows written by entity.
	UpsertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billing",
		Subsystem: "reconcile",
		Name:      "upserts_total",
		Help:      "Rows written by entity.",
	}, []string{"entity"})

	// CustomersCreatedTotal counts provider customers created, including orphans.
	CustomersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billing",
		Subsystem: "identity",
		Name:      "customers_created_total",
		Help:      "Provider customers created, by whether the local mapping was stored.",
	}, []string{"result"})
)
