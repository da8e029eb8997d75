package billing

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// State is a step of the event lifecycle.
type State string

const (
	StateReceived     State = "received"
	StateVerified     State = "verified"
	StateClassified   State = "classified"
	StateApplied      State = "applied"
	StateAcknowledged State = "acknowledged"
	StateRejected     State = "rejected"
	StateFailed       State = "failed"
)

// Outcome is what the transport reports back to the provider.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Result is the final state of one delivery.
type Result struct {
	Outcome   Outcome  `json:"outcome"`
	State     State    `json:"state"`
	EventID   string   `json:"event_id,omitempty"`
	EventType string   `json:"event_type,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
	Duplicate bool     `json:"duplicate,omitempty"`
	Stale     bool     `json:"stale,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Err       error    `json:"-"`
}

// StatusCode maps the result onto the webhook contract: any non-2xx makes the
// provider redeliver, so only retryable failures answer with 5xx.
func (r Result) StatusCode() int {
	switch r.Outcome {
	case OutcomeAccepted:
		return http.StatusOK
	case OutcomeRejected:
		return http.StatusBadRequest
	default:
		if r.Retryable {
			return http.StatusInternalServerError
		}
		return http.StatusUnprocessableEntity
	}
}

// Dispatcher verifies deliveries and routes them to the upserters.
type Dispatcher struct {
	upserter *Upserter
	ledger   *Ledger
	cfg      Config
}

// NewDispatcher creates a dispatcher. ledger may be nil.
func NewDispatcher(upserter *Upserter, ledger *Ledger, cfg Config) *Dispatcher {
	return &Dispatcher{upserter: upserter, ledger: ledger, cfg: cfg}
}

// Handle verifies a raw delivery and dispatches it.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte, signatureHeader string) Result {
	ev, err := VerifyEvent(payload, signatureHeader, d.cfg.WebhookSecret)
	if err != nil {
		EventsTotal.WithLabelValues("unverified", string(OutcomeRejected)).Inc()
		log.Warnw("[Billing] Rejected webhook delivery", "error", err)
		return Result{
			Outcome: OutcomeRejected,
			State:   StateRejected,
			Reason:  err.Error(),
			Err:     err,
		}
	}

	if !IsRelevantEvent(ev.Type) || d.ledger == nil {
		return d.Dispatch(ctx, ev)
	}

	// The ledger outlives a disconnected client like the apply step does.
	ledgerCtx := context.WithoutCancel(ctx)
	row, duplicate := d.ledger.Record(ledgerCtx, ev, payload)
	if duplicate {
		EventsTotal.WithLabelValues(ev.Type, "duplicate").Inc()
		log.Infow("[Billing] Duplicate delivery acknowledged", "event_id", ev.ID, "event_type", ev.Type)
		return Result{
			Outcome:   OutcomeAccepted,
			State:     StateAcknowledged,
			EventID:   ev.ID,
			EventType: ev.Type,
			Duplicate: true,
		}
	}

	res := d.Dispatch(ctx, ev)
	d.ledger.Complete(ledgerCtx, row, res)
	return res
}

// Dispatch applies a verified event. It detaches from the caller's
// cancellation and runs under its own ApplyTimeout, so a disconnecting client
// never leaves a half-applied event behind.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Result {
	ctx, cancel := boundedContext(context.WithoutCancel(ctx), d.cfg.ApplyTimeout)
	defer cancel()

	res := Result{
		State:     StateVerified,
		EventID:   ev.ID,
		EventType: ev.Type,
	}

	if !IsRelevantEvent(ev.Type) {
		res.Outcome = OutcomeAccepted
		res.State = StateAcknowledged
		res.Reason = "event type not handled"
		EventsTotal.WithLabelValues("other", string(OutcomeAccepted)).Inc()
		log.Debugw("[Billing] Ignoring event", "event_id", ev.ID, "event_type", ev.Type)
		return res
	}
	res.State = StateClassified

	start := time.Now()
	outcome, err := d.apply(ctx, ev)
	EventDuration.WithLabelValues(ev.Type).Observe(time.Since(start).Seconds())
	if err != nil {
		return d.fail(res, err)
	}

	res.State = StateApplied
	res.Stale = outcome.Stale
	if outcome.Warning != nil {
		res.Warnings = append(res.Warnings, outcome.Warning.Error())
	}

	res.Outcome = OutcomeAccepted
	res.State = StateAcknowledged
	EventsTotal.WithLabelValues(ev.Type, string(OutcomeAccepted)).Inc()
	return res
}

func (d *Dispatcher) apply(ctx context.Context, ev Event) (SubscriptionOutcome, error) {
	switch ev.Type {
	case EventProductCreated, EventProductUpdated:
		p, err := decodeProduct(ev)
		if err != nil {
			return SubscriptionOutcome{}, err
		}
		return SubscriptionOutcome{}, d.upserter.UpsertProduct(ctx, p)

	case EventPriceCreated, EventPriceUpdated:
		p, err := decodePrice(ev)
		if err != nil {
			return SubscriptionOutcome{}, err
		}
		return SubscriptionOutcome{}, d.upserter.UpsertPrice(ctx, p)

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		subscriptionID, customerID, err := decodeSubscription(ev)
		if err != nil {
			return SubscriptionOutcome{}, err
		}
		return d.upserter.UpsertSubscription(ctx, subscriptionID, customerID, ev.Type == EventSubscriptionCreated, ev.Created)

	case EventCheckoutSessionCompleted:
		s, err := decodeCheckoutSession(ev)
		if err != nil {
			return SubscriptionOutcome{}, err
		}
		if s.Mode != "subscription" {
			log.Debugw("[Billing] Ignoring checkout session", "event_id", ev.ID, "mode", s.Mode)
			return SubscriptionOutcome{}, nil
		}
		subscriptionID, customerID := refID(s.Subscription), refID(s.Customer)
		if subscriptionID == "" || customerID == "" {
			return SubscriptionOutcome{}, &DecodeError{EventType: ev.Type, Err: errors.New("checkout session without subscription or customer")}
		}
		return d.upserter.UpsertSubscription(ctx, subscriptionID, customerID, true, ev.Created)
	}

	return SubscriptionOutcome{}, &DecodeError{EventType: ev.Type, Err: errors.New("unhandled relevant event")}
}

func (d *Dispatcher) fail(res Result, err error) Result {
	res.Outcome = OutcomeFailed
	res.State = StateFailed
	res.Reason = err.Error()
	res.Retryable = IsRetryable(err)
	res.Err = err
	EventsTotal.WithLabelValues(res.EventType, string(OutcomeFailed)).Inc()

	if res.Retryable {
		log.Errorw("[Billing] Webhook processing failed", "event_id", res.EventID, "event_type", res.EventType, "retryable", true, "error", err)
	} else {
		log.Warnw("[Billing] Webhook event rejected for good", "event_id", res.EventID, "event_type", res.EventType, "retryable", false, "error", err)
	}
	return res
}
