package billing

import (
	"encoding/json"
	"time"

	"github.com/farhadimrf/spotify-clone/app/models"
)

// Event types the dispatcher applies. Every other type is acknowledged without effect.
const (
	EventProductCreated           = "product.created"
	EventProductUpdated           = "product.updated"
	EventPriceCreated             = "price.created"
	EventPriceUpdated             = "price.updated"
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
)

var relevantEvents = map[string]struct{}{
	EventProductCreated:           {},
	EventProductUpdated:           {},
	EventPriceCreated:             {},
	EventPriceUpdated:             {},
	EventCheckoutSessionCompleted: {},
	EventSubscriptionCreated:      {},
	EventSubscriptionUpdated:      {},
	EventSubscriptionDeleted:      {},
}

// IsRelevantEvent reports whether eventType is on the processing allow-list.
func IsRelevantEvent(eventType string) bool {
	_, ok := relevantEvents[eventType]
	return ok
}

// Event is a verified provider event. Data holds the raw event object.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	Data    json.RawMessage
}

// ProductObject is the product payload carried by product events.
type ProductObject struct {
	ID          string            `json:"id"`
	Active      bool              `json:"active"`
	Name        string            `json:"name"`
	Description *string           `json:"description"`
	Images      []string          `json:"images"`
	Metadata    map[string]string `json:"metadata"`
}

// PriceRecurring holds the recurring part of a price.
type PriceRecurring struct {
	Interval        string `json:"interval"`
	IntervalCount   *int64 `json:"interval_count"`
	TrialPeriodDays *int64 `json:"trial_period_days"`
}

// PriceObject is the price payload carried by price events. Product is kept
// raw because the provider may send either an id or an expanded object.
type PriceObject struct {
	ID         string            `json:"id"`
	Product    json.RawMessage   `json:"product"`
	Active     bool              `json:"active"`
	Currency   string            `json:"currency"`
	Nickname   *string           `json:"nickname"`
	Type       string            `json:"type"`
	UnitAmount *int64            `json:"unit_amount"`
	Recurring  *PriceRecurring   `json:"recurring"`
	Metadata   map[string]string `json:"metadata"`
}

// SubscriptionObject holds the fields of a subscription event the dispatcher needs.
// The full object is always fetched from the provider before writing.
type SubscriptionObject struct {
	ID       string          `json:"id"`
	Customer json.RawMessage `json:"customer"`
}

// CheckoutSessionObject holds the fields of a completed checkout session.
type CheckoutSessionObject struct {
	ID           string          `json:"id"`
	Mode         string          `json:"mode"`
	Customer     json.RawMessage `json:"customer"`
	Subscription json.RawMessage `json:"subscription"`
}

// ProviderSubscription is the full subscription as returned by the provider.
// Timestamps are seconds since epoch; zero means absent.
type ProviderSubscription struct {
	ID                   string
	CustomerID           string
	Status               string
	PriceID              string
	Quantity             int64
	CancelAtPeriodEnd    bool
	CancelAt             int64
	CanceledAt           int64
	CurrentPeriodStart   int64
	CurrentPeriodEnd     int64
	Created              int64
	EndedAt              int64
	TrialStart           int64
	TrialEnd             int64
	Metadata             map[string]string
	DefaultPaymentMethod *PaymentMethod
}

// PaymentMethod is the default payment method attached to a subscription.
// Details holds the type-specific block, e.g. card brand and last4.
type PaymentMethod struct {
	ID             string
	Type           string
	CustomerID     string
	BillingDetails BillingDetails
	Details        models.PaymentMethodSummary
}

// BillingDetails is the contact block of a payment method.
type BillingDetails struct {
	Name    string
	Phone   string
	Email   string
	Address *models.Address
}

// CustomerInput describes a provider customer to create.
type CustomerInput struct {
	Email          string
	Metadata       map[string]string
	IdempotencyKey string
}

// CustomerUpdate is the contact data copied onto a provider customer.
type CustomerUpdate struct {
	Name    string
	Phone   string
	Address models.Address
}

// CheckoutInput describes a subscription checkout session.
type CheckoutInput struct {
	CustomerID string
	PriceID    string
	Quantity   int64
	Metadata   map[string]string
	SuccessURL string
	CancelURL  string
}

// CheckoutRequest is the body of a checkout request from an authenticated user.
type CheckoutRequest struct {
	PriceID  string            `json:"price_id" validate:"required,max=191"`
	Quantity int64             `json:"quantity" validate:"gte=0,lte=1000"`
	Metadata map[string]string `json:"metadata"`
}
