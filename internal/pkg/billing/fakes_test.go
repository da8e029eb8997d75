package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/farhadimrf/spotify-clone/app/models"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StripeSecretKey = "sk_test"
	cfg.WebhookSecret = testWebhookSecret
	cfg.ProviderTimeout = time.Second
	cfg.StoreTimeout = time.Second
	cfg.ApplyTimeout = 5 * time.Second
	cfg.LockBackend = LockBackendMemory
	return cfg
}

// --- fakeRepo ---

type fakeRepo struct {
	mu sync.Mutex

	products  map[string]models.Product
	prices    map[string]models.Price
	subs      map[string]models.Subscription
	customers map[string]models.Customer
	users     map[string]models.User
	events    map[string]*models.BillingWebhookEvent
	nextEvent uint

	writes int

	failUpsertSubscription error
	failInsertCustomer     error
	failUpdateUserBilling  error
	failLedger             error
	beforeInsertCustomer   func(r *fakeRepo)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		products:  map[string]models.Product{},
		prices:    map[string]models.Price{},
		subs:      map[string]models.Subscription{},
		customers: map[string]models.Customer{},
		users:     map[string]models.User{},
		events:    map[string]*models.BillingWebhookEvent{},
	}
}

func (r *fakeRepo) addCustomer(userID, customerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[userID] = models.Customer{ID: userID, StripeCustomerID: customerID}
}

func (r *fakeRepo) addUser(u models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *fakeRepo) subscription(id string) (models.Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	return s, ok
}

func (r *fakeRepo) user(id string) models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id]
}

func (r *fakeRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *fakeRepo) UpsertProduct(_ context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	r.products[product.ID] = *product
	return nil
}

func (r *fakeRepo) UpsertPrice(_ context.Context, price *models.Price) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	r.prices[price.ID] = *price
	return nil
}

func (r *fakeRepo) UpsertSubscription(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpsertSubscription != nil {
		return r.failUpsertSubscription
	}
	r.writes++
	r.subs[sub.ID] = *sub
	return nil
}

func (r *fakeRepo) GetSubscription(_ context.Context, id string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func createdAfter(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	return b == nil || a.After(*b)
}

func (r *fakeRepo) GetActiveSubscriptionByUser(_ context.Context, userID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *models.Subscription
	for _, s := range r.subs {
		s := s
		if s.UserID != userID || !IsEntitlingStatus(s.Status) {
			continue
		}
		if best == nil || createdAfter(s.Created, best.Created) {
			best = &s
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (r *fakeRepo) GetCustomerByUserID(_ context.Context, userID string) (*models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (r *fakeRepo) GetCustomerByStripeID(_ context.Context, stripeCustomerID string) (*models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.customers {
		if c.StripeCustomerID == stripeCustomerID {
			c := c
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *fakeRepo) InsertCustomerIfAbsent(_ context.Context, c *models.Customer) (bool, *models.Customer, error) {
	if r.beforeInsertCustomer != nil {
		r.beforeInsertCustomer(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failInsertCustomer != nil {
		return false, nil, r.failInsertCustomer
	}
	if existing, ok := r.customers[c.ID]; ok {
		return false, &existing, nil
	}
	r.writes++
	r.customers[c.ID] = *c
	stored := *c
	return true, &stored, nil
}

func (r *fakeRepo) UpdateUserBilling(_ context.Context, userID string, address models.Address, paymentMethod models.PaymentMethodSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdateUserBilling != nil {
		return r.failUpdateUserBilling
	}
	u, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	r.writes++
	addr := address
	u.BillingAddress = &addr
	u.PaymentMethod = paymentMethod
	r.users[userID] = u
	return nil
}

func (r *fakeRepo) GetUserByAPIKeyHash(_ context.Context, hash string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.APIKeyHash == hash {
			u := u
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *fakeRepo) ListActiveProductsWithPrices(_ context.Context) ([]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Product
	for _, p := range r.products {
		if !p.Active {
			continue
		}
		p.Prices = nil
		for _, price := range r.prices {
			if price.ProductID == p.ID && price.Active {
				p.Prices = append(p.Prices, price)
			}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) CreateWebhookEventIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failLedger != nil {
		return false, nil, r.failLedger
	}
	if existing, ok := r.events[event.ProviderEventID]; ok {
		stored := *existing
		return false, &stored, nil
	}
	r.nextEvent++
	row := *event
	row.ID = r.nextEvent
	r.events[row.ProviderEventID] = &row
	stored := row
	return true, &stored, nil
}

func (r *fakeRepo) MarkWebhookProcessed(_ context.Context, id uint, outcome, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.Outcome = outcome
			e.ProcessingError = processingError
			return nil
		}
	}
	return ErrNotFound
}

// --- fakeProvider ---

type fakeProvider struct {
	mu sync.Mutex

	subscriptions map[string]*ProviderSubscription
	updates       map[string]CustomerUpdate
	checkouts     []CheckoutInput
	customerSeq   int

	createCustomerCalls int32
	retrieveCalls       int32
	createDelay         time.Duration
	retrieveDelay       time.Duration

	createCustomerErr error
	retrieveErr       error
	updateErr         error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subscriptions: map[string]*ProviderSubscription{},
		updates:       map[string]CustomerUpdate{},
	}
}

func (p *fakeProvider) setSubscription(sub *ProviderSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions[sub.ID] = sub
}

func (p *fakeProvider) updateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}

func (p *fakeProvider) CreateCustomer(ctx context.Context, in CustomerInput) (string, error) {
	atomic.AddInt32(&p.createCustomerCalls, 1)
	if p.createDelay > 0 {
		select {
		case <-time.After(p.createDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.createCustomerErr != nil {
		return "", p.createCustomerErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customerSeq++
	return fmt.Sprintf("cus_%d", p.customerSeq), nil
}

func (p *fakeProvider) RetrieveSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	atomic.AddInt32(&p.retrieveCalls, 1)
	if p.retrieveDelay > 0 {
		select {
		case <-time.After(p.retrieveDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.retrieveErr != nil {
		return nil, p.retrieveErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subscriptions[subscriptionID]
	if !ok {
		return nil, &ProviderAPIError{Op: "retrieve subscription", StatusCode: 404, Code: "resource_missing"}
	}
	out := *sub
	return &out, nil
}

func (p *fakeProvider) UpdateCustomer(_ context.Context, customerID string, upd CustomerUpdate) error {
	if p.updateErr != nil {
		return p.updateErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates[customerID] = upd
	return nil
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, in CheckoutInput) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkouts = append(p.checkouts, in)
	return fmt.Sprintf("cs_test_%d", len(p.checkouts)), nil
}

func (p *fakeProvider) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	return "https://billing.example.com/session/" + customerID + "?return=" + returnURL, nil
}

// --- fixtures ---

var errStoreDown = errors.New("connection refused")

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeProvider) {
	t.Helper()
	repo := newFakeRepo()
	provider := newFakeProvider()
	return NewService(repo, provider, NewMemoryLocker(), testConfig()), repo, provider
}

func activeSubscription(id, customerID string) *ProviderSubscription {
	return &ProviderSubscription{
		ID:                 id,
		CustomerID:         customerID,
		Status:             models.SubscriptionStatusActive,
		PriceID:            "price_monthly",
		Quantity:           2,
		CurrentPeriodStart: 1700000000,
		CurrentPeriodEnd:   1702592000,
		Created:            1699990000,
		TrialStart:         1699990000,
		TrialEnd:           1700000000,
		Metadata:           map[string]string{"plan": "premium"},
	}
}

func completePaymentMethod(customerID string) *PaymentMethod {
	return &PaymentMethod{
		ID:         "pm_1",
		Type:       "card",
		CustomerID: customerID,
		BillingDetails: BillingDetails{
			Name:  "Ada Lovelace",
			Phone: "+441234567",
			Address: &models.Address{
				Line1:      "12 Analytical St",
				City:       "London",
				PostalCode: "N1 9GU",
				Country:    "GB",
			},
		},
		Details: models.PaymentMethodSummary{"brand": "visa", "last4": "4242"},
	}
}

func eventJSON(t *testing.T, id, eventType string, created int64, object any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"api_version": "2025-03-31.basil",
		"type":        eventType,
		"created":     created,
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return body
}

func signedDelivery(t *testing.T, id, eventType string, created int64, object any) ([]byte, string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   eventJSON(t, id, eventType, created, object),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func rawEvent(t *testing.T, id, eventType string, created int64, object any) Event {
	t.Helper()
	data, err := json.Marshal(object)
	require.NoError(t, err)
	return Event{ID: id, Type: eventType, Created: time.Unix(created, 0).UTC(), Data: data}
}
