package billing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/farhadimrf/spotify-clone/app/models"
	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
)

// StripeProvider implements Provider with per-instance Stripe clients. It never
// touches the package-level stripe.Key.
type StripeProvider struct {
	customers     *customer.Client
	subscriptions *subscription.Client
	checkout      *checkoutsession.Client
	portal        *portalsession.Client
}

// NewStripeProvider creates a provider talking to the live Stripe API.
func NewStripeProvider(secretKey string) *StripeProvider {
	return NewStripeProviderWithBackend(secretKey, stripe.GetBackend(stripe.APIBackend))
}

// NewStripeProviderWithBackend creates a provider on a custom backend.
func NewStripeProviderWithBackend(secretKey string, backend stripe.Backend) *StripeProvider {
	return &StripeProvider{
		customers:     &customer.Client{B: backend, Key: secretKey},
		subscriptions: &subscription.Client{B: backend, Key: secretKey},
		checkout:      &checkoutsession.Client{B: backend, Key: secretKey},
		portal:        &portalsession.Client{B: backend, Key: secretKey},
	}
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, in CustomerInput) (string, error) {
	params := &stripe.CustomerParams{
		Metadata: in.Metadata,
	}
	params.Context = ctx
	if email := strings.TrimSpace(in.Email); email != "" {
		params.Email = stripe.String(email)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	c, err := p.customers.New(params)
	if err != nil {
		return "", wrapStripeError("create customer", err)
	}
	return c.ID, nil
}

func (p *StripeProvider) RetrieveSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("default_payment_method")

	sub, err := p.subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, wrapStripeError("retrieve subscription", err)
	}
	return subscriptionFromStripe(sub)
}

func (p *StripeProvider) UpdateCustomer(ctx context.Context, customerID string, upd CustomerUpdate) error {
	params := &stripe.CustomerParams{
		Name:  stripe.String(upd.Name),
		Phone: stripe.String(upd.Phone),
		Address: &stripe.AddressParams{
			Line1:      stripe.String(upd.Address.Line1),
			Line2:      stripe.String(upd.Address.Line2),
			City:       stripe.String(upd.Address.City),
			State:      stripe.String(upd.Address.State),
			PostalCode: stripe.String(upd.Address.PostalCode),
			Country:    stripe.String(upd.Address.Country),
		},
	}
	params.Context = ctx

	if _, err := p.customers.Update(customerID, params); err != nil {
		return wrapStripeError("update customer", err)
	}
	return nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error) {
	quantity := in.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	params := &stripe.CheckoutSessionParams{
		Customer:                 stripe.String(in.CustomerID),
		Mode:                     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
		AllowPromotionCodes:      stripe.Bool(true),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(quantity),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: in.Metadata,
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	params.Context = ctx

	s, err := p.checkout.New(params)
	if err != nil {
		return "", wrapStripeError("create checkout session", err)
	}
	return s.ID, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := p.portal.New(params)
	if err != nil {
		return "", wrapStripeError("create portal session", err)
	}
	return s.URL, nil
}

func subscriptionFromStripe(sub *stripe.Subscription) (*ProviderSubscription, error) {
	out := &ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CancelAt:          sub.CancelAt,
		CanceledAt:        sub.CanceledAt,
		Created:           sub.Created,
		EndedAt:           sub.EndedAt,
		TrialStart:        sub.TrialStart,
		TrialEnd:          sub.TrialEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		out.Quantity = item.Quantity
		out.CurrentPeriodStart = item.CurrentPeriodStart
		out.CurrentPeriodEnd = item.CurrentPeriodEnd
	}
	if sub.DefaultPaymentMethod != nil && sub.DefaultPaymentMethod.Type != "" {
		pm, err := paymentMethodFromStripe(sub.DefaultPaymentMethod)
		if err != nil {
			return nil, err
		}
		out.DefaultPaymentMethod = pm
	}
	return out, nil
}

func paymentMethodFromStripe(pm *stripe.PaymentMethod) (*PaymentMethod, error) {
	out := &PaymentMethod{
		ID:   pm.ID,
		Type: string(pm.Type),
	}
	if pm.Customer != nil {
		out.CustomerID = pm.Customer.ID
	}
	if bd := pm.BillingDetails; bd != nil {
		out.BillingDetails = BillingDetails{
			Name:  bd.Name,
			Phone: bd.Phone,
			Email: bd.Email,
		}
		if bd.Address != nil {
			out.BillingDetails.Address = &models.Address{
				Line1:      bd.Address.Line1,
				Line2:      bd.Address.Line2,
				City:       bd.Address.City,
				State:      bd.Address.State,
				PostalCode: bd.Address.PostalCode,
				Country:    bd.Address.Country,
			}
		}
	}

	// The type-specific block lives under a key named after the type.
	raw, err := json.Marshal(pm)
	if err != nil {
		return nil, &ProviderAPIError{Op: "decode payment method", Err: err}
	}
	var blocks map[string]json.RawMessage
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, &ProviderAPIError{Op: "decode payment method", Err: err}
	}
	if block, ok := blocks[out.Type]; ok && string(block) != "null" {
		var details models.PaymentMethodSummary
		if err := json.Unmarshal(block, &details); err == nil {
			out.Details = details
		}
	}
	return out, nil
}

func wrapStripeError(op string, err error) error {
	if err == nil {
		return nil
	}

	out := &ProviderAPIError{Op: op, Err: err}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		out.StatusCode = stripeErr.HTTPStatusCode
		out.Code = string(stripeErr.Code)
	}
	return out
}
