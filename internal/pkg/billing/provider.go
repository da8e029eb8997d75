package billing

import "context"

// Provider is the subset of the payment provider API the billing core consumes.
type Provider interface {
	CreateCustomer(ctx context.Context, in CustomerInput) (string, error)
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	UpdateCustomer(ctx context.Context, customerID string, upd CustomerUpdate) error
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}
