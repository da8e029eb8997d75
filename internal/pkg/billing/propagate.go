package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
)

// Propagator copies billing details of a payment method onto the provider
// customer and the local user.
type Propagator struct {
	repo     Repository
	provider Provider
	cfg      Config
}

func NewPropagator(repo Repository, provider Provider, cfg Config) *Propagator {
	return &Propagator{repo: repo, provider: provider, cfg: cfg}
}

// HasCompleteBillingDetails reports whether name, phone and address are all set.
func HasCompleteBillingDetails(bd BillingDetails) bool {
	return strings.TrimSpace(bd.Name) != "" &&
		strings.TrimSpace(bd.Phone) != "" &&
		bd.Address != nil && !bd.Address.IsZero()
}

// PropagateBillingDetails is a no-op for incomplete billing details. Partial
// data is never written.
func (p *Propagator) PropagateBillingDetails(ctx context.Context, userID string, pm PaymentMethod) error {
	bd := pm.BillingDetails
	if !HasCompleteBillingDetails(bd) {
		log.Debugw("[Billing] Incomplete billing details, nothing to propagate", "user_id", userID, "payment_method_id", pm.ID)
		return nil
	}

	customerID := pm.CustomerID
	if customerID == "" {
		sctx, cancel := p.cfg.storeContext(ctx)
		c, err := p.repo.GetCustomerByUserID(sctx, userID)
		cancel()
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return &UnknownCustomerError{}
			}
			return &PersistenceError{Op: "get customer by user", Err: err}
		}
		customerID = c.StripeCustomerID
	}

	pctx, cancel := p.cfg.providerContext(ctx)
	err := p.provider.UpdateCustomer(pctx, customerID, CustomerUpdate{
		Name:    bd.Name,
		Phone:   bd.Phone,
		Address: *bd.Address,
	})
	cancel()
	if err != nil {
		return asProviderError("update customer", err)
	}

	sctx, cancel := p.cfg.storeContext(ctx)
	defer cancel()
	if err := p.repo.UpdateUserBilling(sctx, userID, *bd.Address, pm.Details); err != nil {
		return &PersistenceError{Op: "update user billing", Err: err}
	}

	log.Infow("[Billing] Billing details propagated", "user_id", userID, "customer_id", customerID)
	return nil
}
