package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/farhadimrf/spotify-clone/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// customerUserKey tags provider customers with the local user id. The key
// matches customers created before this service existed.
const customerUserKey = "supabaseUUID"

// IdentityMapper maps local user ids to provider customer ids and back.
type IdentityMapper struct {
	repo     Repository
	provider Provider
	locker   KeyedLocker
	cfg      Config
}

// NewIdentityMapper creates a mapper. A nil locker serializes in-process only.
func NewIdentityMapper(repo Repository, provider Provider, locker KeyedLocker, cfg Config) *IdentityMapper {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &IdentityMapper{
		repo:     repo,
		provider: provider,
		locker:   locker,
		cfg:      cfg,
	}
}

// ResolveOrCreateCustomer returns the provider customer of a user, creating
// the customer and its mapping on first use.
func (m *IdentityMapper) ResolveOrCreateCustomer(ctx context.Context, userID, email string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", &IdentityResolutionError{Err: errors.New("user id is required")}
	}

	if customerID, ok, err := m.lookup(ctx, userID); err != nil || ok {
		return customerID, err
	}

	lctx, lcancel := boundedContext(ctx, m.cfg.LockTTL)
	release, err := m.locker.Lock(lctx, "customer:"+userID)
	lcancel()
	if err != nil {
		// The unique mapping and the idempotency key still guard the create.
		log.Warnw("[Billing] Customer lock unavailable", "user_id", userID, "error", err)
	} else {
		defer release()
	}

	if customerID, ok, err := m.lookup(ctx, userID); err != nil || ok {
		return customerID, err
	}

	pctx, cancel := m.cfg.providerContext(ctx)
	customerID, err := m.provider.CreateCustomer(pctx, CustomerInput{
		Email:          strings.TrimSpace(email),
		Metadata:       map[string]string{customerUserKey: userID},
		IdempotencyKey: "customer-create-" + userID,
	})
	cancel()
	if err != nil {
		log.Errorw("[Billing] Failed to create provider customer", "user_id", userID, "error", err)
		return "", &IdentityResolutionError{UserID: userID, Err: asProviderError("create customer", err)}
	}

	sctx, cancel := m.cfg.storeContext(ctx)
	defer cancel()
	created, stored, err := m.repo.InsertCustomerIfAbsent(sctx, &models.Customer{
		ID:               userID,
		StripeCustomerID: customerID,
	})
	if err != nil {
		CustomersCreatedTotal.WithLabelValues("orphaned").Inc()
		log.Errorw("[Billing] Provider customer created but mapping not stored", "user_id", userID, "customer_id", customerID, "error", err)
		return "", &PersistenceError{Op: "insert customer mapping", Err: err}
	}

	if !created || stored.StripeCustomerID != customerID {
		if stored.StripeCustomerID != customerID {
			CustomersCreatedTotal.WithLabelValues("orphaned").Inc()
			log.Warnw("[Billing] Lost customer mapping race, provider customer orphaned",
				"user_id", userID, "customer_id", customerID, "winning_customer_id", stored.StripeCustomerID)
		}
		return stored.StripeCustomerID, nil
	}

	CustomersCreatedTotal.WithLabelValues("mapped").Inc()
	log.Infow("[Billing] New customer created and mapped", "user_id", userID, "customer_id", customerID)
	return customerID, nil
}

// ResolveUser returns the local user of a provider customer.
func (m *IdentityMapper) ResolveUser(ctx context.Context, customerID string) (string, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return "", &UnknownCustomerError{}
	}

	sctx, cancel := m.cfg.storeContext(ctx)
	defer cancel()
	c, err := m.repo.GetCustomerByStripeID(sctx, customerID)
	if errors.Is(err, ErrNotFound) {
		UnknownCustomerTotal.Inc()
		log.Errorw("[Billing] No customer mapping for provider customer", "customer_id", customerID)
		return "", &UnknownCustomerError{CustomerID: customerID}
	}
	if err != nil {
		return "", &PersistenceError{Op: "get customer by provider id", Err: err}
	}
	return c.ID, nil
}

func (m *IdentityMapper) lookup(ctx context.Context, userID string) (string, bool, error) {
	sctx, cancel := m.cfg.storeContext(ctx)
	defer cancel()

	c, err := m.repo.GetCustomerByUserID(sctx, userID)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &PersistenceError{Op: "get customer by user", Err: err}
	}
	return c.StripeCustomerID, true, nil
}

func asProviderError(op string, err error) error {
	var providerErr *ProviderAPIError
	if errors.As(err, &providerErr) {
		return err
	}
	return &ProviderAPIError{Op: op, Err: err}
}
