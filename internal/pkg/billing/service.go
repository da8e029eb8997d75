package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/farhadimrf/spotify-clone/app/models"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Service wires the billing core and exposes the operations used by the
// HTTP layer.
type Service struct {
	repo       Repository
	provider   Provider
	cfg        Config
	identity   *IdentityMapper
	upserter   *Upserter
	dispatcher *Dispatcher
	validate   *validator.Validate
}

// NewService creates a billing service from injected collaborators.
func NewService(repo Repository, provider Provider, locker KeyedLocker, cfg Config) *Service {
	identity := NewIdentityMapper(repo, provider, locker, cfg)
	propagator := NewPropagator(repo, provider, cfg)
	upserter := NewUpserter(repo, provider, identity, propagator, cfg)

	return &Service{
		repo:       repo,
		provider:   provider,
		cfg:        cfg,
		identity:   identity,
		upserter:   upserter,
		dispatcher: NewDispatcher(upserter, NewLedger(repo, cfg), cfg),
		validate:   validator.New(),
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, provider Provider, locker KeyedLocker, cfg Config) *Service {
	return NewService(NewRepository(db), provider, locker, cfg)
}

func (s *Service) Dispatcher() *Dispatcher { return s.dispatcher }

// HandleWebhook verifies and applies one provider delivery.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) Result {
	return s.dispatcher.Handle(ctx, payload, signatureHeader)
}

// CreateCheckoutSession starts a subscription checkout for a user and returns
// the session id.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID, email string, req CheckoutRequest) (string, error) {
	req.PriceID = strings.TrimSpace(req.PriceID)
	if err := s.validate.Struct(req); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	customerID, err := s.identity.ResolveOrCreateCustomer(ctx, userID, email)
	if err != nil {
		return "", err
	}

	pctx, cancel := s.cfg.providerContext(ctx)
	defer cancel()
	sessionID, err := s.provider.CreateCheckoutSession(pctx, CheckoutInput{
		CustomerID: customerID,
		PriceID:    req.PriceID,
		Quantity:   req.Quantity,
		Metadata:   req.Metadata,
		SuccessURL: s.cfg.AccountURL(),
		CancelURL:  s.cfg.SiteURL,
	})
	if err != nil {
		return "", asProviderError("create checkout session", err)
	}

	log.Infow("[Billing] Checkout session created", "user_id", userID, "customer_id", customerID, "price_id", req.PriceID)
	return sessionID, nil
}

// CreatePortalLink returns a billing portal URL for a user.
func (s *Service) CreatePortalLink(ctx context.Context, userID, email string) (string, error) {
	customerID, err := s.identity.ResolveOrCreateCustomer(ctx, userID, email)
	if err != nil {
		return "", err
	}

	pctx, cancel := s.cfg.providerContext(ctx)
	defer cancel()
	url, err := s.provider.CreatePortalSession(pctx, customerID, s.cfg.AccountURL())
	if err != nil {
		return "", asProviderError("create portal session", err)
	}
	return url, nil
}

// ListActiveProducts returns the active catalogue with active prices.
func (s *Service) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	sctx, cancel := s.cfg.storeContext(ctx)
	defer cancel()

	products, err := s.repo.ListActiveProductsWithPrices(sctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list products", Err: err}
	}
	return products, nil
}

// ActiveSubscription returns the trialing or active subscription of a user,
// or nil when the user has none.
func (s *Service) ActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	sctx, cancel := s.cfg.storeContext(ctx)
	defer cancel()

	sub, err := s.repo.GetActiveSubscriptionByUser(sctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get active subscription", Err: err}
	}
	return sub, nil
}

// AuthenticateAPIKey resolves the user owning a raw API key.
func (s *Service) AuthenticateAPIKey(ctx context.Context, rawKey string) (*models.User, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, ErrNotFound
	}

	sctx, cancel := s.cfg.storeContext(ctx)
	defer cancel()
	user, err := s.repo.GetUserByAPIKeyHash(sctx, models.HashAPIKey(rawKey))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "get user by api key", Err: err}
	}
	return user, nil
}
