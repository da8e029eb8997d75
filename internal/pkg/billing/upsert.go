package billing

import (
	"context"
	"errors"
	"time"

	"github.com/farhadimrf/spotify-clone/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// Upserter translates provider objects into local rows. Every write replaces
// the whole row keyed by the provider id, so applying the same event twice
// leaves the store unchanged.
type Upserter struct {
	repo       Repository
	provider   Provider
	identity   *IdentityMapper
	propagator *Propagator
	cfg        Config
}

// NewUpserter wires an upserter from injected collaborators.
func NewUpserter(repo Repository, provider Provider, identity *IdentityMapper, propagator *Propagator, cfg Config) *Upserter {
	return &Upserter{
		repo:       repo,
		provider:   provider,
		identity:   identity,
		propagator: propagator,
		cfg:        cfg,
	}
}

// SubscriptionOutcome describes what UpsertSubscription did.
type SubscriptionOutcome struct {
	Row     *models.Subscription
	Stale   bool
	Warning *PropagationWarning
}

// ProductFromObject maps a provider product onto the local row.
func ProductFromObject(p ProductObject) models.Product {
	row := models.Product{
		ID:       p.ID,
		Active:   p.Active,
		Name:     p.Name,
		Metadata: metadataOrEmpty(p.Metadata),
	}
	if p.Description != nil && *p.Description != "" {
		desc := *p.Description
		row.Description = &desc
	}
	if len(p.Images) > 0 {
		img := p.Images[0]
		row.Image = &img
	}
	return row
}

// PriceFromObject maps a provider price onto the local row. Only a plain
// product id is recorded; expanded product objects leave ProductID empty.
func PriceFromObject(p PriceObject) models.Price {
	row := models.Price{
		ID:         p.ID,
		ProductID:  stringRef(p.Product),
		Active:     p.Active,
		Currency:   p.Currency,
		Type:       p.Type,
		UnitAmount: p.UnitAmount,
		Metadata:   metadataOrEmpty(p.Metadata),
	}
	if p.Nickname != nil && *p.Nickname != "" {
		nick := *p.Nickname
		row.Description = &nick
	}
	if p.Recurring != nil {
		if p.Recurring.Interval != "" {
			interval := p.Recurring.Interval
			row.Interval = &interval
		}
		row.IntervalCount = p.Recurring.IntervalCount
		row.TrialPeriodDays = p.Recurring.TrialPeriodDays
	}
	return row
}

// SubscriptionFromProvider maps a provider subscription onto the local row of userID.
func SubscriptionFromProvider(sub *ProviderSubscription, userID string, eventAt time.Time) models.Subscription {
	row := models.Subscription{
		ID:                 sub.ID,
		UserID:             userID,
		Status:             sub.Status,
		PriceID:            sub.PriceID,
		Quantity:           sub.Quantity,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CancelAt:           optionalTime(sub.CancelAt),
		CanceledAt:         optionalTime(sub.CanceledAt),
		CurrentPeriodStart: optionalTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   optionalTime(sub.CurrentPeriodEnd),
		Created:            optionalTime(sub.Created),
		EndedAt:            optionalTime(sub.EndedAt),
		TrialStart:         optionalTime(sub.TrialStart),
		TrialEnd:           optionalTime(sub.TrialEnd),
		Metadata:           metadataOrEmpty(sub.Metadata),
	}
	if !eventAt.IsZero() {
		at := eventAt.UTC()
		row.EventAt = &at
	}
	return row
}

func (u *Upserter) UpsertProduct(ctx context.Context, p ProductObject) error {
	row := ProductFromObject(p)

	sctx, cancel := u.cfg.storeContext(ctx)
	defer cancel()
	if err := u.repo.UpsertProduct(sctx, &row); err != nil {
		return &PersistenceError{Op: "upsert product", Err: err}
	}

	UpsertsTotal.WithLabelValues("product").Inc()
	log.Infow("[Billing] Product inserted/updated", "product_id", row.ID)
	return nil
}

func (u *Upserter) UpsertPrice(ctx context.Context, p PriceObject) error {
	row := PriceFromObject(p)

	sctx, cancel := u.cfg.storeContext(ctx)
	defer cancel()
	if err := u.repo.UpsertPrice(sctx, &row); err != nil {
		return &PersistenceError{Op: "upsert price", Err: err}
	}

	UpsertsTotal.WithLabelValues("price").Inc()
	log.Infow("[Billing] Price inserted/updated", "price_id", row.ID, "product_id", row.ProductID)
	return nil
}

// UpsertSubscription fetches the full subscription from the provider and
// replaces the local row. The customer must already be mapped to a user.
// On creation events the default payment method's billing details are
// copied afterwards; a failure there is reported as a warning only.
func (u *Upserter) UpsertSubscription(ctx context.Context, subscriptionID, customerID string, isCreationEvent bool, eventAt time.Time) (SubscriptionOutcome, error) {
	userID, err := u.identity.ResolveUser(ctx, customerID)
	if err != nil {
		return SubscriptionOutcome{}, err
	}

	pctx, cancel := u.cfg.providerContext(ctx)
	sub, err := u.provider.RetrieveSubscription(pctx, subscriptionID)
	cancel()
	if err != nil {
		return SubscriptionOutcome{}, asProviderError("retrieve subscription", err)
	}

	row := SubscriptionFromProvider(sub, userID, eventAt)
	if !models.IsValidSubscriptionStatus(row.Status) {
		// Stored as reported; entitlement checks treat it as not entitling.
		UnknownStatusTotal.Inc()
		log.Warnw("[Billing] Unknown subscription status", "subscription_id", row.ID, "status", row.Status)
	}

	if u.cfg.RejectStaleEvents && row.EventAt != nil {
		stale, err := u.isStale(ctx, row.ID, *row.EventAt)
		if err != nil {
			return SubscriptionOutcome{}, err
		}
		if stale {
			log.Warnw("[Billing] Skipping stale subscription event", "subscription_id", row.ID, "event_at", row.EventAt)
			return SubscriptionOutcome{Stale: true}, nil
		}
	}

	sctx, cancel := u.cfg.storeContext(ctx)
	err = u.repo.UpsertSubscription(sctx, &row)
	cancel()
	if err != nil {
		return SubscriptionOutcome{}, &PersistenceError{Op: "upsert subscription", Err: err}
	}

	UpsertsTotal.WithLabelValues("subscription").Inc()
	log.Infow("[Billing] Inserted/updated subscription", "subscription_id", row.ID, "user_id", userID, "status", row.Status)

	out := SubscriptionOutcome{Row: &row}
	if isCreationEvent && sub.DefaultPaymentMethod != nil && u.propagator != nil {
		if err := u.propagator.PropagateBillingDetails(ctx, userID, *sub.DefaultPaymentMethod); err != nil {
			warning := &PropagationWarning{UserID: userID, Err: err}
			PropagationWarningsTotal.Inc()
			log.Warnw("[Billing] Billing details not propagated", "user_id", userID, "subscription_id", row.ID, "error", err)
			out.Warning = warning
		}
	}
	return out, nil
}

func (u *Upserter) isStale(ctx context.Context, subscriptionID string, eventAt time.Time) (bool, error) {
	sctx, cancel := u.cfg.storeContext(ctx)
	defer cancel()

	existing, err := u.repo.GetSubscription(sctx, subscriptionID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &PersistenceError{Op: "get subscription", Err: err}
	}
	return existing.EventAt != nil && eventAt.Before(*existing.EventAt), nil
}

func optionalTime(secs int64) *time.Time {
	if secs <= 0 {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
