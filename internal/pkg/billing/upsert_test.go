package billing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/farhadimrf/spotify-clone/app/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func unixPtr(secs int64) *time.Time {
	t := time.Unix(secs, 0).UTC()
	return &t
}

func TestProductFromObject(t *testing.T) {
	tests := []struct {
		name      string
		in        ProductObject
		wantDesc  *string
		wantImage *string
	}{
		{
			name:      "full product",
			in:        ProductObject{ID: "prod_1", Active: true, Name: "Premium", Description: strPtr("All songs"), Images: []string{"a.png", "b.png"}},
			wantDesc:  strPtr("All songs"),
			wantImage: strPtr("a.png"),
		},
		{
			name: "empty description and no images",
			in:   ProductObject{ID: "prod_2", Name: "Basic", Description: strPtr("")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := ProductFromObject(tt.in)
			assert.Equal(t, tt.in.ID, row.ID)
			assert.Equal(t, tt.in.Active, row.Active)
			assert.Equal(t, tt.in.Name, row.Name)
			assert.Equal(t, tt.wantDesc, row.Description)
			assert.Equal(t, tt.wantImage, row.Image)
			assert.NotNil(t, row.Metadata)
		})
	}
}

func TestPriceFromObject(t *testing.T) {
	recurring := PriceObject{
		ID:         "price_1",
		Product:    json.RawMessage(`"prod_1"`),
		Active:     true,
		Currency:   "usd",
		Nickname:   strPtr("Monthly"),
		Type:       models.PriceTypeRecurring,
		UnitAmount: int64Ptr(999),
		Recurring:  &PriceRecurring{Interval: "month", IntervalCount: int64Ptr(1), TrialPeriodDays: int64Ptr(7)},
		Metadata:   map[string]string{"tier": "premium"},
	}
	row := PriceFromObject(recurring)
	assert.Equal(t, "prod_1", row.ProductID)
	assert.Equal(t, strPtr("Monthly"), row.Description)
	assert.Equal(t, int64Ptr(999), row.UnitAmount)
	require.NotNil(t, row.Interval)
	assert.Equal(t, "month", *row.Interval)
	assert.Equal(t, int64Ptr(1), row.IntervalCount)
	assert.Equal(t, int64Ptr(7), row.TrialPeriodDays)
	assert.Equal(t, "premium", row.Metadata["tier"])

	oneTime := PriceObject{
		ID:       "price_2",
		Product:  json.RawMessage(`{"id":"prod_1","object":"product"}`),
		Currency: "usd",
		Type:     models.PriceTypeOneTime,
	}
	row = PriceFromObject(oneTime)
	assert.Equal(t, "", row.ProductID)
	assert.Nil(t, row.Description)
	assert.Nil(t, row.UnitAmount)
	assert.Nil(t, row.Interval)
	assert.Nil(t, row.IntervalCount)
	assert.Nil(t, row.TrialPeriodDays)
}

func TestSubscriptionFromProvider(t *testing.T) {
	sub := activeSubscription("sub_1", "cus_1")
	sub.CancelAt = 1702592000
	eventAt := time.Unix(1700000500, 0)

	row := SubscriptionFromProvider(sub, "user-1", eventAt)
	assert.Equal(t, "user-1", row.UserID)
	assert.Equal(t, unixPtr(1700000000), row.CurrentPeriodStart)
	assert.Equal(t, unixPtr(1702592000), row.CurrentPeriodEnd)
	require.NotNil(t, row.CancelAt)
	assert.Equal(t, time.Unix(1702592000, 0).UTC(), *row.CancelAt)
	assert.Nil(t, row.CanceledAt)
	assert.Nil(t, row.EndedAt)
	require.NotNil(t, row.TrialEnd)
	require.NotNil(t, row.EventAt)
	assert.Equal(t, eventAt.UTC(), *row.EventAt)
	require.NotNil(t, row.Created)
	assert.Equal(t, time.UTC, row.Created.Location())
}

func TestSubscriptionFromProvider_MissingTimesAreNull(t *testing.T) {
	tests := []struct {
		name string
		sub  *ProviderSubscription
	}{
		{
			name: "no items",
			sub:  &ProviderSubscription{ID: "sub_1", CustomerID: "cus_1", Status: models.SubscriptionStatusIncomplete},
		},
		{
			name: "negative seconds",
			sub: &ProviderSubscription{
				ID:                 "sub_1",
				CustomerID:         "cus_1",
				Status:             models.SubscriptionStatusIncomplete,
				CurrentPeriodStart: -1,
				CurrentPeriodEnd:   -1,
				Created:            -1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := SubscriptionFromProvider(tt.sub, "user-1", time.Time{})
			assert.Nil(t, row.CurrentPeriodStart)
			assert.Nil(t, row.CurrentPeriodEnd)
			assert.Nil(t, row.Created)
			assert.Nil(t, row.EventAt)
		})
	}
}

func TestUpsertSubscription_Idempotent(t *testing.T) {
	svc, repo, provider := newTestService(t)
	repo.addCustomer("user-1", "cus_1")
	provider.setSubscription(activeSubscription("sub_1", "cus_1"))
	ev := rawEvent(t, "evt_1", EventSubscriptionUpdated, 1700000100, map[string]any{"id": "sub_1", "customer": "cus_1"})

	first := svc.Dispatcher().Dispatch(context.Background(), ev)
	require.Equal(t, OutcomeAccepted, first.Outcome)
	afterFirst, ok := repo.subscription("sub_1")
	require.True(t, ok)

	second := svc.Dispatcher().Dispatch(context.Background(), ev)
	require.Equal(t, OutcomeAccepted, second.Outcome)
	afterSecond, ok := repo.subscription("sub_1")
	require.True(t, ok)

	assert.Equal(t, afterFirst, afterSecond)
}

func TestUpsertSubscription_FullReplace(t *testing.T) {
	svc, repo, provider := newTestService(t)
	repo.addCustomer("user-1", "cus_1")
	provider.setSubscription(activeSubscription("sub_1", "cus_1"))

	_, err := svc.upserter.UpsertSubscription(context.Background(), "sub_1", "cus_1", false, time.Time{})
	require.NoError(t, err)
	before, _ := repo.subscription("sub_1")
	require.Equal(t, int64(2), before.Quantity)
	require.NotNil(t, before.TrialEnd)

	provider.setSubscription(&ProviderSubscription{
		ID:                 "sub_1",
		CustomerID:         "cus_1",
		Status:             models.SubscriptionStatusCanceled,
		PriceID:            "price_monthly",
		Quantity:           1,
		CanceledAt:         1701000000,
		EndedAt:            1701000000,
		CurrentPeriodStart: 1700000000,
		CurrentPeriodEnd:   1702592000,
		Created:            1699990000,
	})
	_, err = svc.upserter.UpsertSubscription(context.Background(), "sub_1", "cus_1", false, time.Time{})
	require.NoError(t, err)

	after, _ := repo.subscription("sub_1")
	assert.Equal(t, models.SubscriptionStatusCanceled, after.Status)
	assert.Equal(t, int64(1), after.Quantity)
	assert.Nil(t, after.TrialStart)
	assert.Nil(t, after.TrialEnd)
	assert.Empty(t, after.Metadata)
	require.NotNil(t, after.CanceledAt)
	require.NotNil(t, after.EndedAt)
}

func TestUpsertSubscription_StaleEventGuard(t *testing.T) {
	repo := newFakeRepo()
	provider := newFakeProvider()
	cfg := testConfig()
	cfg.RejectStaleEvents = true
	svc := NewService(repo, provider, nil, cfg)
	repo.addCustomer("user-1", "cus_1")
	provider.setSubscription(activeSubscription("sub_1", "cus_1"))

	newer := time.Unix(1700000200, 0)
	older := time.Unix(1700000100, 0)

	out, err := svc.upserter.UpsertSubscription(context.Background(), "sub_1", "cus_1", false, newer)
	require.NoError(t, err)
	require.False(t, out.Stale)

	provider.setSubscription(&ProviderSubscription{ID: "sub_1", CustomerID: "cus_1", Status: models.SubscriptionStatusPastDue})
	out, err = svc.upserter.UpsertSubscription(context.Background(), "sub_1", "cus_1", false, older)
	require.NoError(t, err)
	assert.True(t, out.Stale)

	stored, _ := repo.subscription("sub_1")
	assert.Equal(t, models.SubscriptionStatusActive, stored.Status)
	assert.Equal(t, newer.UTC(), *stored.EventAt)
}

func TestUpsertSubscription_StaleGuardOffByDefault(t *testing.T) {
	svc, repo, provider := newTestService(t)
	repo.addCustomer("user-1", "cus_1")
	provider.setSubscription(activeSubscription("sub_1", "cus_1"))

	_, err := svc.upserter.UpsertSubscription(context.Background(), "sub_1", "cus_1", false, time.Unix(1700000200, 0))
	require.NoError(t, err)

	provider.setSubscription(&ProviderSubscription{ID: "sub_1", CustomerID: "cus_1", Status: models.SubscriptionStatusPastDue})
	out, err := svc.upserter.UpsertSubscription(context.Background(), "sub_1", "cus_1", false, time.Unix(1700000100, 0))
	require.NoError(t, err)
	assert.False(t, out.Stale)

	stored, _ := repo.subscription("sub_1")
	assert.Equal(t, models.SubscriptionStatusPastDue, stored.Status)
}

func TestUpsertSubscription_UnknownStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		wantCount float64
	}{
		{name: "documented status", status: models.SubscriptionStatusPastDue, wantCount: 0},
		{name: "undocumented status", status: "on_hold", wantCount: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, provider := newTestService(t)
			repo.addCustomer("user-1", "cus_1")
			sub := activeSubscription("sub_1", "cus_1")
			sub.Status = tt.status
			provider.setSubscription(sub)

			before := testutil.ToFloat64(UnknownStatusTotal)
			out, err := svc.upserter.UpsertSubscription(context.Background(), "sub_1", "cus_1", false, time.Time{})
			require.NoError(t, err)
			require.NotNil(t, out.Row)

			assert.Equal(t, tt.wantCount, testutil.ToFloat64(UnknownStatusTotal)-before)
			stored, ok := repo.subscription("sub_1")
			require.True(t, ok)
			assert.Equal(t, tt.status, stored.Status)
		})
	}
}

func TestUpsertSubscription_StoreFailureIsRetryable(t *testing.T) {
	svc, repo, provider := newTestService(t)
	repo.addCustomer("user-1", "cus_1")
	repo.failUpsertSubscription = errStoreDown
	provider.setSubscription(activeSubscription("sub_1", "cus_1"))

	_, err := svc.upserter.UpsertSubscription(context.Background(), "sub_1", "cus_1", true, time.Time{})
	var persistenceErr *PersistenceError
	require.ErrorAs(t, err, &persistenceErr)
	assert.True(t, IsRetryable(err))
	assert.Zero(t, provider.updateCount())
}
