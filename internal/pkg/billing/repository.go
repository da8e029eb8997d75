package billing

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/farhadimrf/spotify-clone/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing core.
type Repository interface {
	UpsertProduct(ctx context.Context, product *models.Product) error
	UpsertPrice(ctx context.Context, price *models.Price) error
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	GetActiveSubscriptionByUser(ctx context.Context, userID string) (*models.Subscription, error)
	GetCustomerByUserID(ctx context.Context, userID string) (*models.Customer, error)
	GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*models.Customer, error)
	InsertCustomerIfAbsent(ctx context.Context, c *models.Customer) (bool, *models.Customer, error)
	UpdateUserBilling(ctx context.Context, userID string, address models.Address, paymentMethod models.PaymentMethodSummary) error
	GetUserByAPIKeyHash(ctx context.Context, hash string) (*models.User, error)
	ListActiveProductsWithPrices(ctx context.Context) ([]models.Product, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *gormRepository) UpsertProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(models.ProductColumns),
	}).Create(product).Error
}

func (r *gormRepository) UpsertPrice(ctx context.Context, price *models.Price) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(models.PriceColumns),
	}).Create(price).Error
}

func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(models.SubscriptionColumns),
	}).Create(sub).Error
}

func (r *gormRepository) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

// GetActiveSubscriptionByUser returns the most recently created trialing or
// active subscription of a user.
func (r *gormRepository) GetActiveSubscriptionByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, entitlingStatuses).
		Order("created DESC").
		First(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (r *gormRepository) GetCustomerByUserID(ctx context.Context, userID string) (*models.Customer, error) {
	var c models.Customer
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *gormRepository) GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*models.Customer, error) {
	var c models.Customer
	if err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", stripeCustomerID).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// InsertCustomerIfAbsent inserts the mapping unless one already exists for the
// user. It returns the stored row, which is the winning row on conflict.
func (r *gormRepository) InsertCustomerIfAbsent(ctx context.Context, c *models.Customer) (bool, *models.Customer, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := r.GetCustomerByUserID(ctx, c.ID)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

func (r *gormRepository) UpdateUserBilling(ctx context.Context, userID string, address models.Address, paymentMethod models.PaymentMethodSummary) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}

	addr := address
	return r.db.WithContext(ctx).Model(&models.User{ID: userID}).Select("billing_address", "payment_method").Updates(&models.User{
		BillingAddress: &addr,
		PaymentMethod:  paymentMethod,
	}).Error
}

func (r *gormRepository) GetUserByAPIKeyHash(ctx context.Context, hash string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("api_key_hash = ?", hash).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// ListActiveProductsWithPrices returns active products with their active
// prices, ordered by the "index" metadata key and then by unit amount.
func (r *gormRepository) ListActiveProductsWithPrices(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Preload("Prices", func(db *gorm.DB) *gorm.DB {
			return db.Where("active = ?", true).Order("unit_amount")
		}).
		Find(&products).Error
	if err != nil {
		return nil, err
	}

	// Metadata is serialized JSON, so the index ordering happens here.
	sort.SliceStable(products, func(i, j int) bool {
		return productIndex(products[i]) < productIndex(products[j])
	})
	return products, nil
}

func productIndex(p models.Product) int {
	idx, err := strconv.Atoi(p.Metadata["index"])
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return idx
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.WithContext(ctx).Where("provider_event_id = ?", event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, notFound(err)
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"outcome":          outcome,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
