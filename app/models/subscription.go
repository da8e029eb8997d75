package models

import "time"

const (
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusActive            = "active"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusUnpaid            = "unpaid"
	SubscriptionStatusPaused            = "paused"
)

var subscriptionStatuses = map[string]struct{}{
	SubscriptionStatusTrialing:          {},
	SubscriptionStatusActive:            {},
	SubscriptionStatusCanceled:          {},
	SubscriptionStatusIncomplete:        {},
	SubscriptionStatusIncompleteExpired: {},
	SubscriptionStatusPastDue:           {},
	SubscriptionStatusUnpaid:            {},
	SubscriptionStatusPaused:            {},
}

// IsValidSubscriptionStatus reports whether status is one the provider documents.
func IsValidSubscriptionStatus(status string) bool {
	_, ok := subscriptionStatuses[status]
	return ok
}

// Subscription mirrors the provider subscription for a local user. Every event
// replaces the whole row, so the struct carries no auto-managed timestamps.
type Subscription struct {
	ID                 string            `gorm:"primaryKey;type:varchar(191)" json:"id"`
	UserID             string            `gorm:"type:varchar(191);not null;index" json:"user_id"`
	Status             string            `gorm:"type:varchar(32);not null;index" json:"status"`
	PriceID            string            `gorm:"type:varchar(191);index" json:"price_id"`
	Quantity           int64             `gorm:"not null" json:"quantity"`
	CancelAtPeriodEnd  bool              `gorm:"not null" json:"cancel_at_period_end"`
	CancelAt           *time.Time        `gorm:"type:datetime" json:"cancel_at,omitempty"`
	CanceledAt         *time.Time        `gorm:"type:datetime" json:"canceled_at,omitempty"`
	CurrentPeriodStart *time.Time        `gorm:"type:datetime" json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time        `gorm:"type:datetime" json:"current_period_end,omitempty"`
	Created            *time.Time        `gorm:"type:datetime" json:"created,omitempty"`
	EndedAt            *time.Time        `gorm:"type:datetime" json:"ended_at,omitempty"`
	TrialStart         *time.Time        `gorm:"type:datetime" json:"trial_start,omitempty"`
	TrialEnd           *time.Time        `gorm:"type:datetime" json:"trial_end,omitempty"`
	Metadata           map[string]string `gorm:"type:text;serializer:json" json:"metadata"`
	EventAt            *time.Time        `gorm:"type:datetime" json:"event_at,omitempty"`
}

// SubscriptionColumns lists every non-key column. Upserts assign all of them so
// that no field of a previous row survives.
var SubscriptionColumns = []string{
	"user_id",
	"status",
	"price_id",
	"quantity",
	"cancel_at_period_end",
	"cancel_at",
	"canceled_at",
	"current_period_start",
	"current_period_end",
	"created",
	"ended_at",
	"trial_start",
	"trial_end",
	"metadata",
	"event_at",
}
