package models

import "time"

// Customer maps a local user to the provider customer created for it. The row
// is written once and never updated.
type Customer struct {
	ID               string    `gorm:"primaryKey;type:varchar(191)" json:"id"`
	StripeCustomerID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_customer_id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}
