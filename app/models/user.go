package models

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Address is a postal address as reported by the payment provider.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// IsZero reports whether no field of the address is set.
func (a Address) IsZero() bool {
	return a == Address{}
}

// PaymentMethodSummary is the type-specific payment method block copied onto a
// user, e.g. the card brand and last4 digits.
type PaymentMethodSummary map[string]any

// User is the local account that owns subscriptions. Only BillingAddress and
// PaymentMethod are written by billing reconciliation.
type User struct {
	ID             string               `gorm:"primaryKey;type:varchar(191)" json:"id"`
	Email          string               `gorm:"uniqueIndex;type:varchar(200)" json:"email"`
	FullName       string               `gorm:"type:varchar(255)" json:"full_name"`
	APIKeyHash     string               `gorm:"type:varchar(64);index" json:"-"`
	BillingAddress *Address             `gorm:"type:text;serializer:json" json:"billing_address,omitempty"`
	PaymentMethod  PaymentMethodSummary `gorm:"type:text;serializer:json" json:"payment_method,omitempty"`
}

// HashAPIKey returns the hex SHA-256 of a raw API key. Only hashes are stored.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey returns a new raw API key and its hash.
func GenerateAPIKey() (raw string, hash string) {
	raw = "bk_" + uuid.NewString()
	return raw, HashAPIKey(raw)
}
