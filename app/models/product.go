package models

// Product mirrors a provider product. The primary key is the provider's id.
type Product struct {
	ID          string            `gorm:"primaryKey;type:varchar(191)" json:"id"`
	Active      bool              `gorm:"not null;index" json:"active"`
	Name        string            `gorm:"type:varchar(255);not null" json:"name"`
	Description *string           `gorm:"type:text" json:"description,omitempty"`
	Image       *string           `gorm:"type:text" json:"image,omitempty"`
	Metadata    map[string]string `gorm:"type:text;serializer:json" json:"metadata"`

	Prices []Price `gorm:"foreignKey:ProductID;references:ID" json:"prices,omitempty"`
}

// ProductColumns lists every non-key column written by a full-replace upsert.
var ProductColumns = []string{"active", "name", "description", "image", "metadata"}
