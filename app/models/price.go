package models

// Pricing types reported by the provider.
const (
	PriceTypeOneTime   = "one_time"
	PriceTypeRecurring = "recurring"
)

// Recurring intervals reported by the provider.
const (
	PriceIntervalDay   = "day"
	PriceIntervalWeek  = "week"
	PriceIntervalMonth = "month"
	PriceIntervalYear  = "year"
)

// Price mirrors a provider price. ProductID is empty when the provider reference
// was not a plain id.
type Price struct {
	ID              string            `gorm:"primaryKey;type:varchar(191)" json:"id"`
	ProductID       string            `gorm:"type:varchar(191);index" json:"product_id"`
	Active          bool              `gorm:"not null;index" json:"active"`
	Currency        string            `gorm:"type:varchar(3);not null" json:"currency"`
	Description     *string           `gorm:"type:text" json:"description,omitempty"`
	Type            string            `gorm:"type:varchar(16);not null" json:"type"`
	UnitAmount      *int64            `json:"unit_amount,omitempty"`
	Interval        *string           `gorm:"type:varchar(8)" json:"interval,omitempty"`
	IntervalCount   *int64            `json:"interval_count,omitempty"`
	TrialPeriodDays *int64            `json:"trial_period_days,omitempty"`
	Metadata        map[string]string `gorm:"type:text;serializer:json" json:"metadata"`
}

// PriceColumns lists every non-key column written by a full-replace upsert.
var PriceColumns = []string{
	"product_id",
	"active",
	"currency",
	"description",
	"type",
	"unit_amount",
	"interval",
	"interval_count",
	"trial_period_days",
	"metadata",
}
