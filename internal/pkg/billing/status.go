package billing

import (
	"strings"

	"github.com/farhadimrf/spotify-clone/app/models"
)

// IsEntitlingStatus reports whether a subscription in status grants access.
func IsEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.SubscriptionStatusActive, models.SubscriptionStatusTrialing:
		return true
	default:
		return false
	}
}

// entitlingStatuses lists the statuses IsEntitlingStatus accepts, for queries.
var entitlingStatuses = []string{
	models.SubscriptionStatusTrialing,
	models.SubscriptionStatusActive,
}
