package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/farhadimrf/spotify-clone/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// Ledger records webhook deliveries so that redeliveries of an already
// applied event are acknowledged without touching the provider again.
// Ledger failures are logged and never block processing.
type Ledger struct {
	repo Repository
	cfg  Config
}

func NewLedger(repo Repository, cfg Config) *Ledger {
	return &Ledger{repo: repo, cfg: cfg}
}

// Record stores the delivery if it is new. It reports duplicate=true when a
// previous delivery of the same event was applied without error.
func (l *Ledger) Record(ctx context.Context, ev Event, payload []byte) (*models.BillingWebhookEvent, bool) {
	eventID := strings.TrimSpace(ev.ID)
	if eventID == "" {
		sum := sha256.Sum256(payload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	sctx, cancel := l.cfg.storeContext(ctx)
	defer cancel()
	created, stored, err := l.repo.CreateWebhookEventIfNotExists(sctx, &models.BillingWebhookEvent{
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(ev.Type),
		PayloadJSON:     string(payload),
	})
	if err != nil {
		log.Warnw("[Billing] Failed to record webhook event", "event_id", eventID, "error", err)
		return nil, false
	}
	if !created && stored.Succeeded() {
		return stored, true
	}
	return stored, false
}

// Complete marks a recorded delivery as processed with its outcome.
func (l *Ledger) Complete(ctx context.Context, row *models.BillingWebhookEvent, res Result) {
	if row == nil {
		return
	}
	errMsg := ""
	if res.Outcome == OutcomeFailed {
		errMsg = res.Reason
	}

	sctx, cancel := l.cfg.storeContext(ctx)
	defer cancel()
	if err := l.repo.MarkWebhookProcessed(sctx, row.ID, string(res.Outcome), errMsg); err != nil {
		log.Warnw("[Billing] Failed to mark webhook event processed", "event_id", row.ProviderEventID, "error", err)
	}
}
