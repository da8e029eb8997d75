package billing

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

// VerifyEvent checks the Stripe-Signature header against the shared secret and
// returns the parsed event.
func VerifyEvent(payload []byte, signatureHeader, secret string) (Event, error) {
	sig := strings.TrimSpace(signatureHeader)
	switch {
	case strings.TrimSpace(secret) == "":
		return Event{}, &VerificationError{Reason: "webhook secret not configured"}
	case sig == "":
		return Event{}, &VerificationError{Reason: "missing signature"}
	case len(payload) == 0:
		return Event{}, &VerificationError{Reason: "empty body"}
	}

	ev, err := webhook.ConstructEventWithOptions(payload, sig, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, &VerificationError{Reason: "invalid signature", Err: err}
	}
	if ev.Data == nil {
		return Event{}, &VerificationError{Reason: "event without data"}
	}

	out := Event{
		ID:   ev.ID,
		Type: string(ev.Type),
		Data: ev.Data.Raw,
	}
	if ev.Created > 0 {
		out.Created = time.Unix(ev.Created, 0).UTC()
	}
	return out, nil
}

func decodeObject(ev Event, dst any) error {
	if len(ev.Data) == 0 {
		return &DecodeError{EventType: ev.Type, Err: errors.New("empty event object")}
	}
	if err := json.Unmarshal(ev.Data, dst); err != nil {
		return &DecodeError{EventType: ev.Type, Err: err}
	}
	return nil
}

func decodeProduct(ev Event) (ProductObject, error) {
	var p ProductObject
	if err := decodeObject(ev, &p); err != nil {
		return ProductObject{}, err
	}
	if p.ID == "" {
		return ProductObject{}, &DecodeError{EventType: ev.Type, Err: errors.New("product id missing")}
	}
	return p, nil
}

func decodePrice(ev Event) (PriceObject, error) {
	var p PriceObject
	if err := decodeObject(ev, &p); err != nil {
		return PriceObject{}, err
	}
	if p.ID == "" {
		return PriceObject{}, &DecodeError{EventType: ev.Type, Err: errors.New("price id missing")}
	}
	return p, nil
}

func decodeSubscription(ev Event) (string, string, error) {
	var s SubscriptionObject
	if err := decodeObject(ev, &s); err != nil {
		return "", "", err
	}
	customerID := refID(s.Customer)
	if s.ID == "" || customerID == "" {
		return "", "", &DecodeError{EventType: ev.Type, Err: errors.New("subscription or customer id missing")}
	}
	return s.ID, customerID, nil
}

func decodeCheckoutSession(ev Event) (CheckoutSessionObject, error) {
	var s CheckoutSessionObject
	if err := decodeObject(ev, &s); err != nil {
		return CheckoutSessionObject{}, err
	}
	return s, nil
}

// stringRef returns the reference when it is a plain JSON string and "" otherwise.
func stringRef(raw json.RawMessage) string {
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return id
}

// refID accepts a plain id or an expanded object carrying an id.
func refID(raw json.RawMessage) string {
	if id := stringRef(raw); id != "" {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return obj.ID
}
