package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain"
)

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds how old a signed webhook timestamp may be.
const DefaultTolerance = 5 * time.Minute

// ErrInvalidSignature is returned for webhook payloads whose signature does
// not verify or whose timestamp is outside the tolerance.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event is the envelope of a provider webhook.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// eventObject holds the fields read from checkout session and payment
// intent objects.
type eventObject struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

// WebhookVerifier checks Stripe-Signature headers: an HMAC-SHA256 of
// "<timestamp>.<payload>" keyed by the endpoint secret.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &WebhookVerifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

func (v *WebhookVerifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Verify authenticates payload against header and decodes the event.
func (v *WebhookVerifier) Verify(payload []byte, header string) (*Event, error) {
	if !v.Enabled() {
		return nil, ErrNotConfigured
	}
	ts, signatures := parseSignatureHeader(header)
	if ts == "" || len(signatures) == 0 {
		return nil, ErrInvalidSignature
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	if age := v.now().Sub(time.Unix(sec, 0)); age > v.tolerance || age < -v.tolerance {
		return nil, ErrInvalidSignature
	}

	expected := []byte(sign(v.secret, ts, payload))
	valid := false
	for _, s := range signatures {
		if hmac.Equal(expected, []byte(s)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, ErrInvalidSignature
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Type == "" {
		return nil, domain.NewValidationError("payload", "malformed event")
	}
	return &ev, nil
}

func sign(secret []byte, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// parseSignatureHeader splits "t=...,v1=...,v1=..." into the timestamp and
// the v1 signatures. Other schemes are ignored.
func parseSignatureHeader(header string) (string, []string) {
	var (
		ts   string
		sigs []string
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = val
		case "v1":
			sigs = append(sigs, val)
		}
	}
	return ts, sigs
}

// paymentStatusFor maps an event to the payment status it implies. ok is
// false for events that do not move an order's payment state.
func paymentStatusFor(ev *Event, obj eventObject) (string, bool) {
	switch ev.Type {
	case "checkout.session.completed":
		// Delayed methods complete the session unpaid and settle through the
		// async events below.
		if obj.PaymentStatus == "paid" || obj.PaymentStatus == "no_payment_required" {
			return domain.PaymentStatusPaid, true
		}
	case "checkout.session.async_payment_succeeded":
		return domain.PaymentStatusPaid, true
	case "checkout.session.async_payment_failed", "checkout.session.expired", "payment_intent.payment_failed":
		return domain.PaymentStatusFailed, true
	}
	return "", false
}

// canTransition keeps late or replayed events from rolling a payment back.
func canTransition(from, to string) bool {
	switch to {
	case domain.PaymentStatusPaid:
		return from == domain.PaymentStatusPending || from == domain.PaymentStatusFailed
	case domain.PaymentStatusFailed:
		return from == domain.PaymentStatusPending
	case domain.PaymentStatusRefunded:
		return from == domain.PaymentStatusPaid
	}
	return false
}
