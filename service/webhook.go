package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"

	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/pkg/logger"
	"github.com/Kapo179/docuseal3/pkg/metrics"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

const (
	webhookProviderStripe   = "stripe"
	webhookProviderBoldSign = "boldsign"
)

// BoldSign webhook event types
const (
	BoldSignDocumentCompleted = "DocumentCompleted"
	BoldSignSignerCompleted   = "SignerCompleted"
	BoldSignDocumentDeclined  = "DocumentDeclined"
	BoldSignDocumentExpired   = "DocumentExpired"
)

// BoldSignEvent is the webhook body, parsed only after verification.
type BoldSignEvent struct {
	EventID     string `json:"eventId"`
	EventType   string `json:"eventType"`
	DocumentID  string `json:"documentId"`
	SignerEmail string `json:"signerEmail,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// dedupeID falls back to type+document when the provider sends no event id.
func (e BoldSignEvent) dedupeID() string {
	if e.EventID != "" {
		return e.EventID
	}
	return e.EventType + ":" + e.DocumentID + ":" + e.SignerEmail
}

// VerifyBoldSignSignature checks a hex HMAC-SHA256 of the raw body.
func VerifyBoldSignSignature(payload []byte, signature, secret string) error {
	if signature == "" {
		return ErrMissingSignature
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// WebhookService verifies and applies provider webhooks exactly once per
// event id.
type WebhookService struct {
	stripe         *StripeWebhookVerifier
	boldSignSecret string
	events         EventLedger
	payments       *PaymentLedger
	broker         *StatusBroker
}

func NewWebhookService(stripeVerifier *StripeWebhookVerifier, boldSignSecret string, events EventLedger, payments *PaymentLedger, broker *StatusBroker) *WebhookService {
	return &WebhookService{
		stripe:         stripeVerifier,
		boldSignSecret: boldSignSecret,
		events:         events,
		payments:       payments,
		broker:         broker,
	}
}

// HandleStripe verifies and applies a Stripe delivery. Re-deliveries return
// nil without side effects.
func (s *WebhookService) HandleStripe(ctx context.Context, payload []byte, signature string) error {
	event, err := s.stripe.Verify(payload, signature)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues(webhookProviderStripe, metrics.OutcomeRejected).Inc()
		logger.Warn(ctx, "stripe webhook rejected", "error", err)
		return err
	}

	var apply func() error
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		pi, err := decodePaymentIntentEvent(event.Data.Raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		apply = func() error { return s.applyPaymentIntent(ctx, event, pi) }
	default:
		metrics.WebhookDeliveries.WithLabelValues(webhookProviderStripe, metrics.OutcomeIgnored).Inc()
		logger.Debug(ctx, "ignoring stripe event", "type", event.Type, "event_id", event.ID)
		return nil
	}

	return s.once(ctx, webhookProviderStripe, event.ID, apply)
}

func (s *WebhookService) applyPaymentIntent(ctx context.Context, event stripe.Event, pi *paymentIntentEvent) error {
	outcome := model.PaymentOutcome{
		PaymentIntentID: pi.ID,
		Status:          pi.Status,
		EventID:         event.ID,
	}
	if event.Type == stripe.EventTypePaymentIntentPaymentFailed {
		if outcome.Status == "" {
			outcome.Status = model.IntentRequiresPaymentMethod
		}
		if pi.LastPaymentError != nil {
			outcome.FailureMessage = pi.LastPaymentError.Message
		}
	} else {
		outcome.Status = model.IntentSucceeded
	}

	changed, err := s.payments.Apply(ctx, outcome)
	if err != nil {
		return err
	}
	if event.Type == stripe.EventTypePaymentIntentSucceeded {
		logger.Info(ctx, "payment succeeded", "payment_intent_id", pi.ID, "changed", changed)
	} else {
		logger.Warn(ctx, "payment failed", "payment_intent_id", pi.ID, "reason", outcome.FailureMessage)
	}
	return nil
}

// HandleBoldSign verifies the signature before parsing the body.
func (s *WebhookService) HandleBoldSign(ctx context.Context, payload []byte, signature string) error {
	if s.boldSignSecret == "" {
		return fmt.Errorf("boldsign webhook secret: %w", model.ErrNotConfigured)
	}
	if err := VerifyBoldSignSignature(payload, signature, s.boldSignSecret); err != nil {
		metrics.WebhookDeliveries.WithLabelValues(webhookProviderBoldSign, metrics.OutcomeRejected).Inc()
		logger.Warn(ctx, "boldsign webhook rejected", "error", err)
		return err
	}

	var event BoldSignEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	logger.Info(ctx, "received boldsign webhook", "event_type", event.EventType, "document_id", event.DocumentID)

	var status model.SigningStatus
	switch event.EventType {
	case BoldSignDocumentCompleted:
		status = model.SigningCompleted
	case BoldSignDocumentDeclined:
		status = model.SigningDeclined
	case BoldSignDocumentExpired:
		status = model.SigningExpired
	case BoldSignSignerCompleted:
		logger.Info(ctx, "signer completed", "document_id", event.DocumentID, "signer_email", event.SignerEmail)
		metrics.WebhookDeliveries.WithLabelValues(webhookProviderBoldSign, metrics.OutcomeSuccess).Inc()
		return nil
	default:
		metrics.WebhookDeliveries.WithLabelValues(webhookProviderBoldSign, metrics.OutcomeIgnored).Inc()
		return nil
	}

	return s.once(ctx, webhookProviderBoldSign, event.dedupeID(), func() error {
		s.broker.Publish(ctx, model.StatusUpdate{
			DocumentID: event.DocumentID,
			Status:     status,
			Message:    event.Reason,
		})
		metrics.SigningStatus.WithLabelValues(string(status)).Inc()
		return nil
	})
}

// once runs apply the first time eventID is seen. A failed apply un-marks the
// event so the provider's retry is processed.
func (s *WebhookService) once(ctx context.Context, provider, eventID string, apply func() error) error {
	first, err := s.events.MarkProcessed(ctx, provider, eventID)
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	if !first {
		metrics.WebhookDeliveries.WithLabelValues(provider, metrics.OutcomeDuplicate).Inc()
		logger.Info(ctx, "duplicate webhook delivery", "provider", provider, "event_id", eventID)
		return nil
	}

	if err := apply(); err != nil {
		if forgetErr := s.events.Forget(ctx, provider, eventID); forgetErr != nil {
			logger.Error(ctx, "failed to release webhook event", "provider", provider, "event_id", eventID, "error", forgetErr)
		}
		metrics.WebhookDeliveries.WithLabelValues(provider, metrics.OutcomeFailure).Inc()
		return err
	}
	metrics.WebhookDeliveries.WithLabelValues(provider, metrics.OutcomeSuccess).Inc()
	return nil
}
