package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Kapo179/docuseal3/config"
	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/pkg/logger"
	"github.com/Kapo179/docuseal3/pkg/metrics"
)

// IntentRequest describes a new payment intent.
type IntentRequest struct {
	Amount                    int64
	Currency                  string
	Description               string
	StatementDescriptor       string
	StatementDescriptorSuffix string
	Metadata                  map[string]string
}

// CheckoutRequest describes a hosted checkout session.
type CheckoutRequest struct {
	Amount      int64
	Currency    string
	ProductName string
	Description string
	SuccessURL  string
	CancelURL   string
}

// CaptureResult is the outcome of capturing an authorized intent.
type CaptureResult struct {
	Status         string `json:"status"`
	AmountCaptured int64  `json:"amount_captured"`
}

// PaymentProvider is the subset of the payment processor used by the service.
// Implementations return *ProviderError for provider-side failures.
type PaymentProvider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*model.PaymentIntentDetail, error)
	GetIntent(ctx context.Context, id string) (*model.PaymentIntentDetail, error)
	ConfirmIntent(ctx context.Context, id, paymentMethodID string) (*model.PaymentIntentDetail, error)
	CaptureIntent(ctx context.Context, id string) (*CaptureResult, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*model.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*model.CheckoutSession, error)
}

// ErrorClass groups provider failures by how they are reported to users.
type ErrorClass string

const (
	ClassCard        ErrorClass = "card_error"
	ClassInvalid     ErrorClass = "invalid_request_error"
	ClassUnavailable ErrorClass = "api_error"
	ClassUnknown     ErrorClass = "unknown"
)

// Payment operations, used to pick the invalid-request wording.
const (
	OpCreate  = "create"
	OpCapture = "capture"
)

// ProviderError is a classified failure from the payment provider.
type ProviderError struct {
	Class   ErrorClass
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment provider %s (%s): %s", e.Class, e.Code, e.Message)
	}
	return fmt.Sprintf("payment provider %s: %s", e.Class, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// HTTPStatus is 503 for an unavailable provider and 400 otherwise.
func (e *ProviderError) HTTPStatus() int {
	if e.Class == ClassUnavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

// PublicMessage is safe to show the user. Only card declines pass the
// provider's own text through.
func (e *ProviderError) PublicMessage(op string) string {
	switch e.Class {
	case ClassCard:
		return e.Message
	case ClassInvalid:
		if op == OpCapture {
			return "Invalid capture request"
		}
		return "Invalid payment request"
	case ClassUnavailable:
		return "Payment service temporarily unavailable"
	}
	return "An unexpected error occurred"
}

func (e *ProviderError) PublicCode() string {
	if e.Code == "" {
		return "unknown_error"
	}
	return e.Code
}

// AsProviderError returns err as a *ProviderError, classifying anything else
// as unknown.
func AsProviderError(err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Class: ClassUnknown, Message: err.Error(), Err: err}
}

// PaymentService implements the payment proxy endpoints on top of a provider.
type PaymentService struct {
	provider  PaymentProvider
	cfg       config.PaymentConfig
	amount    int64
	publicURL string
}

func NewPaymentService(provider PaymentProvider, cfg config.PaymentConfig, publicURL string) (*PaymentService, error) {
	amount, err := cfg.MinorUnits()
	if err != nil {
		return nil, err
	}
	return &PaymentService{
		provider:  provider,
		cfg:       cfg,
		amount:    amount,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

func (s *PaymentService) CreatePaymentIntent(ctx context.Context) (*model.CreatedIntent, error) {
	detail, err := s.provider.CreateIntent(ctx, IntentRequest{
		Amount:                    s.amount,
		Currency:                  s.cfg.Currency,
		Description:               s.cfg.Description,
		StatementDescriptor:       s.cfg.StatementDescriptor,
		StatementDescriptorSuffix: s.cfg.StatementDescriptorSuffix,
		Metadata:                  map[string]string{"service": "vehicle_agreement_signing"},
	})
	if err != nil {
		pe := AsProviderError(err)
		metrics.PaymentIntents.WithLabelValues(metrics.OutcomeFailure).Inc()
		logger.Error(ctx, "payment intent creation failed", "class", pe.Class, "code", pe.Code, "error", pe.Message)
		return nil, pe
	}

	metrics.PaymentIntents.WithLabelValues(metrics.OutcomeSuccess).Inc()
	logger.Info(ctx, "payment intent created", "payment_intent_id", detail.ID)
	return &model.CreatedIntent{
		ClientSecret:  detail.ClientSecret,
		PaymentIntent: detail.PaymentIntent,
	}, nil
}

// CheckStatus looks up an intent. NextAction is only kept while the intent
// requires action.
func (s *PaymentService) CheckStatus(ctx context.Context, id string) (*model.PaymentIntentDetail, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &model.FieldError{Message: "Payment intent ID is required"}
	}
	detail, err := s.provider.GetIntent(ctx, id)
	if err != nil {
		logger.Error(ctx, "payment status lookup failed", "payment_intent_id", id, "error", err)
		return nil, err
	}
	if detail.Status != model.IntentRequiresAction {
		detail.NextAction = nil
	}
	return detail, nil
}

// Confirm confirms the intent with a payment method, or re-reads it when the
// browser already confirmed it with the client SDK.
func (s *PaymentService) Confirm(ctx context.Context, id, paymentMethodID string) (*model.PaymentIntentDetail, error) {
	if paymentMethodID == "" {
		return s.provider.GetIntent(ctx, id)
	}
	detail, err := s.provider.ConfirmIntent(ctx, id, paymentMethodID)
	if err != nil {
		return nil, AsProviderError(err)
	}
	return detail, nil
}

func (s *PaymentService) Capture(ctx context.Context, id string) (*CaptureResult, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &model.FieldError{Message: "Payment intent ID is required"}
	}
	result, err := s.provider.CaptureIntent(ctx, id)
	if err != nil {
		pe := AsProviderError(err)
		logger.Error(ctx, "payment capture failed", "payment_intent_id", id, "class", pe.Class, "code", pe.Code)
		return nil, pe
	}
	return result, nil
}

func (s *PaymentService) CreateCheckoutSession(ctx context.Context) (string, error) {
	session, err := s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		Amount:      s.amount,
		Currency:    s.cfg.Currency,
		ProductName: s.cfg.ProductName,
		Description: "Digital signing service for vehicle sales agreement",
		SuccessURL:  s.publicURL + "?payment=success",
		CancelURL:   s.publicURL,
	})
	if err != nil {
		logger.Error(ctx, "checkout session creation failed", "error", err)
		return "", err
	}
	return session.ID, nil
}

func (s *PaymentService) VerifyCheckoutSession(ctx context.Context, id string) (*model.CheckoutSession, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &model.FieldError{Message: "Session ID is required"}
	}
	session, err := s.provider.GetCheckoutSession(ctx, id)
	if err != nil {
		logger.Warn(ctx, "checkout session verification failed", "session_id", id, "error", err)
		return nil, err
	}
	return session, nil
}

// paymentIntentEvent is the part of a payment_intent.* webhook object used here.
type paymentIntentEvent struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func decodePaymentIntentEvent(raw json.RawMessage) (*paymentIntentEvent, error) {
	var pi paymentIntentEvent
	if err := json.Unmarshal(raw, &pi); err != nil {
		return nil, err
	}
	if pi.ID == "" {
		return nil, errors.New("payment intent id missing from event")
	}
	return &pi, nil
}
