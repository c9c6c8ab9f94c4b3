package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/Kapo179/docuseal3/model"
)

// StripeProvider adapts the Stripe API client to PaymentProvider.
type StripeProvider struct {
	api *client.API
}

func NewStripeProvider(secretKey string, backends *stripe.Backends) *StripeProvider {
	return &StripeProvider{api: client.New(secretKey, backends)}
}

func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (*model.PaymentIntentDetail, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic)),
		Confirm:       stripe.Bool(false),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.StatementDescriptor != "" {
		params.StatementDescriptor = stripe.String(req.StatementDescriptor)
	}
	if req.StatementDescriptorSuffix != "" {
		params.StatementDescriptorSuffix = stripe.String(req.StatementDescriptorSuffix)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return intentDetail(pi), nil
}

func (p *StripeProvider) GetIntent(ctx context.Context, id string) (*model.PaymentIntentDetail, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return intentDetail(pi), nil
}

func (p *StripeProvider) ConfirmIntent(ctx context.Context, id, paymentMethodID string) (*model.PaymentIntentDetail, error) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
	}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Confirm(id, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return intentDetail(pi), nil
}

func (p *StripeProvider) CaptureIntent(ctx context.Context, id string) (*CaptureResult, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Capture(id, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return &CaptureResult{Status: string(pi.Status), AmountCaptured: pi.AmountReceived}, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*model.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.ProductName),
						Description: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(req.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.AddMetadata("service", "vehicle_agreement_signing")
	params.Context = ctx

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return checkoutSession(session), nil
}

func (p *StripeProvider) GetCheckoutSession(ctx context.Context, id string) (*model.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return checkoutSession(session), nil
}

func intentDetail(pi *stripe.PaymentIntent) *model.PaymentIntentDetail {
	detail := &model.PaymentIntentDetail{
		PaymentIntent: model.PaymentIntent{
			ID:       pi.ID,
			Status:   string(pi.Status),
			Amount:   pi.Amount,
			Currency: string(pi.Currency),
		},
		ClientSecret:   pi.ClientSecret,
		AmountReceived: pi.AmountReceived,
	}
	if pi.NextAction != nil {
		if raw, err := json.Marshal(pi.NextAction); err == nil {
			detail.NextAction = raw
		}
	}
	if pi.LastPaymentError != nil {
		detail.LastError = pi.LastPaymentError.Msg
	}
	return detail
}

func checkoutSession(s *stripe.CheckoutSession) *model.CheckoutSession {
	out := &model.CheckoutSession{
		ID:   s.ID,
		Paid: s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	if s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	return out
}

// classifyStripeError maps SDK errors onto ProviderError classes.
func classifyStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		pe := &ProviderError{Code: string(se.Code), Message: se.Msg, Err: err}
		switch {
		case se.Type == stripe.ErrorTypeCard:
			pe.Class = ClassCard
		case se.Type == stripe.ErrorTypeInvalidRequest:
			pe.Class = ClassInvalid
		case se.Type == stripe.ErrorTypeAPI, se.HTTPStatusCode >= http.StatusInternalServerError:
			pe.Class = ClassUnavailable
		default:
			pe.Class = ClassUnknown
		}
		return pe
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Class: ClassUnavailable, Message: err.Error(), Err: err}
	}
	return &ProviderError{Class: ClassUnknown, Message: err.Error(), Err: err}
}

// StripeWebhookVerifier checks the Stripe-Signature header over the raw body.
type StripeWebhookVerifier struct {
	secret string
}

func NewStripeWebhookVerifier(secret string) *StripeWebhookVerifier {
	return &StripeWebhookVerifier{secret: secret}
}

func (v *StripeWebhookVerifier) Verify(payload []byte, header string) (stripe.Event, error) {
	if header == "" {
		return stripe.Event{}, ErrMissingSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}
