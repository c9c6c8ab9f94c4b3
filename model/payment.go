package model

import "encoding/json"

// Payment intent statuses reported by the provider.
const (
	IntentRequiresPaymentMethod = "requires_payment_method"
	IntentRequiresConfirmation  = "requires_confirmation"
	IntentRequiresAction        = "requires_action"
	IntentProcessing            = "processing"
	IntentRequiresCapture       = "requires_capture"
	IntentSucceeded             = "succeeded"
	IntentCanceled              = "canceled"
)

// PaymentIntent is the snapshot of the provider object kept by the client.
type PaymentIntent struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// PaymentIntentDetail is what the provider adapter returns for lookups.
type PaymentIntentDetail struct {
	PaymentIntent
	ClientSecret   string          `json:"clientSecret"`
	AmountReceived int64           `json:"amountReceived"`
	NextAction     json.RawMessage `json:"nextAction,omitempty"`
	LastError      string          `json:"lastError,omitempty"`
}

// CreatedIntent is the create-payment-intent response body.
type CreatedIntent struct {
	ClientSecret  string        `json:"clientSecret"`
	PaymentIntent PaymentIntent `json:"paymentIntent"`
}

// SavedState is the wizard position kept across the payment redirect.
type SavedState struct {
	Step     string `json:"step,omitempty"`
	FormData string `json:"formData,omitempty"`
}

// PaymentFlowStateVersion is the current persisted layout.
const PaymentFlowStateVersion = 1

type PaymentFlowState struct {
	IsProcessing  bool           `json:"isProcessing"`
	IsComplete    bool           `json:"isComplete"`
	Error         string         `json:"error,omitempty"`
	ClientSecret  string         `json:"clientSecret,omitempty"`
	PaymentIntent *PaymentIntent `json:"paymentIntent,omitempty"`
	SavedState    SavedState     `json:"savedState"`
}

// PaymentOutcome is the authoritative status recorded from provider webhooks.
type PaymentOutcome struct {
	PaymentIntentID string `json:"paymentIntentId"`
	Status          string `json:"status"`
	EventID         string `json:"eventId"`
	FailureMessage  string `json:"failureMessage,omitempty"`
}

// CheckoutSession is the result of verifying a hosted checkout.
type CheckoutSession struct {
	ID            string `json:"id"`
	Paid          bool   `json:"paid"`
	CustomerEmail string `json:"customerEmail,omitempty"`
}
