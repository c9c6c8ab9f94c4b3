package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/service"
)

func TestCreatePaymentIntent(t *testing.T) {
	app := newTestApp(t, "")

	w := app.do(t, http.MethodPost, "/api/create-payment-intent", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp model.CreatedIntent
	decodeBody(t, w, &resp)
	if resp.ClientSecret != "pi_1_secret" {
		t.Errorf("Expected client secret pi_1_secret, got %s", resp.ClientSecret)
	}
	if resp.PaymentIntent.Amount != 299 {
		t.Errorf("Expected amount 299, got %d", resp.PaymentIntent.Amount)
	}
	if resp.PaymentIntent.Currency != "usd" {
		t.Errorf("Expected currency usd, got %s", resp.PaymentIntent.Currency)
	}
}

func TestCreatePaymentIntentProviderErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
		wantCode    string
	}{
		{
			name:        "card declined",
			err:         &service.ProviderError{Class: service.ClassCard, Code: "card_declined", Message: "Your card was declined."},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Your card was declined.",
			wantCode:    "card_declined",
		},
		{
			name:        "invalid request",
			err:         &service.ProviderError{Class: service.ClassInvalid, Message: "No such customer"},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Invalid payment request",
			wantCode:    "unknown_error",
		},
		{
			name:        "provider unavailable",
			err:         &service.ProviderError{Class: service.ClassUnavailable, Message: "connection reset"},
			wantStatus:  http.StatusServiceUnavailable,
			wantMessage: "Payment service temporarily unavailable",
			wantCode:    "unknown_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, "")
			app.provider.createErr = tt.err

			w := app.do(t, http.MethodPost, "/api/create-payment-intent", nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}

			var resp struct {
				Error   string `json:"error"`
				Message string `json:"message"`
				Code    string `json:"code"`
			}
			decodeBody(t, w, &resp)
			if resp.Error != "Failed to create payment intent" {
				t.Errorf("Unexpected error %q", resp.Error)
			}
			if resp.Message != tt.wantMessage {
				t.Errorf("Expected message %q, got %q", tt.wantMessage, resp.Message)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("Expected code %q, got %q", tt.wantCode, resp.Code)
			}
		})
	}
}

func TestCheckPaymentStatus(t *testing.T) {
	app := newTestApp(t, "")

	w := app.do(t, http.MethodGet, "/api/check-payment-status", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without id, got %d", w.Code)
	}

	app.provider.status = model.IntentRequiresAction
	app.provider.nextAction = json.RawMessage(`{"type":"redirect_to_url"}`)

	w = app.do(t, http.MethodGet, "/api/check-payment-status?paymentIntentId=pi_9", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["status"] != model.IntentRequiresAction {
		t.Errorf("Expected requires_action, got %v", resp["status"])
	}
	if resp["clientSecret"] != "pi_9_secret" {
		t.Errorf("Expected client secret pi_9_secret, got %v", resp["clientSecret"])
	}
	if _, ok := resp["nextAction"]; !ok {
		t.Error("Expected nextAction while action is required")
	}

	app.provider.status = model.IntentSucceeded
	w = app.do(t, http.MethodGet, "/api/check-payment-status?paymentIntentId=pi_9", nil)
	resp = nil
	decodeBody(t, w, &resp)
	if _, ok := resp["nextAction"]; ok {
		t.Error("Expected nextAction to be dropped once succeeded")
	}
}

func TestCapturePayment(t *testing.T) {
	app := newTestApp(t, "")

	w := app.do(t, http.MethodPost, "/api/capture-payment", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without id, got %d", w.Code)
	}

	w = app.do(t, http.MethodPost, "/api/capture-payment", map[string]string{"paymentIntentId": "pi_1"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var result service.CaptureResult
	decodeBody(t, w, &result)
	if result.Status != model.IntentSucceeded || result.AmountCaptured != 299 {
		t.Errorf("Unexpected capture result %+v", result)
	}

	app.provider.captureErr = &service.ProviderError{Class: service.ClassInvalid, Message: "already captured"}
	w = app.do(t, http.MethodPost, "/api/capture-payment", map[string]string{"paymentIntentId": "pi_1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	var resp map[string]string
	decodeBody(t, w, &resp)
	if resp["message"] != "Invalid capture request" {
		t.Errorf("Expected capture wording, got %q", resp["message"])
	}
}

func TestCheckoutSession(t *testing.T) {
	app := newTestApp(t, "")

	w := app.do(t, http.MethodPost, "/api/create-checkout-session", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var created map[string]string
	decodeBody(t, w, &created)
	if created["sessionId"] != "cs_test_1" {
		t.Fatalf("Expected session cs_test_1, got %q", created["sessionId"])
	}

	w = app.do(t, http.MethodPost, "/api/verify-checkout-session", map[string]string{"sessionId": "cs_test_1"})
	var verified map[string]string
	decodeBody(t, w, &verified)
	if verified["status"] != "pending" {
		t.Errorf("Expected pending before payment, got %q", verified["status"])
	}

	app.provider.sessions["cs_test_1"].Paid = true
	app.provider.sessions["cs_test_1"].CustomerEmail = "buyer@example.com"
	w = app.do(t, http.MethodPost, "/api/verify-checkout-session", map[string]string{"sessionId": "cs_test_1"})
	verified = nil
	decodeBody(t, w, &verified)
	if verified["status"] != "complete" || verified["customer_email"] != "buyer@example.com" {
		t.Errorf("Unexpected verification %v", verified)
	}

	w = app.do(t, http.MethodPost, "/api/verify-checkout-session", map[string]string{"sessionId": "cs_missing"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown session, got %d", w.Code)
	}
}

func TestInvalidRequestBody(t *testing.T) {
	app := newTestApp(t, "")

	w := app.do(t, http.MethodPost, "/api/capture-payment", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	var resp map[string]string
	decodeBody(t, w, &resp)
	if resp["error"] != "Invalid request body" {
		t.Errorf("Expected invalid body error, got %q", resp["error"])
	}
}
