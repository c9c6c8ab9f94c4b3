package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Kapo179/docuseal3/config"
	"github.com/Kapo179/docuseal3/model"
)

func newTestBoldSign(t *testing.T, handler http.HandlerFunc) *BoldSignService {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "bs-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return NewBoldSignService(&config.BoldSignConfig{APIURL: server.URL, APIKey: "bs-key"}, "https://app.example.com/")
}

func TestBuildDocumentRequest(t *testing.T) {
	in := BoldSignRequestInput{
		FormData:    testSigningData().FormData,
		SellerName:  " Alice ",
		SellerEmail: "alice@x.com",
		BuyerName:   "Bob",
		BuyerEmail:  "bob@x.com",
	}

	req := BuildDocumentRequest(in)
	if len(req.FormFields) != 6 {
		t.Errorf("Expected 6 vehicle fields without VIN/notes, got %d", len(req.FormFields))
	}
	if req.Signers[0].Name != "Alice" || req.Signers[0].SignerOrder != 1 || req.Signers[1].SignerOrder != 2 {
		t.Errorf("Unexpected signers: %+v", req.Signers)
	}
	if req.ExpiryDays != 30 || !req.ReminderSettings.EnableAutoReminder {
		t.Error("Expected expiry and reminders set")
	}

	in.FormData.VIN = "1HGCM82633A004352"
	in.FormData.InspectionNotes = "Minor scratches"
	req = BuildDocumentRequest(in)
	if len(req.FormFields) != 8 {
		t.Fatalf("Expected VIN and notes fields, got %d", len(req.FormFields))
	}
	notes := req.FormFields[7]
	if notes.ID != "inspection_notes" || notes.IsRequired {
		t.Errorf("Expected optional inspection notes, got %+v", notes)
	}
}

func TestBoldSignCreateEmbeddedRequest(t *testing.T) {
	var got BoldSignDocumentRequest
	svc := newTestBoldSign(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/document/createEmbeddedRequestUrl" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"documentId":"doc-1","sendUrl":"https://app.boldsign.com/send/1"}`))
	})

	result, err := svc.CreateAgreement(context.Background(), testSigningData())
	if err != nil {
		t.Fatalf("CreateAgreement failed: %v", err)
	}
	if result.TemplateID != "doc-1" || result.SigningURL != "https://app.boldsign.com/send/1" || result.Status != "pending" {
		t.Errorf("Unexpected result %+v", result)
	}
	if got.RedirectURL != "https://app.example.com/signing-status" {
		t.Errorf("Unexpected redirect %q", got.RedirectURL)
	}
}

func TestBoldSignUpstreamError(t *testing.T) {
	svc := newTestBoldSign(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Invalid signer email"}`))
	})

	_, err := svc.CreateAgreement(context.Background(), testSigningData())
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Expected UpstreamError, got %v", err)
	}
	if upstream.Status != http.StatusBadRequest || upstream.Message != "Invalid signer email" {
		t.Errorf("Unexpected upstream error %+v", upstream)
	}
}

func TestBoldSignStatusAndEmbeddedURL(t *testing.T) {
	var redirect map[string]string
	svc := newTestBoldSign(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/documents/doc-1/status":
			w.Write([]byte(`{"status":"Declined","message":"Buyer declined"}`))
		case "/documents/doc-1/signers/s-1/embeddedSign":
			json.NewDecoder(r.Body).Decode(&redirect)
			w.Write([]byte(`{"signerId":"s-1","signingUrl":"https://sign/1","expiresAt":"2025-06-02T00:00:00Z"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	status, err := svc.Status(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Status != "declined" || status.Normalized() != model.SigningDeclined {
		t.Errorf("Unexpected status %+v", status)
	}

	link, err := svc.EmbeddedSignURL(ctx, "doc-1", "s-1")
	if err != nil {
		t.Fatalf("EmbeddedSignURL failed: %v", err)
	}
	if link.SigningURL != "https://sign/1" || redirect["redirectUrl"] != "https://app.example.com/signing-status" {
		t.Errorf("Unexpected link %+v / redirect %v", link, redirect)
	}

	if _, err := svc.EmbeddedSignURL(ctx, "doc-1", ""); !errors.Is(err, model.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestBoldSignEscapesDocumentID(t *testing.T) {
	svc := newTestBoldSign(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.EscapedPath() {
		case "/documents/doc%2F1/status":
			w.Write([]byte(`{"status":"Completed"}`))
		case "/documents/doc%2F1/signers/s%3F1/embeddedSign":
			w.Write([]byte(`{"signerId":"s?1","signingUrl":"https://sign/1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	if _, err := svc.Status(ctx, "doc/1"); err != nil {
		t.Errorf("Status failed: %v", err)
	}
	if _, err := svc.EmbeddedSignURL(ctx, "doc/1", "s?1"); err != nil {
		t.Errorf("EmbeddedSignURL failed: %v", err)
	}
}

func TestBoldSignAuditLogAndVerification(t *testing.T) {
	var verifyBody map[string]any
	svc := newTestBoldSign(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/document/downloadAuditLog":
			if r.URL.Query().Get("documentId") != "doc-1" || r.Header.Get("Accept") != "application/pdf" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.4 audit"))
		case "/v1-beta/identityVerification/createEmbeddedVerificationUrl":
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &verifyBody)
			w.Write([]byte(`{"url":"https://verify/1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	pdf, err := svc.DownloadAuditLog(ctx, "doc-1")
	if err != nil {
		t.Fatalf("DownloadAuditLog failed: %v", err)
	}
	if string(pdf) != "%PDF-1.4 audit" {
		t.Errorf("Unexpected PDF body %q", pdf)
	}

	raw, err := svc.CreateManualVerificationURL(ctx, ManualVerificationRequest{DocumentID: "doc-1", EmailID: "bob@x.com", Order: 2, RedirectURL: "https://app/done"})
	if err != nil {
		t.Fatalf("CreateManualVerificationURL failed: %v", err)
	}
	if string(raw) != `{"url":"https://verify/1"}` {
		t.Errorf("Expected passthrough body, got %s", raw)
	}
	if verifyBody["emailId"] != "bob@x.com" || verifyBody["order"] != float64(2) {
		t.Errorf("Unexpected verification body %v", verifyBody)
	}
}

func TestBoldSignNotConfigured(t *testing.T) {
	svc := NewBoldSignService(&config.BoldSignConfig{APIURL: "https://api.boldsign.com"}, "")
	if _, err := svc.DownloadAuditLog(context.Background(), "doc-1"); !errors.Is(err, model.ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}
