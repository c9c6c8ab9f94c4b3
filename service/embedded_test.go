package service

import (
	"testing"

	"github.com/Kapo179/docuseal3/model"
)

func TestEmbeddedSessionHandleMessage(t *testing.T) {
	session := NewEmbeddedSession("https://docuseal.com")

	tests := []struct {
		name       string
		origin     string
		data       string
		wantOK     bool
		wantStatus model.SigningStatus
		wantMsg    string
	}{
		{"complete", "https://docuseal.com", `{"type":"SIGNING_COMPLETE"}`, true, model.SigningCompleted, ""},
		{"declined", "https://docuseal.com", `{"type":"SIGNING_DECLINED"}`, true, model.SigningDeclined, "Signing was declined"},
		{"error with message", "https://docuseal.com", `{"type":"SIGNING_ERROR","message":"Session timed out"}`, true, model.SigningPending, "Session timed out"},
		{"error default message", "https://docuseal.com", `{"type":"SIGNING_ERROR"}`, true, model.SigningPending, "An error occurred during signing"},
		{"trailing slash origin", "https://docuseal.com/", `{"type":"SIGNING_COMPLETE"}`, true, model.SigningCompleted, ""},
		{"foreign origin", "https://evil.example", `{"type":"SIGNING_COMPLETE"}`, false, "", ""},
		{"lookalike origin", "https://docuseal.com.evil.example", `{"type":"SIGNING_COMPLETE"}`, false, "", ""},
		{"malformed json", "https://docuseal.com", `SIGNING_COMPLETE`, false, "", ""},
		{"unknown type", "https://docuseal.com", `{"type":"RESIZE"}`, false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			update, ok := session.HandleMessage(tt.origin, []byte(tt.data))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if update.Status != tt.wantStatus || update.Message != tt.wantMsg {
				t.Errorf("Unexpected update %+v", update)
			}
		})
	}
}
