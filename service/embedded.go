package service

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/Kapo179/docuseal3/model"
)

// Embedded signing message types posted by the provider iframe
const (
	MessageSigningComplete = "SIGNING_COMPLETE"
	MessageSigningDeclined = "SIGNING_DECLINED"
	MessageSigningError    = "SIGNING_ERROR"
)

// EmbeddedMessage is a relayed iframe postMessage.
type EmbeddedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// EmbeddedSession accepts iframe messages from the provider origin only.
type EmbeddedSession struct {
	origin string
}

func NewEmbeddedSession(providerOrigin string) *EmbeddedSession {
	return &EmbeddedSession{origin: normalizeOrigin(providerOrigin)}
}

func normalizeOrigin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

// HandleMessage returns the resulting status and true when the message is
// accepted. Foreign origins, malformed payloads and unknown types are
// discarded.
func (s *EmbeddedSession) HandleMessage(origin string, data []byte) (model.StatusUpdate, bool) {
	if s.origin == "" || normalizeOrigin(origin) != s.origin {
		return model.StatusUpdate{}, false
	}

	var msg EmbeddedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.StatusUpdate{}, false
	}

	switch msg.Type {
	case MessageSigningComplete:
		return model.StatusUpdate{Status: model.SigningCompleted}, true
	case MessageSigningDeclined:
		return model.StatusUpdate{Status: model.SigningDeclined, Message: "Signing was declined"}, true
	case MessageSigningError:
		text := msg.Message
		if text == "" {
			text = "An error occurred during signing"
		}
		return model.StatusUpdate{Status: model.SigningPending, Message: text}, true
	}
	return model.StatusUpdate{}, false
}
