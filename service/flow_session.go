package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Kapo179/docuseal3/model"
)

// FlowSessionStore holds the per-tab hand-off between form, payment and
// signing. Entries expire after ttl, standing in for tab-close.
type FlowSessionStore struct {
	kv   KV
	keys Keyspace
	ttl  time.Duration
	mu   sync.Mutex
}

func NewFlowSessionStore(kv KV, keys Keyspace, ttl time.Duration) *FlowSessionStore {
	return &FlowSessionStore{kv: kv, keys: keys, ttl: ttl}
}

func (s *FlowSessionStore) key(device, tab string) string {
	return s.keys.Key("flow", device, tab)
}

func (s *FlowSessionStore) Get(ctx context.Context, device, tab string) (model.FlowSession, error) {
	var session model.FlowSession
	if _, err := loadJSON(ctx, s.kv, s.key(device, tab), &session); err != nil {
		return model.FlowSession{}, err
	}
	return session, nil
}

func (s *FlowSessionStore) update(ctx context.Context, device, tab string, fn func(*model.FlowSession)) (model.FlowSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.Get(ctx, device, tab)
	if err != nil {
		return model.FlowSession{}, err
	}
	fn(&session)
	if err := saveJSON(ctx, s.kv, s.key(device, tab), session, s.ttl); err != nil {
		return model.FlowSession{}, err
	}
	return session, nil
}

func (s *FlowSessionStore) SetFormData(ctx context.Context, device, tab string, data model.FormData) (model.FlowSession, error) {
	return s.update(ctx, device, tab, func(session *model.FlowSession) {
		session.FormData = &data
	})
}

func (s *FlowSessionStore) SetPaymentComplete(ctx context.Context, device, tab string, complete bool) (model.FlowSession, error) {
	return s.update(ctx, device, tab, func(session *model.FlowSession) {
		session.PaymentComplete = complete
	})
}

func (s *FlowSessionStore) SetContractID(ctx context.Context, device, tab, id string) (model.FlowSession, error) {
	return s.update(ctx, device, tab, func(session *model.FlowSession) {
		session.ContractID = id
	})
}

// Reset restores the empty session: no form, unpaid, no contract.
func (s *FlowSessionStore) Reset(ctx context.Context, device, tab string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(ctx, s.key(device, tab))
}

// RequireSigningReady returns the session when it carries a form with a make
// and model and a completed payment. Otherwise it returns ErrFlowIncomplete
// and the caller should send the user back to the start.
func (s *FlowSessionStore) RequireSigningReady(ctx context.Context, device, tab string, requireContract bool) (model.FlowSession, error) {
	session, err := s.Get(ctx, device, tab)
	if err != nil {
		return model.FlowSession{}, err
	}
	if !session.SigningReady(requireContract) {
		return session, fmt.Errorf("signing setup: %w", model.ErrFlowIncomplete)
	}
	if strings.TrimSpace(session.FormData.Make) == "" || strings.TrimSpace(session.FormData.Model) == "" {
		return session, fmt.Errorf("signing setup: vehicle make and model missing: %w", model.ErrFlowIncomplete)
	}
	return session, nil
}
