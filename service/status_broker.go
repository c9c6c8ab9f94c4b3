package service

import (
	"context"
	"sync"
	"time"

	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/pkg/logger"
)

// StatusBroker fans signing status updates out to in-process subscribers.
// The latest terminal update per document is also kept in the KV so a
// subscriber that arrives after the webhook still sees it.
type StatusBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.StatusUpdate]struct{}
	kv   KV
	keys Keyspace
	ttl  time.Duration
}

func NewStatusBroker(kv KV, keys Keyspace, ttl time.Duration) *StatusBroker {
	return &StatusBroker{
		subs: make(map[string]map[chan model.StatusUpdate]struct{}),
		kv:   kv,
		keys: keys,
		ttl:  ttl,
	}
}

// Subscribe returns a channel of updates for documentID and a cancel func
// that must be called once the caller stops reading.
func (b *StatusBroker) Subscribe(documentID string) (<-chan model.StatusUpdate, func()) {
	ch := make(chan model.StatusUpdate, 4)

	b.mu.Lock()
	if b.subs[documentID] == nil {
		b.subs[documentID] = make(map[chan model.StatusUpdate]struct{})
	}
	b.subs[documentID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[documentID], ch)
			if len(b.subs[documentID]) == 0 {
				delete(b.subs, documentID)
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers update to current subscribers without blocking. Slow
// subscribers miss intermediate updates.
func (b *StatusBroker) Publish(ctx context.Context, update model.StatusUpdate) {
	if update.Status.Terminal() {
		if err := saveJSON(ctx, b.kv, b.keys.Key("signing-status", update.DocumentID), update, b.ttl); err != nil {
			logger.Warn(ctx, "failed to persist signing status", "document_id", update.DocumentID, "error", err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[update.DocumentID] {
		select {
		case ch <- update:
		default:
			logger.Warn(ctx, "dropping status update for slow subscriber", "document_id", update.DocumentID)
		}
	}
}

// Last returns the most recent terminal update recorded for documentID.
func (b *StatusBroker) Last(ctx context.Context, documentID string) (model.StatusUpdate, bool) {
	var update model.StatusUpdate
	found, err := loadJSON(ctx, b.kv, b.keys.Key("signing-status", documentID), &update)
	if err != nil || !found {
		return model.StatusUpdate{}, false
	}
	return update, true
}

func (b *StatusBroker) subscriberCount(documentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[documentID])
}
