package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Kapo179/docuseal3/model"
)

// PaymentLedger stores the authoritative payment intent status reported by
// provider webhooks. A success is written to its own key with a
// write-if-absent when the backend supports it, so a late failure event can
// never replace it, even from another process.
type PaymentLedger struct {
	kv   KV
	keys Keyspace
	ttl  time.Duration
	mu   sync.Mutex
}

func NewPaymentLedger(kv KV, keys Keyspace, ttl time.Duration) *PaymentLedger {
	return &PaymentLedger{kv: kv, keys: keys, ttl: ttl}
}

func (l *PaymentLedger) key(intentID string) string {
	return l.keys.Key("payment", intentID)
}

func (l *PaymentLedger) successKey(intentID string) string {
	return l.keys.Key("payment", intentID, "succeeded")
}

// Apply records outcome. changed is false when the intent is already in that
// status or has already succeeded.
func (l *PaymentLedger) Apply(ctx context.Context, outcome model.PaymentOutcome) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if outcome.Status == model.IntentSucceeded {
		return l.markSucceeded(ctx, outcome)
	}

	current, err := l.Get(ctx, outcome.PaymentIntentID)
	if err != nil && !isNotFound(err) {
		return false, err
	}
	if current != nil && (current.Status == outcome.Status || current.Status == model.IntentSucceeded) {
		return false, nil
	}
	if err := saveJSON(ctx, l.kv, l.key(outcome.PaymentIntentID), outcome, l.ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (l *PaymentLedger) markSucceeded(ctx context.Context, outcome model.PaymentOutcome) (bool, error) {
	key := l.successKey(outcome.PaymentIntentID)
	if nx, ok := l.kv.(AtomicKV); ok {
		raw, err := json.Marshal(outcome)
		if err != nil {
			return false, fmt.Errorf("encode %s: %w", key, err)
		}
		created, err := nx.SetIfAbsent(ctx, key, raw, l.ttl)
		if err != nil {
			return false, fmt.Errorf("write %s: %w", key, err)
		}
		return created, nil
	}

	var existing model.PaymentOutcome
	found, err := loadJSON(ctx, l.kv, key, &existing)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}
	if err := saveJSON(ctx, l.kv, key, outcome, l.ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns model.ErrNotFound when no webhook has been seen for intentID.
// A recorded success always wins over the latest non-success status.
func (l *PaymentLedger) Get(ctx context.Context, intentID string) (*model.PaymentOutcome, error) {
	var outcome model.PaymentOutcome
	found, err := loadJSON(ctx, l.kv, l.successKey(intentID), &outcome)
	if err != nil {
		return nil, err
	}
	if found {
		return &outcome, nil
	}

	found, err = loadJSON(ctx, l.kv, l.key(intentID), &outcome)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, model.ErrNotFound
	}
	return &outcome, nil
}

// Succeeded reports whether a webhook confirmed the intent.
func (l *PaymentLedger) Succeeded(ctx context.Context, intentID string) bool {
	outcome, err := l.Get(ctx, intentID)
	return err == nil && outcome.Status == model.IntentSucceeded
}
