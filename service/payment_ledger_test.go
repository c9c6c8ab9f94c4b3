package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Kapo179/docuseal3/model"
)

// plainKV hides SetIfAbsent so the ledger takes its non-atomic path.
type plainKV struct{ KV }

func TestPaymentLedgerSuccessIsSticky(t *testing.T) {
	ctx := context.Background()
	ledger := NewPaymentLedger(NewMemoryKV(), Keyspace("test"), time.Hour)

	if _, err := ledger.Get(ctx, "pi_1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	steps := []struct {
		status      string
		wantChanged bool
		wantStatus  string
	}{
		{model.IntentProcessing, true, model.IntentProcessing},
		{model.IntentProcessing, false, model.IntentProcessing},
		{model.IntentSucceeded, true, model.IntentSucceeded},
		{model.IntentSucceeded, false, model.IntentSucceeded},
		{model.IntentRequiresPaymentMethod, false, model.IntentSucceeded},
	}
	for _, step := range steps {
		changed, err := ledger.Apply(ctx, model.PaymentOutcome{PaymentIntentID: "pi_1", Status: step.status})
		if err != nil {
			t.Fatalf("Apply(%s) failed: %v", step.status, err)
		}
		if changed != step.wantChanged {
			t.Errorf("Apply(%s) changed = %v, want %v", step.status, changed, step.wantChanged)
		}
		current, err := ledger.Get(ctx, "pi_1")
		if err != nil || current.Status != step.wantStatus {
			t.Errorf("After %s expected %s, got %+v (%v)", step.status, step.wantStatus, current, err)
		}
	}
}

func TestPaymentLedgerConcurrentApply(t *testing.T) {
	backends := []struct {
		name string
		kv   func() KV
	}{
		{"atomic", func() KV { return NewMemoryKV() }},
		{"plain", func() KV { return plainKV{NewMemoryKV()} }},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 50; i++ {
				ledger := NewPaymentLedger(b.kv(), Keyspace("test"), time.Hour)

				var wg sync.WaitGroup
				start := make(chan struct{})
				for _, status := range []string{model.IntentSucceeded, model.IntentRequiresPaymentMethod, model.IntentCanceled} {
					wg.Add(1)
					go func(status string) {
						defer wg.Done()
						<-start
						if _, err := ledger.Apply(ctx, model.PaymentOutcome{PaymentIntentID: "pi_1", Status: status}); err != nil {
							t.Errorf("Apply(%s) failed: %v", status, err)
						}
					}(status)
				}
				close(start)
				wg.Wait()

				if !ledger.Succeeded(ctx, "pi_1") {
					current, _ := ledger.Get(ctx, "pi_1")
					t.Fatalf("Iteration %d: success lost, ledger holds %+v", i, current)
				}
			}
		})
	}
}
