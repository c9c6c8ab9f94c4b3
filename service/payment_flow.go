package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/pkg/logger"
)

// IntentGateway is the backend the payment flow talks to. PaymentService
// implements it.
type IntentGateway interface {
	CreatePaymentIntent(ctx context.Context) (*model.CreatedIntent, error)
	Confirm(ctx context.Context, id, paymentMethodID string) (*model.PaymentIntentDetail, error)
}

// persistedPaymentFlow wraps the state with its layout version. Unversioned
// documents are treated as version 0.
type persistedPaymentFlow struct {
	Version int             `json:"version"`
	State   json.RawMessage `json:"state"`
}

const paymentDeclinedMessage = "Payment failed. Please try again."

// ConfirmResult is the outcome of a confirmation attempt.
type ConfirmResult struct {
	State      model.PaymentFlowState `json:"state"`
	Status     string                 `json:"status"`
	NextAction json.RawMessage        `json:"nextAction,omitempty"`
}

// PaymentFlow drives one device's payment from intent creation to
// confirmation.
type PaymentFlow struct {
	kv      KV
	keys    Keyspace
	gateway IntentGateway
	ledger  *PaymentLedger
	group   singleflight.Group
	mu      sync.Mutex
}

func NewPaymentFlow(kv KV, keys Keyspace, gateway IntentGateway, ledger *PaymentLedger) *PaymentFlow {
	return &PaymentFlow{kv: kv, keys: keys, gateway: gateway, ledger: ledger}
}

func (f *PaymentFlow) key(device string) string {
	return f.keys.Key("payment-flow", device)
}

// State returns the persisted state, migrating older layouts.
func (f *PaymentFlow) State(ctx context.Context, device string) (model.PaymentFlowState, error) {
	raw, err := f.kv.Get(ctx, f.key(device))
	if err != nil {
		if isNotFound(err) {
			return model.PaymentFlowState{}, nil
		}
		return model.PaymentFlowState{}, fmt.Errorf("read payment flow: %w", err)
	}

	state, err := decodePaymentFlowState(raw)
	if err != nil {
		logger.Warn(ctx, "discarding unreadable payment flow state", "error", err)
		_ = f.kv.Delete(ctx, f.key(device))
		return model.PaymentFlowState{}, nil
	}
	return state, nil
}

func decodePaymentFlowState(raw []byte) (model.PaymentFlowState, error) {
	var envelope persistedPaymentFlow
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return model.PaymentFlowState{}, err
	}

	var state model.PaymentFlowState
	switch {
	case envelope.Version == 0 && envelope.State == nil:
		// v0 stored the state object directly. Absent fields take their zero
		// values and a processing flag cannot survive a reload.
		if err := json.Unmarshal(raw, &state); err != nil {
			return model.PaymentFlowState{}, err
		}
		state.IsProcessing = false
	case envelope.Version == model.PaymentFlowStateVersion:
		if err := json.Unmarshal(envelope.State, &state); err != nil {
			return model.PaymentFlowState{}, err
		}
	default:
		return model.PaymentFlowState{}, fmt.Errorf("unsupported payment flow version %d", envelope.Version)
	}
	return state, nil
}

func (f *PaymentFlow) save(ctx context.Context, device string, state model.PaymentFlowState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return saveJSON(ctx, f.kv, f.key(device), persistedPaymentFlow{
		Version: model.PaymentFlowStateVersion,
		State:   raw,
	}, 0)
}

// CreatePaymentIntent reuses an existing client secret; otherwise it creates
// one intent per device no matter how many callers race.
func (f *PaymentFlow) CreatePaymentIntent(ctx context.Context, device string) (model.PaymentFlowState, error) {
	state, err := f.State(ctx, device)
	if err != nil {
		return state, err
	}
	if state.ClientSecret != "" {
		return state, nil
	}

	v, err, shared := f.group.Do(device, func() (any, error) {
		return f.createIntent(ctx, device)
	})
	if shared {
		logger.Debug(ctx, "payment intent creation shared with concurrent caller")
	}
	return v.(model.PaymentFlowState), err
}

func (f *PaymentFlow) createIntent(ctx context.Context, device string) (model.PaymentFlowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.State(ctx, device)
	if err != nil {
		return state, err
	}
	if state.ClientSecret != "" {
		return state, nil
	}

	state.IsProcessing = true
	state.Error = ""
	if err := f.save(ctx, device, state); err != nil {
		return state, err
	}

	created, err := f.gateway.CreatePaymentIntent(ctx)
	state.IsProcessing = false
	if err != nil {
		state.Error = AsProviderError(err).PublicMessage(OpCreate)
		if saveErr := f.save(ctx, device, state); saveErr != nil {
			logger.Error(ctx, "failed to persist payment flow error", "error", saveErr)
		}
		return state, err
	}

	intent := created.PaymentIntent
	state.ClientSecret = created.ClientSecret
	state.PaymentIntent = &intent
	if err := f.save(ctx, device, state); err != nil {
		return state, err
	}
	return state, nil
}

// ConfirmPayment confirms the stored intent. requires_action leaves the
// state untouched; failures keep the client secret so the user can retry.
func (f *PaymentFlow) ConfirmPayment(ctx context.Context, device, paymentMethodID string) (*ConfirmResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.State(ctx, device)
	if err != nil {
		return nil, err
	}
	if state.PaymentIntent == nil || state.ClientSecret == "" {
		return nil, fmt.Errorf("no payment intent to confirm: %w", model.ErrPaymentIncomplete)
	}
	if state.IsComplete {
		return &ConfirmResult{State: state, Status: model.IntentSucceeded}, nil
	}

	if f.ledger != nil && f.ledger.Succeeded(ctx, state.PaymentIntent.ID) {
		return f.markComplete(ctx, device, state)
	}

	state.IsProcessing = true
	state.Error = ""
	if err := f.save(ctx, device, state); err != nil {
		return nil, err
	}

	detail, err := f.gateway.Confirm(ctx, state.PaymentIntent.ID, paymentMethodID)
	state.IsProcessing = false
	if err != nil {
		state.Error = AsProviderError(err).PublicMessage(OpCreate)
		if saveErr := f.save(ctx, device, state); saveErr != nil {
			logger.Error(ctx, "failed to persist payment flow error", "error", saveErr)
		}
		return &ConfirmResult{State: state}, err
	}

	switch detail.Status {
	case model.IntentSucceeded:
		return f.markComplete(ctx, device, state)
	case model.IntentRequiresAction, model.IntentProcessing:
		if err := f.save(ctx, device, state); err != nil {
			return nil, err
		}
		return &ConfirmResult{State: state, Status: detail.Status, NextAction: detail.NextAction}, nil
	}

	state.Error = paymentDeclinedMessage
	if detail.LastError != "" {
		state.Error = detail.LastError
	}
	state.PaymentIntent.Status = detail.Status
	if err := f.save(ctx, device, state); err != nil {
		return nil, err
	}
	logger.Warn(ctx, "payment not successful", "payment_intent_id", detail.ID, "status", detail.Status)
	return &ConfirmResult{State: state, Status: detail.Status}, nil
}

// Must be called with lock held
func (f *PaymentFlow) markComplete(ctx context.Context, device string, state model.PaymentFlowState) (*ConfirmResult, error) {
	state.IsComplete = true
	state.IsProcessing = false
	state.Error = ""
	state.PaymentIntent.Status = model.IntentSucceeded
	if err := f.save(ctx, device, state); err != nil {
		return nil, err
	}
	logger.Info(ctx, "payment complete", "payment_intent_id", state.PaymentIntent.ID)
	return &ConfirmResult{State: state, Status: model.IntentSucceeded}, nil
}

// SetSavedState records the wizard position to restore after a redirect.
func (f *PaymentFlow) SetSavedState(ctx context.Context, device string, saved model.SavedState) (model.PaymentFlowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.State(ctx, device)
	if err != nil {
		return state, err
	}
	state.SavedState = saved
	return state, f.save(ctx, device, state)
}

// Reset discards the state, including the client secret.
func (f *PaymentFlow) Reset(ctx context.Context, device string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kv.Delete(ctx, f.key(device))
}
