package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/pkg/logger"
	"github.com/Kapo179/docuseal3/pkg/metrics"
)

// Workflow ties the stores, payment and signing together for one
// device/tab pair.
type Workflow struct {
	forms     *FormStore
	contracts *ContractStore
	flows     *FlowSessionStore
	payments  *PaymentFlow
	signing   *SigningFlow
	checkers  map[model.SigningProvider]StatusChecker
	broker    *StatusBroker
	interval  time.Duration
	mu        sync.Mutex
	setup     singleflight.Group
}

type WorkflowDeps struct {
	Forms        *FormStore
	Contracts    *ContractStore
	Flows        *FlowSessionStore
	Payments     *PaymentFlow
	Signing      *SigningFlow
	Checkers     map[model.SigningProvider]StatusChecker
	Broker       *StatusBroker
	PollInterval time.Duration
}

func NewWorkflow(deps WorkflowDeps) *Workflow {
	return &Workflow{
		forms:     deps.Forms,
		contracts: deps.Contracts,
		flows:     deps.Flows,
		payments:  deps.Payments,
		signing:   deps.Signing,
		checkers:  deps.Checkers,
		broker:    deps.Broker,
		interval:  deps.PollInterval,
	}
}

// CompletePayment turns a confirmed payment into a contract awaiting
// signatures and binds it to the tab. Calling it again returns the bound
// contract.
func (w *Workflow) CompletePayment(ctx context.Context, device, tab string) (*model.Contract, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	session, err := w.flows.Get(ctx, device, tab)
	if err != nil {
		return nil, err
	}
	if session.PaymentComplete && session.ContractID != "" {
		contract, err := w.contracts.Get(ctx, device, session.ContractID)
		if err == nil {
			return contract, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}
	if session.FormData == nil {
		return nil, fmt.Errorf("complete payment: no form data: %w", model.ErrFlowIncomplete)
	}

	state, err := w.payments.State(ctx, device)
	if err != nil {
		return nil, err
	}
	if !state.IsComplete {
		return nil, model.ErrPaymentIncomplete
	}

	id, err := w.contracts.Create(ctx, device, *session.FormData)
	if err != nil {
		return nil, err
	}
	status := model.StatusPendingSignatures
	paid := model.PaymentCompleted
	contract, err := w.contracts.Update(ctx, device, id, model.ContractPatch{Status: &status, PaymentStatus: &paid})
	if err != nil {
		return nil, err
	}

	if _, err := w.flows.SetContractID(ctx, device, tab, id); err != nil {
		return nil, err
	}
	if _, err := w.flows.SetPaymentComplete(ctx, device, tab, true); err != nil {
		return nil, err
	}

	if err := w.forms.Clear(ctx, device); err != nil {
		logger.Warn(ctx, "failed to clear form after payment", "error", err)
	}
	if err := w.payments.Reset(ctx, device); err != nil {
		logger.Warn(ctx, "failed to reset payment flow", "error", err)
	}

	logger.Info(ctx, "contract created after payment", "contract_id", id)
	return contract, nil
}

// SigningSetup is the result of submitting seller and buyer.
type SigningSetup struct {
	ContractID string                 `json:"contractId"`
	SigningURL string                 `json:"signingUrl"`
	Signing    model.SigningReference `json:"signing"`
}

// SetupSigning requires a paid flow bound to an existing contract. On
// success the contract awaits signatures and the tab's flow is reset.
// Concurrent calls for one tab share a single provider request; a call made
// after the flow was reset fails with model.ErrFlowIncomplete.
func (w *Workflow) SetupSigning(ctx context.Context, device, tab string, seller, buyer model.ContractParty) (*SigningSetup, error) {
	v, err, shared := w.setup.Do(device+":"+tab, func() (any, error) {
		return w.setupSigning(ctx, device, tab, seller, buyer)
	})
	if shared {
		logger.Debug(ctx, "signing setup shared with concurrent caller")
	}
	if err != nil {
		return nil, err
	}
	return v.(*SigningSetup), nil
}

func (w *Workflow) setupSigning(ctx context.Context, device, tab string, seller, buyer model.ContractParty) (*SigningSetup, error) {
	session, err := w.flows.RequireSigningReady(ctx, device, tab, true)
	if err != nil {
		return nil, err
	}
	if _, err := w.contracts.Get(ctx, device, session.ContractID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("contract %s missing: %w", session.ContractID, model.ErrFlowIncomplete)
		}
		return nil, err
	}

	result, err := w.signing.GenerateAgreementTemplate(ctx, model.SigningData{
		FormData: *session.FormData,
		Seller:   seller,
		Buyer:    buyer,
	})
	if err != nil {
		return nil, err
	}

	ref := w.signing.Reference(result)
	status := model.StatusPendingSignatures
	parties := model.Parties{Seller: seller, Buyer: buyer}
	if _, err := w.contracts.Update(ctx, device, session.ContractID, model.ContractPatch{
		Status:  &status,
		Parties: &parties,
		Signing: &ref,
	}); err != nil {
		return nil, err
	}

	if err := w.flows.Reset(ctx, device, tab); err != nil {
		logger.Warn(ctx, "failed to reset flow after signing setup", "error", err)
	}

	return &SigningSetup{
		ContractID: session.ContractID,
		SigningURL: result.SigningURL,
		Signing:    ref,
	}, nil
}

func (w *Workflow) signingRef(ctx context.Context, device, contractID string) (model.SigningReference, error) {
	contract, err := w.contracts.Get(ctx, device, contractID)
	if err != nil {
		return model.SigningReference{}, err
	}
	if contract.Signing == nil {
		return model.SigningReference{}, fmt.Errorf("contract %s has no signing request: %w", contractID, model.ErrNotFound)
	}
	return *contract.Signing, nil
}

// ApplySigningStatus records a provider status on the contract. A completed
// document completes the contract.
func (w *Workflow) ApplySigningStatus(ctx context.Context, device, contractID string, update model.StatusUpdate) (*model.Contract, error) {
	contract, err := w.contracts.Get(ctx, device, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Signing == nil {
		return nil, fmt.Errorf("contract %s has no signing request: %w", contractID, model.ErrNotFound)
	}
	if contract.Signing.Status == update.Status {
		return contract, nil
	}
	if contract.Signing.Status.Terminal() {
		logger.Warn(ctx, "ignoring status after terminal state", "contract_id", contractID, "current", contract.Signing.Status, "update", update.Status)
		return contract, nil
	}

	ref := *contract.Signing
	ref.Status = update.Status
	patch := model.ContractPatch{Signing: &ref}
	if update.Status == model.SigningCompleted {
		completed := model.StatusCompleted
		patch.Status = &completed
	}

	updated, err := w.contracts.Update(ctx, device, contractID, patch)
	if err != nil {
		return nil, err
	}
	metrics.SigningStatus.WithLabelValues(string(update.Status)).Inc()
	logger.Info(ctx, "signing status updated", "contract_id", contractID, "status", update.Status)
	return updated, nil
}

// RefreshSigningStatus takes a recorded webhook outcome if one exists and
// otherwise asks the provider once.
func (w *Workflow) RefreshSigningStatus(ctx context.Context, device, contractID string) (*model.Contract, model.StatusUpdate, error) {
	ref, err := w.signingRef(ctx, device, contractID)
	if err != nil {
		return nil, model.StatusUpdate{}, err
	}
	docID := ref.ProviderDocumentID()

	update, ok := w.broker.Last(ctx, docID)
	if !ok {
		checker, err := w.checker(ref.Provider)
		if err != nil {
			return nil, model.StatusUpdate{}, err
		}
		status, err := checker.Status(ctx, docID)
		if err != nil {
			return nil, model.StatusUpdate{}, err
		}
		update = model.StatusUpdate{DocumentID: docID, Status: status.Normalized(), Message: status.Message}
	}

	contract, err := w.ApplySigningStatus(ctx, device, contractID, update)
	if err != nil {
		return nil, model.StatusUpdate{}, err
	}
	return contract, update, nil
}

func (w *Workflow) checker(provider model.SigningProvider) (StatusChecker, error) {
	checker, ok := w.checkers[provider]
	if !ok {
		return nil, fmt.Errorf("signing provider %s: %w", provider, model.ErrNotConfigured)
	}
	return checker, nil
}

// WatchSigning streams status changes for a contract until a terminal state,
// ctx cancellation or a polling failure. Webhook updates and polling race;
// whichever reports first wins.
func (w *Workflow) WatchSigning(ctx context.Context, device, contractID string, emit func(model.StatusUpdate)) error {
	ref, err := w.signingRef(ctx, device, contractID)
	if err != nil {
		return err
	}
	docID := ref.ProviderDocumentID()
	if ref.Status.Terminal() {
		emit(model.StatusUpdate{DocumentID: docID, Status: ref.Status})
		return nil
	}

	checker, err := w.checker(ref.Provider)
	if err != nil {
		return err
	}

	updates, unsubscribe := w.broker.Subscribe(docID)
	defer unsubscribe()

	var last *model.StatusUpdate
	handle := func(update model.StatusUpdate) (bool, error) {
		if _, err := w.ApplySigningStatus(ctx, device, contractID, update); err != nil {
			return false, err
		}
		if last == nil || *last != update {
			emit(update)
			last = &update
		}
		return update.Status.Terminal(), nil
	}

	if recorded, ok := w.broker.Last(ctx, docID); ok {
		_, err := handle(recorded)
		return err
	}

	pollCtx, stop := context.WithCancel(ctx)
	defer stop()

	polled := make(chan model.StatusUpdate)
	pollDone := make(chan error, 1)
	go func() {
		pollDone <- NewStatusPoller(checker, w.interval).Watch(pollCtx, docID, func(u model.StatusUpdate) {
			select {
			case polled <- u:
			case <-pollCtx.Done():
			}
		})
	}()

	for {
		var update model.StatusUpdate
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-pollDone:
			if err != nil {
				return err
			}
			pollDone = nil
			continue
		case update = <-updates:
		case update = <-polled:
		}

		done, err := handle(update)
		if err != nil || done {
			return err
		}
	}
}
