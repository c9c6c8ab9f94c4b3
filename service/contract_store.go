package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kapo179/docuseal3/model"
)

// contractCatalog is the persisted layout of one device's contracts.
type contractCatalog struct {
	Contracts        []*model.Contract `json:"contracts"`
	ActiveContractID string            `json:"activeContractId,omitempty"`
}

func (c *contractCatalog) find(id string) *model.Contract {
	for _, contract := range c.Contracts {
		if contract.ID == id {
			return contract
		}
	}
	return nil
}

// ContractStore is the durable catalog of created contracts per device.
type ContractStore struct {
	kv           KV
	keys         Keyspace
	mu           sync.Mutex
	maxContracts int // Maximum contracts kept per device, 0 = unlimited
	now          func() time.Time
	newID        func() string
}

func NewContractStore(kv KV, keys Keyspace, maxContracts int) *ContractStore {
	if maxContracts < 0 {
		maxContracts = 0
	}
	return &ContractStore{
		kv:           kv,
		keys:         keys,
		maxContracts: maxContracts,
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
	}
}

func (s *ContractStore) key(device string) string {
	return s.keys.Key("contracts", device)
}

func (s *ContractStore) load(ctx context.Context, device string) (*contractCatalog, error) {
	catalog := &contractCatalog{}
	if _, err := loadJSON(ctx, s.kv, s.key(device), catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (s *ContractStore) save(ctx context.Context, device string, catalog *contractCatalog) error {
	return saveJSON(ctx, s.kv, s.key(device), catalog, 0)
}

// Create snapshots formData into a new draft contract, makes it the active
// contract and returns its id.
func (s *ContractStore) Create(ctx context.Context, device string, formData model.FormData) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog, err := s.load(ctx, device)
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	contract := &model.Contract{
		ID:            s.newID(),
		Type:          model.ContractTypeVehicle,
		Status:        model.StatusDraft,
		FormData:      formData,
		CreatedAt:     now,
		UpdatedAt:     now,
		PaymentStatus: model.PaymentPending,
	}
	catalog.Contracts = append(catalog.Contracts, contract)
	catalog.ActiveContractID = contract.ID

	s.cleanupIfNeeded(catalog)

	if err := s.save(ctx, device, catalog); err != nil {
		return "", err
	}
	return contract.ID, nil
}

// Update merges patch into the contract. id, type and createdAt never change;
// status may only move forward.
func (s *ContractStore) Update(ctx context.Context, device, id string, patch model.ContractPatch) (*model.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog, err := s.load(ctx, device)
	if err != nil {
		return nil, err
	}

	contract := catalog.find(id)
	if contract == nil {
		return nil, fmt.Errorf("contract %s: %w", id, model.ErrNotFound)
	}

	if patch.Status != nil {
		if !contract.Status.CanAdvanceTo(*patch.Status) {
			return nil, fmt.Errorf("contract %s %s -> %s: %w", id, contract.Status, *patch.Status, model.ErrInvalidTransition)
		}
		contract.Status = *patch.Status
	}
	if patch.PaymentStatus != nil {
		contract.PaymentStatus = *patch.PaymentStatus
	}
	if patch.FormData != nil {
		contract.FormData = *patch.FormData
	}
	if patch.Parties != nil {
		parties := *patch.Parties
		contract.Parties = &parties
	}
	if patch.Signing != nil {
		ref := *patch.Signing
		contract.Signing = &ref
	}

	now := s.now().UTC()
	if !now.After(contract.UpdatedAt) {
		now = contract.UpdatedAt.Add(time.Millisecond)
	}
	contract.UpdatedAt = now

	if err := s.save(ctx, device, catalog); err != nil {
		return nil, err
	}

	out := *contract
	return &out, nil
}

func (s *ContractStore) Get(ctx context.Context, device, id string) (*model.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog, err := s.load(ctx, device)
	if err != nil {
		return nil, err
	}
	contract := catalog.find(id)
	if contract == nil {
		return nil, fmt.Errorf("contract %s: %w", id, model.ErrNotFound)
	}
	out := *contract
	return &out, nil
}

// FindBySigningDocument locates the contract tied to a provider document.
func (s *ContractStore) FindBySigningDocument(ctx context.Context, device, documentID string) (*model.Contract, error) {
	contracts, err := s.List(ctx, device)
	if err != nil {
		return nil, err
	}
	for _, c := range contracts {
		if c.Signing != nil && c.Signing.ProviderDocumentID() == documentID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("signing document %s: %w", documentID, model.ErrNotFound)
}

// List returns the device's contracts, newest first.
func (s *ContractStore) List(ctx context.Context, device string) ([]*model.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog, err := s.load(ctx, device)
	if err != nil {
		return nil, err
	}

	result := make([]*model.Contract, 0, len(catalog.Contracts))
	for _, c := range catalog.Contracts {
		copied := *c
		result = append(result, &copied)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Remove deletes the contract and clears the active pointer if it matched.
func (s *ContractStore) Remove(ctx context.Context, device, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog, err := s.load(ctx, device)
	if err != nil {
		return err
	}

	kept := catalog.Contracts[:0]
	for _, c := range catalog.Contracts {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	catalog.Contracts = kept
	if catalog.ActiveContractID == id {
		catalog.ActiveContractID = ""
	}
	return s.save(ctx, device, catalog)
}

// SetActive points the device at id; an empty id clears the pointer.
func (s *ContractStore) SetActive(ctx context.Context, device, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog, err := s.load(ctx, device)
	if err != nil {
		return err
	}
	if id != "" && catalog.find(id) == nil {
		return fmt.Errorf("contract %s: %w", id, model.ErrNotFound)
	}
	catalog.ActiveContractID = id
	return s.save(ctx, device, catalog)
}

// Active returns the active contract id, or "" if none.
func (s *ContractStore) Active(ctx context.Context, device string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog, err := s.load(ctx, device)
	if err != nil {
		return "", err
	}
	return catalog.ActiveContractID, nil
}

// cleanupIfNeeded removes the oldest contracts beyond maxContracts.
// Must be called with lock held
func (s *ContractStore) cleanupIfNeeded(catalog *contractCatalog) {
	if s.maxContracts <= 0 || len(catalog.Contracts) <= s.maxContracts {
		return
	}

	sort.SliceStable(catalog.Contracts, func(i, j int) bool {
		return catalog.Contracts[i].CreatedAt.Before(catalog.Contracts[j].CreatedAt)
	})

	removeCount := len(catalog.Contracts) - s.maxContracts
	for _, c := range catalog.Contracts[:removeCount] {
		slog.Info("auto-cleaning old contract",
			"contract_id", c.ID,
			"created_at", c.CreatedAt,
		)
		if catalog.ActiveContractID == c.ID {
			catalog.ActiveContractID = ""
		}
	}
	catalog.Contracts = catalog.Contracts[removeCount:]
}
