package model

import (
	"time"
)

type ContractType string

const (
	ContractTypeVehicle ContractType = "vehicle"
	// ContractTypeInfluencer is reserved; no flow creates it yet.
	ContractTypeInfluencer ContractType = "influencer"
)

type ContractStatus string

// ContractStatus constants
const (
	StatusDraft             ContractStatus = "draft"
	StatusPendingSignatures ContractStatus = "pending_signatures"
	StatusCompleted         ContractStatus = "completed"
)

func (s ContractStatus) rank() int {
	switch s {
	case StatusDraft:
		return 0
	case StatusPendingSignatures:
		return 1
	case StatusCompleted:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether next is the same status or a later one.
func (s ContractStatus) CanAdvanceTo(next ContractStatus) bool {
	if next.rank() < 0 || s.rank() < 0 {
		return false
	}
	return next.rank() >= s.rank()
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

type ContractParty struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Parties struct {
	Seller ContractParty `json:"seller"`
	Buyer  ContractParty `json:"buyer"`
}

// Contract represents one agreement instance
type Contract struct {
	ID            string            `json:"id"`
	Type          ContractType      `json:"type"`
	Status        ContractStatus    `json:"status"`
	FormData      FormData          `json:"formData"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	PaymentStatus PaymentStatus     `json:"paymentStatus"`
	Parties       *Parties          `json:"parties,omitempty"`
	Signing       *SigningReference `json:"signing,omitempty"`
}

// ContractPatch lists the mutable fields of a Contract. Nil means unchanged.
type ContractPatch struct {
	Status        *ContractStatus   `json:"status,omitempty"`
	PaymentStatus *PaymentStatus    `json:"paymentStatus,omitempty"`
	FormData      *FormData         `json:"formData,omitempty"`
	Parties       *Parties          `json:"parties,omitempty"`
	Signing       *SigningReference `json:"signing,omitempty"`
}
