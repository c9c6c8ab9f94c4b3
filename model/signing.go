package model

import "strings"

type SigningStatus string

const (
	SigningPending   SigningStatus = "pending"
	SigningCompleted SigningStatus = "completed"
	SigningExpired   SigningStatus = "expired"
	SigningDeclined  SigningStatus = "declined"
)

// Terminal reports whether polling should stop.
func (s SigningStatus) Terminal() bool {
	return s == SigningCompleted || s == SigningExpired || s == SigningDeclined
}

// NormalizeSigningStatus maps provider status strings onto SigningStatus.
// Unknown values are treated as still pending.
func NormalizeSigningStatus(raw string) SigningStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "complete", "signed":
		return SigningCompleted
	case "expired":
		return SigningExpired
	case "declined", "revoked", "voided":
		return SigningDeclined
	}
	return SigningPending
}

type SigningProvider string

const (
	ProviderDocuSeal SigningProvider = "docuseal"
	ProviderBoldSign SigningProvider = "boldsign"
)

// SigningReference points at the provider-side document of a contract.
type SigningReference struct {
	Provider     SigningProvider `json:"provider"`
	TemplateID   string          `json:"templateId,omitempty"`
	SubmissionID string          `json:"submissionId,omitempty"`
	DocumentID   string          `json:"documentId,omitempty"`
	Status       SigningStatus   `json:"status"`
}

// ProviderDocumentID is the id used for status lookups.
func (r SigningReference) ProviderDocumentID() string {
	if r.Provider == ProviderBoldSign {
		return r.DocumentID
	}
	return r.TemplateID
}

// SigningData is the input to agreement generation.
type SigningData struct {
	FormData FormData      `json:"formData"`
	Seller   ContractParty `json:"seller"`
	Buyer    ContractParty `json:"buyer"`
}

// Validate trims and checks the fields required to generate an agreement.
func (d SigningData) Validate() error {
	if strings.TrimSpace(d.FormData.Make) == "" || strings.TrimSpace(d.FormData.Model) == "" {
		return &FieldError{Message: "Vehicle make and model are required"}
	}
	if strings.TrimSpace(d.Seller.Name) == "" || strings.TrimSpace(d.Seller.Email) == "" ||
		strings.TrimSpace(d.Buyer.Name) == "" || strings.TrimSpace(d.Buyer.Email) == "" {
		return &FieldError{Message: "Seller and buyer information is required"}
	}
	return nil
}

// AgreementResult is returned once the template and submission exist.
type AgreementResult struct {
	TemplateID   string `json:"templateId"`
	SubmissionID string `json:"submissionId,omitempty"`
	SigningURL   string `json:"signingUrl"`
	Status       string `json:"status"`
}

// DocumentStatus is a provider status lookup result. Status is the provider's
// own value, lowercased.
type DocumentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (d DocumentStatus) Normalized() SigningStatus {
	return NormalizeSigningStatus(d.Status)
}

// StatusUpdate is published whenever a provider document changes state.
type StatusUpdate struct {
	DocumentID string        `json:"documentId"`
	Status     SigningStatus `json:"status"`
	Message    string        `json:"message,omitempty"`
}
