package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/pkg/logger"
	"github.com/Kapo179/docuseal3/pkg/metrics"
)

// TemplateCreator creates a provider-side document ready for signing.
type TemplateCreator interface {
	CreateAgreement(ctx context.Context, data model.SigningData) (*model.AgreementResult, error)
}

// StatusChecker looks up a provider document status.
type StatusChecker interface {
	Status(ctx context.Context, documentID string) (*model.DocumentStatus, error)
}

// SigningClient is a full signing provider integration.
type SigningClient interface {
	TemplateCreator
	StatusChecker
}

// SigningFlow validates signing input locally before any provider call.
type SigningFlow struct {
	provider model.SigningProvider
	client   SigningClient
}

func NewSigningFlow(provider model.SigningProvider, client SigningClient) *SigningFlow {
	return &SigningFlow{provider: provider, client: client}
}

func (f *SigningFlow) Provider() model.SigningProvider { return f.provider }

func (f *SigningFlow) Checker() StatusChecker { return f.client }

func trimSigningData(data model.SigningData) model.SigningData {
	data.FormData.Make = strings.TrimSpace(data.FormData.Make)
	data.FormData.Model = strings.TrimSpace(data.FormData.Model)
	data.Seller.Name = strings.TrimSpace(data.Seller.Name)
	data.Seller.Email = strings.TrimSpace(data.Seller.Email)
	data.Buyer.Name = strings.TrimSpace(data.Buyer.Name)
	data.Buyer.Email = strings.TrimSpace(data.Buyer.Email)
	return data
}

// GenerateAgreementTemplate returns a signing URL for seller and buyer.
func (f *SigningFlow) GenerateAgreementTemplate(ctx context.Context, data model.SigningData) (*model.AgreementResult, error) {
	data = trimSigningData(data)
	if err := data.Validate(); err != nil {
		return nil, err
	}

	result, err := f.client.CreateAgreement(ctx, data)
	if err != nil {
		metrics.SigningRequests.WithLabelValues(string(f.provider), metrics.OutcomeFailure).Inc()
		logger.Error(ctx, "signing request failed", "provider", f.provider, "error", err)
		return nil, err
	}
	if result.TemplateID == "" {
		metrics.SigningRequests.WithLabelValues(string(f.provider), metrics.OutcomeFailure).Inc()
		return nil, errors.New("signing request failed: missing template ID")
	}
	if result.SigningURL == "" {
		metrics.SigningRequests.WithLabelValues(string(f.provider), metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("signing request %s failed: missing signing URL", result.TemplateID)
	}
	if result.SubmissionID == "" {
		logger.Warn(ctx, "signing request has no submission id", "template_id", result.TemplateID)
	}

	metrics.SigningRequests.WithLabelValues(string(f.provider), metrics.OutcomeSuccess).Inc()
	return result, nil
}

// Reference builds the contract's pointer to the created document.
func (f *SigningFlow) Reference(result *model.AgreementResult) model.SigningReference {
	ref := model.SigningReference{
		Provider:     f.provider,
		SubmissionID: result.SubmissionID,
		Status:       model.SigningPending,
	}
	if f.provider == model.ProviderBoldSign {
		ref.DocumentID = result.TemplateID
	} else {
		ref.TemplateID = result.TemplateID
	}
	return ref
}
