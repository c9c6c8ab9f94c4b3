package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Kapo179/docuseal3/config"
	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/pkg/logger"
)

type DocuSealService struct {
	config     *config.DocuSealConfig
	httpClient *http.Client
	now        func() time.Time
}

// DocuSealTemplateRequest creates a template from HTML
type DocuSealTemplateRequest struct {
	HTML string `json:"html"`
	Name string `json:"name"`
	Size string `json:"size"`
}

// DocuSealSubmitter is one signing party
type DocuSealSubmitter struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type DocuSealSubmissionRequest struct {
	Submitters []DocuSealSubmitter `json:"submitters"`
}

// docuSealID accepts numeric or string ids.
type docuSealID string

func (id *docuSealID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = docuSealID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = docuSealID(n.String())
	return nil
}

type docuSealTemplateResponse struct {
	ID docuSealID `json:"id"`
}

type docuSealSubmissionResponse struct {
	ID         docuSealID `json:"id"`
	SigningURL string     `json:"signing_url"`
}

type docuSealStatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func NewDocuSealService(cfg *config.DocuSealConfig) *DocuSealService {
	return &DocuSealService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: providerTimeout,
		},
		now: time.Now,
	}
}

func (s *DocuSealService) Configured() bool {
	return s.config.AuthToken != ""
}

func (s *DocuSealService) headers() map[string]string {
	return map[string]string{
		"X-Auth-Token": s.config.AuthToken,
		"Accept":       "application/json",
	}
}

func (s *DocuSealService) endpoint(path string) string {
	return strings.TrimRight(s.config.APIURL, "/") + path
}

// CreateAgreement uploads the rendered agreement as a template and opens a
// submission for seller and buyer. A template left behind by a failed
// submission is not cleaned up.
func (s *DocuSealService) CreateAgreement(ctx context.Context, data model.SigningData) (*model.AgreementResult, error) {
	if !s.Configured() {
		return nil, fmt.Errorf("docuseal auth token: %w", model.ErrNotConfigured)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	html, err := RenderAgreement(data, s.now())
	if err != nil {
		return nil, fmt.Errorf("render agreement: %w", err)
	}

	body, _, err := providerRequest(ctx, s.httpClient, "DocuSeal", http.MethodPost, s.endpoint("/templates/html"), s.headers(), DocuSealTemplateRequest{
		HTML: html,
		Name: AgreementName(data.FormData),
		Size: "Letter",
	})
	if err != nil {
		return nil, err
	}

	var tpl docuSealTemplateResponse
	if err := json.Unmarshal(body, &tpl); err != nil {
		return nil, fmt.Errorf("failed to parse template response: %w", err)
	}
	if tpl.ID == "" {
		return nil, errors.New("template creation failed: missing template ID")
	}
	logger.Info(ctx, "docuseal template created", "template_id", tpl.ID)

	body, _, err = providerRequest(ctx, s.httpClient, "DocuSeal", http.MethodPost, s.endpoint("/templates/"+url.PathEscape(string(tpl.ID))+"/submissions"), s.headers(), DocuSealSubmissionRequest{
		Submitters: []DocuSealSubmitter{
			{Name: strings.TrimSpace(data.Seller.Name), Email: strings.TrimSpace(data.Seller.Email), Role: "Seller"},
			{Name: strings.TrimSpace(data.Buyer.Name), Email: strings.TrimSpace(data.Buyer.Email), Role: "Buyer"},
		},
	})
	if err != nil {
		logger.Warn(ctx, "docuseal submission failed, template left in place", "template_id", tpl.ID, "error", err)
		return nil, err
	}

	var sub docuSealSubmissionResponse
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("failed to parse submission response: %w", err)
	}
	if sub.ID == "" {
		logger.Warn(ctx, "submission id missing, proceeding with signing url", "template_id", tpl.ID)
	}
	if sub.SigningURL == "" {
		return nil, errors.New("submission creation failed: missing signing URL")
	}

	return &model.AgreementResult{
		TemplateID:   string(tpl.ID),
		SubmissionID: string(sub.ID),
		SigningURL:   sub.SigningURL,
		Status:       "success",
	}, nil
}

// Status returns the template status, lowercased.
func (s *DocuSealService) Status(ctx context.Context, templateID string) (*model.DocumentStatus, error) {
	if !s.Configured() {
		return nil, fmt.Errorf("docuseal auth token: %w", model.ErrNotConfigured)
	}
	if strings.TrimSpace(templateID) == "" {
		return nil, &model.FieldError{Message: "Template ID is required"}
	}

	body, _, err := providerRequest(ctx, s.httpClient, "DocuSeal", http.MethodGet, s.endpoint("/templates/"+url.PathEscape(templateID)+"/status"), s.headers(), nil)
	if err != nil {
		return nil, err
	}

	var result docuSealStatusResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}
	return &model.DocumentStatus{
		Status:  strings.ToLower(result.Status),
		Message: result.Message,
	}, nil
}
