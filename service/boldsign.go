package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Kapo179/docuseal3/config"
	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/pkg/logger"
)

type BoldSignService struct {
	config     *config.BoldSignConfig
	httpClient *http.Client
	publicURL  string
}

type BoldSignBounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type BoldSignFormField struct {
	ID         string         `json:"id"`
	FieldType  string         `json:"fieldType"`
	Value      string         `json:"value,omitempty"`
	PageNumber int            `json:"pageNumber"`
	IsRequired bool           `json:"isRequired"`
	Bounds     BoldSignBounds `json:"bounds"`
}

type BoldSignSigner struct {
	Name         string              `json:"name"`
	EmailAddress string              `json:"emailAddress"`
	SignerType   string              `json:"signerType"`
	SignerOrder  int                 `json:"signerOrder"`
	FormFields   []BoldSignFormField `json:"formFields"`
}

type BoldSignReminderSettings struct {
	EnableAutoReminder bool `json:"enableAutoReminder"`
	ReminderDays       int  `json:"reminderDays"`
	ReminderCount      int  `json:"reminderCount"`
}

type BoldSignIdentityVerification struct {
	Type                  string `json:"type"`
	MaximumRetryCount     int    `json:"maximumRetryCount"`
	RequireLiveCapture    bool   `json:"requireLiveCapture"`
	RequireMatchingSelfie bool   `json:"requireMatchingSelfie"`
	NameMatcher           string `json:"nameMatcher"`
}

// BoldSignDocumentRequest is the createEmbeddedRequestUrl body
type BoldSignDocumentRequest struct {
	Title                        string                       `json:"title"`
	Message                      string                       `json:"message"`
	Signers                      []BoldSignSigner             `json:"signers"`
	FormFields                   []BoldSignFormField          `json:"formFields"`
	EnableSigningOrder           bool                         `json:"enableSigningOrder"`
	RedirectURL                  string                       `json:"redirectUrl,omitempty"`
	ShowToolbar                  bool                         `json:"showToolbar"`
	ShowNavigationButtons        bool                         `json:"showNavigationButtons"`
	ShowPreviewButton            bool                         `json:"showPreviewButton"`
	Locale                       string                       `json:"locale"`
	ExpiryDays                   int                          `json:"expiryDays"`
	ReminderSettings             BoldSignReminderSettings     `json:"reminderSettings"`
	IdentityVerificationSettings BoldSignIdentityVerification `json:"identityVerificationSettings"`
}

// BoldSignRequestInput is the create-boldsign-request body.
type BoldSignRequestInput struct {
	FormData    model.FormData `json:"formData"`
	SellerName  string         `json:"sellerName"`
	SellerEmail string         `json:"sellerEmail"`
	BuyerName   string         `json:"buyerName"`
	BuyerEmail  string         `json:"buyerEmail"`
	RedirectURL string         `json:"redirectUrl"`
}

func (in BoldSignRequestInput) signingData() model.SigningData {
	return model.SigningData{
		FormData: in.FormData,
		Seller:   model.ContractParty{Name: in.SellerName, Email: in.SellerEmail},
		Buyer:    model.ContractParty{Name: in.BuyerName, Email: in.BuyerEmail},
	}
}

// BoldSignRequestResult is the create-boldsign-request response.
type BoldSignRequestResult struct {
	DocumentID string `json:"documentId"`
	SigningURL string `json:"signingUrl"`
	Status     string `json:"status"`
}

// EmbeddedSignURL is a per-signer signing link.
type EmbeddedSignURL struct {
	SignerID   string `json:"signerId"`
	SigningURL string `json:"signingUrl"`
	ExpiresAt  string `json:"expiresAt"`
}

// ManualVerificationRequest is forwarded to the identity verification API.
type ManualVerificationRequest struct {
	DocumentID  string `json:"documentId"`
	EmailID     string `json:"emailId"`
	Order       int    `json:"order"`
	RedirectURL string `json:"redirectUrl"`
}

func NewBoldSignService(cfg *config.BoldSignConfig, publicURL string) *BoldSignService {
	return &BoldSignService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: providerTimeout,
		},
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (s *BoldSignService) Configured() bool {
	return s.config.APIKey != "" && s.config.APIURL != ""
}

func (s *BoldSignService) headers(accept string) map[string]string {
	return map[string]string{
		"X-API-KEY": s.config.APIKey,
		"Accept":    accept,
	}
}

func (s *BoldSignService) endpoint(path string) string {
	return strings.TrimRight(s.config.APIURL, "/") + path
}

func (s *BoldSignService) requireConfig() error {
	if !s.Configured() {
		return fmt.Errorf("boldsign api key: %w", model.ErrNotConfigured)
	}
	return nil
}

func signatureField(id string, x int) BoldSignFormField {
	return BoldSignFormField{
		ID:         id,
		FieldType:  "Signature",
		PageNumber: 1,
		IsRequired: true,
		Bounds:     BoldSignBounds{X: x, Y: 700, Width: 200, Height: 50},
	}
}

func textField(id, value string, y, width, height int, required bool) BoldSignFormField {
	return BoldSignFormField{
		ID:         id,
		FieldType:  "Text",
		Value:      value,
		PageNumber: 1,
		IsRequired: required,
		Bounds:     BoldSignBounds{X: 50, Y: y, Width: width, Height: height},
	}
}

// BuildDocumentRequest lays out the vehicle fields and the two signers.
func BuildDocumentRequest(in BoldSignRequestInput) BoldSignDocumentRequest {
	form := in.FormData
	fields := []BoldSignFormField{
		textField("vehicle_make", form.Make, 100, 200, 30, true),
		textField("vehicle_model", form.Model, 150, 200, 30, true),
		textField("vehicle_year", strconv.Itoa(form.Year), 200, 100, 30, true),
		textField("vehicle_mileage", strconv.Itoa(form.Mileage), 250, 150, 30, true),
		textField("vehicle_condition", string(form.Condition), 300, 150, 30, true),
		textField("vehicle_price", FormatPrice(form.Currency, form.Price), 350, 200, 30, true),
	}
	if form.VIN != "" {
		fields = append(fields, textField("vehicle_vin", form.VIN, 400, 250, 30, true))
	}
	if form.InspectionNotes != "" {
		fields = append(fields, textField("inspection_notes", form.InspectionNotes, 450, 500, 100, false))
	}

	return BoldSignDocumentRequest{
		Title:   "Vehicle Sales Agreement",
		Message: "Please review and sign the vehicle sales agreement",
		Signers: []BoldSignSigner{
			{
				Name:         strings.TrimSpace(in.SellerName),
				EmailAddress: strings.TrimSpace(in.SellerEmail),
				SignerType:   "Signer",
				SignerOrder:  1,
				FormFields:   []BoldSignFormField{signatureField("seller_signature", 50)},
			},
			{
				Name:         strings.TrimSpace(in.BuyerName),
				EmailAddress: strings.TrimSpace(in.BuyerEmail),
				SignerType:   "Signer",
				SignerOrder:  2,
				FormFields:   []BoldSignFormField{signatureField("buyer_signature", 300)},
			},
		},
		FormFields:            fields,
		EnableSigningOrder:    true,
		RedirectURL:           in.RedirectURL,
		ShowToolbar:           true,
		ShowNavigationButtons: true,
		ShowPreviewButton:     true,
		Locale:                "EN",
		ExpiryDays:            30,
		ReminderSettings: BoldSignReminderSettings{
			EnableAutoReminder: true,
			ReminderDays:       3,
			ReminderCount:      3,
		},
		IdentityVerificationSettings: BoldSignIdentityVerification{
			Type:                  "EveryAccess",
			MaximumRetryCount:     3,
			RequireLiveCapture:    true,
			RequireMatchingSelfie: true,
			NameMatcher:           "Strict",
		},
	}
}

// CreateEmbeddedRequest creates a document with an embedded sending URL.
func (s *BoldSignService) CreateEmbeddedRequest(ctx context.Context, in BoldSignRequestInput) (*BoldSignRequestResult, error) {
	if err := s.requireConfig(); err != nil {
		return nil, err
	}
	if err := in.signingData().Validate(); err != nil {
		return nil, err
	}

	body, _, err := providerRequest(ctx, s.httpClient, "BoldSign", http.MethodPost, s.endpoint("/v1/document/createEmbeddedRequestUrl"), s.headers("application/json"), BuildDocumentRequest(in))
	if err != nil {
		return nil, err
	}

	var resp struct {
		DocumentID string `json:"documentId"`
		SendURL    string `json:"sendUrl"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.DocumentID == "" || resp.SendURL == "" {
		return nil, errors.New("signing request creation failed: missing document ID or URL")
	}
	logger.Info(ctx, "boldsign embedded request created", "document_id", resp.DocumentID)

	return &BoldSignRequestResult{
		DocumentID: resp.DocumentID,
		SigningURL: resp.SendURL,
		Status:     string(model.SigningPending),
	}, nil
}

// CreateAgreement adapts the embedded request to the agreement contract used
// by the signing flow.
func (s *BoldSignService) CreateAgreement(ctx context.Context, data model.SigningData) (*model.AgreementResult, error) {
	result, err := s.CreateEmbeddedRequest(ctx, BoldSignRequestInput{
		FormData:    data.FormData,
		SellerName:  data.Seller.Name,
		SellerEmail: data.Seller.Email,
		BuyerName:   data.Buyer.Name,
		BuyerEmail:  data.Buyer.Email,
		RedirectURL: s.publicURL + "/signing-status",
	})
	if err != nil {
		return nil, err
	}
	return &model.AgreementResult{
		TemplateID: result.DocumentID,
		SigningURL: result.SigningURL,
		Status:     result.Status,
	}, nil
}

func (s *BoldSignService) Status(ctx context.Context, documentID string) (*model.DocumentStatus, error) {
	if err := s.requireConfig(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(documentID) == "" {
		return nil, &model.FieldError{Message: "Document ID is required"}
	}

	body, _, err := providerRequest(ctx, s.httpClient, "BoldSign", http.MethodGet, s.endpoint("/documents/"+url.PathEscape(documentID)+"/status"), s.headers("application/json"), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &model.DocumentStatus{Status: strings.ToLower(resp.Status), Message: resp.Message}, nil
}

// EmbeddedSignURL returns a signing link that redirects back to the app.
func (s *BoldSignService) EmbeddedSignURL(ctx context.Context, documentID, signerID string) (*EmbeddedSignURL, error) {
	if err := s.requireConfig(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(documentID) == "" || strings.TrimSpace(signerID) == "" {
		return nil, &model.FieldError{Message: "Document ID and Signer ID are required"}
	}

	path := fmt.Sprintf("/documents/%s/signers/%s/embeddedSign", url.PathEscape(documentID), url.PathEscape(signerID))
	body, _, err := providerRequest(ctx, s.httpClient, "BoldSign", http.MethodPost, s.endpoint(path), s.headers("application/json"), map[string]string{
		"redirectUrl": s.publicURL + "/signing-status",
	})
	if err != nil {
		return nil, err
	}

	var result EmbeddedSignURL
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// DownloadAuditLog returns the audit trail PDF bytes.
func (s *BoldSignService) DownloadAuditLog(ctx context.Context, documentID string) ([]byte, error) {
	if err := s.requireConfig(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(documentID) == "" {
		return nil, &model.FieldError{Message: "Document ID is required"}
	}

	body, _, err := providerRequest(ctx, s.httpClient, "BoldSign", http.MethodGet,
		s.endpoint("/v1/document/downloadAuditLog?documentId="+url.QueryEscape(documentID)),
		s.headers("application/pdf"), nil)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// CreateManualVerificationURL passes the provider response through unchanged.
func (s *BoldSignService) CreateManualVerificationURL(ctx context.Context, req ManualVerificationRequest) (json.RawMessage, error) {
	if err := s.requireConfig(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		return nil, &model.FieldError{Message: "Document ID is required"}
	}

	body, _, err := providerRequest(ctx, s.httpClient, "BoldSign", http.MethodPost,
		s.endpoint("/v1-beta/identityVerification/createEmbeddedVerificationUrl?documentId="+url.QueryEscape(req.DocumentID)),
		s.headers("application/json"),
		map[string]any{
			"emailId":     req.EmailID,
			"order":       req.Order,
			"redirectUrl": req.RedirectURL,
		})
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, errors.New("verification response is not valid JSON")
	}
	return json.RawMessage(body), nil
}
