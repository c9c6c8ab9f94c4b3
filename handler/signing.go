package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/pkg/logger"
	"github.com/Kapo179/docuseal3/service"
	"github.com/gin-gonic/gin"
)

// AuditArchiver keeps a copy of downloaded audit trails.
type AuditArchiver interface {
	ArchiveAuditTrail(ctx context.Context, documentID string, pdf []byte) (string, error)
}

// SigningHandler serves the signing provider proxy endpoints.
type SigningHandler struct {
	docuSeal *service.DocuSealService
	boldSign *service.BoldSignService
	archive  AuditArchiver
}

// NewSigningHandler builds the handler. archive may be nil.
func NewSigningHandler(docuSeal *service.DocuSealService, boldSign *service.BoldSignService, archive AuditArchiver) *SigningHandler {
	return &SigningHandler{docuSeal: docuSeal, boldSign: boldSign, archive: archive}
}

type embeddedSignURLRequest struct {
	DocumentID string `json:"documentId"`
	SignerID   string `json:"signerId"`
}

// respondLookupError reports read-only lookups: 400 for missing input, 500
// for anything the provider did.
func respondLookupError(c *gin.Context, err error, failure string) {
	var fieldErr *model.FieldError
	if errors.As(err, &fieldErr) || errors.Is(err, model.ErrNotConfigured) {
		respondError(c, err, failure)
		return
	}
	_ = c.Error(err)
	message := "An unexpected error occurred"
	var upstream *service.UpstreamError
	if errors.As(err, &upstream) {
		message = upstream.Message
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": failure, "message": message})
}

// CreateDocuSealTemplate renders the agreement and opens a submission
func (h *SigningHandler) CreateDocuSealTemplate(c *gin.Context) {
	if !h.docuSeal.Configured() {
		respondError(c, model.ErrNotConfigured, "Failed to create template")
		return
	}

	var data model.SigningData
	if !bindJSON(c, &data) {
		return
	}

	result, err := h.docuSeal.CreateAgreement(c.Request.Context(), data)
	if err != nil {
		respondError(c, err, "Failed to create template")
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetDocuSealStatus returns the lowercased template status
func (h *SigningHandler) GetDocuSealStatus(c *gin.Context) {
	status, err := h.docuSeal.Status(c.Request.Context(), c.Query("templateId"))
	if err != nil {
		respondLookupError(c, err, "Failed to check template status")
		return
	}
	c.JSON(http.StatusOK, status)
}

// CreateBoldSignRequest creates an embedded signing request
func (h *SigningHandler) CreateBoldSignRequest(c *gin.Context) {
	if !h.boldSign.Configured() {
		respondError(c, model.ErrNotConfigured, "Failed to create signing request")
		return
	}

	var in service.BoldSignRequestInput
	if !bindJSON(c, &in) {
		return
	}

	result, err := h.boldSign.CreateEmbeddedRequest(c.Request.Context(), in)
	if err != nil {
		respondError(c, err, "Failed to create signing request")
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetBoldSignStatus returns the lowercased document status
func (h *SigningHandler) GetBoldSignStatus(c *gin.Context) {
	status, err := h.boldSign.Status(c.Request.Context(), c.Query("documentId"))
	if err != nil {
		respondLookupError(c, err, "Failed to check document status")
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetEmbeddedSigningURL returns a signer's embedded signing link
func (h *SigningHandler) GetEmbeddedSigningURL(c *gin.Context) {
	var req embeddedSignURLRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.boldSign.EmbeddedSignURL(c.Request.Context(), req.DocumentID, req.SignerID)
	if err != nil {
		respondLookupError(c, err, "Failed to get embedded signing URL")
		return
	}
	c.JSON(http.StatusOK, result)
}

// DownloadAuditTrail streams the audit log PDF. With encoding=base64 the
// body is base64 text. A copy is archived when object storage is configured.
func (h *SigningHandler) DownloadAuditTrail(c *gin.Context) {
	ctx := c.Request.Context()
	documentID := c.Query("documentId")

	pdf, err := h.boldSign.DownloadAuditLog(ctx, documentID)
	if err != nil {
		respondError(c, err, "Failed to download audit trail")
		return
	}

	if h.archive != nil {
		if link, err := h.archive.ArchiveAuditTrail(ctx, documentID, pdf); err != nil {
			logger.Warn(ctx, "failed to archive audit trail", "document_id", documentID, "error", err)
		} else {
			c.Header("X-Audit-Archive-URL", link)
		}
	}

	c.Header("Content-Disposition", "attachment; filename=audit-trail.pdf")
	if c.Query("encoding") == "base64" {
		c.Header("Content-Transfer-Encoding", "base64")
		c.Data(http.StatusOK, "application/pdf", []byte(base64.StdEncoding.EncodeToString(pdf)))
		return
	}
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// CreateManualVerificationURL passes the provider response through
func (h *SigningHandler) CreateManualVerificationURL(c *gin.Context) {
	if !h.boldSign.Configured() {
		respondError(c, model.ErrNotConfigured, "Failed to create manual verification URL")
		return
	}

	var req service.ManualVerificationRequest
	if !bindJSON(c, &req) {
		return
	}

	raw, err := h.boldSign.CreateManualVerificationURL(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to create manual verification URL")
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}
