package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/Kapo179/docuseal3/service"
	"github.com/gin-gonic/gin"
)

// maxWebhookBody bounds the raw body read before signature verification.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	webhooks *service.WebhookService
}

func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

func readRawBody(c *gin.Context) ([]byte, bool) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return nil, false
	}
	return payload, true
}

// Stripe verifies the Stripe-Signature header over the raw body.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, ok := readRawBody(c)
	if !ok {
		return
	}

	err := h.webhooks.HandleStripe(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, service.ErrMissingSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing stripe-signature header"})
	case errors.Is(err, service.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook signature verification failed"})
	case errors.Is(err, service.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook processing failed"})
	default:
		respondError(c, err, "Webhook processing failed")
	}
}

// BoldSign verifies the X-BoldSign-Signature HMAC before parsing.
func (h *WebhookHandler) BoldSign(c *gin.Context) {
	payload, ok := readRawBody(c)
	if !ok {
		return
	}

	err := h.webhooks.HandleBoldSign(c.Request.Context(), payload, c.GetHeader("X-BoldSign-Signature"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, service.ErrMissingSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing signature"})
	case errors.Is(err, service.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
	case errors.Is(err, service.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook processing failed"})
	default:
		respondError(c, err, "Webhook processing failed")
	}
}
