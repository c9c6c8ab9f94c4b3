package handler

import (
	"errors"
	"net/http"

	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/service"
	"github.com/gin-gonic/gin"
)

// PaymentHandler serves the payment provider proxy endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type paymentIntentRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

type checkoutSessionRequest struct {
	SessionID string `json:"sessionId"`
}

// CreatePaymentIntent creates an intent for the configured amount
func (h *PaymentHandler) CreatePaymentIntent(c *gin.Context) {
	created, err := h.payments.CreatePaymentIntent(c.Request.Context())
	if err != nil {
		respondPaymentError(c, err, service.OpCreate, "Failed to create payment intent")
		return
	}
	c.JSON(http.StatusOK, created)
}

// CheckPaymentStatus returns the intent status, plus the next action while
// the intent requires one.
func (h *PaymentHandler) CheckPaymentStatus(c *gin.Context) {
	detail, err := h.payments.CheckStatus(c.Request.Context(), c.Query("paymentIntentId"))
	if err != nil {
		var fieldErr *model.FieldError
		if errors.As(err, &fieldErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fieldErr.Message})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check payment status"})
		return
	}

	resp := gin.H{
		"status":       detail.Status,
		"clientSecret": detail.ClientSecret,
	}
	if len(detail.NextAction) > 0 {
		resp["nextAction"] = detail.NextAction
	}
	c.JSON(http.StatusOK, resp)
}

// CapturePayment captures an authorized intent
func (h *PaymentHandler) CapturePayment(c *gin.Context) {
	var req paymentIntentRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.payments.Capture(c.Request.Context(), req.PaymentIntentID)
	if err != nil {
		var fieldErr *model.FieldError
		if errors.As(err, &fieldErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fieldErr.Message})
			return
		}
		respondPaymentError(c, err, service.OpCapture, "Failed to capture payment")
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateCheckoutSession starts a hosted checkout
func (h *PaymentHandler) CreateCheckoutSession(c *gin.Context) {
	id, err := h.payments.CreateCheckoutSession(c.Request.Context())
	if err != nil {
		respondPaymentError(c, err, service.OpCreate, "Failed to create checkout session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": id})
}

// VerifyCheckoutSession reports whether a hosted checkout was paid
func (h *PaymentHandler) VerifyCheckoutSession(c *gin.Context) {
	var req checkoutSessionRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.payments.VerifyCheckoutSession(c.Request.Context(), req.SessionID)
	if err != nil {
		var fieldErr *model.FieldError
		if errors.As(err, &fieldErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fieldErr.Message})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to verify payment session"})
		return
	}

	status := "pending"
	if session.Paid {
		status = "complete"
	}
	resp := gin.H{"status": status}
	if session.CustomerEmail != "" {
		resp["customer_email"] = session.CustomerEmail
	}
	c.JSON(http.StatusOK, resp)
}
