package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Kapo179/docuseal3/config"
	"github.com/Kapo179/docuseal3/middleware"
	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/service"
	"github.com/gin-gonic/gin"
)

// FlowHandler drives the wizard: form snapshot, tab flow session, payment
// and signing setup.
type FlowHandler struct {
	forms    *service.FormStore
	flows    *service.FlowSessionStore
	payments *service.PaymentFlow
	workflow *service.Workflow
	embedded *service.EmbeddedSession
	session  *config.SessionConfig
	now      func() time.Time
}

type FlowDeps struct {
	Forms    *service.FormStore
	Flows    *service.FlowSessionStore
	Payments *service.PaymentFlow
	Workflow *service.Workflow
	Embedded *service.EmbeddedSession
	Session  *config.SessionConfig
}

func NewFlowHandler(deps FlowDeps) *FlowHandler {
	return &FlowHandler{
		forms:    deps.Forms,
		flows:    deps.Flows,
		payments: deps.Payments,
		workflow: deps.Workflow,
		embedded: deps.Embedded,
		session:  deps.Session,
		now:      time.Now,
	}
}

type confirmPaymentRequest struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

type setupSigningRequest struct {
	Seller model.ContractParty `json:"seller"`
	Buyer  model.ContractParty `json:"buyer"`
}

type embeddedMessageRequest struct {
	ContractID string          `json:"contractId"`
	Origin     string          `json:"origin"`
	Data       json.RawMessage `json:"data"`
}

// messagePayload unwraps a postMessage payload sent as a JSON string.
func (r embeddedMessageRequest) messagePayload() []byte {
	var text string
	if err := json.Unmarshal(r.Data, &text); err == nil {
		return []byte(text)
	}
	return r.Data
}

// GetForm returns the saved snapshot or defaults
func (h *FlowHandler) GetForm(c *gin.Context) {
	data, err := h.forms.Load(c.Request.Context(), middleware.GetDeviceID(c))
	if err != nil {
		respondError(c, err, "Failed to load form")
		return
	}
	c.JSON(http.StatusOK, data)
}

// SaveForm persists the snapshot after a field change
func (h *FlowHandler) SaveForm(c *gin.Context) {
	var data model.FormData
	if !bindJSON(c, &data) {
		return
	}
	if err := data.Validate(h.now()); err != nil {
		respondError(c, err, "Failed to save form")
		return
	}
	if err := h.forms.Save(c.Request.Context(), middleware.GetDeviceID(c), data); err != nil {
		respondError(c, err, "Failed to save form")
		return
	}
	c.JSON(http.StatusOK, data)
}

// ClearForm removes the snapshot and the session marker
func (h *FlowHandler) ClearForm(c *gin.Context) {
	if err := h.forms.Clear(c.Request.Context(), middleware.GetDeviceID(c)); err != nil {
		respondError(c, err, "Failed to clear form")
		return
	}
	middleware.ClearDeviceSession(c, h.session)
	c.Status(http.StatusNoContent)
}

// GetFlow returns the tab's flow session
func (h *FlowHandler) GetFlow(c *gin.Context) {
	session, err := h.flows.Get(c.Request.Context(), middleware.GetDeviceID(c), middleware.GetTabID(c))
	if err != nil {
		respondError(c, err, "Failed to load flow")
		return
	}
	c.JSON(http.StatusOK, session)
}

// SetFlowFormData copies the saved form snapshot into the tab's flow
func (h *FlowHandler) SetFlowFormData(c *gin.Context) {
	ctx := c.Request.Context()
	device := middleware.GetDeviceID(c)

	data, err := h.forms.Load(ctx, device)
	if err != nil {
		respondError(c, err, "Failed to update flow")
		return
	}
	if err := data.Validate(h.now()); err != nil {
		respondError(c, err, "Failed to update flow")
		return
	}

	session, err := h.flows.SetFormData(ctx, device, middleware.GetTabID(c), data)
	if err != nil {
		respondError(c, err, "Failed to update flow")
		return
	}
	c.JSON(http.StatusOK, session)
}

// ResetFlow clears the tab's flow session
func (h *FlowHandler) ResetFlow(c *gin.Context) {
	if err := h.flows.Reset(c.Request.Context(), middleware.GetDeviceID(c), middleware.GetTabID(c)); err != nil {
		respondError(c, err, "Failed to reset flow")
		return
	}
	c.Status(http.StatusNoContent)
}

// CheckSigningSetup is the guard for the signing setup route
func (h *FlowHandler) CheckSigningSetup(c *gin.Context) {
	session, err := h.flows.RequireSigningReady(c.Request.Context(), middleware.GetDeviceID(c), middleware.GetTabID(c), true)
	if err != nil {
		respondError(c, err, "Failed to check flow")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true, "session": session})
}

// PaymentState returns the device's payment flow state
func (h *FlowHandler) PaymentState(c *gin.Context) {
	state, err := h.payments.State(c.Request.Context(), middleware.GetDeviceID(c))
	if err != nil {
		respondError(c, err, "Failed to load payment")
		return
	}
	c.JSON(http.StatusOK, state)
}

// CreatePaymentIntent reuses a live client secret or creates a new intent
func (h *FlowHandler) CreatePaymentIntent(c *gin.Context) {
	state, err := h.payments.CreatePaymentIntent(c.Request.Context(), middleware.GetDeviceID(c))
	if err != nil {
		respondPaymentError(c, err, service.OpCreate, "Failed to create payment intent")
		return
	}
	c.JSON(http.StatusOK, state)
}

// ConfirmPayment confirms the stored intent
func (h *FlowHandler) ConfirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	result, err := h.payments.ConfirmPayment(c.Request.Context(), middleware.GetDeviceID(c), req.PaymentMethodID)
	if err != nil {
		if result == nil {
			respondError(c, err, "Failed to confirm payment")
			return
		}
		respondPaymentError(c, err, service.OpCreate, "Failed to confirm payment")
		return
	}
	c.JSON(http.StatusOK, result)
}

// ResetPayment discards the payment flow state
func (h *FlowHandler) ResetPayment(c *gin.Context) {
	if err := h.payments.Reset(c.Request.Context(), middleware.GetDeviceID(c)); err != nil {
		respondError(c, err, "Failed to reset payment")
		return
	}
	c.Status(http.StatusNoContent)
}

// SetSavedState records the wizard position across the payment redirect
func (h *FlowHandler) SetSavedState(c *gin.Context) {
	var saved model.SavedState
	if !bindJSON(c, &saved) {
		return
	}
	state, err := h.payments.SetSavedState(c.Request.Context(), middleware.GetDeviceID(c), saved)
	if err != nil {
		respondError(c, err, "Failed to save payment state")
		return
	}
	c.JSON(http.StatusOK, state)
}

// CompletePayment creates the contract for a paid flow
func (h *FlowHandler) CompletePayment(c *gin.Context) {
	contract, err := h.workflow.CompletePayment(c.Request.Context(), middleware.GetDeviceID(c), middleware.GetTabID(c))
	if err != nil {
		respondError(c, err, "Failed to complete payment")
		return
	}
	c.JSON(http.StatusOK, contract)
}

// SetupSigning submits seller and buyer and returns the signing URL
func (h *FlowHandler) SetupSigning(c *gin.Context) {
	var req setupSigningRequest
	if !bindJSON(c, &req) {
		return
	}

	setup, err := h.workflow.SetupSigning(c.Request.Context(), middleware.GetDeviceID(c), middleware.GetTabID(c), req.Seller, req.Buyer)
	if err != nil {
		respondError(c, err, "Failed to create signing request")
		return
	}
	c.JSON(http.StatusOK, setup)
}

// EmbeddedMessage relays an iframe postMessage. Accepted messages only
// prompt a provider lookup; the message itself is not trusted as the
// document status.
func (h *FlowHandler) EmbeddedMessage(c *gin.Context) {
	var req embeddedMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	update, ok := h.embedded.HandleMessage(req.Origin, req.messagePayload())
	if !ok {
		c.JSON(http.StatusOK, gin.H{"accepted": false})
		return
	}

	resp := gin.H{"accepted": true, "status": update.Status}
	if update.Message != "" {
		resp["message"] = update.Message
	}
	if update.Status == model.SigningPending || req.ContractID == "" {
		c.JSON(http.StatusOK, resp)
		return
	}

	contract, current, err := h.workflow.RefreshSigningStatus(c.Request.Context(), middleware.GetDeviceID(c), req.ContractID)
	if err != nil {
		respondError(c, err, "Failed to check signing status")
		return
	}
	resp["status"] = current.Status
	resp["contract"] = contract
	c.JSON(http.StatusOK, resp)
}
