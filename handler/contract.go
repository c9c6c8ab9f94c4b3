package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/Kapo179/docuseal3/middleware"
	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/pkg/logger"
	"github.com/Kapo179/docuseal3/service"
	"github.com/gin-gonic/gin"
)

type ContractHandler struct {
	store    *service.ContractStore
	workflow *service.Workflow
}

func NewContractHandler(store *service.ContractStore, workflow *service.Workflow) *ContractHandler {
	return &ContractHandler{store: store, workflow: workflow}
}

type setActiveRequest struct {
	ContractID string `json:"contractId"`
}

// List returns the device's contracts, newest first
func (h *ContractHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	device := middleware.GetDeviceID(c)

	contracts, err := h.store.List(ctx, device)
	if err != nil {
		respondError(c, err, "Failed to list contracts")
		return
	}
	active, err := h.store.Active(ctx, device)
	if err != nil {
		respondError(c, err, "Failed to list contracts")
		return
	}

	if contracts == nil {
		contracts = []*model.Contract{}
	}
	c.JSON(http.StatusOK, gin.H{"contracts": contracts, "activeContractId": active})
}

// Get returns a single contract
func (h *ContractHandler) Get(c *gin.Context) {
	contract, err := h.store.Get(c.Request.Context(), middleware.GetDeviceID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load contract")
		return
	}
	c.JSON(http.StatusOK, contract)
}

// Delete removes a contract
func (h *ContractHandler) Delete(c *gin.Context) {
	if err := h.store.Remove(c.Request.Context(), middleware.GetDeviceID(c), c.Param("id")); err != nil {
		respondError(c, err, "Failed to delete contract")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contract deleted"})
}

// SetActive selects the contract shown by the app
func (h *ContractHandler) SetActive(c *gin.Context) {
	var req setActiveRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.store.SetActive(c.Request.Context(), middleware.GetDeviceID(c), req.ContractID); err != nil {
		respondError(c, err, "Failed to select contract")
		return
	}
	c.JSON(http.StatusOK, gin.H{"activeContractId": req.ContractID})
}

// SigningStatus refreshes the signing status once
func (h *ContractHandler) SigningStatus(c *gin.Context) {
	contract, update, err := h.workflow.RefreshSigningStatus(c.Request.Context(), middleware.GetDeviceID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to check signing status")
		return
	}

	resp := gin.H{"status": update.Status, "contract": contract}
	if update.Message != "" {
		resp["message"] = update.Message
	}
	c.JSON(http.StatusOK, resp)
}

// SigningEvents streams status updates as server-sent events until the
// document reaches a terminal state or the client goes away.
func (h *ContractHandler) SigningEvents(c *gin.Context) {
	ctx := c.Request.Context()
	device := middleware.GetDeviceID(c)
	id := c.Param("id")

	contract, err := h.store.Get(ctx, device, id)
	if err != nil {
		respondError(c, err, "Failed to watch signing status")
		return
	}
	if contract.Signing == nil {
		respondError(c, model.ErrNotFound, "Failed to watch signing status")
		return
	}

	updates := make(chan model.StatusUpdate)
	done := make(chan error, 1)
	go func() {
		defer close(updates)
		done <- h.workflow.WatchSigning(ctx, device, id, func(u model.StatusUpdate) {
			select {
			case updates <- u:
			case <-ctx.Done():
			}
		})
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		update, ok := <-updates
		if !ok {
			if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn(ctx, "signing watch ended", "contract_id", id, "error", err)
				c.SSEvent("error", gin.H{"error": "Failed to check signing status"})
			}
			return false
		}
		c.SSEvent("status", update)
		return true
	})
}
