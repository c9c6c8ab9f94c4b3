package handler

import (
	"errors"
	"net/http"

	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/pkg/logger"
	"github.com/Kapo179/docuseal3/service"
	"github.com/gin-gonic/gin"
)

// entryRoute is where the wizard restarts when a flow guard fails.
const entryRoute = "/"

// respondError maps a service error onto the {error, message, code?} shape.
// failure names what the endpoint was trying to do and is used for
// provider-side failures.
func respondError(c *gin.Context, err error, failure string) {
	ctx := c.Request.Context()
	_ = c.Error(err)

	var fieldErr *model.FieldError
	var upstream *service.UpstreamError
	var provider *service.ProviderError

	switch {
	case errors.As(err, &fieldErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": fieldErr.Message})
	case errors.Is(err, model.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrFlowIncomplete):
		c.JSON(http.StatusConflict, gin.H{"error": "Contract flow incomplete", "redirect": entryRoute})
	case errors.Is(err, model.ErrPaymentIncomplete):
		c.JSON(http.StatusConflict, gin.H{"error": "Payment not complete"})
	case errors.Is(err, model.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Invalid status transition"})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, model.ErrNotConfigured):
		logger.Error(ctx, "provider credential missing", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error"})
	case errors.As(err, &upstream):
		status := upstream.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": failure, "message": upstream.Message})
	case errors.As(err, &provider):
		respondPaymentError(c, provider, service.OpCreate, failure)
	default:
		logger.Error(ctx, failure, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": failure, "message": "An unexpected error occurred"})
	}
}

// respondPaymentError reports a classified payment failure. Only card
// declines carry the provider's own message.
func respondPaymentError(c *gin.Context, err error, op, failure string) {
	pe := service.AsProviderError(err)
	c.JSON(pe.HTTPStatus(), gin.H{
		"error":   failure,
		"message": pe.PublicMessage(op),
		"code":    pe.PublicCode(),
	})
}

// bindJSON decodes the request body, answering 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return false
	}
	return true
}
