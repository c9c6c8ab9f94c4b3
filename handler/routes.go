package handler

import (
	"github.com/Kapo179/docuseal3/config"
	"github.com/Kapo179/docuseal3/middleware"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Payment  *PaymentHandler
	Signing  *SigningHandler
	Webhook  *WebhookHandler
	Flow     *FlowHandler
	Contract *ContractHandler
}

// RegisterRoutes mounts the API under /api. Webhooks are neither session
// scoped nor rate limited; everything else gets a device session and limit.
// limit may be nil.
func RegisterRoutes(r gin.IRouter, h *Handlers, session *config.SessionConfig, limit gin.HandlerFunc) {
	api := r.Group("/api")

	api.POST("/stripe-webhook", h.Webhook.Stripe)
	api.POST("/boldsign-webhook", h.Webhook.BoldSign)

	app := api.Group("", middleware.Session(session))
	if limit != nil {
		app.Use(limit)
	}
	{
		app.POST("/create-payment-intent", h.Payment.CreatePaymentIntent)
		app.GET("/check-payment-status", h.Payment.CheckPaymentStatus)
		app.POST("/capture-payment", h.Payment.CapturePayment)
		app.POST("/create-checkout-session", h.Payment.CreateCheckoutSession)
		app.POST("/verify-checkout-session", h.Payment.VerifyCheckoutSession)

		app.POST("/create-docuseal-template", h.Signing.CreateDocuSealTemplate)
		app.GET("/get-docuseal-status", h.Signing.GetDocuSealStatus)
		app.POST("/create-boldsign-request", h.Signing.CreateBoldSignRequest)
		app.GET("/get-boldsign-status", h.Signing.GetBoldSignStatus)
		app.POST("/get-embedded-signing-url", h.Signing.GetEmbeddedSigningURL)
		app.GET("/download-audit-trail", h.Signing.DownloadAuditTrail)
		app.POST("/create-manual-verification-url", h.Signing.CreateManualVerificationURL)

		app.GET("/form", h.Flow.GetForm)
		app.PUT("/form", h.Flow.SaveForm)
		app.DELETE("/form", h.Flow.ClearForm)

		app.GET("/contracts", h.Contract.List)
		app.PUT("/contracts/active", h.Contract.SetActive)
		app.GET("/contracts/:id", h.Contract.Get)
		app.DELETE("/contracts/:id", h.Contract.Delete)
		app.GET("/contracts/:id/signing-status", h.Contract.SigningStatus)
		app.GET("/contracts/:id/signing-events", h.Contract.SigningEvents)
	}

	flow := app.Group("/flow", middleware.TabScope())
	{
		flow.GET("", h.Flow.GetFlow)
		flow.DELETE("", h.Flow.ResetFlow)
		flow.PUT("/form-data", h.Flow.SetFlowFormData)
		flow.GET("/signing-setup", h.Flow.CheckSigningSetup)

		flow.GET("/payment", h.Flow.PaymentState)
		flow.DELETE("/payment", h.Flow.ResetPayment)
		flow.POST("/payment/intent", h.Flow.CreatePaymentIntent)
		flow.POST("/payment/confirm", h.Flow.ConfirmPayment)
		flow.PUT("/payment/saved-state", h.Flow.SetSavedState)
		flow.POST("/payment/complete", h.Flow.CompletePayment)

		flow.POST("/signing", h.Flow.SetupSigning)
		flow.POST("/signing/embedded-message", h.Flow.EmbeddedMessage)
	}
}
