package controllers

import (
	"errors"
	"io"
	"net/http"

	"checkout-service/middleware"
	"checkout-service/models"
	"checkout-service/providers"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxNotifyBody = 1 << 20

// StripeWebhookParser verifies and translates Stripe webhook deliveries.
type StripeWebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*models.NotifyPayload, error)
}

// PaymentController handles payment creation, refunds and provider callbacks.
type PaymentController struct {
	paymentService services.PaymentService
	reconciler     services.WebhookReconciler
	stripe         StripeWebhookParser
	logger         *zap.Logger
}

// NewPaymentController creates a PaymentController. stripe may be nil when
// Stripe is not the configured provider.
func NewPaymentController(svc services.PaymentService, reconciler services.WebhookReconciler, stripe StripeWebhookParser, logger *zap.Logger) *PaymentController {
	return &PaymentController{paymentService: svc, reconciler: reconciler, stripe: stripe, logger: logger}
}

// CreatePayment handles POST /payments/create
func (pc *PaymentController) CreatePayment(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req models.CreatePaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}
	resp, svcErr := pc.paymentService.CreatePayment(ctx.Request.Context(), userID, middleware.IsAdmin(ctx), &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// Refund handles POST /payments/refund (admin)
func (pc *PaymentController) Refund(ctx *gin.Context) {
	var req models.RefundRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}
	resp, svcErr := pc.paymentService.Refund(ctx.Request.Context(), &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// Notify handles POST /payments/notify. The provider always gets 200 so it
// stops retrying; problems are logged by the reconciler.
func (pc *PaymentController) Notify(ctx *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxNotifyBody))
	if err != nil {
		pc.logger.Warn("Failed to read notify body", zap.Error(err))
	}
	payload := services.ParseNotifyPayload(ctx.GetHeader("Content-Type"), body)
	pc.reconciler.Reconcile(ctx.Request.Context(), payload)
	ctx.JSON(http.StatusOK, gin.H{"ok": true})
}

// StripeWebhook handles POST /payments/stripe/webhook
func (pc *PaymentController) StripeWebhook(ctx *gin.Context) {
	if pc.stripe == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Stripe webhooks are not configured"})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxNotifyBody))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid body"})
		return
	}

	payload, err := pc.stripe.ParseWebhook(body, ctx.GetHeader("Stripe-Signature"))
	if errors.Is(err, providers.ErrUnhandledStripeEvent) {
		ctx.JSON(http.StatusOK, gin.H{"ok": true, "ignored": true})
		return
	}
	if err != nil {
		pc.logger.Warn("Rejected Stripe webhook", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}

	pc.reconciler.Reconcile(ctx.Request.Context(), payload)
	ctx.JSON(http.StatusOK, gin.H{"ok": true})
}
