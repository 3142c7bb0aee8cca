package services

import (
	"context"
	"time"

	"checkout-service/awsclient"
	"checkout-service/cache"
	"checkout-service/metrics"
	"checkout-service/models"
	"checkout-service/repository"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// WebhookReconciler applies provider callbacks to payments and orders.
// Reconcile never fails: unknown payments and storage errors are logged and
// the callback is still acknowledged.
type WebhookReconciler interface {
	Reconcile(ctx context.Context, payload *models.NotifyPayload) models.ReconcileResult
}

type webhookReconcilerImpl struct {
	store   repository.Store
	carts   CartClearer
	cache   cache.Invalidator
	events  eventPublisher
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewWebhookReconciler(
	store repository.Store,
	carts CartClearer,
	inv cache.Invalidator,
	snsClient awsclient.SNSPublisher,
	snsTopicArn string,
	m *metrics.Metrics,
	logger *zap.Logger,
) WebhookReconciler {
	return &webhookReconcilerImpl{
		store:   store,
		carts:   carts,
		cache:   inv,
		events:  eventPublisher{snsClient: snsClient, snsTopicArn: snsTopicArn, logger: logger},
		metrics: m,
		logger:  logger,
	}
}

func (r *webhookReconcilerImpl) Reconcile(ctx context.Context, payload *models.NotifyPayload) models.ReconcileResult {
	ctx = context.WithoutCancel(ctx)
	fields := ExtractNotifyFields(payload)
	ctx, span := tracer.Start(ctx, "payments.reconcile", trace.WithAttributes(
		attribute.String("notify.kind", string(payloadKind(payload))),
		attribute.String("notify.status", fields.Status),
	))
	defer span.End()

	r.logger.Info("Payment notify received",
		zap.String("kind", string(payloadKind(payload))),
		zap.String("shop_transaction_id", fields.ShopTransactionID),
		zap.String("payment_uuid", fields.CorrelationID),
		zap.String("status", fields.Status),
	)

	payment := r.findPayment(ctx, fields)
	if payment == nil {
		r.logger.Warn("Payment record not found for notify",
			zap.String("shop_transaction_id", fields.ShopTransactionID),
			zap.String("payment_uuid", fields.CorrelationID),
		)
		r.metrics.WebhookEvent(string(MapGatewayStatus(fields.Status)), metrics.OutcomeIgnored)
		invalidateOrders(ctx, r.cache, r.logger, 0)
		return models.ReconcileResult{}
	}

	result := models.ReconcileResult{Matched: true, PaymentID: payment.ID}
	r.linkOrder(ctx, payment, fields.OrderID)

	mapped := MapGatewayStatus(fields.Status)
	next := settledStatus(payment.Status, mapped)
	if next != mapped {
		r.logger.Info("Ignoring status regression on settled payment",
			zap.Uint("payment_id", payment.ID),
			zap.String("current", string(payment.Status)),
			zap.String("incoming", string(mapped)),
		)
	}
	r.logger.Info("Notify status mapped",
		zap.String("status", fields.Status),
		zap.String("mapped", string(next)),
		zap.Uint("payment_id", payment.ID),
	)

	payment.Status = next
	if fields.CorrelationID != "" {
		corr := fields.CorrelationID
		payment.CorrelationID = &corr
	}
	payment.Raw = truncateRaw(payload.Snapshot())
	if err := r.store.Payments().Update(ctx, payment); err != nil {
		r.logger.Error("Failed to update payment from notify", zap.Uint("payment_id", payment.ID), zap.Error(err))
	} else {
		result.PaymentUpdated = true
	}
	result.Status = next
	result.OrderID = payment.OrderID

	if payment.OrderID != nil {
		result.OrderTransitioned = r.applyToOrder(ctx, *payment.OrderID, payment.ID, next)
	} else if next == models.PaymentStatusPaid {
		r.logger.Warn("Payment marked PAID but not linked to any order", zap.Uint("payment_id", payment.ID))
	}

	var orderID uint
	if payment.OrderID != nil {
		orderID = *payment.OrderID
	}
	invalidateOrders(ctx, r.cache, r.logger, orderID)

	outcome := metrics.OutcomeSuccess
	if !result.PaymentUpdated {
		outcome = metrics.OutcomeFailure
	}
	r.metrics.WebhookEvent(string(next), outcome)
	span.SetAttributes(attribute.Bool("order.transitioned", result.OrderTransitioned))
	return result
}

func payloadKind(p *models.NotifyPayload) models.PayloadKind {
	if p == nil {
		return models.PayloadEmpty
	}
	return p.Kind
}

// findPayment looks up by shop transaction id, then by correlation id.
func (r *webhookReconcilerImpl) findPayment(ctx context.Context, f NotifyFields) *models.Payment {
	if f.ShopTransactionID != "" {
		p, err := r.store.Payments().FindByShopTransactionID(ctx, f.ShopTransactionID)
		if err == nil {
			return p
		}
		if !isNotFound(err) {
			r.logger.Error("Payment lookup failed", zap.String("shop_transaction_id", f.ShopTransactionID), zap.Error(err))
		}
	}
	if f.CorrelationID != "" {
		p, err := r.store.Payments().FindByCorrelationID(ctx, f.CorrelationID)
		if err == nil {
			return p
		}
		if !isNotFound(err) {
			r.logger.Error("Payment lookup failed", zap.String("payment_uuid", f.CorrelationID), zap.Error(err))
		}
	}
	return nil
}

// linkOrder binds an unlinked payment to the order named in the callback,
// when that order exists.
func (r *webhookReconcilerImpl) linkOrder(ctx context.Context, payment *models.Payment, orderID *uint) {
	if payment.OrderID != nil || orderID == nil {
		return
	}
	if _, err := r.store.Orders().FindByID(ctx, *orderID); err != nil {
		r.logger.Warn("Failed to link order from notify payload",
			zap.Uint("payment_id", payment.ID),
			zap.Uint("order_id", *orderID),
			zap.Error(err),
		)
		return
	}
	id := *orderID
	payment.OrderID = &id
	r.logger.Info("Linked payment to order from notify payload", zap.Uint("payment_id", payment.ID), zap.Uint("order_id", id))
}

// applyToOrder moves the order with the payment. Transitions are conditional
// so replays change nothing, and a refunded order never becomes PAID.
func (r *webhookReconcilerImpl) applyToOrder(ctx context.Context, orderID, paymentID uint, status models.PaymentStatus) bool {
	var (
		to   models.OrderStatus
		from []models.OrderStatus
	)
	switch status {
	case models.PaymentStatusPaid:
		to, from = models.OrderStatusPaid, []models.OrderStatus{models.OrderStatusPending}
	case models.PaymentStatusRefunded:
		to, from = models.OrderStatusRefunded, []models.OrderStatus{models.OrderStatusPending, models.OrderStatusPaid}
	default:
		return false
	}

	moved, err := r.store.Orders().TransitionStatus(ctx, orderID, to, from...)
	if err != nil {
		r.logger.Warn("Failed to update order status after notify",
			zap.Uint("order_id", orderID),
			zap.String("to", string(to)),
			zap.Error(err),
		)
		return false
	}
	if !moved {
		r.logger.Info("Order status unchanged by notify", zap.Uint("order_id", orderID), zap.String("to", string(to)))
		return false
	}
	r.logger.Info("Order status updated from payment",
		zap.Uint("order_id", orderID),
		zap.Uint("payment_id", paymentID),
		zap.String("status", string(to)),
	)

	order, err := r.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		r.logger.Warn("Failed to reload order after notify", zap.Uint("order_id", orderID), zap.Error(err))
		return true
	}
	if to == models.OrderStatusPaid && r.carts != nil {
		if err := r.carts.ClearCart(ctx, order.UserID); err != nil {
			r.logger.Warn("Failed to clear cart after payment", zap.Uint("user_id", order.UserID), zap.Error(err))
		}
	}

	eventType := EventOrderPaid
	if to == models.OrderStatusRefunded {
		eventType = EventOrderRefunded
	}
	r.events.publishEvent(ctx, eventType, models.OrderEvent{
		EventType:   eventType,
		OrderID:     order.ID,
		OrderCode:   order.Code,
		UserID:      order.UserID,
		Status:      to,
		TotalAmount: order.TotalAmount,
		Timestamp:   time.Now().UTC(),
	})
	return true
}
