package services

import (
	"context"
	"encoding/json"
	"strings"

	"checkout-service/awsclient"
	"checkout-service/cache"

	"go.uber.org/zap"
)

// Event types published to SNS.
const (
	EventOrderCreated   = "order_created"
	EventOrderPaid      = "order_paid"
	EventOrderRefunded  = "order_refunded"
	EventPaymentCreated = "payment_created"
)

// eventPublisher is the best-effort SNS side channel shared by the services.
type eventPublisher struct {
	snsClient   awsclient.SNSPublisher
	snsTopicArn string
	logger      *zap.Logger
}

func (p eventPublisher) publishEvent(ctx context.Context, eventType string, event interface{}) {
	if p.snsClient == nil || p.snsTopicArn == "" {
		p.logger.Debug("SNS not configured, skipping event publish", zap.String("event_type", eventType))
		return
	}
	b, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal SNS event", zap.Error(err))
		return
	}
	if err := p.snsClient.Publish(ctx, p.snsTopicArn, b, eventType); err != nil {
		p.logger.Warn("Failed to publish SNS event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	p.logger.Info("Published SNS event", zap.String("event_type", eventType))
}

// invalidateOrders signals that the order lists and, when orderID is known,
// one order's cached views are stale. Failures are logged only.
func invalidateOrders(ctx context.Context, inv cache.Invalidator, logger *zap.Logger, orderID uint) {
	if inv == nil {
		return
	}
	patterns := []string{cache.OrdersPrefix}
	if orderID != 0 {
		patterns = append(patterns, cache.OrderPrefix(orderID))
	}
	for _, p := range patterns {
		if err := inv.InvalidatePattern(ctx, p); err != nil {
			logger.Warn("Cache invalidation failed", zap.String("pattern", p), zap.Error(err))
		}
	}
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
