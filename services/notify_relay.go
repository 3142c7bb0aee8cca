package services

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// NotifyRelay reconciles provider callbacks that an upstream receiver
// forwarded through SQS, optionally wrapped in an SNS notification.
type NotifyRelay struct {
	reconciler WebhookReconciler
	logger     *zap.Logger
}

func NewNotifyRelay(reconciler WebhookReconciler, logger *zap.Logger) *NotifyRelay {
	return &NotifyRelay{reconciler: reconciler, logger: logger}
}

// snsEnvelope unwraps the SNS → SQS message wrapper
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// HandleMessage has the awsclient.MessageHandler shape. It always returns
// nil so the message is deleted; reconciliation logs its own failures.
func (n *NotifyRelay) HandleMessage(ctx context.Context, body string) error {
	payloadBody := body
	var env snsEnvelope
	if err := json.Unmarshal([]byte(body), &env); err == nil && env.Type == "Notification" && env.Message != "" {
		payloadBody = env.Message
	}

	payload := ParseNotifyPayload("", []byte(payloadBody))
	res := n.reconciler.Reconcile(ctx, payload)
	n.logger.Info("Relayed payment notify",
		zap.String("kind", string(payload.Kind)),
		zap.Bool("matched", res.Matched),
		zap.String("status", string(res.Status)),
		zap.Bool("order_transitioned", res.OrderTransitioned),
	)
	return nil
}
