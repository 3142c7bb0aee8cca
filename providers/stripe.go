package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"checkout-service/models"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/refund"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
)

// StripeConfig holds Checkout settings.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
	// MinorUnits converts order amounts into Stripe's smallest currency unit.
	MinorUnits int64
}

// ErrUnhandledStripeEvent is returned by ParseWebhook for event types that
// carry no payment status.
var ErrUnhandledStripeEvent = errors.New("unhandled stripe event")

// StripeGateway implements PaymentGateway with Stripe Checkout Sessions.
// The session id is the correlation id.
type StripeGateway struct {
	cfg    StripeConfig
	logger *zap.Logger
}

func NewStripeGateway(cfg StripeConfig, logger *zap.Logger) *StripeGateway {
	stripe.Key = cfg.SecretKey
	if cfg.Currency == "" {
		cfg.Currency = "uzs"
	}
	if cfg.MinorUnits <= 0 {
		cfg.MinorUnits = 100
	}
	return &StripeGateway{cfg: cfg, logger: logger}
}

func (s *StripeGateway) Name() string { return "stripe" }

func (s *StripeGateway) CreatePayment(ctx context.Context, amount int64, description string) CreatePaymentResult {
	if amount <= 0 {
		return CreatePaymentResult{Error: "total_sum must be positive"}
	}

	shopTxID := uuid.NewString()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(shopTxID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.cfg.Currency),
				UnitAmount: stripe.Int64(amount * s.cfg.MinorUnits),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(description),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	params.AddMetadata("shop_transaction_id", shopTxID)

	sess, err := session.New(params)
	if err != nil {
		return CreatePaymentResult{Error: stripeErrorMessage(err)}
	}

	return CreatePaymentResult{
		Success:           true,
		ShopTransactionID: shopTxID,
		CorrelationID:     sess.ID,
		RedirectURL:       sess.URL,
		Raw: map[string]interface{}{
			"id":             sess.ID,
			"status":         string(sess.Status),
			"payment_status": string(sess.PaymentStatus),
		},
	}
}

func (s *StripeGateway) RefundPayment(ctx context.Context, correlationID string, amount int64) RefundResult {
	if correlationID == "" {
		return RefundResult{Error: "payment UUID required"}
	}
	if amount <= 0 {
		return RefundResult{Error: "amount must be positive"}
	}

	getParams := &stripe.CheckoutSessionParams{}
	getParams.Context = ctx
	getParams.AddExpand("payment_intent")
	sess, err := session.Get(correlationID, getParams)
	if err != nil {
		return RefundResult{Error: stripeErrorMessage(err)}
	}
	if sess.PaymentIntent == nil || sess.PaymentIntent.ID == "" {
		return RefundResult{Error: "checkout session has no payment intent"}
	}

	refundParams := &stripe.RefundParams{
		PaymentIntent: stripe.String(sess.PaymentIntent.ID),
		Amount:        stripe.Int64(amount * s.cfg.MinorUnits),
	}
	refundParams.Context = ctx
	r, err := refund.New(refundParams)
	if err != nil {
		return RefundResult{Error: stripeErrorMessage(err)}
	}
	return RefundResult{Success: true, Raw: map[string]interface{}{"id": r.ID, "status": string(r.Status)}}
}

// ParseWebhook verifies the Stripe-Signature header and translates a
// checkout session event into the payload shape the reconciler reads.
func (s *StripeGateway) ParseWebhook(payload []byte, signature string) (*models.NotifyPayload, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("verify stripe signature: %w", err)
	}
	return EventToPayload(event)
}

// EventToPayload maps checkout.session.* events to a notify payload.
func EventToPayload(event stripe.Event) (*models.NotifyPayload, error) {
	var status string
	switch event.Type {
	case "checkout.session.completed":
		status = "pending"
	case "checkout.session.async_payment_succeeded":
		status = "succeeded"
	case "checkout.session.async_payment_failed":
		status = "failed"
	case "checkout.session.expired":
		status = "canceled"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnhandledStripeEvent, event.Type)
	}

	if event.Data == nil {
		return nil, fmt.Errorf("stripe event %s has no data", event.ID)
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	if event.Type == "checkout.session.completed" && sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		status = "completed"
	}

	shopTxID := sess.Metadata["shop_transaction_id"]
	if shopTxID == "" {
		shopTxID = sess.ClientReferenceID
	}

	fields := map[string]interface{}{
		"status":       status,
		"payment_uuid": sess.ID,
		"event_id":     event.ID,
		"event_type":   string(event.Type),
	}
	if shopTxID != "" {
		fields["shop_transaction_id"] = shopTxID
	}
	if orderID := sess.Metadata["order_id"]; orderID != "" {
		fields["order_id"] = orderID
	}
	return &models.NotifyPayload{Kind: models.PayloadJSON, Fields: fields, Raw: string(event.Data.Raw)}, nil
}

func stripeErrorMessage(err error) string {
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		return se.Msg
	}
	return err.Error()
}
