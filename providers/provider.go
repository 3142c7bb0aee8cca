package providers

import "context"

// CreatePaymentResult is the normalized outcome of a create call.
type CreatePaymentResult struct {
	Success           bool
	ShopTransactionID string
	// CorrelationID is the provider's id for the payment; empty when the
	// provider response did not carry one.
	CorrelationID string
	RedirectURL   string
	ErrorCode     int
	Error         string
	Raw           map[string]interface{}
}

// RefundResult is the normalized outcome of a refund call.
type RefundResult struct {
	Success bool
	Error   string
	Raw     map[string]interface{}
}

// PaymentGateway defines the interface all payment provider integrations
// must implement. Implementations never return transport errors; every
// failure is reported through Success=false and Error.
type PaymentGateway interface {
	// Name identifies the provider on Payment rows and metrics.
	Name() string

	// CreatePayment registers a payment of amount (minor-unit-free integer in
	// the configured currency) and returns where to send the buyer.
	CreatePayment(ctx context.Context, amount int64, description string) CreatePaymentResult

	// RefundPayment refunds amount against the provider payment.
	RefundPayment(ctx context.Context, correlationID string, amount int64) RefundResult
}
