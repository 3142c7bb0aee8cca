package models

import "time"

type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "CREATED"
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// MaxRawPayloadLength bounds the audit snapshot kept on a payment row.
const MaxRawPayloadLength = 3900

// Payment references its order weakly: OrderID may be unknown until a
// callback carries it.
type Payment struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	OrderID           *uint         `gorm:"index" json:"order_id,omitempty"`
	ShopTransactionID string        `gorm:"type:varchar(64);uniqueIndex;not null" json:"shop_transaction_id"`
	CorrelationID     *string       `gorm:"type:varchar(128);index" json:"payment_uuid,omitempty"`
	Provider          string        `gorm:"type:varchar(16);not null;default:'octo'" json:"provider"`
	Amount            float64       `gorm:"not null" json:"amount"`
	Currency          string        `gorm:"type:varchar(8);not null" json:"currency"`
	Status            PaymentStatus `gorm:"type:varchar(16);not null;default:'CREATED';index" json:"status"`
	Raw               *string       `gorm:"type:text" json:"-"`
	CreatedAt         time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreatePaymentRequest accepts both order_id and orderId, or items to build
// an order from when no order exists yet.
type CreatePaymentRequest struct {
	OrderID      *uint              `json:"order_id" binding:"omitempty,gt=0"`
	OrderIDAlias *uint              `json:"orderId" binding:"omitempty,gt=0"`
	Items        []OrderItemRequest `json:"items" binding:"omitempty,dive"`
	Amount       *int64             `json:"amount" binding:"omitempty,gte=1"`
	TotalSum     *int64             `json:"total_sum" binding:"omitempty,gte=1"`
}

// ResolvedOrderID returns order_id, falling back to orderId.
func (r *CreatePaymentRequest) ResolvedOrderID() uint {
	if r.OrderID != nil && *r.OrderID > 0 {
		return *r.OrderID
	}
	if r.OrderIDAlias != nil && *r.OrderIDAlias > 0 {
		return *r.OrderIDAlias
	}
	return 0
}

// AmountOverride returns amount, falling back to total_sum.
func (r *CreatePaymentRequest) AmountOverride() int64 {
	if r.Amount != nil && *r.Amount > 0 {
		return *r.Amount
	}
	if r.TotalSum != nil && *r.TotalSum > 0 {
		return *r.TotalSum
	}
	return 0
}

type CreatePaymentResponse struct {
	OrderID     uint    `json:"order_id"`
	RedirectURL string  `json:"redirect_url"`
	PaymentUUID *string `json:"payment_uuid"`
}

type RefundRequest struct {
	OrderID uint `json:"order_id" binding:"required,gt=0"`
}

type RefundResponse struct {
	OrderID uint        `json:"order_id"`
	Status  OrderStatus `json:"status"`
}

// ReconcileResult summarizes what a provider callback changed.
type ReconcileResult struct {
	Matched           bool
	PaymentID         uint
	OrderID           *uint
	Status            PaymentStatus
	PaymentUpdated    bool
	OrderTransitioned bool
}
