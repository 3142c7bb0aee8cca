package models

import "time"

// OrderEvent is published to SNS on order lifecycle changes.
type OrderEvent struct {
	EventType   string      `json:"event_type"` // order_created, order_paid, order_refunded
	OrderID     uint        `json:"order_id"`
	OrderCode   string      `json:"order_code"`
	UserID      uint        `json:"user_id"`
	Status      OrderStatus `json:"status"`
	TotalAmount float64     `json:"total_amount"`
	Timestamp   time.Time   `json:"timestamp"`
}

// PaymentEvent is published to SNS when a payment is created or its status changes.
type PaymentEvent struct {
	EventType         string        `json:"event_type"`
	PaymentID         uint          `json:"payment_id"`
	OrderID           *uint         `json:"order_id,omitempty"`
	ShopTransactionID string        `json:"shop_transaction_id"`
	Provider          string        `json:"provider"`
	Status            PaymentStatus `json:"status"`
	Amount            float64       `json:"amount"`
	Currency          string        `json:"currency"`
	Timestamp         time.Time     `json:"timestamp"`
}
