package models

import "time"

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusRefunded OrderStatus = "REFUNDED"
)

// Order is append-only apart from status transitions, total recomputation
// and the payment correlation id.
type Order struct {
	ID             uint        `gorm:"primaryKey"`
	Code           string      `gorm:"type:varchar(64);uniqueIndex;not null"`
	UserID         uint        `gorm:"not null;index;uniqueIndex:idx_user_idempotency"`
	Status         OrderStatus `gorm:"type:varchar(16);not null;default:'PENDING';index"`
	TotalAmount    float64     `gorm:"not null;default:0"`
	Notes          *string     `gorm:"type:varchar(500)"`
	IdempotencyKey *string     `gorm:"type:varchar(64);uniqueIndex:idx_user_idempotency"`
	PaymentUUID    *string     `gorm:"type:varchar(64);index"`
	Items          []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time   `gorm:"autoCreateTime"`
	UpdatedAt      time.Time   `gorm:"autoUpdateTime"`
}

type OrderItem struct {
	ID         uint      `gorm:"primaryKey"`
	OrderID    uint      `gorm:"not null;uniqueIndex:idx_order_product"`
	ProductID  uint      `gorm:"not null;uniqueIndex:idx_order_product"`
	Quantity   int       `gorm:"not null"`
	UnitPrice  float64   `gorm:"not null"` // snapshot at creation time
	TotalPrice float64   `gorm:"not null"`
	Notes      *string   `gorm:"type:varchar(255)"`
	Product    *Product  `gorm:"foreignKey:ProductID"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// HasPayment reports whether a gateway correlation id is attached.
func (o *Order) HasPayment() bool {
	return o.PaymentUUID != nil && *o.PaymentUUID != ""
}

type OrderItemRequest struct {
	ProductID uint    `json:"product_id" binding:"required,gt=0"`
	Quantity  int     `json:"quantity" binding:"required,gt=0"`
	Notes     *string `json:"notes" binding:"omitempty,max=255"`
}

type CreateOrderRequest struct {
	Items []OrderItemRequest `json:"items" binding:"dive"`
	Notes *string            `json:"notes" binding:"omitempty,max=500"`
}

// CreateOrderOptions carries the header-driven knobs of order creation.
type CreateOrderOptions struct {
	IdempotencyKey  string
	MergeWithLatest bool
	Code            string
}

type UpdateOrderRequest struct {
	Notes *string `json:"notes" binding:"omitempty,max=500"`
}

type OrderItemView struct {
	ID         uint    `json:"id"`
	ProductID  uint    `json:"product_id"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
	Notes      *string `json:"notes,omitempty"`
	Name       string  `json:"name,omitempty"`
	Size       string  `json:"size,omitempty"`
	Image      string  `json:"image,omitempty"`
}

type OrderView struct {
	ID          uint            `json:"id"`
	Code        string          `json:"order_code"`
	UserID      uint            `json:"user_id"`
	Status      OrderStatus     `json:"status"`
	TotalAmount float64         `json:"total_amount"`
	Notes       *string         `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Items       []OrderItemView `json:"items"`
}

type OrderPage struct {
	Orders []OrderView `json:"orders"`
	Total  int64       `json:"total"`
	Page   int         `json:"page"`
	Limit  int         `json:"limit"`
}

// NewOrderView flattens an order and its preloaded items for responses.
func NewOrderView(o *Order) OrderView {
	v := OrderView{
		ID:          o.ID,
		Code:        o.Code,
		UserID:      o.UserID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		Notes:       o.Notes,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		Items:       make([]OrderItemView, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		iv := OrderItemView{
			ID:         it.ID,
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			TotalPrice: it.TotalPrice,
			Notes:      it.Notes,
		}
		if it.Product != nil {
			iv.Name = it.Product.Name
			iv.Size = it.Product.Size
			iv.Image = it.Product.Image
		}
		v.Items = append(v.Items, iv)
	}
	return v
}
