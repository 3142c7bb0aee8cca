package models

import "time"

// Product is the catalog row the checkout flow reads stock and price from.
// The catalog service owns it; this service never writes to it.
type Product struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Size      string    `gorm:"type:varchar(32)" json:"size"`
	Image     string    `gorm:"type:varchar(1024)" json:"image"`
	Price     float64   `gorm:"not null" json:"price"`
	Quantity  int       `gorm:"not null;default:0" json:"quantity"` // available stock
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
