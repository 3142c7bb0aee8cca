package repository

import (
	"context"

	"checkout-service/models"

	"gorm.io/gorm"
)

// CartRepository defines data-access operations for carts and their lines.
type CartRepository interface {
	FindOldestByUser(ctx context.Context, userID uint) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	ListItems(ctx context.Context, cartID uint) ([]models.CartItem, error)
	FindItem(ctx context.Context, cartID, itemID uint) (*models.CartItem, error)
	FindItemByProduct(ctx context.Context, cartID, productID uint) (*models.CartItem, error)
	CreateItem(ctx context.Context, item *models.CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID uint, quantity int) error
	DeleteItem(ctx context.Context, itemID uint) error
	ClearItems(ctx context.Context, cartID uint) error
	Totals(ctx context.Context, cartID uint) (models.CartTotals, error)
}

// GormCartRepository implements CartRepository using GORM.
type GormCartRepository struct {
	db *gorm.DB
}

// NewGormCartRepository creates a new GormCartRepository.
func NewGormCartRepository(db *gorm.DB) CartRepository {
	return &GormCartRepository{db: db}
}

// FindOldestByUser picks the lowest id when legacy data holds several carts
// for one user.
func (r *GormCartRepository) FindOldestByUser(ctx context.Context, userID uint) (*models.Cart, error) {
	var c models.Cart
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *GormCartRepository) Create(ctx context.Context, cart *models.Cart) error {
	return r.db.WithContext(ctx).Create(cart).Error
}

func (r *GormCartRepository) ListItems(ctx context.Context, cartID uint) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := r.db.WithContext(ctx).
		Preload("Product").
		Where("cart_id = ?", cartID).
		Order("id").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormCartRepository) FindItem(ctx context.Context, cartID, itemID uint) (*models.CartItem, error) {
	var it models.CartItem
	if err := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		First(&it).Error; err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *GormCartRepository) FindItemByProduct(ctx context.Context, cartID, productID uint) (*models.CartItem, error) {
	var it models.CartItem
	if err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&it).Error; err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *GormCartRepository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *GormCartRepository) UpdateItemQuantity(ctx context.Context, itemID uint, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", quantity).Error
}

func (r *GormCartRepository) DeleteItem(ctx context.Context, itemID uint) error {
	return r.db.WithContext(ctx).Delete(&models.CartItem{}, itemID).Error
}

func (r *GormCartRepository) ClearItems(ctx context.Context, cartID uint) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}

// Totals aggregates against current product prices.
func (r *GormCartRepository) Totals(ctx context.Context, cartID uint) (models.CartTotals, error) {
	var t models.CartTotals
	err := r.db.WithContext(ctx).
		Table("cart_items").
		Select("COUNT(cart_items.id) AS line_count, " +
			"COALESCE(SUM(cart_items.quantity), 0) AS total_quantity, " +
			"COALESCE(SUM(products.price * cart_items.quantity), 0) AS total_amount").
		Joins("JOIN products ON products.id = cart_items.product_id").
		Where("cart_items.cart_id = ?", cartID).
		Scan(&t).Error
	return t, err
}
