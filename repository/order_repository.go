package repository

import (
	"context"
	"time"

	"checkout-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository defines data-access operations for orders and order items.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	UpdateCode(ctx context.Context, orderID uint, code string) error
	FindByID(ctx context.Context, id uint) (*models.Order, error)
	FindWithItems(ctx context.Context, id uint) (*models.Order, error)
	FindByIdempotencyKey(ctx context.Context, userID uint, key string) (*models.Order, error)
	FindMergeCandidate(ctx context.Context, userID uint, since time.Time) (*models.Order, error)
	ListByUser(ctx context.Context, userID uint, page, limit int) ([]models.Order, int64, error)
	ListItems(ctx context.Context, orderID uint) ([]models.OrderItem, error)
	// UpsertItem inserts a line or, when the (order, product) pair already
	// exists, adds to its quantity and re-prices it.
	UpsertItem(ctx context.Context, item *models.OrderItem) error
	SaveItem(ctx context.Context, item *models.OrderItem) error
	SumItemTotals(ctx context.Context, orderID uint) (float64, error)
	UpdateTotal(ctx context.Context, orderID uint, total float64) error
	UpdateNotes(ctx context.Context, orderID uint, notes *string) error
	SetIdempotencyKey(ctx context.Context, orderID uint, key string) error
	// SetPaymentUUIDIfEmpty attaches a correlation id unless one is set.
	SetPaymentUUIDIfEmpty(ctx context.Context, orderID uint, paymentUUID string) error
	// TransitionStatus moves the order to `to` only when its current status
	// is one of `from`. It reports whether a row changed.
	TransitionStatus(ctx context.Context, orderID uint, to models.OrderStatus, from ...models.OrderStatus) (bool, error)
	Delete(ctx context.Context, orderID uint) error
}

// GormOrderRepository implements OrderRepository using GORM.
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository.
func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *GormOrderRepository) UpdateCode(ctx context.Context, orderID uint, code string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("code", code).Error
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uint) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *GormOrderRepository) FindWithItems(ctx context.Context, id uint) (*models.Order, error) {
	var o models.Order
	if err := r.withItems(r.db.WithContext(ctx)).First(&o, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *GormOrderRepository) FindByIdempotencyKey(ctx context.Context, userID uint, key string) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *GormOrderRepository) FindMergeCandidate(ctx context.Context, userID uint, since time.Time) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND (payment_uuid IS NULL OR payment_uuid = '') AND created_at >= ?",
			userID, models.OrderStatusPending, since).
		Order("created_at DESC").
		Order("id DESC").
		Take(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *GormOrderRepository) ListByUser(ctx context.Context, userID uint, page, limit int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := r.withItems(query).
		Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *GormOrderRepository) ListItems(ctx context.Context, orderID uint) ([]models.OrderItem, error) {
	var items []models.OrderItem
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormOrderRepository) UpsertItem(ctx context.Context, item *models.OrderItem) error {
	return r.db.WithContext(ctx).
		Omit("Product").
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity":    gorm.Expr("order_items.quantity + EXCLUDED.quantity"),
				"unit_price":  gorm.Expr("EXCLUDED.unit_price"),
				"total_price": gorm.Expr("EXCLUDED.unit_price * (order_items.quantity + EXCLUDED.quantity)"),
				"updated_at":  gorm.Expr("EXCLUDED.updated_at"),
			}),
		}).
		Create(item).Error
}

func (r *GormOrderRepository) SaveItem(ctx context.Context, item *models.OrderItem) error {
	return r.db.WithContext(ctx).Omit("Product").Save(item).Error
}

func (r *GormOrderRepository) SumItemTotals(ctx context.Context, orderID uint) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ?", orderID).
		Select("COALESCE(SUM(total_price), 0)").
		Scan(&total).Error
	return total, err
}

func (r *GormOrderRepository) UpdateTotal(ctx context.Context, orderID uint, total float64) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("total_amount", total).Error
}

func (r *GormOrderRepository) UpdateNotes(ctx context.Context, orderID uint, notes *string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("notes", notes).Error
}

func (r *GormOrderRepository) SetIdempotencyKey(ctx context.Context, orderID uint, key string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("idempotency_key", key).Error
}

func (r *GormOrderRepository) SetPaymentUUIDIfEmpty(ctx context.Context, orderID uint, paymentUUID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND (payment_uuid IS NULL OR payment_uuid = '')", orderID).
		Update("payment_uuid", paymentUUID).Error
}

func (r *GormOrderRepository) TransitionStatus(ctx context.Context, orderID uint, to models.OrderStatus, from ...models.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormOrderRepository) Delete(ctx context.Context, orderID uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("order_id = ?", orderID).Delete(&models.OrderItem{}).Error; err != nil {
		return err
	}
	return db.Delete(&models.Order{}, orderID).Error
}

func (r *GormOrderRepository) withItems(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("order_items.id") }).
		Preload("Items.Product")
}
