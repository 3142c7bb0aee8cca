package repository

import (
	"context"

	"checkout-service/models"

	"gorm.io/gorm"
)

// PaymentRepository defines data-access operations for payments.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByShopTransactionID(ctx context.Context, shopTxID string) (*models.Payment, error)
	FindByCorrelationID(ctx context.Context, correlationID string) (*models.Payment, error)
	CountByOrder(ctx context.Context, orderID uint) (int64, error)
	Update(ctx context.Context, payment *models.Payment) error
	UpdateStatusByCorrelationID(ctx context.Context, correlationID string, status models.PaymentStatus) (int64, error)
}

// GormPaymentRepository implements PaymentRepository using GORM.
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository.
func NewGormPaymentRepository(db *gorm.DB) PaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *GormPaymentRepository) FindByShopTransactionID(ctx context.Context, shopTxID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).
		Where("shop_transaction_id = ?", shopTxID).
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormPaymentRepository) FindByCorrelationID(ctx context.Context, correlationID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("id DESC").
		Take(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormPaymentRepository) CountByOrder(ctx context.Context, orderID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ?", orderID).
		Count(&n).Error
	return n, err
}

func (r *GormPaymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *GormPaymentRepository) UpdateStatusByCorrelationID(ctx context.Context, correlationID string, status models.PaymentStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("correlation_id = ?", correlationID).
		Update("status", status)
	return res.RowsAffected, res.Error
}
