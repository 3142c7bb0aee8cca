package repository

import (
	"context"

	"checkout-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductRepository is the read-only inventory ledger. It never reserves or
// decrements stock.
type ProductRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uint) (map[uint]models.Product, error)
	// LockByIDs reads like FindByIDs but takes row locks until the
	// surrounding transaction ends.
	LockByIDs(ctx context.Context, ids []uint) (map[uint]models.Product, error)
}

// GormProductRepository implements ProductRepository using GORM.
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository.
func NewGormProductRepository(db *gorm.DB) ProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) FindByID(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormProductRepository) FindByIDs(ctx context.Context, ids []uint) (map[uint]models.Product, error) {
	return r.findByIDs(r.db.WithContext(ctx), ids)
}

func (r *GormProductRepository) LockByIDs(ctx context.Context, ids []uint) (map[uint]models.Product, error) {
	return r.findByIDs(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), ids)
}

func (r *GormProductRepository) findByIDs(q *gorm.DB, ids []uint) (map[uint]models.Product, error) {
	out := make(map[uint]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []models.Product
	if err := q.Where("id IN ?", ids).Order("id").Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}
