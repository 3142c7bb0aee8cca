package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"checkout-service/models"
	"checkout-service/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestOrderCreate_ReturnsID(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "orders"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(17))
	mock.ExpectCommit()

	order := &models.Order{Code: "tmp-abc", UserID: 1, Status: models.OrderStatusPending, TotalAmount: 10}
	err := repo.Create(context.Background(), order)
	assert.NoError(t, err)
	assert.Equal(t, uint(17), order.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderFindByIdempotencyKey_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE user_id = $1 AND idempotency_key = $2`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	o, err := repo.FindByIdempotencyKey(context.Background(), 1, "key-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Nil(t, o)
}

func TestOrderFindMergeCandidate_FiltersPendingWithoutPayment(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`(payment_uuid IS NULL OR payment_uuid = '') AND created_at >= $3 ORDER BY created_at DESC,id DESC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "user_id", "status", "created_at"}).
			AddRow(5, "5", 1, "PENDING", now))

	o, err := repo.FindMergeCandidate(context.Background(), 1, now.Add(-5*time.Minute))
	assert.NoError(t, err)
	assert.Equal(t, uint(5), o.ID)
	assert.Equal(t, models.OrderStatusPending, o.Status)
}

func TestOrderUpsertItem_UsesConflictClause(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT ("order_id","product_id") DO UPDATE SET`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectCommit()

	item := &models.OrderItem{OrderID: 5, ProductID: 1, Quantity: 2, UnitPrice: 10, TotalPrice: 20}
	assert.NoError(t, repo.UpsertItem(context.Background(), item))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderSumItemTotals(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(total_price), 0) FROM "order_items" WHERE order_id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(59.97))

	total, err := repo.SumItemTotals(context.Background(), 5)
	assert.NoError(t, err)
	assert.InDelta(t, 59.97, total, 1e-9)
}

func TestOrderTransitionStatus_NoRowsMeansNoTransition(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET "status"=$1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	changed, err := repo.TransitionStatus(context.Background(), 5, models.OrderStatusPaid, models.OrderStatusPending)
	assert.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderTransitionStatus_RowChanged(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET "status"=$1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	changed, err := repo.TransitionStatus(context.Background(), 5, models.OrderStatusRefunded,
		models.OrderStatusPending, models.OrderStatusPaid)
	assert.NoError(t, err)
	assert.True(t, changed)
}

func TestOrderDelete_RemovesItemsFirst(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "order_items" WHERE order_id = $1`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "orders" WHERE "orders"."id" = $1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, repo.Delete(context.Background(), 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}
