package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"checkout-service/awsclient"
	"checkout-service/cache"
	"checkout-service/metrics"
	"checkout-service/models"
	"checkout-service/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultMaxQtyPerItem = 50
	DefaultMergeWindow   = 5 * time.Minute
	MaxIdempotencyKeyLen = 64
	MaxOrdersPageLimit   = 100
	defaultOrdersPage    = 20
)

// OrderConfig tunes the creation engine.
type OrderConfig struct {
	MaxQtyPerItem int
	MergeWindow   time.Duration
	// LockStock reads products with SELECT ... FOR UPDATE so concurrent
	// orders for the same product serialize.
	LockStock bool
	CacheTTL  time.Duration
}

// OrderService defines the interface for order business logic.
type OrderService interface {
	CreateOrder(ctx context.Context, userID uint, req *models.CreateOrderRequest, opts models.CreateOrderOptions) (*models.OrderView, *ServiceError)
	CreateFromCart(ctx context.Context, userID uint, clearCart bool) (*models.OrderView, *ServiceError)
	GetOrder(ctx context.Context, userID uint, isAdmin bool, orderID uint) (*models.OrderView, *ServiceError)
	ListOrders(ctx context.Context, userID uint, page, limit int) (*models.OrderPage, *ServiceError)
	UpdateOrder(ctx context.Context, userID uint, isAdmin bool, orderID uint, req *models.UpdateOrderRequest) (*models.OrderView, *ServiceError)
	DeleteOrder(ctx context.Context, userID uint, isAdmin bool, orderID uint) *ServiceError
}

type orderServiceImpl struct {
	store   repository.Store
	carts   CartService
	cache   cache.Cache
	events  eventPublisher
	metrics *metrics.Metrics
	cfg     OrderConfig
	logger  *zap.Logger
	now     func() time.Time
}

func NewOrderService(
	store repository.Store,
	carts CartService,
	responseCache cache.Cache,
	snsClient awsclient.SNSPublisher,
	snsTopicArn string,
	m *metrics.Metrics,
	cfg OrderConfig,
	logger *zap.Logger,
) OrderService {
	if cfg.MaxQtyPerItem <= 0 {
		cfg.MaxQtyPerItem = DefaultMaxQtyPerItem
	}
	if cfg.MergeWindow <= 0 {
		cfg.MergeWindow = DefaultMergeWindow
	}
	return &orderServiceImpl{
		store:   store,
		carts:   carts,
		cache:   responseCache,
		events:  eventPublisher{snsClient: snsClient, snsTopicArn: snsTopicArn, logger: logger},
		metrics: m,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// orderLine is one product after clamping and per-product aggregation.
type orderLine struct {
	productID uint
	quantity  int
	notes     *string
}

// CreateOrder runs to completion once started, even if the caller goes away.
func (s *orderServiceImpl) CreateOrder(ctx context.Context, userID uint, req *models.CreateOrderRequest, opts models.CreateOrderOptions) (*models.OrderView, *ServiceError) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "orders.create", trace.WithAttributes(
		attribute.Int64("user.id", int64(userID)),
		attribute.Int("order.lines", len(req.Items)),
		attribute.Bool("order.merge_requested", opts.MergeWithLatest),
	))
	start := s.now()

	order, path, serr := s.create(ctx, userID, req, opts)
	endSpan(span, serr)
	if serr != nil {
		s.metrics.OrderFailed(serr.Code)
		return nil, serr
	}
	s.metrics.OrderCreated(path, s.now().Sub(start))

	if path != metrics.PathIdempotent {
		invalidateOrders(ctx, s.cache, s.logger, order.ID)
		s.events.publishEvent(ctx, EventOrderCreated, models.OrderEvent{
			EventType:   EventOrderCreated,
			OrderID:     order.ID,
			OrderCode:   order.Code,
			UserID:      order.UserID,
			Status:      order.Status,
			TotalAmount: order.TotalAmount,
			Timestamp:   s.now().UTC(),
		})
	}

	fields := append([]zap.Field{
		zap.Uint("order_id", order.ID),
		zap.Uint("user_id", userID),
		zap.String("path", path),
		zap.Float64("total_amount", order.TotalAmount),
	}, traceFields(span)...)
	s.logger.Info("Order created", fields...)

	v := models.NewOrderView(order)
	return &v, nil
}

func (s *orderServiceImpl) create(ctx context.Context, userID uint, req *models.CreateOrderRequest, opts models.CreateOrderOptions) (*models.Order, string, *ServiceError) {
	if len(req.Items) == 0 {
		return nil, "", ErrEmptyOrder()
	}
	key := strings.TrimSpace(opts.IdempotencyKey)
	if len(key) > MaxIdempotencyKeyLen {
		return nil, "", ErrBadRequest(fmt.Sprintf("Idempotency key must be at most %d characters", MaxIdempotencyKeyLen))
	}
	// A known key replays the stored order whatever the body says.
	if key != "" {
		existing, err := s.store.Orders().FindByIdempotencyKey(ctx, userID, key)
		if err == nil {
			order, serr := s.loadOrder(ctx, existing.ID)
			return order, metrics.PathIdempotent, serr
		}
		if !isNotFound(err) {
			s.logger.Error("Idempotency lookup failed", zap.Uint("user_id", userID), zap.Error(err))
			return nil, "", ErrInternal("Failed to create order")
		}
	}
	lines, serr := s.aggregate(req.Items)
	if serr != nil {
		return nil, "", serr
	}

	if opts.MergeWithLatest {
		target, err := s.store.Orders().FindMergeCandidate(ctx, userID, s.now().Add(-s.cfg.MergeWindow))
		switch {
		case err == nil && (key == "" || target.IdempotencyKey == nil || *target.IdempotencyKey == ""):
			if serr := s.mergeInto(ctx, target, lines, key); serr != nil {
				return nil, "", serr
			}
			order, serr := s.loadOrder(ctx, target.ID)
			return order, metrics.PathMerged, serr
		case err == nil:
			s.logger.Info("Merge target carries a different idempotency key, creating a fresh order",
				zap.Uint("target_order_id", target.ID))
		case !isNotFound(err):
			s.logger.Warn("Merge candidate lookup failed, creating a fresh order", zap.Error(err))
		}
	}

	orderID, replayed, serr := s.insertFresh(ctx, userID, lines, trimmedOrNil(req.Notes), key, strings.TrimSpace(opts.Code))
	if serr != nil {
		return nil, "", serr
	}
	if replayed {
		order, serr := s.loadOrder(ctx, orderID)
		return order, metrics.PathIdempotent, serr
	}
	s.reconcileTotal(ctx, orderID)
	order, serr := s.loadOrder(ctx, orderID)
	return order, metrics.PathFresh, serr
}

// aggregate clamps each line to the per-item maximum and folds lines for the
// same product together, keeping first-seen order and the first note.
func (s *orderServiceImpl) aggregate(items []models.OrderItemRequest) ([]orderLine, *ServiceError) {
	lines := make([]orderLine, 0, len(items))
	index := make(map[uint]int, len(items))
	for _, it := range items {
		if it.ProductID == 0 {
			return nil, ErrBadRequest("product_id is required")
		}
		if it.Quantity <= 0 {
			return nil, ErrBadRequest("Quantity must be positive")
		}
		qty := it.Quantity
		if qty > s.cfg.MaxQtyPerItem {
			qty = s.cfg.MaxQtyPerItem
		}
		notes := trimmedOrNil(it.Notes)

		if i, ok := index[it.ProductID]; ok {
			lines[i].quantity += qty
			if lines[i].notes == nil {
				lines[i].notes = notes
			}
			continue
		}
		index[it.ProductID] = len(lines)
		lines = append(lines, orderLine{productID: it.ProductID, quantity: qty, notes: notes})
	}
	return lines, nil
}

func (s *orderServiceImpl) readProducts(ctx context.Context, tx repository.Store, lines []orderLine) (map[uint]models.Product, error) {
	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.productID)
	}
	if s.cfg.LockStock {
		return tx.Products().LockByIDs(ctx, ids)
	}
	return tx.Products().FindByIDs(ctx, ids)
}

// insertFresh writes a new order. replayed is true when a concurrent request
// with the same key committed first and its order is returned instead.
func (s *orderServiceImpl) insertFresh(ctx context.Context, userID uint, lines []orderLine, notes *string, key, code string) (orderID uint, replayed bool, serr *ServiceError) {
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		products, err := s.readProducts(ctx, tx, lines)
		if err != nil {
			return fmt.Errorf("read products: %w", err)
		}
		for _, l := range lines {
			p, ok := products[l.productID]
			if !ok {
				return ErrProductNotFound(l.productID)
			}
			if l.quantity > p.Quantity {
				return ErrStockExceeded(l.productID, l.quantity, p.Quantity)
			}
		}

		items := make([]models.OrderItem, 0, len(lines))
		totals := make([]float64, 0, len(lines))
		for _, l := range lines {
			price := products[l.productID].Price
			item := models.OrderItem{
				ProductID:  l.productID,
				Quantity:   l.quantity,
				UnitPrice:  price,
				TotalPrice: lineTotal(price, l.quantity),
				Notes:      l.notes,
			}
			items = append(items, item)
			totals = append(totals, item.TotalPrice)
		}

		order := &models.Order{
			Code:        code,
			UserID:      userID,
			Status:      models.OrderStatusPending,
			TotalAmount: sumAmounts(totals...),
			Notes:       notes,
		}
		if code == "" {
			order.Code = "tmp-" + strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		if key != "" {
			k := key
			order.IdempotencyKey = &k
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if code == "" {
			if err := tx.Orders().UpdateCode(ctx, order.ID, strconv.FormatUint(uint64(order.ID), 10)); err != nil {
				return fmt.Errorf("assign order code: %w", err)
			}
		}
		for i := range items {
			items[i].OrderID = order.ID
			if err := tx.Orders().UpsertItem(ctx, &items[i]); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		orderID = order.ID
		return nil
	})
	if err == nil {
		return orderID, false, nil
	}
	if se, ok := asServiceError(err); ok {
		return 0, false, se
	}

	// A concurrent request with the same key won the unique index.
	if key != "" {
		if existing, findErr := s.store.Orders().FindByIdempotencyKey(ctx, userID, key); findErr == nil {
			s.logger.Info("Concurrent create with the same idempotency key, replaying",
				zap.Uint("order_id", existing.ID), zap.Uint("user_id", userID))
			return existing.ID, true, nil
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return 0, false, ErrConflict("Order code already exists")
	}
	s.logger.Error("Failed to create order", zap.Uint("user_id", userID), zap.Error(err))
	return 0, false, ErrInternal("Failed to create order")
}

// mergeInto folds lines into an open order. Stock is validated against the
// merged quantity before anything is written.
func (s *orderServiceImpl) mergeInto(ctx context.Context, target *models.Order, lines []orderLine, key string) *ServiceError {
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		products, err := s.readProducts(ctx, tx, lines)
		if err != nil {
			return fmt.Errorf("read products: %w", err)
		}
		existing, err := tx.Orders().ListItems(ctx, target.ID)
		if err != nil {
			return fmt.Errorf("list order items: %w", err)
		}
		byProduct := make(map[uint]*models.OrderItem, len(existing))
		for i := range existing {
			byProduct[existing[i].ProductID] = &existing[i]
		}

		for _, l := range lines {
			p, ok := products[l.productID]
			if !ok {
				return ErrProductNotFound(l.productID)
			}
			merged := l.quantity
			if it, ok := byProduct[l.productID]; ok {
				merged += it.Quantity
			}
			if merged > p.Quantity {
				return ErrStockExceeded(l.productID, merged, p.Quantity)
			}
		}

		for _, l := range lines {
			price := products[l.productID].Price
			if it, ok := byProduct[l.productID]; ok {
				it.Quantity += l.quantity
				it.UnitPrice = price
				it.TotalPrice = lineTotal(price, it.Quantity)
				if it.Notes == nil {
					it.Notes = l.notes
				}
				if err := tx.Orders().SaveItem(ctx, it); err != nil {
					return fmt.Errorf("update order item: %w", err)
				}
				continue
			}
			item := &models.OrderItem{
				OrderID:    target.ID,
				ProductID:  l.productID,
				Quantity:   l.quantity,
				UnitPrice:  price,
				TotalPrice: lineTotal(price, l.quantity),
				Notes:      l.notes,
			}
			if err := tx.Orders().UpsertItem(ctx, item); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		if key != "" && (target.IdempotencyKey == nil || *target.IdempotencyKey == "") {
			if err := tx.Orders().SetIdempotencyKey(ctx, target.ID, key); err != nil {
				return fmt.Errorf("adopt idempotency key: %w", err)
			}
		}

		total, err := tx.Orders().SumItemTotals(ctx, target.ID)
		if err != nil {
			return fmt.Errorf("sum order items: %w", err)
		}
		return tx.Orders().UpdateTotal(ctx, target.ID, total)
	})
	if err == nil {
		return nil
	}
	if serr, ok := asServiceError(err); ok {
		return serr
	}
	s.logger.Error("Failed to merge order", zap.Uint("order_id", target.ID), zap.Error(err))
	return ErrInternal("Failed to create order")
}

// reconcileTotal corrects the stored total when it drifted from the sum of
// the persisted items. Failures leave the computed total in place.
func (s *orderServiceImpl) reconcileTotal(ctx context.Context, orderID uint) {
	sum, err := s.store.Orders().SumItemTotals(ctx, orderID)
	if err != nil {
		s.logger.Warn("Total reconciliation skipped", zap.Uint("order_id", orderID), zap.Error(err))
		return
	}
	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		s.logger.Warn("Total reconciliation skipped", zap.Uint("order_id", orderID), zap.Error(err))
		return
	}
	if !totalsDiffer(order.TotalAmount, sum) {
		return
	}
	if err := s.store.Orders().UpdateTotal(ctx, orderID, sum); err != nil {
		s.logger.Warn("Failed to correct order total", zap.Uint("order_id", orderID), zap.Error(err))
		return
	}
	s.logger.Info("Order total corrected",
		zap.Uint("order_id", orderID),
		zap.Float64("stored", order.TotalAmount),
		zap.Float64("items_sum", sum),
	)
}

func (s *orderServiceImpl) loadOrder(ctx context.Context, orderID uint) (*models.Order, *ServiceError) {
	order, err := s.store.Orders().FindWithItems(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound("Order not found")
		}
		s.logger.Error("Failed to load order", zap.Uint("order_id", orderID), zap.Error(err))
		return nil, ErrInternal("Failed to load order")
	}
	return order, nil
}

func (s *orderServiceImpl) CreateFromCart(ctx context.Context, userID uint, clearCart bool) (*models.OrderView, *ServiceError) {
	lines, serr := s.carts.Lines(ctx, userID)
	if serr != nil {
		return nil, serr
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart()
	}

	view, serr := s.CreateOrder(ctx, userID, &models.CreateOrderRequest{Items: lines}, models.CreateOrderOptions{})
	if serr != nil {
		return nil, serr
	}
	if clearCart {
		if err := s.carts.ClearCart(context.WithoutCancel(ctx), userID); err != nil {
			s.logger.Warn("Failed to clear cart after order", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
	return view, nil
}

func orderDetailKey(orderID uint) string {
	return fmt.Sprintf("order:%d:detail", orderID)
}

func ordersPageKey(userID uint, page, limit int) string {
	return fmt.Sprintf("orders:user:%d:page:%d:limit:%d", userID, page, limit)
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, userID uint, isAdmin bool, orderID uint) (*models.OrderView, *ServiceError) {
	var view models.OrderView
	if s.cacheGet(ctx, orderDetailKey(orderID), &view) {
		if !isAdmin && view.UserID != userID {
			return nil, ErrForbidden("Not allowed to access this order")
		}
		return &view, nil
	}

	order, serr := s.loadOrder(ctx, orderID)
	if serr != nil {
		return nil, serr
	}
	if !isAdmin && order.UserID != userID {
		return nil, ErrForbidden("Not allowed to access this order")
	}
	view = models.NewOrderView(order)
	s.cacheSet(ctx, orderDetailKey(orderID), view)
	return &view, nil
}

func (s *orderServiceImpl) ListOrders(ctx context.Context, userID uint, page, limit int) (*models.OrderPage, *ServiceError) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultOrdersPage
	}
	if limit > MaxOrdersPageLimit {
		limit = MaxOrdersPageLimit
	}

	key := ordersPageKey(userID, page, limit)
	var cached models.OrderPage
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	orders, total, err := s.store.Orders().ListByUser(ctx, userID, page, limit)
	if err != nil {
		s.logger.Error("Failed to list orders", zap.Uint("user_id", userID), zap.Error(err))
		return nil, ErrInternal("Failed to fetch orders")
	}
	result := &models.OrderPage{Orders: make([]models.OrderView, 0, len(orders)), Total: total, Page: page, Limit: limit}
	for i := range orders {
		result.Orders = append(result.Orders, models.NewOrderView(&orders[i]))
	}
	s.cacheSet(ctx, key, result)
	return result, nil
}

func (s *orderServiceImpl) UpdateOrder(ctx context.Context, userID uint, isAdmin bool, orderID uint, req *models.UpdateOrderRequest) (*models.OrderView, *ServiceError) {
	order, serr := s.ownedOrder(ctx, userID, isAdmin, orderID)
	if serr != nil {
		return nil, serr
	}
	if err := s.store.Orders().UpdateNotes(ctx, order.ID, trimmedOrNil(req.Notes)); err != nil {
		s.logger.Error("Failed to update order", zap.Uint("order_id", order.ID), zap.Error(err))
		return nil, ErrInternal("Failed to update order")
	}
	invalidateOrders(ctx, s.cache, s.logger, order.ID)

	updated, serr := s.loadOrder(ctx, order.ID)
	if serr != nil {
		return nil, serr
	}
	v := models.NewOrderView(updated)
	return &v, nil
}

func (s *orderServiceImpl) DeleteOrder(ctx context.Context, userID uint, isAdmin bool, orderID uint) *ServiceError {
	order, serr := s.ownedOrder(ctx, userID, isAdmin, orderID)
	if serr != nil {
		return serr
	}

	payments, err := s.store.Payments().CountByOrder(ctx, order.ID)
	if err != nil {
		s.logger.Error("Failed to check payment history", zap.Uint("order_id", order.ID), zap.Error(err))
		return ErrInternal("Failed to delete order")
	}
	if payments > 0 {
		return ErrConflict("Order has payment history and cannot be deleted")
	}

	if err := s.store.Transaction(ctx, func(tx repository.Store) error {
		return tx.Orders().Delete(ctx, order.ID)
	}); err != nil {
		s.logger.Error("Failed to delete order", zap.Uint("order_id", order.ID), zap.Error(err))
		return ErrInternal("Failed to delete order")
	}
	invalidateOrders(ctx, s.cache, s.logger, order.ID)
	s.logger.Info("Order deleted", zap.Uint("order_id", order.ID), zap.Uint("by_user", userID))
	return nil
}

func (s *orderServiceImpl) ownedOrder(ctx context.Context, userID uint, isAdmin bool, orderID uint) (*models.Order, *ServiceError) {
	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound("Order not found")
		}
		s.logger.Error("Failed to load order", zap.Uint("order_id", orderID), zap.Error(err))
		return nil, ErrInternal("Failed to load order")
	}
	if !isAdmin && order.UserID != userID {
		return nil, ErrForbidden("Not allowed to modify this order")
	}
	return order, nil
}

func (s *orderServiceImpl) cacheGet(ctx context.Context, key string, out interface{}) bool {
	if s.cache == nil {
		return false
	}
	b, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		s.logger.Warn("Failed to decode cached value", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *orderServiceImpl) cacheSet(ctx context.Context, key string, v interface{}) {
	if s.cache == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, b, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}
