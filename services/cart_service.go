package services

import (
	"context"

	"checkout-service/models"
	"checkout-service/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartClearer empties a user's cart. The order and webhook flows use it as a
// best-effort side effect.
type CartClearer interface {
	ClearCart(ctx context.Context, userID uint) error
}

// CartService defines the interface for cart business logic.
type CartService interface {
	CartClearer
	GetCart(ctx context.Context, userID uint) (*models.CartView, *ServiceError)
	AddItem(ctx context.Context, userID uint, req *models.AddCartItemRequest) (*models.CartView, *ServiceError)
	SetItemQuantity(ctx context.Context, userID, itemID uint, quantity int) (*models.CartView, *ServiceError)
	RemoveItem(ctx context.Context, userID, itemID uint) (*models.CartView, *ServiceError)
	Clear(ctx context.Context, userID uint) (*models.CartView, *ServiceError)
	Totals(ctx context.Context, userID uint) (*models.CartTotals, *ServiceError)
	// Lines returns the cart as order lines, nil when the cart is absent or empty.
	Lines(ctx context.Context, userID uint) ([]models.OrderItemRequest, *ServiceError)
}

type cartServiceImpl struct {
	store  repository.Store
	logger *zap.Logger
}

func NewCartService(store repository.Store, logger *zap.Logger) CartService {
	return &cartServiceImpl{store: store, logger: logger}
}

// getOrCreate returns the user's oldest cart, creating one when absent. A
// create that loses the race to the unique index re-reads the winner.
func (s *cartServiceImpl) getOrCreate(ctx context.Context, userID uint) (*models.Cart, error) {
	carts := s.store.Carts()
	cart, err := carts.FindOldestByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	cart = &models.Cart{UserID: userID}
	if err := carts.Create(ctx, cart); err != nil {
		existing, findErr := carts.FindOldestByUser(ctx, userID)
		if findErr != nil {
			return nil, err
		}
		return existing, nil
	}
	return cart, nil
}

func (s *cartServiceImpl) GetCart(ctx context.Context, userID uint) (*models.CartView, *ServiceError) {
	cart, err := s.getOrCreate(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load cart", zap.Uint("user_id", userID), zap.Error(err))
		return nil, ErrInternal("Failed to load cart")
	}
	return s.view(ctx, cart)
}

func (s *cartServiceImpl) AddItem(ctx context.Context, userID uint, req *models.AddCartItemRequest) (*models.CartView, *ServiceError) {
	if req.Quantity < 1 {
		return nil, ErrBadRequest("Quantity must be at least 1")
	}
	cart, err := s.getOrCreate(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load cart", zap.Uint("user_id", userID), zap.Error(err))
		return nil, ErrInternal("Failed to load cart")
	}

	product, err := s.store.Products().FindByID(ctx, req.ProductID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrProductNotFound(req.ProductID)
		}
		s.logger.Error("Failed to load product", zap.Uint("product_id", req.ProductID), zap.Error(err))
		return nil, ErrInternal("Failed to load product")
	}

	existing, err := s.store.Carts().FindItemByProduct(ctx, cart.ID, req.ProductID)
	if err != nil && !isNotFound(err) {
		s.logger.Error("Failed to load cart line", zap.Error(err))
		return nil, ErrInternal("Failed to update cart")
	}

	newQty := req.Quantity
	if existing != nil {
		newQty += existing.Quantity
	}
	if newQty > models.MaxCartLineQuantity {
		return nil, ErrBadRequest("Cart line quantity cannot exceed 999")
	}
	if newQty > product.Quantity {
		return nil, ErrStockExceeded(product.ID, newQty, product.Quantity)
	}

	if existing != nil {
		err = s.store.Carts().UpdateItemQuantity(ctx, existing.ID, newQty)
	} else {
		err = s.store.Carts().CreateItem(ctx, &models.CartItem{CartID: cart.ID, ProductID: product.ID, Quantity: newQty})
	}
	if err != nil {
		s.logger.Error("Failed to save cart line", zap.Uint("cart_id", cart.ID), zap.Error(err))
		return nil, ErrInternal("Failed to update cart")
	}

	s.logger.Info("Cart line added",
		zap.Uint("user_id", userID),
		zap.Uint("product_id", product.ID),
		zap.Int("quantity", newQty),
	)
	return s.view(ctx, cart)
}

func (s *cartServiceImpl) SetItemQuantity(ctx context.Context, userID, itemID uint, quantity int) (*models.CartView, *ServiceError) {
	if quantity < 0 || quantity > models.MaxCartLineQuantity {
		return nil, ErrBadRequest("Quantity must be between 0 and 999")
	}
	cart, item, serr := s.ownedItem(ctx, userID, itemID)
	if serr != nil {
		return nil, serr
	}

	if quantity == 0 {
		if err := s.store.Carts().DeleteItem(ctx, item.ID); err != nil {
			s.logger.Error("Failed to delete cart line", zap.Uint("item_id", item.ID), zap.Error(err))
			return nil, ErrInternal("Failed to update cart")
		}
		return s.view(ctx, cart)
	}

	product, err := s.store.Products().FindByID(ctx, item.ProductID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrProductNotFound(item.ProductID)
		}
		s.logger.Error("Failed to load product", zap.Uint("product_id", item.ProductID), zap.Error(err))
		return nil, ErrInternal("Failed to load product")
	}
	if quantity > product.Quantity {
		return nil, ErrStockExceeded(product.ID, quantity, product.Quantity)
	}

	if err := s.store.Carts().UpdateItemQuantity(ctx, item.ID, quantity); err != nil {
		s.logger.Error("Failed to update cart line", zap.Uint("item_id", item.ID), zap.Error(err))
		return nil, ErrInternal("Failed to update cart")
	}
	return s.view(ctx, cart)
}

func (s *cartServiceImpl) RemoveItem(ctx context.Context, userID, itemID uint) (*models.CartView, *ServiceError) {
	cart, item, serr := s.ownedItem(ctx, userID, itemID)
	if serr != nil {
		return nil, serr
	}
	if err := s.store.Carts().DeleteItem(ctx, item.ID); err != nil {
		s.logger.Error("Failed to delete cart line", zap.Uint("item_id", item.ID), zap.Error(err))
		return nil, ErrInternal("Failed to update cart")
	}
	return s.view(ctx, cart)
}

func (s *cartServiceImpl) Clear(ctx context.Context, userID uint) (*models.CartView, *ServiceError) {
	cart, err := s.getOrCreate(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load cart", zap.Uint("user_id", userID), zap.Error(err))
		return nil, ErrInternal("Failed to load cart")
	}
	if err := s.store.Carts().ClearItems(ctx, cart.ID); err != nil {
		s.logger.Error("Failed to clear cart", zap.Uint("cart_id", cart.ID), zap.Error(err))
		return nil, ErrInternal("Failed to clear cart")
	}
	return s.view(ctx, cart)
}

// ClearCart empties the cart without creating one.
func (s *cartServiceImpl) ClearCart(ctx context.Context, userID uint) error {
	cart, err := s.store.Carts().FindOldestByUser(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	return s.store.Carts().ClearItems(ctx, cart.ID)
}

// Totals never creates a cart; a user without one gets zeros.
func (s *cartServiceImpl) Totals(ctx context.Context, userID uint) (*models.CartTotals, *ServiceError) {
	cart, err := s.store.Carts().FindOldestByUser(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return &models.CartTotals{}, nil
		}
		s.logger.Error("Failed to load cart", zap.Uint("user_id", userID), zap.Error(err))
		return nil, ErrInternal("Failed to compute cart totals")
	}
	totals, err := s.store.Carts().Totals(ctx, cart.ID)
	if err != nil {
		s.logger.Error("Failed to compute cart totals", zap.Uint("cart_id", cart.ID), zap.Error(err))
		return nil, ErrInternal("Failed to compute cart totals")
	}
	return &totals, nil
}

func (s *cartServiceImpl) Lines(ctx context.Context, userID uint) ([]models.OrderItemRequest, *ServiceError) {
	cart, err := s.store.Carts().FindOldestByUser(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		s.logger.Error("Failed to load cart", zap.Uint("user_id", userID), zap.Error(err))
		return nil, ErrInternal("Failed to load cart")
	}
	items, err := s.store.Carts().ListItems(ctx, cart.ID)
	if err != nil {
		s.logger.Error("Failed to load cart lines", zap.Uint("cart_id", cart.ID), zap.Error(err))
		return nil, ErrInternal("Failed to load cart")
	}
	lines := make([]models.OrderItemRequest, 0, len(items))
	for _, it := range items {
		lines = append(lines, models.OrderItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines, nil
}

func (s *cartServiceImpl) ownedItem(ctx context.Context, userID, itemID uint) (*models.Cart, *models.CartItem, *ServiceError) {
	cart, err := s.getOrCreate(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load cart", zap.Uint("user_id", userID), zap.Error(err))
		return nil, nil, ErrInternal("Failed to load cart")
	}
	item, err := s.store.Carts().FindItem(ctx, cart.ID, itemID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrNotFound("Cart item not found")
		}
		s.logger.Error("Failed to load cart line", zap.Uint("item_id", itemID), zap.Error(err))
		return nil, nil, ErrInternal("Failed to load cart")
	}
	return cart, item, nil
}

func (s *cartServiceImpl) view(ctx context.Context, cart *models.Cart) (*models.CartView, *ServiceError) {
	items, err := s.store.Carts().ListItems(ctx, cart.ID)
	if err != nil {
		s.logger.Error("Failed to load cart lines", zap.Uint("cart_id", cart.ID), zap.Error(err))
		return nil, ErrInternal("Failed to load cart")
	}

	v := &models.CartView{ID: cart.ID, UserID: cart.UserID, Items: make([]models.CartItemView, 0, len(items))}
	total := decimal.Zero
	for _, it := range items {
		iv := models.CartItemView{ID: it.ID, ProductID: it.ProductID, Quantity: it.Quantity}
		if it.Product != nil {
			iv.UnitPrice = it.Product.Price
			iv.Name = it.Product.Name
			iv.Size = it.Product.Size
			iv.Image = it.Product.Image
		}
		line := decimal.NewFromFloat(iv.UnitPrice).Mul(decimal.NewFromInt(int64(it.Quantity)))
		iv.LineTotal = line.InexactFloat64()
		total = total.Add(line)

		v.Items = append(v.Items, iv)
		v.Totals.LineCount++
		v.Totals.TotalQuantity += int64(it.Quantity)
	}
	v.Totals.TotalAmount = total.InexactFloat64()
	return v, nil
}
