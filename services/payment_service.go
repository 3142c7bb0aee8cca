package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/awsclient"
	"checkout-service/cache"
	"checkout-service/metrics"
	"checkout-service/models"
	"checkout-service/providers"
	"checkout-service/repository"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultPaymentCurrency = "UZS"

// PaymentService defines the interface for payment business logic.
type PaymentService interface {
	CreatePayment(ctx context.Context, userID uint, isAdmin bool, req *models.CreatePaymentRequest) (*models.CreatePaymentResponse, *ServiceError)
	Refund(ctx context.Context, req *models.RefundRequest) (*models.RefundResponse, *ServiceError)
}

type paymentServiceImpl struct {
	store    repository.Store
	orders   OrderService
	gateway  providers.PaymentGateway
	cache    cache.Invalidator
	events   eventPublisher
	metrics  *metrics.Metrics
	currency string
	logger   *zap.Logger
}

func NewPaymentService(
	store repository.Store,
	orders OrderService,
	gateway providers.PaymentGateway,
	inv cache.Invalidator,
	snsClient awsclient.SNSPublisher,
	snsTopicArn string,
	m *metrics.Metrics,
	currency string,
	logger *zap.Logger,
) PaymentService {
	if currency == "" {
		currency = DefaultPaymentCurrency
	}
	return &paymentServiceImpl{
		store:    store,
		orders:   orders,
		gateway:  gateway,
		cache:    inv,
		events:   eventPublisher{snsClient: snsClient, snsTopicArn: snsTopicArn, logger: logger},
		metrics:  m,
		currency: currency,
		logger:   logger,
	}
}

func (s *paymentServiceImpl) CreatePayment(ctx context.Context, userID uint, isAdmin bool, req *models.CreatePaymentRequest) (*models.CreatePaymentResponse, *ServiceError) {
	ctx, span := tracer.Start(ctx, "payments.create", trace.WithAttributes(
		attribute.Int64("user.id", int64(userID)),
		attribute.String("payment.provider", s.gateway.Name()),
	))
	resp, serr := s.createPayment(ctx, userID, isAdmin, req)
	endSpan(span, serr)
	return resp, serr
}

func (s *paymentServiceImpl) createPayment(ctx context.Context, userID uint, isAdmin bool, req *models.CreatePaymentRequest) (*models.CreatePaymentResponse, *ServiceError) {
	orderID := req.ResolvedOrderID()
	if orderID == 0 {
		var view *models.OrderView
		var serr *ServiceError
		if len(req.Items) > 0 {
			view, serr = s.orders.CreateOrder(ctx, userID, &models.CreateOrderRequest{Items: req.Items}, models.CreateOrderOptions{})
		} else {
			view, serr = s.orders.CreateFromCart(ctx, userID, false)
		}
		if serr != nil {
			return nil, serr
		}
		orderID = view.ID
	}

	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound("Order not found")
		}
		s.logger.Error("Failed to load order", zap.Uint("order_id", orderID), zap.Error(err))
		return nil, ErrInternal("Failed to create payment")
	}
	if !isAdmin && order.UserID != userID {
		return nil, ErrForbidden("Not allowed to pay for this order")
	}
	switch order.Status {
	case models.OrderStatusRefunded:
		return nil, ErrBadRequest("Order already refunded")
	case models.OrderStatusPaid:
		return nil, ErrConflict("Order already paid")
	}

	amount := req.AmountOverride()
	if amount == 0 {
		amount = roundAmount(order.TotalAmount)
	}
	if amount <= 0 {
		return nil, ErrBadRequest("Payment amount must be positive")
	}

	result := s.gateway.CreatePayment(ctx, amount, fmt.Sprintf("Order #%s", order.Code))
	ok := result.Success && result.RedirectURL != ""
	s.metrics.GatewayCall(s.gateway.Name(), "create", ok)
	if !result.Success {
		s.logger.Warn("Payment gateway rejected create",
			zap.String("provider", s.gateway.Name()),
			zap.Uint("order_id", order.ID),
			zap.Int("error_code", result.ErrorCode),
			zap.String("error", result.Error),
		)
		return nil, ErrGateway(result.Error)
	}
	if result.RedirectURL == "" {
		s.logger.Warn("Payment gateway returned no redirect url", zap.Uint("order_id", order.ID))
		return nil, ErrGateway("Payment gateway returned no redirect URL")
	}

	payment := &models.Payment{
		OrderID:           &order.ID,
		ShopTransactionID: result.ShopTransactionID,
		Provider:          s.gateway.Name(),
		Amount:            float64(amount),
		Currency:          s.currency,
		Status:            models.PaymentStatusCreated,
		Raw:               rawSnapshot(result.Raw),
	}
	if result.CorrelationID != "" {
		corr := result.CorrelationID
		payment.CorrelationID = &corr
	}
	if err := s.store.Payments().Create(ctx, payment); err != nil {
		s.logger.Warn("Failed to persist payment",
			zap.Uint("order_id", order.ID),
			zap.String("shop_transaction_id", result.ShopTransactionID),
			zap.Error(err),
		)
	}
	if result.CorrelationID != "" && !order.HasPayment() {
		if err := s.store.Orders().SetPaymentUUIDIfEmpty(ctx, order.ID, result.CorrelationID); err != nil {
			s.logger.Warn("Failed to attach payment uuid", zap.Uint("order_id", order.ID), zap.Error(err))
		}
	}
	invalidateOrders(ctx, s.cache, s.logger, order.ID)

	s.events.publishEvent(ctx, EventPaymentCreated, models.PaymentEvent{
		EventType:         EventPaymentCreated,
		PaymentID:         payment.ID,
		OrderID:           payment.OrderID,
		ShopTransactionID: payment.ShopTransactionID,
		Provider:          payment.Provider,
		Status:            payment.Status,
		Amount:            payment.Amount,
		Currency:          payment.Currency,
		Timestamp:         time.Now().UTC(),
	})
	s.logger.Info("Payment created",
		zap.Uint("order_id", order.ID),
		zap.String("provider", s.gateway.Name()),
		zap.String("shop_transaction_id", result.ShopTransactionID),
		zap.Int64("amount", amount),
	)

	resp := &models.CreatePaymentResponse{OrderID: order.ID, RedirectURL: result.RedirectURL}
	if payment.CorrelationID != nil {
		resp.PaymentUUID = payment.CorrelationID
	}
	return resp, nil
}

func (s *paymentServiceImpl) Refund(ctx context.Context, req *models.RefundRequest) (*models.RefundResponse, *ServiceError) {
	ctx, span := tracer.Start(ctx, "payments.refund", trace.WithAttributes(
		attribute.Int64("order.id", int64(req.OrderID)),
	))
	resp, serr := s.refund(ctx, req.OrderID)
	endSpan(span, serr)
	return resp, serr
}

func (s *paymentServiceImpl) refund(ctx context.Context, orderID uint) (*models.RefundResponse, *ServiceError) {
	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound("Order not found")
		}
		s.logger.Error("Failed to load order", zap.Uint("order_id", orderID), zap.Error(err))
		return nil, ErrInternal("Failed to refund order")
	}
	if order.Status == models.OrderStatusRefunded {
		return nil, ErrBadRequest("Order already refunded")
	}
	if !order.HasPayment() {
		return nil, ErrBadRequest("Order has no payment to refund")
	}
	if order.Status != models.OrderStatusPaid {
		return nil, ErrConflict("Only paid orders can be refunded")
	}

	result := s.gateway.RefundPayment(ctx, *order.PaymentUUID, roundAmount(order.TotalAmount))
	s.metrics.GatewayCall(s.gateway.Name(), "refund", result.Success)
	if !result.Success {
		s.logger.Warn("Payment gateway rejected refund",
			zap.String("provider", s.gateway.Name()),
			zap.Uint("order_id", order.ID),
			zap.String("error", result.Error),
		)
		return nil, ErrGateway(result.Error)
	}

	// The gateway has refunded; local bookkeeping must finish regardless.
	ctx = context.WithoutCancel(ctx)
	moved, err := s.store.Orders().TransitionStatus(ctx, order.ID, models.OrderStatusRefunded, models.OrderStatusPaid)
	if err != nil {
		s.logger.Error("Failed to mark order refunded", zap.Uint("order_id", order.ID), zap.Error(err))
		return nil, ErrInternal("Refund succeeded but order update failed")
	}
	if !moved {
		s.logger.Warn("Order left PAID before refund was recorded", zap.Uint("order_id", order.ID))
	}
	if n, err := s.store.Payments().UpdateStatusByCorrelationID(ctx, *order.PaymentUUID, models.PaymentStatusRefunded); err != nil {
		s.logger.Warn("Failed to mark payments refunded", zap.Uint("order_id", order.ID), zap.Error(err))
	} else {
		s.logger.Debug("Payments marked refunded", zap.Int64("rows", n))
	}
	invalidateOrders(ctx, s.cache, s.logger, order.ID)

	s.events.publishEvent(ctx, EventOrderRefunded, models.OrderEvent{
		EventType:   EventOrderRefunded,
		OrderID:     order.ID,
		OrderCode:   order.Code,
		UserID:      order.UserID,
		Status:      models.OrderStatusRefunded,
		TotalAmount: order.TotalAmount,
		Timestamp:   time.Now().UTC(),
	})
	s.logger.Info("Order refunded", zap.Uint("order_id", order.ID))
	return &models.RefundResponse{OrderID: order.ID, Status: models.OrderStatusRefunded}, nil
}

// rawSnapshot renders a gateway response for the audit column.
func rawSnapshot(raw map[string]interface{}) *string {
	if len(raw) == 0 {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	return truncateRaw(string(b))
}

// truncateRaw caps the snapshot at MaxRawPayloadLength characters, never
// splitting a multi-byte rune.
func truncateRaw(s string) *string {
	if s == "" {
		return nil
	}
	n := 0
	for i := range s {
		if n == models.MaxRawPayloadLength {
			s = s[:i]
			break
		}
		n++
	}
	return &s
}
