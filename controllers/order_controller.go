package controllers

import (
	"net/http"
	"strconv"

	"checkout-service/middleware"
	"checkout-service/models"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
)

const (
	HeaderIdempotencyKey  = "X-Idempotency-Key"
	HeaderMergeWithLatest = "X-Merge-With-Latest"
)

// OrderController handles HTTP requests for orders.
type OrderController struct {
	orderService services.OrderService
}

func NewOrderController(svc services.OrderService) *OrderController {
	return &OrderController{orderService: svc}
}

// CreateOrder handles POST /orders
func (oc *OrderController) CreateOrder(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req models.CreateOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}
	opts := models.CreateOrderOptions{
		IdempotencyKey:  ctx.GetHeader(HeaderIdempotencyKey),
		MergeWithLatest: boolFlag(ctx.GetHeader(HeaderMergeWithLatest)),
	}

	order, svcErr := oc.orderService.CreateOrder(ctx.Request.Context(), userID, &req, opts)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusCreated, order)
}

// CreateFromCart handles POST /orders/from-cart
func (oc *OrderController) CreateFromCart(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	clearCart := boolFlag(ctx.DefaultQuery("clear_cart", "false"))

	order, svcErr := oc.orderService.CreateFromCart(ctx.Request.Context(), userID, clearCart)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusCreated, order)
}

// ListOrders handles GET /orders
func (oc *OrderController) ListOrders(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	result, svcErr := oc.orderService.ListOrders(ctx.Request.Context(), userID, page, limit)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// GetOrder handles GET /orders/:id
func (oc *OrderController) GetOrder(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	orderID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	order, svcErr := oc.orderService.GetOrder(ctx.Request.Context(), userID, middleware.IsAdmin(ctx), orderID)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, order)
}

// UpdateOrder handles PUT /orders/:id
func (oc *OrderController) UpdateOrder(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	orderID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	var req models.UpdateOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}
	order, svcErr := oc.orderService.UpdateOrder(ctx.Request.Context(), userID, middleware.IsAdmin(ctx), orderID, &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, order)
}

// DeleteOrder handles DELETE /orders/:id
func (oc *OrderController) DeleteOrder(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	orderID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	if svcErr := oc.orderService.DeleteOrder(ctx.Request.Context(), userID, middleware.IsAdmin(ctx), orderID); svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.Status(http.StatusNoContent)
}
