package controllers

import (
	"net/http"

	"checkout-service/models"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
)

// CartController handles HTTP requests for the user's cart.
type CartController struct {
	cartService services.CartService
}

func NewCartController(svc services.CartService) *CartController {
	return &CartController{cartService: svc}
}

// GetCart handles GET /cart
func (cc *CartController) GetCart(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	cart, svcErr := cc.cartService.GetCart(ctx.Request.Context(), userID)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, cart)
}

// GetTotals handles GET /cart/totals
func (cc *CartController) GetTotals(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	totals, svcErr := cc.cartService.Totals(ctx.Request.Context(), userID)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, totals)
}

// AddItem handles POST /cart/items
func (cc *CartController) AddItem(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req models.AddCartItemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}
	cart, svcErr := cc.cartService.AddItem(ctx.Request.Context(), userID, &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, cart)
}

// UpdateItem handles PUT /cart/items/:id
func (cc *CartController) UpdateItem(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	itemID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	var req models.UpdateCartItemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}
	cart, svcErr := cc.cartService.SetItemQuantity(ctx.Request.Context(), userID, itemID, *req.Quantity)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, cart)
}

// RemoveItem handles DELETE /cart/items/:id
func (cc *CartController) RemoveItem(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	itemID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	cart, svcErr := cc.cartService.RemoveItem(ctx.Request.Context(), userID, itemID)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, cart)
}

// ClearCart handles DELETE /cart
func (cc *CartController) ClearCart(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	cart, svcErr := cc.cartService.Clear(ctx.Request.Context(), userID)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, cart)
}
