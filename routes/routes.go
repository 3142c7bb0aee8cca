package routes

import (
	"checkout-service/controllers"
	"checkout-service/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterCartRoutes sets up the per-user cart routes.
func RegisterCartRoutes(r gin.IRouter, cc *controllers.CartController) {
	cart := r.Group("/cart")
	cart.Use(middleware.AuthMiddleware())

	cart.GET("", cc.GetCart)
	cart.DELETE("", cc.ClearCart)
	cart.GET("/totals", cc.GetTotals)
	cart.POST("/items", cc.AddItem)
	cart.PUT("/items/:id", cc.UpdateItem)
	cart.DELETE("/items/:id", cc.RemoveItem)
}

// RegisterOrderRoutes sets up order creation and management.
func RegisterOrderRoutes(r gin.IRouter, oc *controllers.OrderController) {
	orders := r.Group("/orders")
	orders.Use(middleware.AuthMiddleware())

	orders.POST("", oc.CreateOrder)
	orders.POST("/from-cart", oc.CreateFromCart)
	orders.GET("", oc.ListOrders)
	orders.GET("/:id", oc.GetOrder)
	orders.PUT("/:id", oc.UpdateOrder)
	orders.DELETE("/:id", oc.DeleteOrder)
}

// RegisterPaymentRoutes sets up payment routes. Provider callbacks are
// public; the Stripe route authenticates by signature.
func RegisterPaymentRoutes(r gin.IRouter, pc *controllers.PaymentController) {
	payments := r.Group("/payments")

	payments.POST("/notify", pc.Notify)
	payments.POST("/stripe/webhook", pc.StripeWebhook)

	// Protected
	payments.POST("/create", middleware.AuthMiddleware(), pc.CreatePayment)
	payments.POST("/refund", middleware.AuthMiddleware(), middleware.AdminOnly(), pc.Refund)
}
