package routes

import (
	"checkout-service/controllers"
	"checkout-service/middleware"

	"github.com/gin-gonic/gin"
)

// Handlers groups the controllers served by the checkout service.
type Handlers struct {
	Orders   *controllers.OrderController
	Checkout *controllers.CheckoutController
	Verify   *controllers.VerifyController
	Webhooks *controllers.WebhookController
}

func RegisterCheckoutRoutes(r *gin.Engine, h Handlers, auth *middleware.Authenticator, verifyLimiter *middleware.RateLimiter) {
	r.OPTIONS("/*path", middleware.Preflight)

	orders := r.Group("/orders")
	orders.Use(auth.OptionalAuth())
	orders.POST("", h.Orders.CreateOrder)
	orders.GET("/:number", h.Orders.GetOrder)

	// The wallet provider rejects guests inside the service so that every
	// failure keeps the {error} contract.
	checkout := r.Group("/checkout")
	checkout.Use(auth.OptionalAuth())
	checkout.POST("/stripe/session", h.Checkout.CreateStripeSession)
	checkout.POST("/mercadopago/preference", h.Checkout.CreateMercadoPagoPreference)

	r.POST("/payments/verify", middleware.RateLimit(verifyLimiter), h.Verify.VerifyPayment)

	// Provider callbacks (no auth)
	webhooks := r.Group("/webhooks")
	webhooks.POST("/stripe", h.Webhooks.StripeWebhook)
	webhooks.POST("/mercadopago", h.Webhooks.MercadoPagoWebhook)
}
