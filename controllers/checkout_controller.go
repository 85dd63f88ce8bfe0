package controllers

import (
	"net/http"

	"checkout-service/middleware"
	"checkout-service/models"
	"checkout-service/providers"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutController opens provider sessions. Every service failure is
// answered with 500 and the error message; clients show it verbatim.
type CheckoutController struct {
	Service services.CheckoutService
	Logger  *zap.Logger
}

func NewCheckoutController(service services.CheckoutService, logger *zap.Logger) *CheckoutController {
	return &CheckoutController{Service: service, Logger: logger}
}

// CreateStripeSession answers {url} for the hosted card checkout page.
func (cc *CheckoutController) CreateStripeSession(c *gin.Context) {
	session, ok := cc.createSession(c, providers.ProviderStripe)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": session.URL})
}

// CreateMercadoPagoPreference answers {id, init_point} for the wallet redirect.
func (cc *CheckoutController) CreateMercadoPagoPreference(c *gin.Context) {
	session, ok := cc.createSession(c, providers.ProviderMercadoPago)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": session.SessionID, "init_point": session.URL})
}

func (cc *CheckoutController) createSession(c *gin.Context, provider string) (*models.CheckoutSession, bool) {
	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid orderId"})
		return nil, false
	}

	session, err := cc.Service.CreateSession(c.Request.Context(), provider, orderID, middleware.CustomerFromContext(c))
	if err != nil {
		respondError(c, cc.Logger, http.StatusInternalServerError, err)
		return nil, false
	}
	return session, true
}
