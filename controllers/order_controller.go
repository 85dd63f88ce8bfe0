package controllers

import (
	"net/http"
	"strings"

	"checkout-service/middleware"
	"checkout-service/models"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OrderController struct {
	Service services.OrderService
	Logger  *zap.Logger
}

func NewOrderController(service services.OrderService, logger *zap.Logger) *OrderController {
	return &OrderController{Service: service, Logger: logger}
}

// CreateOrder stores a draft order for the cart in the request body.
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := oc.Service.CreateOrder(c.Request.Context(), middleware.CustomerFromContext(c), &req)
	if err != nil {
		respondError(c, oc.Logger, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// GetOrder returns an order by its public number.
func (oc *OrderController) GetOrder(c *gin.Context) {
	number := strings.ToUpper(strings.TrimSpace(c.Param("number")))
	if !orderNumberPattern.MatchString(number) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order number"})
		return
	}

	order, err := oc.Service.GetOrderByNumber(c.Request.Context(), middleware.CustomerFromContext(c), number)
	if err != nil {
		respondError(c, oc.Logger, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}
