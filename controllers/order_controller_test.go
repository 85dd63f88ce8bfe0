package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"checkout-service/apperrors"
	"checkout-service/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func newOrderRouter(svc *MockOrderService) *gin.Engine {
	oc := NewOrderController(svc, zap.NewNop())
	router := gin.New()
	router.POST("/orders", oc.CreateOrder)
	router.GET("/orders/:number", oc.GetOrder)
	return router
}

func TestCreateOrderController(t *testing.T) {
	t.Run("Success - 201 Created", func(t *testing.T) {
		svc := new(MockOrderService)
		order := &models.Order{ID: uuid.New(), OrderNumber: "ORD-20261017-AB12CD", Total: decimal.RequireFromString("20.00")}
		svc.On("CreateOrder", mock.Anything, models.Customer{}, mock.MatchedBy(func(req *models.CreateOrderRequest) bool {
			return len(req.Items) == 1 && req.Items[0].Price.Equal(decimal.NewFromInt(10))
		})).Return(order, nil).Once()

		payload := `{"billing_info":{"full_name":"Ada","email":"ada@example.com"},
			"items":[{"product_name":"Starfield Deluxe","quantity":2,"price":"10.00"}]}`
		recorder := postJSON(newOrderRouter(svc), "/orders", payload)

		assert.Equal(t, http.StatusCreated, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "ORD-20261017-AB12CD")
		svc.AssertExpectations(t)
	})

	t.Run("Failure - no items - 400", func(t *testing.T) {
		svc := new(MockOrderService)

		recorder := postJSON(newOrderRouter(svc), "/orders", `{"items":[]}`)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		svc.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Failure - malformed currency - 400", func(t *testing.T) {
		svc := new(MockOrderService)

		recorder := postJSON(newOrderRouter(svc), "/orders", `{"currency":"dollars","items":[{"product_name":"X","quantity":1,"price":"10"}]}`)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		svc.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
	})

		t.Run("Failure - invalid price - 400 from service", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("CreateOrder", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, apperrors.InvalidRequest("item price must be positive")).Once()

		recorder := postJSON(newOrderRouter(svc), "/orders", `{"items":[{"product_name":"X","quantity":1,"price":"0"}]}`)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Equal(t, "item price must be positive", decodeBody(t, recorder)["error"])
	})
}

func TestGetOrderController(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("GetOrderByNumber", mock.Anything, models.Customer{}, "ORD-1001").
			Return(&models.Order{OrderNumber: "ORD-1001"}, nil).Once()

		req, _ := http.NewRequest(http.MethodGet, "/orders/ord-1001", nil)
		recorder := httptest.NewRecorder()
		newOrderRouter(svc).ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), `"order_number":"ORD-1001"`)
	})

	t.Run("Failure - not found - 404", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("GetOrderByNumber", mock.Anything, mock.Anything, "ORD-404").
			Return(nil, apperrors.NotFound("order not found")).Once()

		req, _ := http.NewRequest(http.MethodGet, "/orders/ORD-404", nil)
		recorder := httptest.NewRecorder()
		newOrderRouter(svc).ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}
