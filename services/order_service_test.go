package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"checkout-service/apperrors"
	"checkout-service/models"
	"checkout-service/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestOrderService(repo *fakeRepo) services.OrderService {
	return services.NewOrderService(repo, services.OrderConfig{Currencies: []string{"usd", "ARS"}}, zap.NewNop())
}

func orderRequest() *models.CreateOrderRequest {
	return &models.CreateOrderRequest{
		BillingInfo: models.BillingInfo{FullName: "Ada Lovelace", Email: "ada@example.com"},
		Items: []models.CreateOrderItem{
			{ProductName: "Starfield Deluxe", Quantity: 1, Price: decimal.RequireFromString("10.00")},
			{ProductName: "Hollow Knight", Quantity: 2, Price: decimal.RequireFromString("5.00")},
		},
	}
}

func TestCreateOrder_Success(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestOrderService(repo)

	order, err := svc.CreateOrder(context.Background(), guest(), orderRequest())

	require.NoError(t, err)
	assert.Regexp(t, `^ORD-\d{8}-[A-Z0-9]{6}$`, order.OrderNumber)
	assert.True(t, order.Total.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "usd", order.Currency)
	assert.Equal(t, models.OrderStatusDraft, order.Status)
	assert.Equal(t, models.PaymentStatusUnpaid, order.PaymentStatus)
	assert.Nil(t, order.UserID)
	assert.Nil(t, order.PaymentID)
	require.Len(t, order.Items, 2)
	for _, it := range order.Items {
		assert.Equal(t, order.ID, it.OrderID)
		assert.Nil(t, it.DigitalContent)
	}
}

func TestCreateOrder_MemberOwnsOrder(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestOrderService(repo)
	customer := member("member@example.com")
	req := orderRequest()
	req.BillingInfo.Email = ""

	order, err := svc.CreateOrder(context.Background(), customer, req)

	require.NoError(t, err)
	assert.Equal(t, customer.UserID, order.UserID)
	assert.Equal(t, "member@example.com", order.BillingInfo.Email)
}

func TestCreateOrder_Validation(t *testing.T) {
	svc := newTestOrderService(newFakeRepo())

	cases := map[string]func(*models.CreateOrderRequest){
		"no items":      func(r *models.CreateOrderRequest) { r.Items = nil },
		"zero quantity": func(r *models.CreateOrderRequest) { r.Items[0].Quantity = 0 },
		"zero price":    func(r *models.CreateOrderRequest) { r.Items[1].Price = decimal.Zero },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := orderRequest()
			mutate(req)
			_, err := svc.CreateOrder(context.Background(), guest(), req)
			assert.Equal(t, apperrors.KindInvalidRequest, apperrors.KindOf(err))
		})
	}
}

func TestCreateOrder_Currency(t *testing.T) {
	svc := newTestOrderService(newFakeRepo())

	t.Run("configured wallet currency", func(t *testing.T) {
		req := orderRequest()
		req.Currency = "ARS"
		order, err := svc.CreateOrder(context.Background(), guest(), req)
		require.NoError(t, err)
		assert.Equal(t, "ars", order.Currency)
	})

	t.Run("unconfigured currency", func(t *testing.T) {
		req := orderRequest()
		req.Currency = "eur"
		_, err := svc.CreateOrder(context.Background(), guest(), req)
		assert.Equal(t, apperrors.KindInvalidRequest, apperrors.KindOf(err))
		assert.Equal(t, "unsupported currency EUR", apperrors.Message(err))
	})

	t.Run("no currency configured", func(t *testing.T) {
		empty := services.NewOrderService(newFakeRepo(), services.OrderConfig{}, zap.NewNop())
		_, err := empty.CreateOrder(context.Background(), guest(), orderRequest())
		assert.Equal(t, apperrors.KindInvalidRequest, apperrors.KindOf(err))
	})
}

func TestCreateOrder_RetriesOnNumberCollision(t *testing.T) {
	repo := &collidingRepo{fakeRepo: newFakeRepo(), collisions: 1}
	svc := services.NewOrderService(repo, services.OrderConfig{Currencies: []string{"usd", "ARS"}}, zap.NewNop())

	order, err := svc.CreateOrder(context.Background(), guest(), orderRequest())

	require.NoError(t, err)
	assert.Equal(t, 2, repo.attempts)
	assert.NotNil(t, repo.get(order.ID))
}

func TestCreateOrder_PersistenceError(t *testing.T) {
	repo := newFakeRepo()
	repo.createErr = errors.New("db down")
	svc := newTestOrderService(repo)

	_, err := svc.CreateOrder(context.Background(), guest(), orderRequest())
	assert.Equal(t, apperrors.KindPersistenceError, apperrors.KindOf(err))
}

func TestGetOrderByNumber(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestOrderService(repo)
	owner := member("owner@example.com")

	guestOrder := newOrder1001()
	repo.put(guestOrder)
	memberOrder := newOrder1001()
	memberOrder.OrderNumber = "ORD-1002"
	memberOrder.UserID = owner.UserID
	repo.put(memberOrder)

	got, err := svc.GetOrderByNumber(context.Background(), guest(), "ORD-1001")
	require.NoError(t, err)
	assert.Equal(t, guestOrder.ID, got.ID)

	got, err = svc.GetOrderByNumber(context.Background(), owner, "ORD-1002")
	require.NoError(t, err)
	assert.Equal(t, memberOrder.ID, got.ID)

	_, err = svc.GetOrderByNumber(context.Background(), member("someone@example.com"), "ORD-1002")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	_, err = svc.GetOrderByNumber(context.Background(), guest(), "ORD-9999")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

// collidingRepo fails the first inserts with a unique violation.
type collidingRepo struct {
	*fakeRepo
	collisions int
	attempts   int
}

func (r *collidingRepo) Create(ctx context.Context, o *models.Order) error {
	r.attempts++
	if r.attempts <= r.collisions {
		return fmt.Errorf("insert order: %w", gorm.ErrDuplicatedKey)
	}
	return r.fakeRepo.Create(ctx, o)
}
