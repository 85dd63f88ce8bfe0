package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkout-service/apperrors"
	"checkout-service/models"
	"checkout-service/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderNumberAttempts = 3
)

// OrderService creates the draft orders that checkout sessions are opened for.
type OrderService interface {
	CreateOrder(ctx context.Context, customer models.Customer, req *models.CreateOrderRequest) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, customer models.Customer, orderNumber string) (*models.Order, error)
}

// OrderConfig lists the currencies orders may be priced in. The first one is
// used when a request names none; each should be chargeable by a configured
// payment provider.
type OrderConfig struct {
	Currencies []string
}

type orderServiceImpl struct {
	repo       repository.OrderRepository
	currencies []string
	logger     *zap.Logger
	now        func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(repo repository.OrderRepository, cfg OrderConfig, logger *zap.Logger) OrderService {
	currencies := make([]string, 0, len(cfg.Currencies))
	for _, c := range cfg.Currencies {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			currencies = append(currencies, c)
		}
	}
	return &orderServiceImpl{
		repo:       repo,
		currencies: currencies,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *orderServiceImpl) CreateOrder(ctx context.Context, customer models.Customer, req *models.CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, apperrors.InvalidRequest("order must contain at least one item")
	}

	total := decimal.Zero
	items := make([]models.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity < 1 {
			return nil, apperrors.InvalidRequest(fmt.Sprintf("invalid quantity for %q", it.ProductName))
		}
		if !it.Price.IsPositive() {
			return nil, apperrors.InvalidRequest(fmt.Sprintf("invalid price for %q", it.ProductName))
		}
		item := models.OrderItem{
			ID:          uuid.New(),
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price.Round(2),
		}
		total = total.Add(item.Subtotal())
		items = append(items, item)
	}

	billing := req.BillingInfo
	if billing.Email == "" {
		billing.Email = customer.Email
	}

	currency, err := s.resolveCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		orderID := uuid.New()
		for i := range items {
			items[i].OrderID = orderID
		}
		order := &models.Order{
			ID:            orderID,
			OrderNumber:   generateOrderNumber(s.now()),
			UserID:        customer.UserID,
			Total:         total,
			Currency:      currency,
			Status:        models.OrderStatusDraft,
			PaymentStatus: models.PaymentStatusUnpaid,
			BillingInfo:   billing,
			Items:         items,
		}

		err := s.repo.Create(ctx, order)
		if err == nil {
			s.logger.Info("Order created",
				zap.String("order_id", order.ID.String()),
				zap.String("order_number", order.OrderNumber),
				zap.String("total", order.Total.StringFixed(2)),
			)
			return order, nil
		}
		lastErr = err
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		s.logger.Warn("Order number collision, regenerating", zap.String("order_number", order.OrderNumber))
	}

	s.logger.Error("Failed to persist order", zap.Error(lastErr))
	return nil, apperrors.PersistenceError("failed to create order", lastErr)
}

func (s *orderServiceImpl) resolveCurrency(requested string) (string, error) {
	if len(s.currencies) == 0 {
		return "", apperrors.InvalidRequest("no payment currency is configured")
	}
	currency := strings.ToLower(strings.TrimSpace(requested))
	if currency == "" {
		return s.currencies[0], nil
	}
	for _, c := range s.currencies {
		if c == currency {
			return currency, nil
		}
	}
	return "", apperrors.InvalidRequest(fmt.Sprintf("unsupported currency %s", strings.ToUpper(currency)))
}

// GetOrderByNumber hides orders owned by another user behind NotFound.
func (s *orderServiceImpl) GetOrderByNumber(ctx context.Context, customer models.Customer, orderNumber string) (*models.Order, error) {
	order, err := s.repo.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("order not found")
		}
		return nil, apperrors.PersistenceError("failed to load order", err)
	}
	if order.UserID != nil && (customer.UserID == nil || *customer.UserID != *order.UserID) {
		return nil, apperrors.NotFound("order not found")
	}
	return order, nil
}

// generateOrderNumber returns ORD-<yyyymmdd>-<6 alphanumerics>.
func generateOrderNumber(now time.Time) string {
	random := uuid.New()
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = orderNumberAlphabet[int(random[i])%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}
