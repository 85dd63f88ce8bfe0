package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"checkout-service/apperrors"
	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/providers"
	"checkout-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CheckoutConfig is the explicit configuration of the session initiator.
type CheckoutConfig struct {
	// SiteURL is the storefront origin the provider redirects back to.
	SiteURL     string
	SNSTopicArn string
}

// CheckoutService opens provider checkout sessions for existing orders.
type CheckoutService interface {
	CreateSession(ctx context.Context, providerName string, orderID uuid.UUID, customer models.Customer) (*models.CheckoutSession, error)
}

type checkoutServiceImpl struct {
	repo      repository.OrderRepository
	providers *providers.Registry
	cfg       CheckoutConfig
	events    eventPublisher
	metrics   aws_pkg.MetricsRecorder
	logger    *zap.Logger
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(
	repo repository.OrderRepository,
	registry *providers.Registry,
	cfg CheckoutConfig,
	snsClient aws_pkg.SNSPublisher,
	metrics aws_pkg.MetricsRecorder,
	logger *zap.Logger,
) CheckoutService {
	cfg.SiteURL = strings.TrimSuffix(cfg.SiteURL, "/")
	return &checkoutServiceImpl{
		repo:      repo,
		providers: registry,
		cfg:       cfg,
		events:    eventPublisher{sns: snsClient, topicArn: cfg.SNSTopicArn, logger: logger},
		metrics:   metrics,
		logger:    logger,
	}
}

// CreateSession calls the provider exactly once. Once the provider has
// answered, a failure to store the reference is logged and the session is
// still returned: verification can re-derive the link from the provider.
func (s *checkoutServiceImpl) CreateSession(ctx context.Context, providerName string, orderID uuid.UUID, customer models.Customer) (*models.CheckoutSession, error) {
	provider, ok := s.providers.Get(providerName)
	if !ok {
		return nil, apperrors.InvalidRequest(fmt.Sprintf("payment provider %s is not configured", providerName))
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("order not found")
		}
		s.logger.Error("Failed to load order", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, apperrors.PersistenceError("failed to load order", err)
	}

	if order.IsPaid() {
		return nil, apperrors.InvalidRequest("order is already paid")
	}
	if len(order.Items) == 0 {
		return nil, apperrors.InvalidRequest("order has no items")
	}
	if !provider.Supports(order.Currency) {
		return nil, apperrors.InvalidRequest(fmt.Sprintf("payment provider %s cannot charge in %s", provider.Name(), strings.ToUpper(order.Currency)))
	}

	email := customer.Email
	if email == "" {
		email = order.BillingInfo.Email
	}
	if provider.RequiresAuth() && (!customer.Authenticated() || email == "") {
		return nil, apperrors.UnauthenticatedCustomer("an authenticated customer is required for this payment method")
	}

	req := providers.SessionRequest{
		OrderID:       order.ID.String(),
		OrderNumber:   order.OrderNumber,
		CustomerEmail: email,
		SuccessURL:    fmt.Sprintf("%s/order-confirmation?order=%s", s.cfg.SiteURL, url.QueryEscape(order.OrderNumber)),
		CancelURL:     fmt.Sprintf("%s/checkout?canceled=true&order=%s", s.cfg.SiteURL, url.QueryEscape(order.OrderNumber)),
		Currency:      order.Currency,
		Items:         make([]providers.LineItem, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		req.Items = append(req.Items, providers.LineItem{
			Name:       item.ProductName,
			Quantity:   item.Quantity,
			UnitAmount: item.Price,
		})
	}

	sess, err := provider.CreateSession(ctx, req)
	if err != nil {
		s.logger.Error("Payment session creation failed",
			zap.String("provider", provider.Name()),
			zap.String("order_number", order.OrderNumber),
			zap.Error(err),
		)
		recordCount(ctx, s.metrics, aws_pkg.MetricCheckoutSessionFailed, map[string]string{"Provider": provider.Name()})
		if errors.Is(err, providers.ErrUnsupportedCurrency) {
			return nil, apperrors.InvalidRequest(fmt.Sprintf("payment provider %s cannot charge in %s", provider.Name(), strings.ToUpper(order.Currency)))
		}
		return nil, apperrors.ProviderError("failed to create payment session", err)
	}

	attached, err := s.repo.AttachPaymentSession(ctx, order.ID, provider.Name(), sess.ID)
	switch {
	case err != nil:
		s.logger.Error("Failed to store payment session on order",
			zap.String("order_id", order.ID.String()),
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	case !attached:
		s.logger.Warn("Order was paid while the session was being created",
			zap.String("order_id", order.ID.String()),
			zap.String("session_id", sess.ID),
		)
	}

	recordCount(ctx, s.metrics, aws_pkg.MetricCheckoutSessions, map[string]string{"Provider": provider.Name()})

	event := models.PaymentEvent{
		Type:        "checkout_session_created",
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		Provider:    provider.Name(),
		SessionID:   sess.ID,
		CheckoutURL: sess.URL,
		Amount:      order.Total.StringFixed(2),
		Currency:    order.Currency,
		Timestamp:   time.Now().UTC(),
	}
	if order.UserID != nil {
		event.UserID = order.UserID.String()
	}
	s.events.publish(ctx, event)

	return &models.CheckoutSession{
		Provider:  provider.Name(),
		SessionID: sess.ID,
		URL:       sess.URL,
	}, nil
}
