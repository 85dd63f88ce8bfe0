package services

import (
	"context"
	"errors"
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

const (
	reconcileLockTTL  = 15 * time.Second
	reconcileLockWait = 2 * time.Second
)

// VerificationService reconciles local order state with the provider.
type VerificationService interface {
	// Verify returns a result for resolved sessions and an *apperrors.Error
	// otherwise. It never moves a paid order back.
	Verify(ctx context.Context, req models.VerifyRequest) (*models.VerifyResult, error)
}

type verificationServiceImpl struct {
	repo      repository.OrderRepository
	providers *providers.Registry
	issuer    ContentIssuer
	locker    Locker
	events    eventPublisher
	metrics   aws_pkg.MetricsRecorder
	logger    *zap.Logger
}

// NewVerificationService creates a new VerificationService. locker may be nil.
func NewVerificationService(
	repo repository.OrderRepository,
	registry *providers.Registry,
	issuer ContentIssuer,
	locker Locker,
	snsClient aws_pkg.SNSPublisher,
	snsTopicArn string,
	metrics aws_pkg.MetricsRecorder,
	logger *zap.Logger,
) VerificationService {
	return &verificationServiceImpl{
		repo:      repo,
		providers: registry,
		issuer:    issuer,
		locker:    locker,
		events:    eventPublisher{sns: snsClient, topicArn: snsTopicArn, logger: logger},
		metrics:   metrics,
		logger:    logger,
	}
}

type resolutionKind int

const (
	resolved resolutionKind = iota
	orderNotFound
	sessionNotFound
)

type resolution struct {
	kind    resolutionKind
	order   *models.Order
	session *providers.Session
}

func (s *verificationServiceImpl) Verify(ctx context.Context, req models.VerifyRequest) (*models.VerifyResult, error) {
	if req.SessionID == "" && req.OrderNumber == "" {
		return nil, apperrors.InvalidRequest("sessionId or orderNumber is required")
	}

	res, err := s.resolve(ctx, req)
	if err != nil {
		recordCount(ctx, s.metrics, aws_pkg.MetricVerificationFailed, nil)
		return nil, err
	}
	switch res.kind {
	case orderNotFound:
		return nil, apperrors.NotFound("order not found")
	case sessionNotFound:
		return nil, apperrors.NotFound("payment session not found")
	}

	result, err := s.reconcile(ctx, res.order, res.session)
	if err != nil {
		recordCount(ctx, s.metrics, aws_pkg.MetricVerificationFailed, nil)
		return nil, err
	}
	recordCount(ctx, s.metrics, aws_pkg.MetricPaymentVerified, map[string]string{"Paid": boolLabel(result.Paid)})
	return result, nil
}

// resolve finds the order and the provider session. Path (a) goes through the
// order number and the stored reference; path (b) asks the provider for the
// given reference and then finds the order by payment_id or by the order id
// the provider echoes back in its metadata.
func (s *verificationServiceImpl) resolve(ctx context.Context, req models.VerifyRequest) (resolution, error) {
	var (
		order   *models.Order
		session *providers.Session
		err     error
	)

	if req.OrderNumber != "" {
		order, err = s.findOrder(ctx, func() (*models.Order, error) {
			return s.repo.FindByOrderNumber(ctx, req.OrderNumber)
		})
		if err != nil {
			return resolution{}, err
		}
		if order != nil && order.PaymentID != nil && *order.PaymentID != "" {
			session, err = s.fetchSession(ctx, s.providerForOrder(order), *order.PaymentID)
			if err != nil {
				return resolution{}, err
			}
		}
	}

	if session == nil && req.SessionID != "" {
		provider, ok := s.providers.ForReference(req.SessionID)
		if ok {
			session, err = s.fetchSession(ctx, provider, req.SessionID)
			if err != nil {
				return resolution{}, err
			}
		}

		if session != nil && order == nil {
			order, err = s.orderForSession(ctx, req.SessionID, session)
			if err != nil {
				return resolution{}, err
			}
		}

		if session != nil && order != nil && !belongsTo(session, order) {
			s.logger.Warn("Payment session does not belong to order",
				zap.String("session_id", session.ID),
				zap.String("order_number", order.OrderNumber),
			)
			session = nil
		}
	}

	switch {
	case session == nil && order == nil && req.SessionID != "":
		return resolution{kind: sessionNotFound}, nil
	case order == nil:
		return resolution{kind: orderNotFound}, nil
	case session == nil:
		return resolution{kind: sessionNotFound}, nil
	}
	return resolution{kind: resolved, order: order, session: session}, nil
}

func (s *verificationServiceImpl) orderForSession(ctx context.Context, reference string, session *providers.Session) (*models.Order, error) {
	order, err := s.findOrder(ctx, func() (*models.Order, error) {
		return s.repo.FindByPaymentID(ctx, reference)
	})
	if err != nil || order != nil {
		return order, err
	}

	if id, parseErr := uuid.Parse(session.OrderID); parseErr == nil {
		order, err = s.findOrder(ctx, func() (*models.Order, error) {
			return s.repo.FindByID(ctx, id)
		})
		if err != nil || order != nil {
			return order, err
		}
	}

	if session.OrderNumber != "" {
		return s.findOrder(ctx, func() (*models.Order, error) {
			return s.repo.FindByOrderNumber(ctx, session.OrderNumber)
		})
	}
	return nil, nil
}

// findOrder maps a missing row to (nil, nil).
func (s *verificationServiceImpl) findOrder(ctx context.Context, find func() (*models.Order, error)) (*models.Order, error) {
	order, err := find()
	if err == nil {
		return order, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	s.logger.Error("Order lookup failed", zap.Error(err))
	return nil, apperrors.PersistenceError("failed to load order", err)
}

// fetchSession maps an unknown reference to (nil, nil).
func (s *verificationServiceImpl) fetchSession(ctx context.Context, provider providers.PaymentProvider, reference string) (*providers.Session, error) {
	if provider == nil {
		return nil, nil
	}
	session, err := provider.GetSession(ctx, reference)
	if err == nil {
		return session, nil
	}
	if errors.Is(err, providers.ErrSessionNotFound) {
		return nil, nil
	}
	s.logger.Error("Payment session lookup failed",
		zap.String("provider", provider.Name()),
		zap.String("session_id", reference),
		zap.Error(err),
	)
	return nil, apperrors.ProviderError("failed to retrieve payment session", err)
}

func (s *verificationServiceImpl) providerForOrder(order *models.Order) providers.PaymentProvider {
	if order.PaymentProvider != nil {
		if p, ok := s.providers.Get(*order.PaymentProvider); ok {
			return p
		}
	}
	p, _ := s.providers.ForReference(*order.PaymentID)
	return p
}

func belongsTo(session *providers.Session, order *models.Order) bool {
	if order.PaymentID != nil && *order.PaymentID == session.ID {
		return true
	}
	return session.OrderID == order.ID.String() || session.OrderNumber == order.OrderNumber
}

// reconcile applies the provider verdict through the guarded write and issues
// content whenever the resulting state is paid.
func (s *verificationServiceImpl) reconcile(ctx context.Context, order *models.Order, session *providers.Session) (*models.VerifyResult, error) {
	log := s.logger.With(
		zap.String("order_id", order.ID.String()),
		zap.String("session_id", session.ID),
	)

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, order.ID.String(), reconcileLockTTL, reconcileLockWait)
		if err != nil {
			log.Warn("Reconcile lock unavailable, relying on guarded writes", zap.Error(err))
		} else {
			defer release()
		}
	}

	applied, err := s.repo.ApplyPaymentStatus(ctx, order.ID, session.ID, session.Paid)
	if err != nil {
		log.Error("Failed to update order payment status", zap.Error(err))
		return nil, apperrors.PersistenceError("failed to update order", err)
	}
	if !applied {
		if err := s.repo.TouchPaymentReference(ctx, order.ID, session.ID); err != nil {
			log.Error("Failed to refresh payment reference", zap.Error(err))
			return nil, apperrors.PersistenceError("failed to update order", err)
		}
		if !session.Paid {
			log.Warn("Provider reports unpaid for an order already marked paid",
				zap.String("provider_status", session.Status))
		}
	}

	current, err := s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, apperrors.PersistenceError("failed to reload order", err)
	}

	if applied && session.Paid {
		log.Info("Order paid", zap.String("order_number", current.OrderNumber))
		recordCount(ctx, s.metrics, aws_pkg.MetricPaymentSucceeded, nil)
		event := models.PaymentEvent{
			Type:        "payment_succeeded",
			OrderID:     current.ID.String(),
			OrderNumber: current.OrderNumber,
			SessionID:   session.ID,
			Amount:      current.Total.StringFixed(2),
			Currency:    current.Currency,
			Timestamp:   time.Now().UTC(),
		}
		if current.PaymentProvider != nil {
			event.Provider = *current.PaymentProvider
		}
		if current.UserID != nil {
			event.UserID = current.UserID.String()
		}
		s.events.publish(ctx, event)
	}

	if current.IsPaid() {
		if _, err := s.issuer.Issue(ctx, current); err != nil {
			return nil, apperrors.PersistenceError("failed to issue digital content", err)
		}
	}

	return &models.VerifyResult{
		Verified:    true,
		Paid:        current.IsPaid(),
		Status:      current.PaymentStatus,
		OrderStatus: current.Status,
		SessionID:   session.ID,
		OrderID:     current.ID.String(),
	}, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
