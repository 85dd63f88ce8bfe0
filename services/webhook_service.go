package services

import (
	"context"
	"encoding/json"
	"errors"

	"checkout-service/apperrors"
	"checkout-service/models"
	"checkout-service/providers"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
)

// PaymentLookup resolves a wallet payment notification to its order number.
type PaymentLookup interface {
	PaymentReference(ctx context.Context, paymentID string) (string, error)
}

// ReconcileQueue defers a verification that failed on a transient error.
type ReconcileQueue interface {
	SendMessage(ctx context.Context, body string) error
}

// WebhookService turns provider notifications into verification runs. A
// notification is only a trigger: the verifier always asks the provider.
type WebhookService interface {
	HandleStripeEvent(ctx context.Context, payload []byte, signature string) error
	HandleMercadoPagoNotification(ctx context.Context, topic, paymentID string) error
}

type webhookServiceImpl struct {
	verifier            VerificationService
	stripeWebhookSecret string
	payments            PaymentLookup
	queue               ReconcileQueue
	logger              *zap.Logger
}

// NewWebhookService creates a new WebhookService. payments and queue may be nil.
func NewWebhookService(verifier VerificationService, stripeWebhookSecret string, payments PaymentLookup, queue ReconcileQueue, logger *zap.Logger) WebhookService {
	return &webhookServiceImpl{
		verifier:            verifier,
		stripeWebhookSecret: stripeWebhookSecret,
		payments:            payments,
		queue:               queue,
		logger:              logger,
	}
}

func (w *webhookServiceImpl) HandleStripeEvent(ctx context.Context, payload []byte, signature string) error {
	if w.stripeWebhookSecret == "" {
		return apperrors.InvalidRequest("stripe webhooks are not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, w.stripeWebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		w.logger.Warn("Stripe webhook signature verification failed", zap.Error(err))
		return apperrors.InvalidRequest("invalid webhook signature")
	}

	w.logger.Info("Processing Stripe webhook",
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID),
	)

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
	default:
		w.logger.Info("Unhandled webhook event type", zap.String("event_type", string(event.Type)))
		return nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil || sess.ID == "" {
		w.logger.Error("Failed to unmarshal checkout session", zap.Error(err))
		return apperrors.InvalidRequest("malformed checkout session payload")
	}

	return w.verify(ctx, models.ReconcileMessage{SessionID: sess.ID})
}

func (w *webhookServiceImpl) HandleMercadoPagoNotification(ctx context.Context, topic, paymentID string) error {
	if topic != "payment" || paymentID == "" {
		w.logger.Debug("Ignoring Mercado Pago notification", zap.String("topic", topic))
		return nil
	}
	if w.payments == nil {
		return apperrors.InvalidRequest("mercadopago webhooks are not configured")
	}

	orderNumber, err := w.payments.PaymentReference(ctx, paymentID)
	if err != nil {
		if errors.Is(err, providers.ErrSessionNotFound) {
			w.logger.Warn("Mercado Pago payment not found", zap.String("payment_id", paymentID))
			return nil
		}
		w.logger.Error("Mercado Pago payment lookup failed", zap.String("payment_id", paymentID), zap.Error(err))
		return apperrors.ProviderError("failed to retrieve payment", err)
	}
	if orderNumber == "" {
		w.logger.Warn("Mercado Pago payment has no external reference", zap.String("payment_id", paymentID))
		return nil
	}

	return w.verify(ctx, models.ReconcileMessage{OrderNumber: orderNumber})
}

// verify runs a verification. Transient failures are queued for a later retry
// when a queue is configured, otherwise returned so the provider redelivers.
func (w *webhookServiceImpl) verify(ctx context.Context, msg models.ReconcileMessage) error {
	result, err := w.verifier.Verify(ctx, models.VerifyRequest{SessionID: msg.SessionID, OrderNumber: msg.OrderNumber})
	if err == nil {
		w.logger.Info("Webhook verification complete",
			zap.String("order_id", result.OrderID),
			zap.Bool("paid", result.Paid),
		)
		return nil
	}

	if !isTransient(err) {
		w.logger.Warn("Webhook verification skipped", zap.Error(err))
		return nil
	}

	if w.queue != nil {
		body, _ := json.Marshal(msg)
		qErr := w.queue.SendMessage(ctx, string(body))
		if qErr == nil {
			w.logger.Warn("Webhook verification deferred to reconcile queue", zap.Error(err))
			return nil
		}
		w.logger.Error("Failed to enqueue reconcile message", zap.Error(qErr))
	}
	return err
}

func isTransient(err error) bool {
	return apperrors.Is(err, apperrors.KindProviderError) || apperrors.Is(err, apperrors.KindPersistenceError)
}
