package services

import (
	"context"
	"encoding/json"

	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"

	"go.uber.org/zap"
)

// QueuePoller delivers queue message bodies to a handler until ctx ends.
type QueuePoller interface {
	StartPolling(ctx context.Context, handler aws_pkg.MessageHandler) error
}

// ReconcileConsumer re-runs verification for messages on the reconcile queue.
type ReconcileConsumer struct {
	poller   QueuePoller
	verifier VerificationService
	logger   *zap.Logger
}

func NewReconcileConsumer(poller QueuePoller, verifier VerificationService, logger *zap.Logger) *ReconcileConsumer {
	return &ReconcileConsumer{poller: poller, verifier: verifier, logger: logger}
}

func (c *ReconcileConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting ReconcileConsumer (SQS)")
	return c.poller.StartPolling(ctx, c.HandleMessage)
}

// HandleMessage returns an error only for transient failures so the message
// is redelivered. Malformed and unresolvable messages are dropped.
func (c *ReconcileConsumer) HandleMessage(ctx context.Context, body string) error {
	var msg models.ReconcileMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		c.logger.Warn("Invalid reconcile message JSON", zap.Error(err))
		return nil
	}
	if msg.SessionID == "" && msg.OrderNumber == "" {
		c.logger.Warn("Reconcile message without session_id or order_number")
		return nil
	}

	result, err := c.verifier.Verify(ctx, models.VerifyRequest{SessionID: msg.SessionID, OrderNumber: msg.OrderNumber})
	if err != nil {
		if isTransient(err) {
			c.logger.Warn("Reconcile failed, message will be retried",
				zap.String("session_id", msg.SessionID),
				zap.String("order_number", msg.OrderNumber),
				zap.Error(err),
			)
			return err
		}
		c.logger.Warn("Reconcile message dropped", zap.Error(err))
		return nil
	}

	c.logger.Info("Reconcile complete",
		zap.String("order_id", result.OrderID),
		zap.Bool("paid", result.Paid),
		zap.String("status", result.Status),
	)
	return nil
}
