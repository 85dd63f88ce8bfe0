package services

import (
	"context"
	"encoding/json"
	"time"

	aws_pkg "checkout-service/pkg/aws"

	"go.uber.org/zap"
)

// Locker serializes reconciliation of a single order across instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (func(), error)
}

// eventPublisher publishes JSON events to SNS. Failures are logged only.
type eventPublisher struct {
	sns      aws_pkg.SNSPublisher
	topicArn string
	logger   *zap.Logger
}

func (p eventPublisher) publish(ctx context.Context, event interface{}) {
	if p.sns == nil || p.topicArn == "" {
		p.logger.Debug("SNS not configured, skipping event publish")
		return
	}
	b, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal SNS event", zap.Error(err))
		return
	}
	if err := p.sns.Publish(ctx, p.topicArn, b); err != nil {
		p.logger.Error("Failed to publish SNS event", zap.Error(err))
		return
	}
	p.logger.Info("Published SNS event", zap.String("topic", p.topicArn))
}

func recordCount(ctx context.Context, m aws_pkg.MetricsRecorder, name string, dims map[string]string) {
	if m == nil || !m.IsEnabled() {
		return
	}
	_ = m.RecordCount(ctx, name, dims)
}
