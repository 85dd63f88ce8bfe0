package services

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const redemptionInstructions = "Open your platform's store, choose \"Redeem a code\" and enter the code above. Each code can be redeemed once."

// ContentIssuer assigns one redemption record to every item of a paid order.
type ContentIssuer interface {
	// Issue returns how many items received content in this call. Items that
	// already carry content are left untouched.
	Issue(ctx context.Context, order *models.Order) (int, error)
}

type contentIssuerImpl struct {
	repo    repository.OrderRepository
	metrics aws_pkg.MetricsRecorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewContentIssuer creates a new ContentIssuer.
func NewContentIssuer(repo repository.OrderRepository, metrics aws_pkg.MetricsRecorder, logger *zap.Logger) ContentIssuer {
	return &contentIssuerImpl{repo: repo, metrics: metrics, logger: logger, now: time.Now}
}

func (i *contentIssuerImpl) Issue(ctx context.Context, order *models.Order) (int, error) {
	var issued int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, item := range order.Items {
		if item.HasDigitalContent() {
			continue
		}
		g.Go(func() error {
			content := models.DigitalContent{
				ProductName:  item.ProductName,
				Code:         generateRedemptionCode(i.now()),
				Instructions: redemptionInstructions,
				IssuedAt:     i.now().UTC(),
			}
			ok, err := i.repo.SetDigitalContentIfAbsent(gctx, item.ID, content)
			if err != nil {
				return err
			}
			if ok {
				atomic.AddInt64(&issued, 1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		i.logger.Error("Digital content issuance failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return int(issued), err
	}

	if issued > 0 {
		i.logger.Info("Digital content issued",
			zap.String("order_id", order.ID.String()),
			zap.Int64("items", issued),
		)
		recordCount(ctx, i.metrics, aws_pkg.MetricContentIssued, nil)
	}
	return int(issued), nil
}

// generateRedemptionCode combines a nanosecond timestamp with 32 random bits,
// e.g. "1A2B3C4D5E6F7-9F86D081".
func generateRedemptionCode(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strings.ToUpper(strconv.FormatInt(now.UnixNano(), 36) + "-" + random)
}
