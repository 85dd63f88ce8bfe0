package repository

import (
	"context"

	"checkout-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderRepository defines data-access operations for orders and their items.
// Every status write is guarded so that a paid order is never moved back.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)

	// AttachPaymentSession stores the provider reference and marks the order
	// pending. It reports false when the order is already paid.
	AttachPaymentSession(ctx context.Context, orderID uuid.UUID, provider, sessionID string) (bool, error)

	// ApplyPaymentStatus moves the order to paid/paid or pending/draft unless it
	// is already paid. It reports whether the guarded write applied.
	ApplyPaymentStatus(ctx context.Context, orderID uuid.UUID, sessionID string, paid bool) (bool, error)

	// TouchPaymentReference refreshes payment_id and updated_at only.
	TouchPaymentReference(ctx context.Context, orderID uuid.UUID, sessionID string) error

	// SetDigitalContentIfAbsent writes content only when the item has none.
	SetDigitalContentIfAbsent(ctx context.Context, itemID uuid.UUID, content models.DigitalContent) (bool, error)
}

// GormOrderRepository implements OrderRepository using GORM.
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository.
func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *GormOrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return r.findOne(ctx, "order_number = ?", orderNumber)
}

func (r *GormOrderRepository) FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	return r.findOne(ctx, "payment_id = ?", paymentID)
}

func (r *GormOrderRepository) findOne(ctx context.Context, query string, arg interface{}) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where(query, arg).
		First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *GormOrderRepository) AttachPaymentSession(ctx context.Context, orderID uuid.UUID, provider, sessionID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", orderID, models.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"payment_id":       sessionID,
			"payment_provider": provider,
			"payment_status":   models.PaymentStatusPending,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormOrderRepository) ApplyPaymentStatus(ctx context.Context, orderID uuid.UUID, sessionID string, paid bool) (bool, error) {
	status, paymentStatus := models.OrderStatusDraft, models.PaymentStatusPending
	if paid {
		status, paymentStatus = models.OrderStatusPaid, models.PaymentStatusPaid
	}

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", orderID, models.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"payment_id":     sessionID,
			"status":         status,
			"payment_status": paymentStatus,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormOrderRepository) TouchPaymentReference(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("payment_id", sessionID).Error
}

func (r *GormOrderRepository) SetDigitalContentIfAbsent(ctx context.Context, itemID uuid.UUID, content models.DigitalContent) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND digital_content IS NULL", itemID).
		Update("digital_content", content)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
