package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order lifecycle values.
const (
	OrderStatusDraft = "draft"
	OrderStatusPaid  = "paid"
)

// Payment status values.
const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

type Order struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderNumber     string          `gorm:"uniqueIndex;not null" json:"order_number"`
	UserID          *uuid.UUID      `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Total           decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"total"`
	Currency        string          `gorm:"type:varchar(10);not null;default:'usd'" json:"currency"`
	Status          string          `gorm:"type:varchar(20);not null;default:'draft'" json:"status"`
	PaymentStatus   string          `gorm:"type:varchar(20);not null;default:'unpaid'" json:"payment_status"`
	PaymentID       *string         `gorm:"type:varchar(255);index" json:"payment_id,omitempty"`
	PaymentProvider *string         `gorm:"type:varchar(20)" json:"payment_provider,omitempty"`
	BillingInfo     BillingInfo     `gorm:"type:jsonb" json:"billing_info"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`
	Items           []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
}

// IsPaid reports whether the order reached the terminal paid state.
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

type OrderItem struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID      *uuid.UUID      `gorm:"type:uuid" json:"product_id,omitempty"`
	ProductName    string          `gorm:"not null" json:"product_name"`
	Quantity       int             `gorm:"not null" json:"quantity"`
	Price          decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	DigitalContent *DigitalContent `gorm:"type:jsonb" json:"digital_content,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Subtotal is price times quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// BillingInfo is the denormalized contact and address captured at checkout.
type BillingInfo struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

func (b BillingInfo) Value() (driver.Value, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (b *BillingInfo) Scan(value interface{}) error {
	return scanJSON(value, b)
}

// DigitalContent is the redemption payload delivered for a purchased item.
type DigitalContent struct {
	ProductName  string    `json:"product_name"`
	Code         string    `json:"code"`
	Instructions string    `json:"instructions"`
	IssuedAt     time.Time `json:"issued_at"`
}

func (d DigitalContent) Value() (driver.Value, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (d *DigitalContent) Scan(value interface{}) error {
	return scanJSON(value, d)
}

func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", value)
	}
}

// HasDigitalContent reports whether a redemption record was already issued.
func (i OrderItem) HasDigitalContent() bool {
	return i.DigitalContent != nil && i.DigitalContent.Code != ""
}
