package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer is the identity attached to a request. Guests have a nil UserID.
type Customer struct {
	UserID *uuid.UUID
	Email  string
}

// Authenticated reports whether the request carried a valid bearer token.
func (c Customer) Authenticated() bool {
	return c.UserID != nil
}

type CreateOrderItem struct {
	ProductID   *uuid.UUID      `json:"product_id"`
	ProductName string          `json:"product_name" binding:"required"`
	Quantity    int             `json:"quantity" binding:"required,min=1"`
	Price       decimal.Decimal `json:"price"`
}

type CreateOrderRequest struct {
	Currency    string            `json:"currency" binding:"omitempty,len=3,alpha"`
	BillingInfo BillingInfo       `json:"billing_info"`
	Items       []CreateOrderItem `json:"items" binding:"required,min=1,dive"`
}

type CreateSessionRequest struct {
	OrderID string `json:"orderId" binding:"required,uuid"`
}

// VerifyRequest needs at least one of the two correlation keys.
type VerifyRequest struct {
	SessionID   string `json:"sessionId"`
	OrderNumber string `json:"orderNumber" binding:"omitempty,ordernumber"`
}

// UnmarshalJSON trims both keys so binding validation sees the cleaned values.
func (r *VerifyRequest) UnmarshalJSON(data []byte) error {
	type plain VerifyRequest
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	v.SessionID = strings.TrimSpace(v.SessionID)
	v.OrderNumber = strings.TrimSpace(v.OrderNumber)
	*r = VerifyRequest(v)
	return nil
}

// CheckoutSession is what a client needs to redirect the buyer.
type CheckoutSession struct {
	Provider  string `json:"provider"`
	SessionID string `json:"id"`
	URL       string `json:"url"`
}

// VerifyResult is returned for every verification attempt. Failures carry
// Verified=false and Error instead of an HTTP error.
type VerifyResult struct {
	Verified    bool   `json:"verified"`
	Paid        bool   `json:"paid"`
	Status      string `json:"status,omitempty"`
	OrderStatus string `json:"order_status,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	OrderID     string `json:"order_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PaymentEvent is published to SNS when checkout state changes.
type PaymentEvent struct {
	Type        string    `json:"type"` // "checkout_session_created" | "payment_succeeded"
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id,omitempty"`
	Provider    string    `json:"provider"`
	SessionID   string    `json:"session_id"`
	CheckoutURL string    `json:"checkout_url,omitempty"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Timestamp   time.Time `json:"timestamp"`
}

// ReconcileMessage is the SQS payload asking for a payment re-check.
type ReconcileMessage struct {
	SessionID   string `json:"session_id,omitempty"`
	OrderNumber string `json:"order_number,omitempty"`
}
