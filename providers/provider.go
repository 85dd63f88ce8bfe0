package providers

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Provider names as stored in orders.payment_provider.
const (
	ProviderStripe      = "stripe"
	ProviderMercadoPago = "mercadopago"
)

// ErrSessionNotFound means the provider does not know the reference. Callers
// treat it as an unresolved lookup rather than a provider failure.
var ErrSessionNotFound = errors.New("payment session not found")

// ErrUnsupportedCurrency means the provider cannot charge in the requested
// currency.
var ErrUnsupportedCurrency = errors.New("currency not supported by payment provider")

// LineItem is one order line in provider-neutral form.
type LineItem struct {
	Name       string
	Quantity   int
	UnitAmount decimal.Decimal
}

// SessionRequest carries everything a provider needs to open a hosted checkout.
type SessionRequest struct {
	OrderID       string
	OrderNumber   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	// Currency is the order's ISO 4217 code. Empty means the provider default.
	Currency string
	Items    []LineItem
}

// Session is the provider's view of a single checkout attempt.
type Session struct {
	ID          string
	URL         string
	Status      string
	Paid        bool
	OrderID     string
	OrderNumber string
}

// PaymentProvider defines the interface all payment integrations must implement.
type PaymentProvider interface {
	Name() string

	// RequiresAuth reports whether sessions may only be opened for
	// authenticated customers.
	RequiresAuth() bool

	// Supports reports whether the provider charges in currency.
	Supports(currency string) bool

	// Owns reports whether reference looks like one of this provider's sessions.
	Owns(reference string) bool

	// CreateSession opens a hosted checkout. It is called once per attempt.
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)

	// GetSession returns the authoritative state of a checkout attempt.
	GetSession(ctx context.Context, reference string) (*Session, error)
}

// Registry looks providers up by name or by reference shape.
type Registry struct {
	ordered []PaymentProvider
	byName  map[string]PaymentProvider
}

func NewRegistry(providers ...PaymentProvider) *Registry {
	r := &Registry{byName: make(map[string]PaymentProvider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		r.ordered = append(r.ordered, p)
		r.byName[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (PaymentProvider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// ForReference returns the first registered provider that owns reference.
func (r *Registry) ForReference(reference string) (PaymentProvider, bool) {
	for _, p := range r.ordered {
		if p.Owns(reference) {
			return p, true
		}
	}
	return nil, false
}

// Names lists the registered providers in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ordered))
	for _, p := range r.ordered {
		names = append(names, p.Name())
	}
	return names
}
