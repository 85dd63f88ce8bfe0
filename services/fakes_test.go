package services_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"checkout-service/models"
	"checkout-service/providers"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ---- in-memory repository with the same guards as the SQL one ----

type fakeRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order

	createErr  error
	findErr    error
	attachErr  error
	applyErr   error
	contentErr error

	contentWrites int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: map[uuid.UUID]*models.Order{}}
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = make([]models.OrderItem, len(o.Items))
	for i, it := range o.Items {
		c.Items[i] = it
		if it.DigitalContent != nil {
			dc := *it.DigitalContent
			c.Items[i].DigitalContent = &dc
		}
	}
	if o.PaymentID != nil {
		v := *o.PaymentID
		c.PaymentID = &v
	}
	if o.PaymentProvider != nil {
		v := *o.PaymentProvider
		c.PaymentProvider = &v
	}
	return &c
}

func (r *fakeRepo) put(o *models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = cloneOrder(o)
}

func (r *fakeRepo) get(id uuid.UUID) *models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneOrder(r.orders[id])
}

func (r *fakeRepo) Create(_ context.Context, o *models.Order) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.put(o)
	return nil
}

func (r *fakeRepo) find(match func(*models.Order) bool) (*models.Order, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if match(o) {
			return cloneOrder(o), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find(func(o *models.Order) bool { return o.ID == id })
}

func (r *fakeRepo) FindByOrderNumber(_ context.Context, n string) (*models.Order, error) {
	return r.find(func(o *models.Order) bool { return o.OrderNumber == n })
}

func (r *fakeRepo) FindByPaymentID(_ context.Context, ref string) (*models.Order, error) {
	return r.find(func(o *models.Order) bool { return o.PaymentID != nil && *o.PaymentID == ref })
}

func (r *fakeRepo) AttachPaymentSession(_ context.Context, id uuid.UUID, provider, sessionID string) (bool, error) {
	if r.attachErr != nil {
		return false, r.attachErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.PaymentStatus == models.PaymentStatusPaid {
		return false, nil
	}
	o.PaymentID = &sessionID
	o.PaymentProvider = &provider
	o.PaymentStatus = models.PaymentStatusPending
	o.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeRepo) ApplyPaymentStatus(_ context.Context, id uuid.UUID, sessionID string, paid bool) (bool, error) {
	if r.applyErr != nil {
		return false, r.applyErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.PaymentStatus == models.PaymentStatusPaid {
		return false, nil
	}
	o.PaymentID = &sessionID
	if paid {
		o.Status, o.PaymentStatus = models.OrderStatusPaid, models.PaymentStatusPaid
	} else {
		o.Status, o.PaymentStatus = models.OrderStatusDraft, models.PaymentStatusPending
	}
	o.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeRepo) TouchPaymentReference(_ context.Context, id uuid.UUID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok {
		o.PaymentID = &sessionID
		o.UpdatedAt = time.Now()
	}
	return nil
}

func (r *fakeRepo) SetDigitalContentIfAbsent(_ context.Context, itemID uuid.UUID, content models.DigitalContent) (bool, error) {
	if r.contentErr != nil {
		return false, r.contentErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		for i := range o.Items {
			if o.Items[i].ID != itemID {
				continue
			}
			if o.Items[i].DigitalContent != nil {
				return false, nil
			}
			c := content
			o.Items[i].DigitalContent = &c
			r.contentWrites++
			return true, nil
		}
	}
	return false, nil
}

// ---- fake payment provider ----

type fakeProvider struct {
	mu           sync.Mutex
	name         string
	prefix       string
	requiresAuth bool
	currency     string
	paid         bool
	sessions     map[string]*providers.Session

	createErr error
	getErr    error

	createCalls int
	getCalls    int
	lastReq     providers.SessionRequest
}

func newFakeProvider(name, prefix string, requiresAuth bool) *fakeProvider {
	return &fakeProvider{name: name, prefix: prefix, requiresAuth: requiresAuth, sessions: map[string]*providers.Session{}}
}

func (p *fakeProvider) Name() string       { return p.name }
func (p *fakeProvider) RequiresAuth() bool { return p.requiresAuth }
func (p *fakeProvider) Supports(currency string) bool {
	return p.currency == "" || strings.EqualFold(p.currency, currency)
}

func (p *fakeProvider) Owns(ref string) bool {
	return len(ref) > len(p.prefix) && ref[:len(p.prefix)] == p.prefix
}

func (p *fakeProvider) CreateSession(_ context.Context, req providers.SessionRequest) (*providers.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	p.lastReq = req
	if p.createErr != nil {
		return nil, p.createErr
	}
	id := fmt.Sprintf("%s%d", p.prefix, len(p.sessions)+1)
	p.sessions[id] = &providers.Session{ID: id, OrderID: req.OrderID, OrderNumber: req.OrderNumber}
	return &providers.Session{ID: id, URL: "https://pay.example.com/" + id, Status: "open"}, nil
}

func (p *fakeProvider) GetSession(_ context.Context, ref string) (*providers.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	s, ok := p.sessions[ref]
	if !ok {
		return nil, providers.ErrSessionNotFound
	}
	out := *s
	out.Paid = p.paid
	out.Status = "unpaid"
	if p.paid {
		out.Status = "paid"
	}
	return &out, nil
}

func (p *fakeProvider) setPaid(paid bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = paid
}

// ---- SNS, metrics and lock fakes ----

type fakeSNS struct {
	mu       sync.Mutex
	messages [][]byte
	err      error
}

func (f *fakeSNS) Publish(_ context.Context, _ string, message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return f.err
}

func (f *fakeSNS) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{counts: map[string]int{}} }

func (m *fakeMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
	return nil
}

func (m *fakeMetrics) RecordLatency(context.Context, string, time.Duration, map[string]string) error {
	return nil
}

func (m *fakeMetrics) IsEnabled() bool { return true }

func (m *fakeMetrics) get(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

type fakeLocker struct {
	mu       sync.Mutex
	acquired []string
	released int
	err      error
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, key)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released++
	}, nil
}

// ---- fixtures ----

// newOrder1001 is the two-item order used across the workflow tests:
// $10 x1 and $5 x2.
func newOrder1001() *models.Order {
	id := uuid.New()
	return &models.Order{
		ID:            id,
		OrderNumber:   "ORD-1001",
		Total:         decimal.RequireFromString("20.00"),
		Currency:      "usd",
		Status:        models.OrderStatusDraft,
		PaymentStatus: models.PaymentStatusUnpaid,
		BillingInfo:   models.BillingInfo{FullName: "Ada Lovelace", Email: "ada@example.com"},
		Items: []models.OrderItem{
			{ID: uuid.New(), OrderID: id, ProductName: "Starfield Deluxe", Quantity: 1, Price: decimal.RequireFromString("10.00")},
			{ID: uuid.New(), OrderID: id, ProductName: "Hollow Knight", Quantity: 2, Price: decimal.RequireFromString("5.00")},
		},
	}
}
