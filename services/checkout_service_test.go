package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"checkout-service/apperrors"
	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/providers"
	"checkout-service/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTopic = "arn:aws:sns:us-east-1:000000000000:payments"

type harness struct {
	repo     *fakeRepo
	card     *fakeProvider
	wallet   *fakeProvider
	sns      *fakeSNS
	metrics  *fakeMetrics
	locker   *fakeLocker
	checkout services.CheckoutService
	verifier services.VerificationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	h := &harness{
		repo:    newFakeRepo(),
		card:    newFakeProvider(providers.ProviderStripe, "cs_test_", false),
		wallet:  newFakeProvider(providers.ProviderMercadoPago, "pref-", true),
		sns:     &fakeSNS{},
		metrics: newFakeMetrics(),
		locker:  &fakeLocker{},
	}
	registry := providers.NewRegistry(h.card, h.wallet)
	h.checkout = services.NewCheckoutService(h.repo, registry,
		services.CheckoutConfig{SiteURL: "https://shop.example.com/", SNSTopicArn: testTopic},
		h.sns, h.metrics, logger)
	issuer := services.NewContentIssuer(h.repo, h.metrics, logger)
	h.verifier = services.NewVerificationService(h.repo, registry, issuer, h.locker, h.sns, testTopic, h.metrics, logger)
	return h
}

func guest() models.Customer { return models.Customer{} }

func member(email string) models.Customer {
	id := uuid.New()
	return models.Customer{UserID: &id, Email: email}
}

func TestCreateSession_SetsPaymentIDAndPending(t *testing.T) {
	h := newHarness(t)
	order := newOrder1001()
	h.repo.put(order)

	sess, err := h.checkout.CreateSession(context.Background(), providers.ProviderStripe, order.ID, guest())

	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/"+sess.SessionID, sess.URL)
	stored := h.repo.get(order.ID)
	require.NotNil(t, stored.PaymentID)
	assert.NotEmpty(t, *stored.PaymentID)
	assert.Equal(t, sess.SessionID, *stored.PaymentID)
	assert.Equal(t, models.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, models.OrderStatusDraft, stored.Status)
	assert.Equal(t, providers.ProviderStripe, *stored.PaymentProvider)
	assert.Equal(t, 1, h.card.createCalls)
	assert.Equal(t, 1, h.sns.count())
	assert.Equal(t, 1, h.metrics.get(aws_pkg.MetricCheckoutSessions))
}

func TestCreateSession_BuildsProviderRequest(t *testing.T) {
	h := newHarness(t)
	order := newOrder1001()
	h.repo.put(order)

	_, err := h.checkout.CreateSession(context.Background(), providers.ProviderStripe, order.ID, guest())
	require.NoError(t, err)

	req := h.card.lastReq
	assert.Equal(t, order.ID.String(), req.OrderID)
	assert.Equal(t, "ORD-1001", req.OrderNumber)
	assert.Equal(t, "ada@example.com", req.CustomerEmail, "guest email comes from billing info")
	assert.Equal(t, "https://shop.example.com/order-confirmation?order=ORD-1001", req.SuccessURL)
	assert.Equal(t, "https://shop.example.com/checkout?canceled=true&order=ORD-1001", req.CancelURL)
	assert.Equal(t, "usd", req.Currency)
	require.Len(t, req.Items, 2)
	assert.Equal(t, "Hollow Knight", req.Items[1].Name)
	assert.Equal(t, 2, req.Items[1].Quantity)
	assert.True(t, req.Items[1].UnitAmount.Equal(decimal.NewFromInt(5)))
}

func TestCreateSession_PrefersAuthenticatedEmail(t *testing.T) {
	h := newHarness(t)
	order := newOrder1001()
	h.repo.put(order)

	_, err := h.checkout.CreateSession(context.Background(), providers.ProviderStripe, order.ID, member("member@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "member@example.com", h.card.lastReq.CustomerEmail)
}

func TestCreateSession_OrderNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.checkout.CreateSession(context.Background(), providers.ProviderStripe, uuid.New(), guest())

	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	assert.Equal(t, 0, h.card.createCalls)
}

func TestCreateSession_WalletRequiresAuthenticatedCustomer(t *testing.T) {
	h := newHarness(t)
	order := newOrder1001()
	h.repo.put(order)

	_, err := h.checkout.CreateSession(context.Background(), providers.ProviderMercadoPago, order.ID, guest())

	assert.Equal(t, apperrors.KindUnauthenticatedCustomer, apperrors.KindOf(err))
	assert.Equal(t, 0, h.wallet.createCalls)
	assert.Nil(t, h.repo.get(order.ID).PaymentID)
}

func TestCreateSession_WalletWithMember(t *testing.T) {
	h := newHarness(t)
	order := newOrder1001()
	h.repo.put(order)

	sess, err := h.checkout.CreateSession(context.Background(), providers.ProviderMercadoPago, order.ID, member("member@example.com"))

	require.NoError(t, err)
	assert.Equal(t, providers.ProviderMercadoPago, sess.Provider)
	assert.Equal(t, providers.ProviderMercadoPago, *h.repo.get(order.ID).PaymentProvider)
}

func TestCreateSession_CurrencyMismatch(t *testing.T) {
	h := newHarness(t)
	h.wallet.currency = "ars"
	order := newOrder1001()
	h.repo.put(order)

	_, err := h.checkout.CreateSession(context.Background(), providers.ProviderMercadoPago, order.ID, member("member@example.com"))

	assert.Equal(t, apperrors.KindInvalidRequest, apperrors.KindOf(err))
	assert.Equal(t, "payment provider mercadopago cannot charge in USD", apperrors.Message(err))
	assert.Equal(t, 0, h.wallet.createCalls)
	assert.Nil(t, h.repo.get(order.ID).PaymentID)
}

func TestCreateSession_ProviderRejectsCurrency(t *testing.T) {
	h := newHarness(t)
	order := newOrder1001()
	h.repo.put(order)
	h.card.createErr = fmt.Errorf("%w: usd", providers.ErrUnsupportedCurrency)

	_, err := h.checkout.CreateSession(context.Background(), providers.ProviderStripe, order.ID, guest())

	assert.Equal(t, apperrors.KindInvalidRequest, apperrors.KindOf(err))
	assert.Nil(t, h.repo.get(order.ID).PaymentID)
}

func TestCreateSession_ProviderErrorLeavesOrderUntouched(t *testing.T) {
	h := newHarness(t)
	order := newOrder1001()
	h.repo.put(order)
	h.card.createErr = errors.New("card declined by upstream")

	_, err := h.checkout.CreateSession(context.Background(), providers.ProviderStripe, order.ID, guest())

	assert.Equal(t, apperrors.KindProviderError, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "card declined by upstream")
	assert.Equal(t, 1, h.card.createCalls, "no automatic retry")
	stored := h.repo.get(order.ID)
	assert.Nil(t, stored.PaymentID)
	assert.Equal(t, models.PaymentStatusUnpaid, stored.PaymentStatus)
	assert.Equal(t, 1, h.metrics.get(aws_pkg.MetricCheckoutSessionFailed))
}

func TestCreateSession_AttachFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	order := newOrder1001()
	h.repo.put(order)
	h.repo.attachErr = errors.New("connection reset")

	sess, err := h.checkout.CreateSession(context.Background(), providers.ProviderStripe, order.ID, guest())

	require.NoError(t, err)
	assert.NotEmpty(t, sess.URL)
	assert.Nil(t, h.repo.get(order.ID).PaymentID)
}

func TestCreateSession_AlreadyPaid(t *testing.T) {
	h := newHarness(t)
	order := newOrder1001()
	order.Status, order.PaymentStatus = models.OrderStatusPaid, models.PaymentStatusPaid
	h.repo.put(order)

	_, err := h.checkout.CreateSession(context.Background(), providers.ProviderStripe, order.ID, guest())

	assert.Equal(t, apperrors.KindInvalidRequest, apperrors.KindOf(err))
	assert.Equal(t, 0, h.card.createCalls)
}

func TestCreateSession_UnknownProvider(t *testing.T) {
	h := newHarness(t)
	order := newOrder1001()
	h.repo.put(order)

	_, err := h.checkout.CreateSession(context.Background(), "paypal", order.ID, guest())
	assert.Equal(t, apperrors.KindInvalidRequest, apperrors.KindOf(err))
}

func TestCreateSession_LoadFailure(t *testing.T) {
	h := newHarness(t)
	h.repo.findErr = errors.New("db down")

	_, err := h.checkout.CreateSession(context.Background(), providers.ProviderStripe, uuid.New(), guest())
	assert.Equal(t, apperrors.KindPersistenceError, apperrors.KindOf(err))
}
