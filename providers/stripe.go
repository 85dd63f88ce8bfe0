package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"go.uber.org/zap"
)

// StripeSessionPrefix prefixes every Stripe Checkout Session id.
const StripeSessionPrefix = "cs_"

// StripeConfig configures the card provider.
type StripeConfig struct {
	SecretKey string
	Currency  string
	// BaseURL overrides the API host, used against local fakes.
	BaseURL string
}

// StripeProvider implements PaymentProvider using Stripe Checkout Sessions.
type StripeProvider struct {
	api      *client.API
	currency string
	logger   *zap.Logger
}

// NewStripeProvider builds a client with its own backends so the secret key is
// never written to the stripe package globals. Network retries are disabled.
func NewStripeProvider(cfg StripeConfig, logger *zap.Logger) *StripeProvider {
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: 30 * time.Second},
		LeveledLogger:     logger.Sugar(),
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(strings.TrimSuffix(cfg.BaseURL, "/"))
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	}

	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	return &StripeProvider{
		api:      client.New(cfg.SecretKey, backends),
		currency: currency,
		logger:   logger,
	}
}

func (s *StripeProvider) Name() string       { return ProviderStripe }
func (s *StripeProvider) RequiresAuth() bool { return false }

func (s *StripeProvider) Supports(currency string) bool {
	return strings.EqualFold(currency, s.currency)
}

func (s *StripeProvider) Owns(reference string) bool {
	return strings.HasPrefix(reference, StripeSessionPrefix)
}

// CreateSession opens a payment-mode Checkout Session. Amounts are sent in
// minor units.
func (s *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if req.Currency != "" && !s.Supports(req.Currency) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, req.Currency)
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(s.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(ToMinorUnits(item.UnitAmount, s.currency)),
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  lineItems,
		SuccessURL: stripe.String(req.SuccessURL + "&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("order_number", req.OrderNumber)
	if req.CustomerEmail != "" {
		params.AddMetadata("customer_email", req.CustomerEmail)
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}

	s.logger.Info("Stripe checkout session created",
		zap.String("session_id", sess.ID),
		zap.String("order_number", req.OrderNumber),
	)
	return toSession(sess), nil
}

// GetSession retrieves a Checkout Session. An unknown id yields ErrSessionNotFound.
func (s *StripeProvider) GetSession(ctx context.Context, reference string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.Get(reference, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) &&
			(stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("stripe retrieve checkout session: %w", err)
	}
	return toSession(sess), nil
}

func toSession(sess *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:     sess.ID,
		URL:    sess.URL,
		Status: string(sess.PaymentStatus),
		Paid:   sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	if sess.Metadata != nil {
		out.OrderID = sess.Metadata["order_id"]
		out.OrderNumber = sess.Metadata["order_number"]
	}
	return out
}

// Currencies whose smallest unit is not a hundredth.
var (
	zeroDecimalCurrencies = map[string]bool{
		"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
		"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
		"vuv": true, "xaf": true, "xof": true, "xpf": true,
	}
	threeDecimalCurrencies = map[string]bool{
		"bhd": true, "jod": true, "kwd": true, "omr": true, "tnd": true,
	}
)

// CurrencyExponent returns how many decimal places currency's minor unit has.
func CurrencyExponent(currency string) int32 {
	c := strings.ToLower(currency)
	switch {
	case zeroDecimalCurrencies[c]:
		return 0
	case threeDecimalCurrencies[c]:
		return 3
	default:
		return 2
	}
}

// ToMinorUnits converts a major-unit amount to the currency's smallest unit,
// rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(CurrencyExponent(currency)).Round(0).IntPart()
}
