package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const mercadoPagoBaseURL = "https://api.mercadopago.com"

// MercadoPagoConfig configures the wallet provider.
type MercadoPagoConfig struct {
	AccessToken string
	Currency    string
	BaseURL     string
}

// MercadoPagoProvider implements PaymentProvider using Checkout Pro preferences.
// A preference carries the order number as external_reference; its payment
// state is read from the payments that reference it.
type MercadoPagoProvider struct {
	accessToken string
	currency    string
	baseURL     string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewMercadoPagoProvider creates a new MercadoPagoProvider.
func NewMercadoPagoProvider(cfg MercadoPagoConfig, logger *zap.Logger) *MercadoPagoProvider {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = mercadoPagoBaseURL
	}
	currency := strings.ToUpper(cfg.Currency)
	if currency == "" {
		currency = "ARS"
	}
	return &MercadoPagoProvider{
		accessToken: cfg.AccessToken,
		currency:    currency,
		baseURL:     baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// ---- Mercado Pago API request/response structs ----

type mpItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type mpBackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type mpPayer struct {
	Email string `json:"email,omitempty"`
}

type mpPreferenceRequest struct {
	Items             []mpItem          `json:"items"`
	Payer             *mpPayer          `json:"payer,omitempty"`
	BackURLs          mpBackURLs        `json:"back_urls"`
	AutoReturn        string            `json:"auto_return"`
	ExternalReference string            `json:"external_reference"`
	Metadata          map[string]string `json:"metadata"`
}

type mpPreference struct {
	ID                string            `json:"id"`
	InitPoint         string            `json:"init_point"`
	ExternalReference string            `json:"external_reference"`
	Metadata          map[string]string `json:"metadata"`
}

type mpPayment struct {
	ID                int64  `json:"id"`
	Status            string `json:"status"`
	ExternalReference string `json:"external_reference"`
}

type mpPaymentSearch struct {
	Results []mpPayment `json:"results"`
}

// mpStatusError is a non-2xx answer from the API.
type mpStatusError struct {
	StatusCode int
	Body       string
}

func (e *mpStatusError) Error() string {
	return fmt.Sprintf("mercadopago API error (status %d): %s", e.StatusCode, e.Body)
}

// ---- PaymentProvider implementation ----

func (m *MercadoPagoProvider) Name() string       { return ProviderMercadoPago }
func (m *MercadoPagoProvider) RequiresAuth() bool { return true }

func (m *MercadoPagoProvider) Supports(currency string) bool {
	return strings.EqualFold(currency, m.currency)
}

// Owns claims every non-card reference; preference ids have no fixed prefix.
func (m *MercadoPagoProvider) Owns(reference string) bool {
	return reference != "" && !strings.HasPrefix(reference, StripeSessionPrefix)
}

// CreateSession creates a checkout preference and returns its init_point.
func (m *MercadoPagoProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if req.Currency != "" && !m.Supports(req.Currency) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, req.Currency)
	}

	items := make([]mpItem, 0, len(req.Items))
	for _, item := range req.Items {
		price, _ := item.UnitAmount.Round(2).Float64()
		items = append(items, mpItem{
			Title:      item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  price,
			CurrencyID: m.currency,
		})
	}

	body := mpPreferenceRequest{
		Items: items,
		BackURLs: mpBackURLs{
			Success: req.SuccessURL,
			Failure: req.CancelURL,
			Pending: req.SuccessURL,
		},
		AutoReturn:        "approved",
		ExternalReference: req.OrderNumber,
		Metadata: map[string]string{
			"order_id":     req.OrderID,
			"order_number": req.OrderNumber,
		},
	}
	if req.CustomerEmail != "" {
		body.Payer = &mpPayer{Email: req.CustomerEmail}
	}

	var pref mpPreference
	if err := m.doRequest(ctx, http.MethodPost, "/checkout/preferences", body, &pref); err != nil {
		return nil, fmt.Errorf("mercadopago CreatePreference: %w", err)
	}

	m.logger.Info("Mercado Pago preference created",
		zap.String("preference_id", pref.ID),
		zap.String("order_number", req.OrderNumber),
	)
	return &Session{
		ID:          pref.ID,
		URL:         pref.InitPoint,
		Status:      "pending",
		OrderID:     req.OrderID,
		OrderNumber: req.OrderNumber,
	}, nil
}

// GetSession loads the preference and derives its status from the payments
// made against its external_reference. Any approved payment makes it paid.
func (m *MercadoPagoProvider) GetSession(ctx context.Context, reference string) (*Session, error) {
	var pref mpPreference
	if err := m.doRequest(ctx, http.MethodGet, "/checkout/preferences/"+url.PathEscape(reference), nil, &pref); err != nil {
		if isNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("mercadopago GetPreference: %w", err)
	}

	sess := &Session{
		ID:          pref.ID,
		URL:         pref.InitPoint,
		Status:      "pending",
		OrderID:     pref.Metadata["order_id"],
		OrderNumber: pref.ExternalReference,
	}
	if sess.OrderNumber == "" {
		sess.OrderNumber = pref.Metadata["order_number"]
	}
	if sess.OrderNumber == "" {
		return sess, nil
	}

	q := url.Values{}
	q.Set("external_reference", sess.OrderNumber)
	q.Set("sort", "date_created")
	q.Set("criteria", "desc")

	var search mpPaymentSearch
	if err := m.doRequest(ctx, http.MethodGet, "/v1/payments/search?"+q.Encode(), nil, &search); err != nil {
		return nil, fmt.Errorf("mercadopago SearchPayments: %w", err)
	}

	for i, p := range search.Results {
		if i == 0 {
			sess.Status = p.Status
		}
		if p.Status == "approved" {
			sess.Status = p.Status
			sess.Paid = true
			break
		}
	}
	return sess, nil
}

// PaymentReference returns the external_reference (order number) of a payment,
// as delivered by payment notifications.
func (m *MercadoPagoProvider) PaymentReference(ctx context.Context, paymentID string) (string, error) {
	var p mpPayment
	if err := m.doRequest(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, &p); err != nil {
		if isNotFound(err) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("mercadopago GetPayment: %w", err)
	}
	return p.ExternalReference, nil
}

// ---- HTTP helper ----

func (m *MercadoPagoProvider) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &mpStatusError{StatusCode: resp.StatusCode, Body: string(respBytes)}
	}

	if out != nil {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var se *mpStatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
