package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"checkout-service/apperrors"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = int64(65536)

type WebhookController struct {
	Service services.WebhookService
	Logger  *zap.Logger
}

func NewWebhookController(service services.WebhookService, logger *zap.Logger) *WebhookController {
	return &WebhookController{Service: service, Logger: logger}
}

// StripeWebhook hands the raw payload to signature verification.
func (wc *WebhookController) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to read body"})
		return
	}

	err = wc.Service.HandleStripeEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	wc.acknowledge(c, err)
}

type mercadoPagoNotification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// MercadoPagoWebhook accepts both the JSON notification body and the legacy
// query-string form (?topic=payment&id=...).
func (wc *WebhookController) MercadoPagoWebhook(c *gin.Context) {
	topic := c.Query("type")
	if topic == "" {
		topic = c.Query("topic")
	}
	paymentID := c.Query("data.id")
	if paymentID == "" {
		paymentID = c.Query("id")
	}

	body, _ := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if len(bytes.TrimSpace(body)) > 0 {
		var n mercadoPagoNotification
		if err := json.Unmarshal(body, &n); err != nil {
			wc.Logger.Warn("Invalid Mercado Pago notification", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification"})
			return
		}
		if n.Type != "" {
			topic = n.Type
		}
		if id := strings.Trim(string(n.Data.ID), `"`); id != "" && id != "null" {
			paymentID = id
		}
	}

	err := wc.Service.HandleMercadoPagoNotification(c.Request.Context(), topic, paymentID)
	wc.acknowledge(c, err)
}

// acknowledge answers 400 for rejected deliveries and 500 when the provider
// should redeliver.
func (wc *WebhookController) acknowledge(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "received"})
	case apperrors.Is(err, apperrors.KindInvalidRequest):
		respondError(c, wc.Logger, http.StatusBadRequest, err)
	default:
		respondError(c, wc.Logger, http.StatusInternalServerError, err)
	}
}
