package controllers

import (
	"net/http"

	"checkout-service/apperrors"
	"checkout-service/models"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// VerifyController answers 200 for every verification attempt so polling
// clients can read {verified:false, error} without transport errors.
type VerifyController struct {
	Service services.VerificationService
	Logger  *zap.Logger
}

func NewVerifyController(service services.VerificationService, logger *zap.Logger) *VerifyController {
	return &VerifyController{Service: service, Logger: logger}
}

func (vc *VerifyController) VerifyPayment(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		vc.fail(c, apperrors.InvalidRequest("invalid verification request"))
		return
	}

	result, err := vc.Service.Verify(c.Request.Context(), req)
	if err != nil {
		vc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (vc *VerifyController) fail(c *gin.Context, err error) {
	vc.Logger.Warn("Payment verification failed", zap.Error(err))
	c.JSON(http.StatusOK, models.VerifyResult{Verified: false, Error: apperrors.Message(err)})
}
