package controllers

import (
	"errors"
	"net/http"

	"checkout-service/apperrors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// respondError logs a warning and writes a JSON error response.
func respondError(c *gin.Context, logger *zap.Logger, status int, err error) {
	logger.Warn("Request failed",
		zap.String("path", c.FullPath()),
		zap.Int("status", status),
		zap.Error(err),
	)
	c.JSON(status, gin.H{"error": apperrors.Message(err)})
}
