package middleware

import (
	"fmt"
	"strings"

	"checkout-service/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const customerKey = "customer"

// Authenticator validates HMAC-signed bearer tokens issued by the auth service.
type Authenticator struct {
	secret []byte
	logger *zap.Logger
}

func NewAuthenticator(secret string, logger *zap.Logger) *Authenticator {
	return &Authenticator{secret: []byte(strings.TrimSpace(secret)), logger: logger}
}

// ParseToken returns the customer identified by tokenStr.
func (a *Authenticator) ParseToken(tokenStr string) (models.Customer, error) {
	if len(a.secret) == 0 {
		return models.Customer{}, fmt.Errorf("JWT secret not configured")
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return models.Customer{}, fmt.Errorf("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Customer{}, fmt.Errorf("invalid token claims")
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		subject, _ = claims["user_id"].(string)
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return models.Customer{}, fmt.Errorf("invalid token subject")
	}
	email, _ := claims["email"].(string)

	return models.Customer{UserID: &userID, Email: email}, nil
}

// OptionalAuth attaches the customer when a valid bearer token is present.
// Requests without one, or with an invalid one, continue as guests.
func (a *Authenticator) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			c.Next()
			return
		}
		customer, err := a.ParseToken(tokenStr)
		if err != nil {
			a.logger.Debug("Ignoring bearer token", zap.Error(err))
			c.Next()
			return
		}
		c.Set(customerKey, customer)
		c.Next()
	}
}

// CustomerFromContext returns the request's customer; guests get a zero value.
func CustomerFromContext(c *gin.Context) models.Customer {
	if v, ok := c.Get(customerKey); ok {
		if customer, ok := v.(models.Customer); ok {
			return customer
		}
	}
	return models.Customer{}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
