package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var allowedHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}

// CORS allows any origin. Preflight requests are answered with an empty 200.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins:           true,
		AllowMethods:              []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:              allowedHeaders,
		ExposeHeaders:             []string{"X-Request-ID"},
		MaxAge:                    12 * time.Hour,
		OptionsResponseStatusCode: http.StatusOK,
	})
}

// Preflight answers OPTIONS probes that carry no Origin header, which the
// CORS handler lets through.
func Preflight(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Status(http.StatusOK)
}
