package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/domain"
)

const RequestIDHeader = "X-Request-Id"

type Middleware struct {
	logger zerolog.Logger
}

func NewMiddleware(logger zerolog.Logger) *Middleware {
	return &Middleware{
		logger: logger,
	}
}

func (m *Middleware) SetupMiddleware(router *gin.Engine) {
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.Use(m.RequestID())
	router.Use(m.RequestLogger())
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		m.logger.Error().
			Interface("panic", recovered).
			Str("path", c.Request.URL.Path).
			Str("request_id", c.GetString("request_id")).
			Msg("Recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, domain.ApiResponse{
			Message: "Internal server error",
			Success: false,
			Status:  http.StatusInternalServerError,
		})
	}))

	router.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Next()
	})
}

// RequestID keeps the caller's X-Request-Id or assigns one.
func (m *Middleware) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (m *Middleware) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		evt := m.logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			evt = m.logger.Error()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString("request_id")).
			Msg("HTTP Request")
	}
}

// APIKeyAuth checks X-API-Key, a Bearer token or the api_key query
// parameter (websocket clients cannot set headers). An empty expected key
// disables the check.
func APIKeyAuth(expectedAPIKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expectedAPIKey == "" {
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if !equal(apiKey, expectedAPIKey) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, domain.ApiResponse{
				Message: "Invalid or missing API key",
				Success: false,
				Status:  http.StatusUnauthorized,
			})
			return
		}

		c.Next()
	}
}

// SharedSecret requires header to carry secret. An empty secret disables
// the check.
func SharedSecret(header, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret != "" && !equal(c.GetHeader(header), secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, domain.ApiResponse{
				Message: "Invalid or missing " + header,
				Success: false,
				Status:  http.StatusUnauthorized,
			})
			return
		}
		c.Next()
	}
}

func equal(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
