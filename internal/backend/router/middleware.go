package router

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/docintel/internal/backend/handler"
	"github.com/cuongbtq/docintel/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// LoggerMiddleware logs HTTP requests with slog and records request metrics
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		metrics.ObserveHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), latency)

		logger.Info("HTTP Request",
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("ip", c.ClientIP()),
			slog.Duration("latency", latency),
			slog.Int("body_size", c.Writer.Size()),
		)

		for _, e := range c.Errors {
			logger.Error("Request error", slog.String("error", e.Error()))
		}
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// AuthConfig controls bearer token verification
type AuthConfig struct {
	// Secret is the HS256 signing key. Empty disables authentication.
	Secret string
	Issuer string
}

var errMissingToken = errors.New("missing bearer token")

// AuthMiddleware verifies an HS256 bearer token and stores its subject under
// handler.UserIDKey. Every failure answers 401.
func AuthMiddleware(cfg AuthConfig, logger *slog.Logger) gin.HandlerFunc {
	if cfg.Secret == "" {
		return func(c *gin.Context) {
			c.Set(handler.UserIDKey, handler.AnonymousUser)
			c.Next()
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(cfg.Secret)

	return func(c *gin.Context) {
		subject, err := verify(parser, key, c.GetHeader("Authorization"))
		if err != nil {
			logger.Warn("Rejected request", slog.String("path", c.Request.URL.Path), slog.String("error", err.Error()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "session expired"})
			return
		}
		c.Set(handler.UserIDKey, subject)
		c.Next()
	}
}

func verify(parser *jwt.Parser, key []byte, header string) (string, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", errMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
