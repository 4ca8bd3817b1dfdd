package http

import (
	"net/http"
	"strings"
	"time"

	"course-quiz-engine/internal/auth"
	"course-quiz-engine/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenVerifier turns a bearer token into the caller identity.
type TokenVerifier interface {
	Verify(raw string) (auth.Identity, error)
}

// Authenticate rejects requests without a valid bearer token and stores the
// identity in the request context.
func Authenticate(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Code: "unauthorized", Error: "authorization header required"})
			return
		}
		id, err := tokens.Verify(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Code: "unauthorized", Error: "invalid or expired token"})
			return
		}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RequireRole lets through callers with the given role only. It must run
// after Authenticate.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := auth.FromContext(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Code: "unauthorized", Error: err.Error()})
			return
		}
		if id.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody{Code: "forbidden", Error: "insufficient permissions"})
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}

func bearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
