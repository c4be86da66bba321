package middleware

import (
	"context"
	"strings"

	"contestjudge/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
	userIDHeader    = "X-User-Id"

	traceIDContextKey   = "trace_id"
	requestIDContextKey = "request_id"
	userIDContextKey    = "user_id"
	userRoleContextKey  = "user_role"
)

// TraceContextConfig controls how trace/request/user id are extracted and written.
type TraceContextConfig struct {
	// AllowUserIDHeader trusts X-User-Id from upstream. Only enable behind a
	// gateway that strips the header from client traffic.
	AllowUserIDHeader bool
	WriteUserIDHeader bool
}

// TraceContextMiddleware ensures trace and request ids exist in context and response headers.
func TraceContextMiddleware() gin.HandlerFunc {
	return TraceContextMiddlewareWithConfig(TraceContextConfig{})
}

// TraceContextMiddlewareWithConfig is the configurable version of TraceContextMiddleware.
func TraceContextMiddlewareWithConfig(cfg TraceContextConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := headerOrNewID(c, traceIDHeader)
		requestID := headerOrNewID(c, requestIDHeader)

		c.Set(traceIDContextKey, traceID)
		c.Set(requestIDContextKey, requestID)
		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		c.Writer.Header().Set(traceIDHeader, traceID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		if cfg.AllowUserIDHeader {
			if userID := strings.TrimSpace(c.GetHeader(userIDHeader)); userID != "" {
				c.Set(userIDContextKey, userID)
				ctx = context.WithValue(ctx, contextkey.UserID, userID)
				if cfg.WriteUserIDHeader {
					c.Writer.Header().Set(userIDHeader, userID)
				}
			}
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func headerOrNewID(c *gin.Context, header string) string {
	if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
		return v
	}
	return uuid.NewString()
}

// UserID returns the authenticated participant id for the request, if any.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(userIDContextKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// UserRole returns the role claim of the authenticated caller, if any.
func UserRole(c *gin.Context) string {
	if v, ok := c.Get(userRoleContextKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
