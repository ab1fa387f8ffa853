// Package gin provides Gin middleware that gates paid features on the
// current subscription snapshot.
package gin

import (
	"errors"
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/prospecthq/billingsync/pkg/entitlement"
)

// OwnerIDExtractor extracts the account identifier from a Gin context.
// Return empty string if the request is not authenticated.
type OwnerIDExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// Reader resolves entitlement from the stored snapshot (required)
	Reader *entitlement.Reader

	// GetOwnerID extracts the account identifier from the context (required)
	GetOwnerID OwnerIDExtractor

	// DeniedStatusCode is the HTTP status code returned when the account has
	// no paid access. Default: 402 (Payment Required)
	DeniedStatusCode int

	// OnDenied is called when the account has no paid access.
	// If nil, returns DeniedStatusCode with a JSON error.
	OnDenied func(c *gongin.Context, sub *entitlement.Subscription)

	// OnUnauthorized is called when the request carries no owner identity.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when the snapshot lookup fails.
	// If nil, returns 500 Internal Server Error.
	OnError func(c *gongin.Context, err error)
}

// RequireEntitlement creates a Gin middleware that only passes requests from
// accounts whose subscription snapshot grants access
func RequireEntitlement(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Reader == nil {
		panic("billingsync/gin: Config.Reader is required")
	}
	if cfg.GetOwnerID == nil {
		panic("billingsync/gin: Config.GetOwnerID is required")
	}

	if cfg.DeniedStatusCode == 0 {
		cfg.DeniedStatusCode = http.StatusPaymentRequired
	}

	return func(c *gongin.Context) {
		ownerID := cfg.GetOwnerID(c)
		if ownerID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.JSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
			}
			c.Abort()
			return
		}

		sub, err := cfg.Reader.Current(c.Request.Context(), ownerID)
		if err != nil && !errors.Is(err, entitlement.ErrSubscriptionNotFound) {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.JSON(http.StatusInternalServerError, gongin.H{"error": "Internal Server Error"})
			}
			c.Abort()
			return
		}

		if !sub.Entitled() {
			if cfg.OnDenied != nil {
				cfg.OnDenied(c, sub)
			} else {
				c.JSON(cfg.DeniedStatusCode, gongin.H{"error": "Subscription required"})
			}
			c.Abort()
			return
		}

		c.Next()
	}
}

// Convenience extractors

// FromContext returns an OwnerIDExtractor that gets the owner from Gin
// context values, as set by an upstream auth middleware via c.Set
func FromContext(key string) OwnerIDExtractor {
	return func(c *gongin.Context) string {
		if val, exists := c.Get(key); exists {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns an OwnerIDExtractor that gets the owner from a header
func FromHeader(headerName string) OwnerIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromParam returns an OwnerIDExtractor that gets the owner from a route parameter
func FromParam(paramName string) OwnerIDExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}
