// Package echo provides Echo middleware that gates paid features on the
// current subscription snapshot.
package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/prospecthq/billingsync/pkg/entitlement"
)

// OwnerIDExtractor extracts the account identifier from an Echo context.
// Return empty string if the request is not authenticated.
type OwnerIDExtractor func(c echo.Context) string

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
	OnDenied func(c echo.Context, sub *entitlement.Subscription) error

	// OnUnauthorized is called when the request carries no owner identity.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(c echo.Context) error

	// OnError is called when the snapshot lookup fails.
	// If nil, returns 500 Internal Server Error.
	OnError func(c echo.Context, err error) error
}

// RequireEntitlement creates an Echo middleware that only passes requests
// from accounts whose subscription snapshot grants access
func RequireEntitlement(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Reader == nil {
		panic("billingsync/echo: Config.Reader is required")
	}
	if cfg.GetOwnerID == nil {
		panic("billingsync/echo: Config.GetOwnerID is required")
	}

	if cfg.DeniedStatusCode == 0 {
		cfg.DeniedStatusCode = http.StatusPaymentRequired
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ownerID := cfg.GetOwnerID(c)
			if ownerID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			sub, err := cfg.Reader.Current(c.Request().Context(), ownerID)
			if err != nil && !errors.Is(err, entitlement.ErrSubscriptionNotFound) {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
			}

			if !sub.Entitled() {
				if cfg.OnDenied != nil {
					return cfg.OnDenied(c, sub)
				}
				return c.JSON(cfg.DeniedStatusCode, map[string]string{"error": "Subscription required"})
			}

			return next(c)
		}
	}
}

// Convenience extractors

// FromContext returns an OwnerIDExtractor that gets the owner from Echo
// context values, as set by an upstream auth middleware via c.Set
func FromContext(key string) OwnerIDExtractor {
	return func(c echo.Context) string {
		if str, ok := c.Get(key).(string); ok {
			return str
		}
		return ""
	}
}

// FromHeader returns an OwnerIDExtractor that gets the owner from a header
func FromHeader(headerName string) OwnerIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns an OwnerIDExtractor that gets the owner from a route parameter
func FromParam(paramName string) OwnerIDExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}
