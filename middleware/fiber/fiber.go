// Package fiber provides Fiber middleware that gates paid features on the
// current subscription snapshot.
package fiber

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/prospecthq/billingsync/pkg/entitlement"
)

// OwnerIDExtractor extracts the account identifier from a Fiber context.
// Return empty string if the request is not authenticated.
type OwnerIDExtractor func(c *fiber.Ctx) string

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
	OnDenied func(c *fiber.Ctx, sub *entitlement.Subscription) error

	// OnUnauthorized is called when the request carries no owner identity.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when the snapshot lookup fails.
	// If nil, returns 500 Internal Server Error.
	OnError func(c *fiber.Ctx, err error) error
}

// RequireEntitlement creates a Fiber middleware that only passes requests
// from accounts whose subscription snapshot grants access
func RequireEntitlement(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Reader == nil {
		panic("billingsync/fiber: Config.Reader is required")
	}
	if cfg.GetOwnerID == nil {
		panic("billingsync/fiber: Config.GetOwnerID is required")
	}

	if cfg.DeniedStatusCode == 0 {
		cfg.DeniedStatusCode = fiber.StatusPaymentRequired
	}

	return func(c *fiber.Ctx) error {
		ownerID := cfg.GetOwnerID(c)
		if ownerID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}

		sub, err := cfg.Reader.Current(c.UserContext(), ownerID)
		if err != nil && !errors.Is(err, entitlement.ErrSubscriptionNotFound) {
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		}

		if !sub.Entitled() {
			if cfg.OnDenied != nil {
				return cfg.OnDenied(c, sub)
			}
			return c.Status(cfg.DeniedStatusCode).JSON(fiber.Map{"error": "Subscription required"})
		}

		return c.Next()
	}
}

// Convenience extractors

// FromLocals returns an OwnerIDExtractor that gets the owner from Fiber
// locals, as set by an upstream auth middleware via c.Locals
func FromLocals(key string) OwnerIDExtractor {
	return func(c *fiber.Ctx) string {
		if str, ok := c.Locals(key).(string); ok {
			return str
		}
		return ""
	}
}

// FromHeader returns an OwnerIDExtractor that gets the owner from a header
func FromHeader(headerName string) OwnerIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromParam returns an OwnerIDExtractor that gets the owner from a route parameter
func FromParam(paramName string) OwnerIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(paramName)
	}
}
