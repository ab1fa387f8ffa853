// Package http provides HTTP middleware that gates paid features on the
// current subscription snapshot.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/prospecthq/billingsync/pkg/entitlement"
)

// OwnerIDExtractor extracts the account identifier from an HTTP request.
// Return empty string if the request is not authenticated.
type OwnerIDExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Reader resolves entitlement from the stored snapshot (required)
	Reader *entitlement.Reader

	// GetOwnerID extracts the account identifier from the request (required)
	GetOwnerID OwnerIDExtractor

	// OnDenied is called when the account has no paid access.
	// If nil, returns 402 Payment Required.
	OnDenied func(w http.ResponseWriter, r *http.Request, sub *entitlement.Subscription)

	// OnUnauthorized is called when the request carries no owner identity.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when the snapshot lookup fails.
	// If nil, returns 500 Internal Server Error.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// RequireEntitlement creates an HTTP middleware that only passes requests
// from accounts whose subscription snapshot grants access. The check reads
// local state; it never calls the billing provider.
func RequireEntitlement(config Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID := config.GetOwnerID(r)
			if ownerID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			ctx := r.Context()
			sub, err := config.Reader.Current(ctx, ownerID)
			if err != nil && !errors.Is(err, entitlement.ErrSubscriptionNotFound) {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}

			if !sub.Entitled() {
				if config.OnDenied != nil {
					config.OnDenied(w, r, sub)
				} else {
					http.Error(w, "Payment Required", http.StatusPaymentRequired)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HandlerFunc creates the same middleware for http.HandlerFunc chains
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := RequireEntitlement(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

// Common extractors for convenience

// ContextKey is a type for context keys
type ContextKey string

const (
	// OwnerIDKey is the context key for the account identifier
	OwnerIDKey ContextKey = "billing:ownerID"
)

// FromContext returns an OwnerIDExtractor that reads the owner from the
// request context, as placed there by an upstream auth middleware
func FromContext(key ContextKey) OwnerIDExtractor {
	return func(r *http.Request) string {
		if ownerID, ok := r.Context().Value(key).(string); ok {
			return ownerID
		}
		return ""
	}
}

// FromHeader returns an OwnerIDExtractor that reads the owner from a header
func FromHeader(headerName string) OwnerIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// WithOwnerID adds the account identifier to a request context
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}
