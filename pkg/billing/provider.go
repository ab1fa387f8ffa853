package billing

import (
	"context"
	"net/http"
)

// Provider is the generic interface a billing backend must implement.
// It lets the application swap the payment provider without touching the
// entitlement model or the stores.
type Provider interface {
	// Name returns the provider name (e.g., "stripe").
	Name() string

	// WebhookHandler returns the HTTP handler that ingests provider
	// notifications. The implementation handles signature verification, event
	// classification, and reconciliation internally.
	WebhookHandler() http.Handler

	// SyncCustomer re-derives the local subscription snapshot for a provider
	// customer by querying the provider's current state. It is safe to call
	// repeatedly: applying the same provider state twice yields identical
	// stored state. An unknown customer is a no-op, not an error.
	SyncCustomer(ctx context.Context, providerCustomerID string) error
}
