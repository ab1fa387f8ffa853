package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/prospecthq/billingsync/pkg/entitlement"
)

// Config defines the standard configuration all providers should accept.
type Config struct {
	// Store persists customer mappings and subscription snapshots. The
	// provider is the only writer; UI-facing code reads through
	// entitlement.Reader.
	Store entitlement.Store

	// WebhookSecret is the shared secret used to verify inbound webhook
	// signatures.
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider.
	APIKey string

	// WebhookTolerance bounds how old a signed webhook timestamp may be before
	// the event is rejected as a replay. Zero means the provider default
	// (5 minutes).
	WebhookTolerance time.Duration

	// SyncTimeout bounds a single reconciliation (provider query plus storage
	// write). Zero means the provider default.
	SyncTimeout time.Duration

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	// Logger receives structured logs. If nil, logging is a no-op.
	Logger entitlement.Logger

	// Metrics is an optional metrics collector for billing operations.
	// If nil, metrics are silently ignored (no-op).
	// Use billing/metrics/prometheus.NewMetrics for Prometheus metrics.
	Metrics Metrics

	// WebhookCallback, if set, is invoked after a reconciliation triggered by a
	// webhook successfully changes the stored snapshot. A callback error fails
	// the webhook so the provider redelivers.
	WebhookCallback func(ctx context.Context, event WebhookEvent) error
}
