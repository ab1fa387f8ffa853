// Package stripe implements the billing.Provider interface for Stripe:
// webhook ingestion with signature verification, lazy customer linkage, and
// snapshot reconciliation of subscription state.
package stripe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
	"golang.org/x/sync/singleflight"

	"github.com/prospecthq/billingsync/pkg/billing"
	"github.com/prospecthq/billingsync/pkg/billing/internal"
	"github.com/prospecthq/billingsync/pkg/entitlement"
)

const (
	providerName             = "stripe"
	defaultHTTPTimeout       = 10 * time.Second
	defaultSyncTimeout       = 15 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	webhookBodyLimit         = 256 * 1024

	// One plan per account by construction of how checkout is initiated, so a
	// single most-recent subscription is the whole picture.
	subscriptionListLimit = 1
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Store, Logger, Metrics, etc.)

	// Stripe-specific
	StripeAPIKey        string
	StripeWebhookSecret string
}

// Provider implements the billing.Provider interface for Stripe
type Provider struct {
	store         entitlement.Store
	config        Config
	api           stripeAPI
	rateLimiter   *internal.RateLimiter
	webhookSecret string
	tolerance     time.Duration
	syncTimeout   time.Duration
	logger        entitlement.Logger
	metrics       billing.Metrics
	callback      func(context.Context, billing.WebhookEvent) error

	// ensureGroup collapses concurrent in-process customer creation for the
	// same owner; cross-process races resolve at the storage upsert.
	ensureGroup singleflight.Group
}

var _ billing.Provider = (*Provider)(nil)

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Store == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	apiKey := strings.TrimSpace(config.StripeAPIKey)
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultHTTPTimeout,
		}
	}

	tolerance := config.WebhookTolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}

	syncTimeout := config.SyncTimeout
	if syncTimeout <= 0 {
		syncTimeout = defaultSyncTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = &entitlement.NoopLogger{}
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	return &Provider{
		store:         config.Store,
		config:        config,
		api:           newAPIClient(apiKey, httpClient),
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		webhookSecret: strings.TrimSpace(config.StripeWebhookSecret),
		tolerance:     tolerance,
		syncTimeout:   syncTimeout,
		logger:        logger,
		metrics:       metrics,
		callback:      config.WebhookCallback,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	handler := http.HandlerFunc(p.handleWebhook)
	// Wrap with rate limiting
	return p.rateLimiter.Middleware(handler)
}

// SyncCustomer reconciles the local snapshot for a provider customer against
// Stripe's current state. Exposed for restore flows and nightly sweeps; the
// webhook handler uses the same path.
func (p *Provider) SyncCustomer(ctx context.Context, providerCustomerID string) error {
	return p.syncCustomer(ctx, providerCustomerID, syncTrigger{
		eventType:  "manual.sync",
		occurredAt: time.Now().UTC(),
	})
}
