package billing

import "time"

// Metrics defines the interface for tracking billing provider operations.
// All methods are optional - providers should gracefully handle nil metrics.
type Metrics interface {
	// RecordWebhookEvent records a webhook event received from the billing provider.
	// status: "success", "ignored" or "error"
	RecordWebhookEvent(provider, eventType, status string)

	// RecordWebhookProcessingDuration records how long it took to process a webhook.
	RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration)

	// RecordWebhookError records a webhook processing error.
	// errorType: e.g. "auth_failed", "invalid_payload", "processing_error"
	RecordWebhookError(provider, errorType string)

	// RecordCustomerSync records a reconciliation for one provider customer.
	// status: "success", "unknown_customer" or "error"
	RecordCustomerSync(provider, status string)

	// RecordCustomerSyncDuration records how long a reconciliation took.
	RecordCustomerSyncDuration(provider string, duration time.Duration)

	// RecordEntitlementChange records when an account's entitlement flips.
	RecordEntitlementChange(provider, fromStatus, toStatus string)

	// RecordAPICall records an API call to the billing provider.
	// status: HTTP status code or a short outcome label (e.g. "200", "error")
	RecordAPICall(provider, endpoint, status string)

	// RecordAPICallDuration records how long an API call took.
	RecordAPICallDuration(provider, endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (n *NoopMetrics) RecordCustomerSync(_, _ string)                               {}
func (n *NoopMetrics) RecordCustomerSyncDuration(_ string, _ time.Duration)         {}
func (n *NoopMetrics) RecordEntitlementChange(_, _, _ string)                       {}
func (n *NoopMetrics) RecordAPICall(_, _, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_, _ string, _ time.Duration)           {}
