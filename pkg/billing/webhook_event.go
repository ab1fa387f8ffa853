package billing

import (
	"time"

	"github.com/prospecthq/billingsync/pkg/entitlement"
)

// WebhookEvent describes a reconciliation that changed stored state. It is
// passed to the WebhookCallback after the snapshot has been written.
type WebhookEvent struct {
	// OwnerID is the local account identifier.
	OwnerID string

	// ProviderCustomerID is the provider customer the event was routed by.
	ProviderCustomerID string

	// Provider is the billing provider name ("stripe").
	Provider string

	// EventType is the provider-specific event type that triggered the
	// reconciliation, e.g. "customer.subscription.updated".
	EventType string

	// EventTimestamp is when the event occurred (from the provider).
	EventTimestamp time.Time

	// Subscription is the snapshot after reconciliation; nil when the
	// reconciliation deleted the local row.
	Subscription *entitlement.Subscription

	// Entitled reports whether the account has paid access after the write.
	Entitled bool
}
