// Package entitlement defines the local billing-state model: the link between
// an account and its provider customer, and the subscription snapshot that
// gates product access.
package entitlement

import "time"

// Status is a subscription lifecycle status as reported by the billing provider.
type Status string

// Subscription statuses. The set mirrors the provider's lifecycle states;
// unknown values are carried through verbatim and treated as not entitled.
const (
	StatusActive            Status = "active"
	StatusTrialing          Status = "trialing"
	StatusPastDue           Status = "past_due"
	StatusCanceled          Status = "canceled"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusUnpaid            Status = "unpaid"
	StatusPaused            Status = "paused"
)

// Entitled reports whether the status grants product access.
// Entitlement is derived, never stored.
func (s Status) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

// BillingCustomer links one local account to one provider customer.
// At most one row per OwnerID and one per ProviderCustomerID. Rows are created
// lazily on first checkout and never deleted, so the identity stays stable
// across subscription cancellation.
type BillingCustomer struct {
	// OwnerID is the local account identifier.
	OwnerID string

	// ProviderCustomerID is the billing provider's customer identifier.
	ProviderCustomerID string

	// CreatedAt is when the mapping was first persisted.
	CreatedAt time.Time
}

// Subscription is the authoritative snapshot of one account's subscription as
// of the last successful reconciliation. It is fully overwritten on every
// reconciliation and deleted when the provider reports no subscription; it is
// not an event log. At most one row per OwnerID.
type Subscription struct {
	// OwnerID is the local account identifier (unique key).
	OwnerID string

	// ProviderSubscriptionID is the provider's subscription identifier.
	ProviderSubscriptionID string

	// Status is the provider-reported lifecycle status.
	Status Status

	// PriceID is the provider price the account is subscribed to.
	PriceID string

	// CurrentPeriodEnd is the end of the current billing period, if known.
	CurrentPeriodEnd *time.Time

	// CancelAtPeriodEnd is true when the subscription will not renew.
	CancelAtPeriodEnd bool

	// UpdatedAt is when this snapshot was written.
	UpdatedAt time.Time
}

// Entitled reports whether the snapshot grants product access.
func (s *Subscription) Entitled() bool {
	return s != nil && s.Status.Entitled()
}
