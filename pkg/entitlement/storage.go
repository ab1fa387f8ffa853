package entitlement

import "context"

// Store persists customer mappings and subscription snapshots.
//
// Every method must be atomic per call. UpsertSubscription and
// DeleteSubscription in particular are the serialization point for concurrent
// reconciliations of the same owner: implementations must use a single atomic
// upsert/delete keyed on the unique OwnerID, never a read-modify-write with a
// separate read step.
type Store interface {
	// GetCustomerByOwner returns the mapping for a local account, or
	// ErrCustomerNotFound.
	GetCustomerByOwner(ctx context.Context, ownerID string) (*BillingCustomer, error)

	// GetCustomerByProviderID returns the mapping for a provider customer, or
	// ErrCustomerNotFound.
	GetCustomerByProviderID(ctx context.Context, providerCustomerID string) (*BillingCustomer, error)

	// UpsertCustomer writes a mapping keyed on OwnerID. A duplicate-create race
	// between two checkout attempts resolves to a single surviving mapping
	// (last writer wins).
	UpsertCustomer(ctx context.Context, customer *BillingCustomer) error

	// GetSubscription returns the snapshot for an owner, or
	// ErrSubscriptionNotFound.
	GetSubscription(ctx context.Context, ownerID string) (*Subscription, error)

	// UpsertSubscription fully replaces the snapshot keyed on OwnerID.
	UpsertSubscription(ctx context.Context, sub *Subscription) error

	// DeleteSubscription removes the snapshot for an owner. Deleting an absent
	// row is not an error.
	DeleteSubscription(ctx context.Context, ownerID string) error
}
