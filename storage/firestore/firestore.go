// Package firestore provides a Firestore implementation of the entitlement.Store
// interface. The customer mapping is kept in two collections (one keyed by
// owner, one keyed by provider customer) and written transactionally so both
// indexes stay consistent.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/prospecthq/billingsync/pkg/entitlement"
)

// Store implements entitlement.Store using Google Cloud Firestore
type Store struct {
	client                  *firestore.Client
	customersCollection     string
	customerIndexCollection string
	subscriptionsCollection string
}

// Config holds Firestore store configuration
type Config struct {
	// CustomersCollection holds customer mappings keyed by owner id.
	// Default: "billing_customers"
	CustomersCollection string

	// CustomerIndexCollection holds the reverse index keyed by provider
	// customer id. Default: "billing_customer_index"
	CustomerIndexCollection string

	// SubscriptionsCollection holds subscription snapshots keyed by owner id.
	// Default: "billing_subscriptions"
	SubscriptionsCollection string
}

// New creates a new Firestore store
func New(client *firestore.Client, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	// Set defaults
	if config.CustomersCollection == "" {
		config.CustomersCollection = "billing_customers"
	}
	if config.CustomerIndexCollection == "" {
		config.CustomerIndexCollection = "billing_customer_index"
	}
	if config.SubscriptionsCollection == "" {
		config.SubscriptionsCollection = "billing_subscriptions"
	}

	return &Store{
		client:                  client,
		customersCollection:     config.CustomersCollection,
		customerIndexCollection: config.CustomerIndexCollection,
		subscriptionsCollection: config.SubscriptionsCollection,
	}, nil
}

// GetCustomerByOwner implements entitlement.Store
func (s *Store) GetCustomerByOwner(ctx context.Context, ownerID string) (*entitlement.BillingCustomer, error) {
	snap, err := s.client.Collection(s.customersCollection).Doc(ownerID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, entitlement.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if !snap.Exists() {
		return nil, entitlement.ErrCustomerNotFound
	}

	data := snap.Data()
	return &entitlement.BillingCustomer{
		OwnerID:            ownerID,
		ProviderCustomerID: getString(data, "providerCustomerId"),
		CreatedAt:          getTime(data, "createdAt"),
	}, nil
}

// GetCustomerByProviderID implements entitlement.Store
func (s *Store) GetCustomerByProviderID(ctx context.Context, providerCustomerID string) (*entitlement.BillingCustomer, error) {
	snap, err := s.client.Collection(s.customerIndexCollection).Doc(providerCustomerID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, entitlement.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer index: %w", err)
	}
	if !snap.Exists() {
		return nil, entitlement.ErrCustomerNotFound
	}

	data := snap.Data()
	return &entitlement.BillingCustomer{
		OwnerID:            getString(data, "ownerId"),
		ProviderCustomerID: providerCustomerID,
		CreatedAt:          getTime(data, "createdAt"),
	}, nil
}

// UpsertCustomer implements entitlement.Store. Both the forward mapping and
// the reverse index are written in one transaction; a previous mapping's
// index entry is removed so a provider customer never resolves to two owners.
func (s *Store) UpsertCustomer(ctx context.Context, customer *entitlement.BillingCustomer) error {
	if customer == nil || customer.OwnerID == "" || customer.ProviderCustomerID == "" {
		return fmt.Errorf("%w: owner and provider customer ids are required", entitlement.ErrInvalidCustomer)
	}

	createdAt := customer.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	customerDoc := s.client.Collection(s.customersCollection).Doc(customer.OwnerID)
	indexDoc := s.client.Collection(s.customerIndexCollection).Doc(customer.ProviderCustomerID)

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(customerDoc)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		if snap != nil && snap.Exists() {
			previousProviderID := getString(snap.Data(), "providerCustomerId")
			if previousProviderID != "" && previousProviderID != customer.ProviderCustomerID {
				staleIndex := s.client.Collection(s.customerIndexCollection).Doc(previousProviderID)
				if err := tx.Delete(staleIndex); err != nil {
					return err
				}
			}
		}

		if err := tx.Set(customerDoc, map[string]interface{}{
			"providerCustomerId": customer.ProviderCustomerID,
			"createdAt":          createdAt,
		}); err != nil {
			return err
		}
		return tx.Set(indexDoc, map[string]interface{}{
			"ownerId":   customer.OwnerID,
			"createdAt": createdAt,
		})
	})

	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	return nil
}

// GetSubscription implements entitlement.Store
func (s *Store) GetSubscription(ctx context.Context, ownerID string) (*entitlement.Subscription, error) {
	snap, err := s.client.Collection(s.subscriptionsCollection).Doc(ownerID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, entitlement.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if !snap.Exists() {
		return nil, entitlement.ErrSubscriptionNotFound
	}

	data := snap.Data()
	sub := &entitlement.Subscription{
		OwnerID:                ownerID,
		ProviderSubscriptionID: getString(data, "providerSubscriptionId"),
		Status:                 entitlement.Status(getString(data, "status")),
		PriceID:                getString(data, "priceId"),
		CancelAtPeriodEnd:      getBool(data, "cancelAtPeriodEnd"),
		UpdatedAt:              getTime(data, "updatedAt"),
	}

	if end, ok := data["currentPeriodEnd"].(time.Time); ok && !end.IsZero() {
		sub.CurrentPeriodEnd = &end
	}

	return sub, nil
}

// UpsertSubscription implements entitlement.Store. The document is replaced
// wholesale (no MergeAll) so dropped fields do not survive a reconciliation.
func (s *Store) UpsertSubscription(ctx context.Context, sub *entitlement.Subscription) error {
	if sub == nil || sub.OwnerID == "" {
		return fmt.Errorf("%w: owner id is required", entitlement.ErrInvalidSubscription)
	}

	updatedAt := sub.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	data := map[string]interface{}{
		"providerSubscriptionId": sub.ProviderSubscriptionID,
		"status":                 string(sub.Status),
		"priceId":                sub.PriceID,
		"cancelAtPeriodEnd":      sub.CancelAtPeriodEnd,
		"updatedAt":              updatedAt,
	}
	if sub.CurrentPeriodEnd != nil {
		data["currentPeriodEnd"] = *sub.CurrentPeriodEnd
	}

	_, err := s.client.Collection(s.subscriptionsCollection).Doc(sub.OwnerID).Set(ctx, data)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// DeleteSubscription implements entitlement.Store
func (s *Store) DeleteSubscription(ctx context.Context, ownerID string) error {
	_, err := s.client.Collection(s.subscriptionsCollection).Doc(ownerID).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// Helper functions for safe type extraction from Firestore data

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return false
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}
