// Package memory provides an in-memory implementation of the entitlement.Store
// interface. This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/prospecthq/billingsync/pkg/entitlement"
)

// Store implements entitlement.Store using in-memory maps
type Store struct {
	mu                  sync.RWMutex
	customersByOwner    map[string]*entitlement.BillingCustomer
	customersByProvider map[string]*entitlement.BillingCustomer
	subscriptions       map[string]*entitlement.Subscription
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		customersByOwner:    make(map[string]*entitlement.BillingCustomer),
		customersByProvider: make(map[string]*entitlement.BillingCustomer),
		subscriptions:       make(map[string]*entitlement.Subscription),
	}
}

// GetCustomerByOwner implements entitlement.Store
func (s *Store) GetCustomerByOwner(ctx context.Context, ownerID string) (*entitlement.BillingCustomer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByOwner[ownerID]
	if !ok {
		return nil, entitlement.ErrCustomerNotFound
	}

	// Return a copy to prevent external mutations
	customerCopy := *customer
	return &customerCopy, nil
}

// GetCustomerByProviderID implements entitlement.Store
func (s *Store) GetCustomerByProviderID(ctx context.Context, providerCustomerID string) (*entitlement.BillingCustomer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByProvider[providerCustomerID]
	if !ok {
		return nil, entitlement.ErrCustomerNotFound
	}

	customerCopy := *customer
	return &customerCopy, nil
}

// UpsertCustomer implements entitlement.Store
func (s *Store) UpsertCustomer(ctx context.Context, customer *entitlement.BillingCustomer) error {
	if customer == nil || customer.OwnerID == "" || customer.ProviderCustomerID == "" {
		return fmt.Errorf("%w: owner and provider customer ids are required", entitlement.ErrInvalidCustomer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Last writer wins; drop the reverse index entry of any previous mapping
	// so a provider customer never points at two owners.
	if previous, ok := s.customersByOwner[customer.OwnerID]; ok {
		delete(s.customersByProvider, previous.ProviderCustomerID)
	}

	customerCopy := *customer
	s.customersByOwner[customer.OwnerID] = &customerCopy
	s.customersByProvider[customer.ProviderCustomerID] = &customerCopy
	return nil
}

// GetSubscription implements entitlement.Store
func (s *Store) GetSubscription(ctx context.Context, ownerID string) (*entitlement.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[ownerID]
	if !ok {
		return nil, entitlement.ErrSubscriptionNotFound
	}

	subCopy := *sub
	if sub.CurrentPeriodEnd != nil {
		end := *sub.CurrentPeriodEnd
		subCopy.CurrentPeriodEnd = &end
	}
	return &subCopy, nil
}

// UpsertSubscription implements entitlement.Store
func (s *Store) UpsertSubscription(ctx context.Context, sub *entitlement.Subscription) error {
	if sub == nil || sub.OwnerID == "" {
		return fmt.Errorf("%w: owner id is required", entitlement.ErrInvalidSubscription)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subCopy := *sub
	if sub.CurrentPeriodEnd != nil {
		end := *sub.CurrentPeriodEnd
		subCopy.CurrentPeriodEnd = &end
	}
	s.subscriptions[sub.OwnerID] = &subCopy
	return nil
}

// DeleteSubscription implements entitlement.Store
func (s *Store) DeleteSubscription(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subscriptions, ownerID)
	return nil
}
