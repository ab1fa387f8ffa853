// Package redis provides a Redis implementation of the entitlement.Store
// interface. The customer mapping spans two keys (owner index and provider
// index), so it is written through a Lua script to keep both sides consistent.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prospecthq/billingsync/pkg/entitlement"
)

// Store implements entitlement.Store using Redis
type Store struct {
	client         redis.UniversalClient
	config         Config
	upsertCustomer *redis.Script
}

// Config holds Redis store configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "billingsync:")
	KeyPrefix string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "billingsync:",
	}
}

// New creates a new Redis store.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "billingsync:"
	}

	return &Store{
		client: client,
		config: config,

		// Replaces the owner mapping and repoints the provider index in one
		// atomic step, dropping the reverse entry of any previous mapping.
		upsertCustomer: redis.NewScript(`
			local ownerKey = KEYS[1]
			local providerKey = KEYS[2]
			local providerPrefix = ARGV[2]
			local data = ARGV[1]

			local previous = redis.call('GET', ownerKey)
			if previous then
				local ok, prev = pcall(cjson.decode, previous)
				if ok and prev and prev.provider_customer_id then
					redis.call('DEL', providerPrefix .. prev.provider_customer_id)
				end
			end

			redis.call('SET', ownerKey, data)
			redis.call('SET', providerKey, data)
			return 'ok'
		`),
	}, nil
}

// storedCustomer is the JSON wire form of a customer mapping.
type storedCustomer struct {
	OwnerID            string    `json:"owner_id"`
	ProviderCustomerID string    `json:"provider_customer_id"`
	CreatedAt          time.Time `json:"created_at"`
}

// storedSubscription is the JSON wire form of a subscription snapshot.
type storedSubscription struct {
	OwnerID                string     `json:"owner_id"`
	ProviderSubscriptionID string     `json:"provider_subscription_id"`
	Status                 string     `json:"status"`
	PriceID                string     `json:"price_id"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool       `json:"cancel_at_period_end"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func (s *Store) customerOwnerKey(ownerID string) string {
	return s.config.KeyPrefix + "customer:owner:" + ownerID
}

func (s *Store) customerProviderPrefix() string {
	return s.config.KeyPrefix + "customer:provider:"
}

func (s *Store) subscriptionKey(ownerID string) string {
	return s.config.KeyPrefix + "subscription:" + ownerID
}

// GetCustomerByOwner implements entitlement.Store
func (s *Store) GetCustomerByOwner(ctx context.Context, ownerID string) (*entitlement.BillingCustomer, error) {
	return s.getCustomer(ctx, s.customerOwnerKey(ownerID))
}

// GetCustomerByProviderID implements entitlement.Store
func (s *Store) GetCustomerByProviderID(ctx context.Context, providerCustomerID string) (*entitlement.BillingCustomer, error) {
	return s.getCustomer(ctx, s.customerProviderPrefix()+providerCustomerID)
}

func (s *Store) getCustomer(ctx context.Context, key string) (*entitlement.BillingCustomer, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, entitlement.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	var stored storedCustomer
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode customer: %w", err)
	}

	return &entitlement.BillingCustomer{
		OwnerID:            stored.OwnerID,
		ProviderCustomerID: stored.ProviderCustomerID,
		CreatedAt:          stored.CreatedAt,
	}, nil
}

// UpsertCustomer implements entitlement.Store
func (s *Store) UpsertCustomer(ctx context.Context, customer *entitlement.BillingCustomer) error {
	if customer == nil || customer.OwnerID == "" || customer.ProviderCustomerID == "" {
		return fmt.Errorf("%w: owner and provider customer ids are required", entitlement.ErrInvalidCustomer)
	}

	createdAt := customer.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	data, err := json.Marshal(storedCustomer{
		OwnerID:            customer.OwnerID,
		ProviderCustomerID: customer.ProviderCustomerID,
		CreatedAt:          createdAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode customer: %w", err)
	}

	keys := []string{
		s.customerOwnerKey(customer.OwnerID),
		s.customerProviderPrefix() + customer.ProviderCustomerID,
	}
	if err := s.upsertCustomer.Run(ctx, s.client, keys, string(data), s.customerProviderPrefix()).Err(); err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}

	return nil
}

// GetSubscription implements entitlement.Store
func (s *Store) GetSubscription(ctx context.Context, ownerID string) (*entitlement.Subscription, error) {
	data, err := s.client.Get(ctx, s.subscriptionKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, entitlement.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	var stored storedSubscription
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode subscription: %w", err)
	}

	return &entitlement.Subscription{
		OwnerID:                stored.OwnerID,
		ProviderSubscriptionID: stored.ProviderSubscriptionID,
		Status:                 entitlement.Status(stored.Status),
		PriceID:                stored.PriceID,
		CurrentPeriodEnd:       stored.CurrentPeriodEnd,
		CancelAtPeriodEnd:      stored.CancelAtPeriodEnd,
		UpdatedAt:              stored.UpdatedAt,
	}, nil
}

// UpsertSubscription implements entitlement.Store. A single SET of the full
// snapshot is the atomic replacement; there is no field-level merge.
func (s *Store) UpsertSubscription(ctx context.Context, sub *entitlement.Subscription) error {
	if sub == nil || sub.OwnerID == "" {
		return fmt.Errorf("%w: owner id is required", entitlement.ErrInvalidSubscription)
	}

	updatedAt := sub.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(storedSubscription{
		OwnerID:                sub.OwnerID,
		ProviderSubscriptionID: sub.ProviderSubscriptionID,
		Status:                 string(sub.Status),
		PriceID:                sub.PriceID,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		UpdatedAt:              updatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode subscription: %w", err)
	}

	if err := s.client.Set(ctx, s.subscriptionKey(sub.OwnerID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	return nil
}

// DeleteSubscription implements entitlement.Store
func (s *Store) DeleteSubscription(ctx context.Context, ownerID string) error {
	if err := s.client.Del(ctx, s.subscriptionKey(ownerID)).Err(); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}
