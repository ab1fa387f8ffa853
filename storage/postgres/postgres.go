// Package postgres provides a PostgreSQL implementation of the entitlement.Store
// interface. Writes are single-statement upserts and deletes keyed on owner_id,
// so concurrent reconciliations serialize at the row without explicit locking.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prospecthq/billingsync/pkg/entitlement"
)

// Store implements entitlement.Store using PostgreSQL
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL store configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL store
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, config: config}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the PostgreSQL connection
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetCustomerByOwner implements entitlement.Store
func (s *Store) GetCustomerByOwner(ctx context.Context, ownerID string) (*entitlement.BillingCustomer, error) {
	return s.getCustomer(ctx,
		`SELECT owner_id, provider_customer_id, created_at
			FROM billing_customers WHERE owner_id = $1`,
		ownerID)
}

// GetCustomerByProviderID implements entitlement.Store
func (s *Store) GetCustomerByProviderID(ctx context.Context, providerCustomerID string) (*entitlement.BillingCustomer, error) {
	return s.getCustomer(ctx,
		`SELECT owner_id, provider_customer_id, created_at
			FROM billing_customers WHERE provider_customer_id = $1`,
		providerCustomerID)
}

func (s *Store) getCustomer(ctx context.Context, query, key string) (*entitlement.BillingCustomer, error) {
	var customer entitlement.BillingCustomer

	err := s.pool.QueryRow(ctx, query, key).Scan(
		&customer.OwnerID,
		&customer.ProviderCustomerID,
		&customer.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entitlement.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return &customer, nil
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_customers (owner_id, provider_customer_id, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (owner_id) DO UPDATE SET
				provider_customer_id = EXCLUDED.provider_customer_id`,
		customer.OwnerID, customer.ProviderCustomerID, createdAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}

	return nil
}

// GetSubscription implements entitlement.Store
func (s *Store) GetSubscription(ctx context.Context, ownerID string) (*entitlement.Subscription, error) {
	var sub entitlement.Subscription
	var periodEnd *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT owner_id, provider_subscription_id, status, price_id,
					current_period_end, cancel_at_period_end, updated_at
			FROM billing_subscriptions WHERE owner_id = $1`,
		ownerID).Scan(
		&sub.OwnerID,
		&sub.ProviderSubscriptionID,
		&sub.Status,
		&sub.PriceID,
		&periodEnd,
		&sub.CancelAtPeriodEnd,
		&sub.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entitlement.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	sub.CurrentPeriodEnd = periodEnd
	return &sub, nil
}

// UpsertSubscription implements entitlement.Store. The single-statement upsert
// keyed on owner_id is the serialization point for concurrent reconciliations.
func (s *Store) UpsertSubscription(ctx context.Context, sub *entitlement.Subscription) error {
	if sub == nil || sub.OwnerID == "" {
		return fmt.Errorf("%w: owner id is required", entitlement.ErrInvalidSubscription)
	}

	updatedAt := sub.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_subscriptions
				(owner_id, provider_subscription_id, status, price_id,
				 current_period_end, cancel_at_period_end, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (owner_id) DO UPDATE SET
				provider_subscription_id = EXCLUDED.provider_subscription_id,
				status = EXCLUDED.status,
				price_id = EXCLUDED.price_id,
				current_period_end = EXCLUDED.current_period_end,
				cancel_at_period_end = EXCLUDED.cancel_at_period_end,
				updated_at = EXCLUDED.updated_at`,
		sub.OwnerID, sub.ProviderSubscriptionID, string(sub.Status), sub.PriceID,
		sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, updatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	return nil
}

// DeleteSubscription implements entitlement.Store
func (s *Store) DeleteSubscription(ctx context.Context, ownerID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM billing_subscriptions WHERE owner_id = $1`, ownerID)

	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	return nil
}
