//go:build integration

package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospecthq/billingsync/pkg/entitlement"
)

// setupTestStore connects to a local Redis instance, or skips.
// Uses REDIS_TEST_ADDR environment variable or defaults to localhost.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping test: failed to connect to Redis: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())

	config := DefaultConfig()
	config.KeyPrefix = "billingsync_test:"
	store, err := New(client, config)
	require.NoError(t, err)
	return store
}

func TestStore_CustomerRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetCustomerByOwner(ctx, "owner_a")
	assert.ErrorIs(t, err, entitlement.ErrCustomerNotFound)

	customer := &entitlement.BillingCustomer{
		OwnerID:            "owner_a",
		ProviderCustomerID: "cus_1",
		CreatedAt:          time.Now().UTC(),
	}
	require.NoError(t, store.UpsertCustomer(ctx, customer))

	byOwner, err := store.GetCustomerByOwner(ctx, "owner_a")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", byOwner.ProviderCustomerID)

	byProvider, err := store.GetCustomerByProviderID(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "owner_a", byProvider.OwnerID)
}

func TestStore_UpsertCustomerRepointsProviderIndex(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertCustomer(ctx, &entitlement.BillingCustomer{
		OwnerID: "owner_a", ProviderCustomerID: "cus_1",
	}))
	require.NoError(t, store.UpsertCustomer(ctx, &entitlement.BillingCustomer{
		OwnerID: "owner_a", ProviderCustomerID: "cus_2",
	}))

	byOwner, err := store.GetCustomerByOwner(ctx, "owner_a")
	require.NoError(t, err)
	assert.Equal(t, "cus_2", byOwner.ProviderCustomerID)

	_, err = store.GetCustomerByProviderID(ctx, "cus_1")
	assert.ErrorIs(t, err, entitlement.ErrCustomerNotFound, "stale provider index must be dropped")
}

func TestStore_SubscriptionRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetSubscription(ctx, "owner_a")
	assert.ErrorIs(t, err, entitlement.ErrSubscriptionNotFound)

	end := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, store.UpsertSubscription(ctx, &entitlement.Subscription{
		OwnerID:                "owner_a",
		ProviderSubscriptionID: "sub_1",
		Status:                 entitlement.StatusActive,
		PriceID:                "price_1",
		CurrentPeriodEnd:       &end,
		UpdatedAt:              time.Now().UTC(),
	}))

	got, err := store.GetSubscription(ctx, "owner_a")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", got.ProviderSubscriptionID)
	assert.True(t, got.Entitled())
	require.NotNil(t, got.CurrentPeriodEnd)
	assert.True(t, got.CurrentPeriodEnd.Equal(end))
}

func TestStore_DeleteSubscription(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSubscription(ctx, &entitlement.Subscription{
		OwnerID: "owner_a", ProviderSubscriptionID: "sub_1", Status: entitlement.StatusActive,
	}))
	require.NoError(t, store.DeleteSubscription(ctx, "owner_a"))

	_, err := store.GetSubscription(ctx, "owner_a")
	assert.ErrorIs(t, err, entitlement.ErrSubscriptionNotFound)

	assert.NoError(t, store.DeleteSubscription(ctx, "owner_a"))
}
