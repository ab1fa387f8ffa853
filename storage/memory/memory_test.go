package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospecthq/billingsync/pkg/entitlement"
)

func TestStore_ImplementsInterface(t *testing.T) {
	var _ entitlement.Store = New()
}

func TestStore_CustomerRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

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

func TestStore_CustomerNotFound(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.GetCustomerByOwner(ctx, "owner_a")
	assert.ErrorIs(t, err, entitlement.ErrCustomerNotFound)

	_, err = store.GetCustomerByProviderID(ctx, "cus_1")
	assert.ErrorIs(t, err, entitlement.ErrCustomerNotFound)
}

func TestStore_UpsertCustomerValidates(t *testing.T) {
	store := New()
	ctx := context.Background()

	assert.Error(t, store.UpsertCustomer(ctx, nil))
	assert.Error(t, store.UpsertCustomer(ctx, &entitlement.BillingCustomer{OwnerID: "owner_a"}))
	assert.Error(t, store.UpsertCustomer(ctx, &entitlement.BillingCustomer{ProviderCustomerID: "cus_1"}))
}

func TestStore_UpsertCustomerLastWriterWins(t *testing.T) {
	store := New()
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

	// The losing mapping's reverse index entry is gone.
	_, err = store.GetCustomerByProviderID(ctx, "cus_1")
	assert.ErrorIs(t, err, entitlement.ErrCustomerNotFound)
}

func TestStore_SubscriptionRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	end := time.Now().Add(30 * 24 * time.Hour).UTC()
	sub := &entitlement.Subscription{
		OwnerID:                "owner_a",
		ProviderSubscriptionID: "sub_1",
		Status:                 entitlement.StatusActive,
		PriceID:                "price_1",
		CurrentPeriodEnd:       &end,
		UpdatedAt:              time.Now().UTC(),
	}
	require.NoError(t, store.UpsertSubscription(ctx, sub))

	got, err := store.GetSubscription(ctx, "owner_a")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", got.ProviderSubscriptionID)
	assert.True(t, got.Entitled())
	require.NotNil(t, got.CurrentPeriodEnd)
	assert.True(t, got.CurrentPeriodEnd.Equal(end))
}

func TestStore_UpsertSubscriptionReplaces(t *testing.T) {
	store := New()
	ctx := context.Background()

	end := time.Now().UTC()
	require.NoError(t, store.UpsertSubscription(ctx, &entitlement.Subscription{
		OwnerID: "owner_a", ProviderSubscriptionID: "sub_1",
		Status: entitlement.StatusTrialing, CurrentPeriodEnd: &end,
	}))
	require.NoError(t, store.UpsertSubscription(ctx, &entitlement.Subscription{
		OwnerID: "owner_a", ProviderSubscriptionID: "sub_1",
		Status: entitlement.StatusCanceled,
	}))

	got, err := store.GetSubscription(ctx, "owner_a")
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusCanceled, got.Status)
	assert.Nil(t, got.CurrentPeriodEnd, "replace is full, not a field merge")
}

func TestStore_DeleteSubscription(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.UpsertSubscription(ctx, &entitlement.Subscription{
		OwnerID: "owner_a", ProviderSubscriptionID: "sub_1", Status: entitlement.StatusActive,
	}))
	require.NoError(t, store.DeleteSubscription(ctx, "owner_a"))

	_, err := store.GetSubscription(ctx, "owner_a")
	assert.ErrorIs(t, err, entitlement.ErrSubscriptionNotFound)

	// Deleting an absent row is not an error.
	assert.NoError(t, store.DeleteSubscription(ctx, "owner_a"))
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.UpsertSubscription(ctx, &entitlement.Subscription{
		OwnerID: "owner_a", ProviderSubscriptionID: "sub_1", Status: entitlement.StatusActive,
	}))

	got, err := store.GetSubscription(ctx, "owner_a")
	require.NoError(t, err)
	got.Status = entitlement.StatusCanceled

	again, err := store.GetSubscription(ctx, "owner_a")
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusActive, again.Status, "caller mutations must not leak into the store")
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ownerID := fmt.Sprintf("owner_%d", i%4)
			_ = store.UpsertSubscription(ctx, &entitlement.Subscription{
				OwnerID: ownerID, ProviderSubscriptionID: "sub_1", Status: entitlement.StatusActive,
			})
			_, _ = store.GetSubscription(ctx, ownerID)
			_ = store.DeleteSubscription(ctx, ownerID)
		}(i)
	}
	wg.Wait()
}
