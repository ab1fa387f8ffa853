package stripe

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/prospecthq/billingsync/pkg/billing"
	"github.com/prospecthq/billingsync/pkg/entitlement"
)

func TestEnsureCustomer_CreatesAndPersistsMapping(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{}
	p := newTestProvider(t, store, api)

	customerID, err := p.EnsureCustomer(context.Background(), testOwnerID, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, testCustomerID, customerID)
	assert.Equal(t, 1, api.createCalls)
	assert.Equal(t, "a@example.com", api.lastCreateEmail)
	assert.Equal(t, testOwnerID, api.lastMetadata[ownerMetadataKey])

	mapping, err := store.GetCustomerByOwner(context.Background(), testOwnerID)
	require.NoError(t, err)
	assert.Equal(t, testCustomerID, mapping.ProviderCustomerID)
}

func TestEnsureCustomer_ReusesExistingMapping(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(testOwnerID, testCustomerID)
	api := &fakeAPI{}
	p := newTestProvider(t, store, api)

	customerID, err := p.EnsureCustomer(context.Background(), testOwnerID, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, testCustomerID, customerID)
	assert.Zero(t, api.createCalls)
}

func TestEnsureCustomer_ConcurrentCallsCreateOnce(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{}
	p := newTestProvider(t, store, api)

	const workers = 10
	results := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.EnsureCustomer(context.Background(), testOwnerID, "a@example.com")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, testCustomerID, results[i])
	}
	assert.Equal(t, 1, api.createCalls, "concurrent first checkouts collapse to one customer")
}

func TestEnsureCustomer_RequiresOwner(t *testing.T) {
	p := newTestProvider(t, newFakeStore(), &fakeAPI{})

	_, err := p.EnsureCustomer(context.Background(), "", "a@example.com")
	assert.ErrorIs(t, err, entitlement.ErrInvalidCustomer)
}

func TestEnsureCustomer_CreateFailureDoesNotPersist(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{createErr: fmt.Errorf("stripe: 500")}
	p := newTestProvider(t, store, api)

	_, err := p.EnsureCustomer(context.Background(), testOwnerID, "a@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrProviderAPIError)

	_, err = store.GetCustomerByOwner(context.Background(), testOwnerID)
	assert.ErrorIs(t, err, entitlement.ErrCustomerNotFound)
}

func TestCheckoutURL(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{}
	p := newTestProvider(t, store, api)

	url, err := p.CheckoutURL(context.Background(), CheckoutParams{
		OwnerID:    testOwnerID,
		Email:      "a@example.com",
		PriceID:    testPriceID,
		SuccessURL: "https://app.example.com/billing/success",
		CancelURL:  "https://app.example.com/billing",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	params := api.lastCheckout
	require.NotNil(t, params)
	assert.Equal(t, string(stripe.CheckoutSessionModeSubscription), *params.Mode)
	assert.Equal(t, testCustomerID, *params.Customer)
	require.Len(t, params.LineItems, 1)
	assert.Equal(t, testPriceID, *params.LineItems[0].Price)
	require.NotNil(t, params.SubscriptionData)
	assert.Equal(t, testOwnerID, params.SubscriptionData.Metadata[ownerMetadataKey])
}

func TestCheckoutURL_RequiresPrice(t *testing.T) {
	p := newTestProvider(t, newFakeStore(), &fakeAPI{})

	_, err := p.CheckoutURL(context.Background(), CheckoutParams{OwnerID: testOwnerID})
	assert.Error(t, err)
}

func TestCheckoutURL_ReusesCustomerAcrossSessions(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{}
	p := newTestProvider(t, store, api)

	for i := 0; i < 2; i++ {
		_, err := p.CheckoutURL(context.Background(), CheckoutParams{
			OwnerID: testOwnerID,
			PriceID: testPriceID,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, api.createCalls)
}

func TestPortalURL(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(testOwnerID, testCustomerID)
	api := &fakeAPI{}
	p := newTestProvider(t, store, api)

	url, err := p.PortalURL(context.Background(), testOwnerID, "https://app.example.com/settings")
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	require.NotNil(t, api.lastPortal)
	assert.Equal(t, testCustomerID, *api.lastPortal.Customer)
	assert.Equal(t, "https://app.example.com/settings", *api.lastPortal.ReturnURL)
}

func TestPortalURL_RequiresExistingCustomer(t *testing.T) {
	p := newTestProvider(t, newFakeStore(), &fakeAPI{})

	_, err := p.PortalURL(context.Background(), testOwnerID, "https://app.example.com/settings")
	assert.ErrorIs(t, err, billing.ErrCustomerNotFound)
}
