package entitlement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal Store for Reader tests. The full-featured in-memory
// implementation lives in storage/memory; using it here would import the
// package under test back into itself.
type fakeStore struct {
	subs map[string]*Subscription
	err  error
}

func (f *fakeStore) GetCustomerByOwner(_ context.Context, _ string) (*BillingCustomer, error) {
	return nil, ErrCustomerNotFound
}

func (f *fakeStore) GetCustomerByProviderID(_ context.Context, _ string) (*BillingCustomer, error) {
	return nil, ErrCustomerNotFound
}

func (f *fakeStore) UpsertCustomer(_ context.Context, _ *BillingCustomer) error { return nil }

func (f *fakeStore) GetSubscription(_ context.Context, ownerID string) (*Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	sub, ok := f.subs[ownerID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

func (f *fakeStore) UpsertSubscription(_ context.Context, _ *Subscription) error { return nil }
func (f *fakeStore) DeleteSubscription(_ context.Context, _ string) error        { return nil }

func TestNewReader_RequiresStore(t *testing.T) {
	_, err := NewReader(nil)
	assert.Error(t, err)
}

func TestReader_Entitled(t *testing.T) {
	store := &fakeStore{subs: map[string]*Subscription{
		"owner_active":   {OwnerID: "owner_active", Status: StatusActive},
		"owner_trialing": {OwnerID: "owner_trialing", Status: StatusTrialing},
		"owner_canceled": {OwnerID: "owner_canceled", Status: StatusCanceled},
	}}
	reader, err := NewReader(store)
	require.NoError(t, err)

	ctx := context.Background()

	tests := []struct {
		ownerID  string
		entitled bool
	}{
		{"owner_active", true},
		{"owner_trialing", true},
		{"owner_canceled", false},
		{"owner_unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.ownerID, func(t *testing.T) {
			entitled, err := reader.Entitled(ctx, tt.ownerID)
			require.NoError(t, err)
			assert.Equal(t, tt.entitled, entitled)
		})
	}
}

func TestReader_Entitled_StorageError(t *testing.T) {
	storageErr := errors.New("connection refused")
	reader, err := NewReader(&fakeStore{err: storageErr})
	require.NoError(t, err)

	entitled, err := reader.Entitled(context.Background(), "owner_A")
	assert.False(t, entitled)
	assert.ErrorIs(t, err, storageErr)
}

func TestReader_Current_NotFound(t *testing.T) {
	reader, err := NewReader(&fakeStore{})
	require.NoError(t, err)

	_, err = reader.Current(context.Background(), "owner_A")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}
