package entitlement

import (
	"context"
	"errors"
	"fmt"
)

// Reader answers "is this account entitled" from the reconciled local state.
// It only reads; the subscription reconciler is the sole writer.
type Reader struct {
	store Store
}

// NewReader creates a Reader backed by the given store.
func NewReader(store Store) (*Reader, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &Reader{store: store}, nil
}

// Current returns the subscription snapshot for an owner, or
// ErrSubscriptionNotFound.
func (r *Reader) Current(ctx context.Context, ownerID string) (*Subscription, error) {
	return r.store.GetSubscription(ctx, ownerID)
}

// Entitled reports whether the owner currently has paid access. An absent
// snapshot means not entitled, not an error.
func (r *Reader) Entitled(ctx context.Context, ownerID string) (bool, error) {
	sub, err := r.store.GetSubscription(ctx, ownerID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub.Entitled(), nil
}
