package entitlement

import "errors"

var (
	// ErrCustomerNotFound is returned when no customer mapping exists for the
	// given key. Provider customers can exist outside this application's known
	// set, so callers routinely treat this as "not our concern".
	ErrCustomerNotFound = errors.New("billing customer not found")

	// ErrSubscriptionNotFound is returned when no subscription snapshot exists
	// for an owner. Absence of a row means the account is not entitled.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrInvalidCustomer is returned when a customer mapping is missing a key.
	ErrInvalidCustomer = errors.New("invalid billing customer")

	// ErrInvalidSubscription is returned when a subscription snapshot is
	// missing its owner key.
	ErrInvalidSubscription = errors.New("invalid subscription")
)
