package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is not properly configured
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrMissingWebhookCredentials is returned when the signature header or the
	// shared secret is absent; verification is never attempted in that case
	ErrMissingWebhookCredentials = errors.New("missing webhook signature or secret")

	// ErrStaleWebhookEvent is returned when the signed timestamp falls outside
	// the replay tolerance window
	ErrStaleWebhookEvent = errors.New("webhook event outside tolerance window")

	// ErrInvalidWebhookPayload is returned when webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrProviderAPIError is returned when the provider's API returns an error
	ErrProviderAPIError = errors.New("billing provider API error")

	// ErrCustomerNotFound is returned when a customer cannot be found at the provider
	ErrCustomerNotFound = errors.New("customer not found in billing provider")

	// ErrNotSupported is returned when a provider doesn't support an operation
	ErrNotSupported = errors.New("operation not supported by this provider")
)
