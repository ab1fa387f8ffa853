package stripe

import (
	"context"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// stripeAPI is the slice of the Stripe API the provider consumes. Kept narrow
// so tests can substitute a fake without a live client.
type stripeAPI interface {
	// ListSubscriptions returns up to limit subscriptions for a customer,
	// most recent first, across all statuses.
	ListSubscriptions(ctx context.Context, customerID string, limit int64) ([]*stripe.Subscription, error)

	// CreateCustomer creates a provider customer carrying the owner metadata.
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (*stripe.Customer, error)

	// NewCheckoutSession creates a hosted checkout session.
	NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

	// NewPortalSession creates a customer portal session.
	NewPortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

// apiClient implements stripeAPI against the real Stripe backend.
type apiClient struct {
	sc *client.API
}

func newAPIClient(apiKey string, httpClient *http.Client) *apiClient {
	backendConfig := &stripe.BackendConfig{
		HTTPClient: httpClient,
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	}
	return &apiClient{sc: client.New(apiKey, backends)}
}

func (c *apiClient) ListSubscriptions(
	ctx context.Context, customerID string, limit int64,
) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{}
	params.Context = ctx
	params.Customer = stripe.String(customerID)
	params.Status = stripe.String("all")
	params.Limit = stripe.Int64(limit)

	var subs []*stripe.Subscription
	iter := c.sc.Subscriptions.List(params)
	for iter.Next() {
		subs = append(subs, iter.Subscription())
		// The iterator auto-paginates; stop at the requested limit.
		if int64(len(subs)) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}

func (c *apiClient) CreateCustomer(
	ctx context.Context, email string, metadata map[string]string,
) (*stripe.Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	return c.sc.Customers.New(params)
}

func (c *apiClient) NewCheckoutSession(
	ctx context.Context, params *stripe.CheckoutSessionParams,
) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	return c.sc.CheckoutSessions.New(params)
}

func (c *apiClient) NewPortalSession(
	ctx context.Context, params *stripe.BillingPortalSessionParams,
) (*stripe.BillingPortalSession, error) {
	params.Context = ctx
	return c.sc.BillingPortalSessions.New(params)
}
