package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/prospecthq/billingsync/pkg/billing"
	"github.com/prospecthq/billingsync/pkg/entitlement"
)

// ownerMetadataKey is attached to every Stripe object we create so objects
// seen in the dashboard (or in webhook payloads) can be traced to an account.
// Routing still goes through the stored mapping, not this metadata.
const ownerMetadataKey = "owner_id"

// CheckoutParams describes a hosted checkout session request.
type CheckoutParams struct {
	// OwnerID is the local account starting checkout.
	OwnerID string

	// Email seeds the Stripe customer if one has to be created.
	Email string

	// PriceID is the Stripe price for the subscription plan.
	PriceID string

	// SuccessURL and CancelURL are where Stripe returns the user.
	SuccessURL string
	CancelURL  string
}

// EnsureCustomer resolves the Stripe customer for an owner, creating one and
// persisting the mapping on first use. Creation is lazy so accounts that
// never start checkout cost nothing at the provider.
func (p *Provider) EnsureCustomer(ctx context.Context, ownerID, email string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("%w: owner id is required", entitlement.ErrInvalidCustomer)
	}

	customer, err := p.store.GetCustomerByOwner(ctx, ownerID)
	if err == nil {
		return customer.ProviderCustomerID, nil
	}
	if !errors.Is(err, entitlement.ErrCustomerNotFound) {
		return "", fmt.Errorf("failed to look up customer for owner %s: %w", ownerID, err)
	}

	// Collapse concurrent first-checkout attempts for the same owner. Across
	// processes the storage upsert keyed on owner resolves the race; the
	// loser's Stripe customer stays orphaned with no subscription, which is
	// harmless.
	v, err, _ := p.ensureGroup.Do(ownerID, func() (interface{}, error) {
		existing, err := p.store.GetCustomerByOwner(ctx, ownerID)
		if err == nil {
			return existing.ProviderCustomerID, nil
		}
		if !errors.Is(err, entitlement.ErrCustomerNotFound) {
			return nil, fmt.Errorf("failed to look up customer for owner %s: %w", ownerID, err)
		}

		created, err := p.createCustomer(ctx, email, map[string]string{ownerMetadataKey: ownerID})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create customer: %v", billing.ErrProviderAPIError, err)
		}

		mapping := &entitlement.BillingCustomer{
			OwnerID:            ownerID,
			ProviderCustomerID: created.ID,
			CreatedAt:          time.Now().UTC(),
		}
		if err := p.store.UpsertCustomer(ctx, mapping); err != nil {
			return nil, fmt.Errorf("failed to persist customer mapping for owner %s: %w", ownerID, err)
		}

		p.logger.Info("billing customer created",
			entitlement.Field{Key: "provider", Value: providerName},
			entitlement.Field{Key: "owner_id", Value: ownerID},
			entitlement.Field{Key: "customer_id", Value: created.ID},
		)
		return created.ID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// CheckoutURL creates a subscription checkout session for the owner and
// returns the hosted page URL. The owner is stamped onto the subscription's
// metadata at creation time so it is present on every subsequent webhook.
func (p *Provider) CheckoutURL(ctx context.Context, params CheckoutParams) (string, error) {
	if params.PriceID == "" {
		return "", fmt.Errorf("%w: price id is required", billing.ErrProviderNotConfigured)
	}

	customerID, err := p.EnsureCustomer(ctx, params.OwnerID, params.Email)
	if err != nil {
		return "", err
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:          stripe.String(params.SuccessURL),
		CancelURL:           stripe.String(params.CancelURL),
		AllowPromotionCodes: stripe.Bool(true),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{ownerMetadataKey: params.OwnerID},
		},
	}

	session, err := p.newCheckoutSession(ctx, sessionParams)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create checkout session: %v", billing.ErrProviderAPIError, err)
	}
	return session.URL, nil
}

// PortalURL creates a customer portal session so an owner can manage payment
// methods and cancellation. The owner must already have a billing customer;
// there is nothing to manage before first checkout.
func (p *Provider) PortalURL(ctx context.Context, ownerID, returnURL string) (string, error) {
	customer, err := p.store.GetCustomerByOwner(ctx, ownerID)
	if errors.Is(err, entitlement.ErrCustomerNotFound) {
		return "", fmt.Errorf("%w: owner %s has no billing customer", billing.ErrCustomerNotFound, ownerID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up customer for owner %s: %w", ownerID, err)
	}

	session, err := p.newPortalSession(ctx, &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customer.ProviderCustomerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to create portal session: %v", billing.ErrProviderAPIError, err)
	}
	return session.URL, nil
}

func (p *Provider) createCustomer(ctx context.Context, email string, metadata map[string]string) (*stripe.Customer, error) {
	start := time.Now()
	customer, err := p.api.CreateCustomer(ctx, email, metadata)
	p.metrics.RecordAPICallDuration(providerName, "/v1/customers", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/v1/customers", "error")
		return nil, err
	}
	p.metrics.RecordAPICall(providerName, "/v1/customers", "200")
	return customer, nil
}

func (p *Provider) newCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	start := time.Now()
	session, err := p.api.NewCheckoutSession(ctx, params)
	p.metrics.RecordAPICallDuration(providerName, "/v1/checkout/sessions", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/v1/checkout/sessions", "error")
		return nil, err
	}
	p.metrics.RecordAPICall(providerName, "/v1/checkout/sessions", "200")
	return session, nil
}

func (p *Provider) newPortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	start := time.Now()
	session, err := p.api.NewPortalSession(ctx, params)
	p.metrics.RecordAPICallDuration(providerName, "/v1/billing_portal/sessions", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/v1/billing_portal/sessions", "error")
		return nil, err
	}
	p.metrics.RecordAPICall(providerName, "/v1/billing_portal/sessions", "200")
	return session, nil
}
