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

// syncTrigger records what caused a reconciliation, for logs, metrics, and
// the change callback. It never influences what gets written.
type syncTrigger struct {
	eventType  string
	occurredAt time.Time
}

// syncCustomer is the single reconciliation path. Webhook events, manual
// syncs, and restore flows all land here: resolve the owner, ask Stripe for
// the current subscription, and full-replace the local snapshot. Because the
// write depends only on Stripe's answer at query time, redelivered or
// reordered events converge on the same state.
func (p *Provider) syncCustomer(ctx context.Context, providerCustomerID string, trigger syncTrigger) error {
	start := time.Now()

	customer, err := p.store.GetCustomerByProviderID(ctx, providerCustomerID)
	if errors.Is(err, entitlement.ErrCustomerNotFound) {
		// Not one of ours. Test-mode traffic and customers created outside
		// checkout land here; acknowledge without writing anything.
		p.logger.Debug("sync skipped, unknown customer",
			entitlement.Field{Key: "provider", Value: providerName},
			entitlement.Field{Key: "customer_id", Value: providerCustomerID},
		)
		p.metrics.RecordCustomerSync(providerName, "unknown_customer")
		return nil
	}
	if err != nil {
		p.metrics.RecordCustomerSync(providerName, "error")
		return fmt.Errorf("failed to resolve customer %s: %w", providerCustomerID, err)
	}

	subs, err := p.listSubscriptions(ctx, providerCustomerID)
	if err != nil {
		p.metrics.RecordCustomerSync(providerName, "error")
		return fmt.Errorf("%w: failed to list subscriptions for %s: %v",
			billing.ErrProviderAPIError, providerCustomerID, err)
	}

	// Previous snapshot feeds the transition metric and the callback only;
	// the write below never depends on it.
	previous, err := p.store.GetSubscription(ctx, customer.OwnerID)
	if err != nil && !errors.Is(err, entitlement.ErrSubscriptionNotFound) {
		p.metrics.RecordCustomerSync(providerName, "error")
		return fmt.Errorf("failed to read subscription for owner %s: %w", customer.OwnerID, err)
	}

	var snapshot *entitlement.Subscription
	if len(subs) == 0 {
		if err := p.store.DeleteSubscription(ctx, customer.OwnerID); err != nil {
			p.metrics.RecordCustomerSync(providerName, "error")
			return fmt.Errorf("failed to delete subscription for owner %s: %w", customer.OwnerID, err)
		}
	} else {
		snapshot = snapshotFromStripe(customer.OwnerID, subs[0])
		if err := p.store.UpsertSubscription(ctx, snapshot); err != nil {
			p.metrics.RecordCustomerSync(providerName, "error")
			return fmt.Errorf("failed to upsert subscription for owner %s: %w", customer.OwnerID, err)
		}
	}

	from, to := statusLabel(previous), statusLabel(snapshot)
	if from != to {
		p.metrics.RecordEntitlementChange(providerName, from, to)
	}

	p.logger.Info("subscription reconciled",
		entitlement.Field{Key: "provider", Value: providerName},
		entitlement.Field{Key: "owner_id", Value: customer.OwnerID},
		entitlement.Field{Key: "customer_id", Value: providerCustomerID},
		entitlement.Field{Key: "event_type", Value: trigger.eventType},
		entitlement.Field{Key: "status", Value: to},
		entitlement.Field{Key: "entitled", Value: snapshot.Entitled()},
	)

	if p.callback != nil && !snapshotsEqual(previous, snapshot) {
		event := billing.WebhookEvent{
			OwnerID:            customer.OwnerID,
			ProviderCustomerID: providerCustomerID,
			Provider:           providerName,
			EventType:          trigger.eventType,
			EventTimestamp:     trigger.occurredAt,
			Subscription:       snapshot,
			Entitled:           snapshot.Entitled(),
		}
		if err := p.callback(ctx, event); err != nil {
			p.metrics.RecordCustomerSync(providerName, "error")
			return fmt.Errorf("webhook callback failed for owner %s: %w", customer.OwnerID, err)
		}
	}

	p.metrics.RecordCustomerSync(providerName, "success")
	p.metrics.RecordCustomerSyncDuration(providerName, time.Since(start))
	return nil
}

func (p *Provider) listSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error) {
	start := time.Now()
	subs, err := p.api.ListSubscriptions(ctx, customerID, subscriptionListLimit)
	p.metrics.RecordAPICallDuration(providerName, "/v1/subscriptions", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/v1/subscriptions", "error")
		return nil, err
	}
	p.metrics.RecordAPICall(providerName, "/v1/subscriptions", "200")
	return subs, nil
}

// snapshotFromStripe projects a Stripe subscription onto the stored snapshot.
// Plan and period fields live on the first (only) subscription item.
func snapshotFromStripe(ownerID string, sub *stripe.Subscription) *entitlement.Subscription {
	snapshot := &entitlement.Subscription{
		OwnerID:                ownerID,
		ProviderSubscriptionID: sub.ID,
		Status:                 entitlement.Status(sub.Status),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		UpdatedAt:              time.Now().UTC(),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			snapshot.PriceID = item.Price.ID
		}
		if item.CurrentPeriodEnd > 0 {
			end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			snapshot.CurrentPeriodEnd = &end
		}
	}
	return snapshot
}

// statusLabel renders a snapshot status for metrics, using "none" for a
// missing row so deletions show up as transitions.
func statusLabel(sub *entitlement.Subscription) string {
	if sub == nil {
		return "none"
	}
	return string(sub.Status)
}

// snapshotsEqual compares the durable fields of two snapshots, ignoring
// UpdatedAt so a no-op reconciliation does not fire the callback.
func snapshotsEqual(a, b *entitlement.Subscription) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.ProviderSubscriptionID != b.ProviderSubscriptionID ||
		a.Status != b.Status ||
		a.PriceID != b.PriceID ||
		a.CancelAtPeriodEnd != b.CancelAtPeriodEnd {
		return false
	}
	if (a.CurrentPeriodEnd == nil) != (b.CurrentPeriodEnd == nil) {
		return false
	}
	if a.CurrentPeriodEnd != nil && !a.CurrentPeriodEnd.Equal(*b.CurrentPeriodEnd) {
		return false
	}
	return true
}
