package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/prospecthq/billingsync/pkg/billing"
	"github.com/prospecthq/billingsync/pkg/billing/internal"
	"github.com/prospecthq/billingsync/pkg/entitlement"
)

// webhookAction is the routing decision for a verified event.
type webhookAction int

const (
	// actionIgnore acknowledges the event without touching state. Stripe
	// deliveries are shared-endpoint; anything we don't subscribe to is noise.
	actionIgnore webhookAction = iota

	// actionReconcile re-queries Stripe for the customer and rewrites the
	// local snapshot.
	actionReconcile
)

// classifyEvent maps an event type to a routing decision. Every recognized
// type funnels into the same reconciliation; the payload body is never the
// source of subscription fields.
func classifyEvent(eventType stripe.EventType) webhookAction {
	switch eventType {
	case "checkout.session.completed",
		"customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		return actionReconcile
	default:
		return actionIgnore
	}
}

// customerFromEvent extracts the provider customer identifier from the event
// payload. Both checkout sessions and subscription objects carry it under the
// "customer" key. This is the only payload field the handler trusts.
func customerFromEvent(event *stripe.Event) string {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return ""
	}
	var obj struct {
		Customer string `json:"customer"`
	}
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return ""
	}
	return strings.TrimSpace(obj.Customer)
}

// verifyEvent checks the signature header against the exact raw bytes
// received and parses the envelope. Timestamp staleness is reported
// separately from signature failure so callers can label it.
func (p *Provider) verifyEvent(body []byte, sigHeader string) (stripe.Event, error) {
	var event stripe.Event
	if err := stripewebhook.ValidatePayloadWithTolerance(body, sigHeader, p.webhookSecret, p.tolerance); err != nil {
		if errors.Is(err, stripewebhook.ErrTooOld) {
			return event, fmt.Errorf("%w: %v", billing.ErrStaleWebhookEvent, err)
		}
		return event, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookSignature, err)
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return event, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err)
	}
	return event, nil
}

// handleWebhook processes Stripe webhook events. It is a thin shell around
// the reconciler: verify, route by event type, re-fetch, respond. Response
// codes drive Stripe's redelivery, so verification failures are terminal 4xx
// and transient processing failures are 5xx.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	w.Header().Set("X-Content-Type-Options", "nosniff")

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		p.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if p.webhookSecret == "" {
		p.logger.Error("webhook secret not configured", entitlement.Field{Key: "provider", Value: providerName})
		p.metrics.RecordWebhookError(providerName, "not_configured")
		p.writeError(w, http.StatusServiceUnavailable, "webhook not configured")
		return
	}

	body, err := internal.ReadBodyStrict(w, r, webhookBodyLimit)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		p.metrics.RecordWebhookError(providerName, "invalid_body")
		p.writeError(w, status, "invalid request body")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		p.logger.Warn("webhook rejected, missing signature header",
			entitlement.Field{Key: "provider", Value: providerName},
			entitlement.Field{Key: "remote_addr", Value: internal.GetClientIP(r)},
		)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		p.writeError(w, http.StatusBadRequest, "missing signature")
		return
	}

	event, err := p.verifyEvent(body, sigHeader)
	if err != nil {
		errType := "auth_failed"
		if errors.Is(err, billing.ErrStaleWebhookEvent) {
			errType = "stale_event"
		}
		p.logger.Warn("webhook rejected, signature verification failed",
			entitlement.Field{Key: "provider", Value: providerName},
			entitlement.Field{Key: "error", Value: err.Error()},
			entitlement.Field{Key: "remote_addr", Value: internal.GetClientIP(r)},
		)
		p.metrics.RecordWebhookError(providerName, errType)
		p.writeError(w, http.StatusBadRequest, "signature verification failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "unknown"
	}

	if classifyEvent(event.Type) == actionIgnore {
		p.logger.Debug("webhook event ignored",
			entitlement.Field{Key: "provider", Value: providerName},
			entitlement.Field{Key: "event_type", Value: eventType},
		)
		p.recordWebhookOutcome(eventType, "ignored", start)
		p.writeReceived(w)
		return
	}

	customerID := customerFromEvent(&event)
	if customerID == "" {
		// Recognized type but no customer to route by. Nothing to do; a retry
		// would see the same payload.
		p.logger.Warn("webhook event missing customer identifier",
			entitlement.Field{Key: "provider", Value: providerName},
			entitlement.Field{Key: "event_type", Value: eventType},
			entitlement.Field{Key: "event_id", Value: event.ID},
		)
		p.recordWebhookOutcome(eventType, "ignored", start)
		p.writeReceived(w)
		return
	}

	// Detach from the request context so a dropped connection cannot cancel
	// a half-finished reconciliation, but still bound the work.
	ctx := context.WithoutCancel(r.Context())
	ctx, cancel := context.WithTimeout(ctx, p.syncTimeout)
	defer cancel()

	trigger := syncTrigger{
		eventType:  eventType,
		occurredAt: time.Unix(event.Created, 0).UTC(),
	}
	if err := p.syncCustomer(ctx, customerID, trigger); err != nil {
		p.logger.Error("webhook reconciliation failed",
			entitlement.Field{Key: "provider", Value: providerName},
			entitlement.Field{Key: "event_type", Value: eventType},
			entitlement.Field{Key: "event_id", Value: event.ID},
			entitlement.Field{Key: "customer_id", Value: customerID},
			entitlement.Field{Key: "error", Value: err.Error()},
		)
		p.metrics.RecordWebhookError(providerName, "sync_failed")
		p.recordWebhookOutcome(eventType, "error", start)
		p.writeError(w, http.StatusInternalServerError, "event processing failed")
		return
	}

	p.recordWebhookOutcome(eventType, "success", start)
	p.writeReceived(w)
}

func (p *Provider) recordWebhookOutcome(eventType, status string, start time.Time) {
	p.metrics.RecordWebhookEvent(providerName, eventType, status)
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(start))
}

func (p *Provider) writeReceived(w http.ResponseWriter) {
	_ = internal.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (p *Provider) writeError(w http.ResponseWriter, code int, message string) {
	_ = internal.WriteJSON(w, code, map[string]string{"error": message})
}
