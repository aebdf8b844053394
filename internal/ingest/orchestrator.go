// Package ingest wires the ingestion path per inbound event: normalize →
// resolve → merge (synchronous, must commit before the caller gets a
// response) → dispatch forwarding (asynchronous, best-effort).
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/checoluis2212/backend-b2b/internal/forward"
	"github.com/checoluis2212/backend-b2b/internal/identity"
	"github.com/checoluis2212/backend-b2b/internal/merge"
	"github.com/checoluis2212/backend-b2b/internal/models"
	"github.com/checoluis2212/backend-b2b/internal/normalize"
	"github.com/checoluis2212/backend-b2b/internal/sinks"
)

// ErrCRMUnavailable marks inbound operations that need the CRM directory
// (webhook reconciliation, submission sync) when it is not configured or not
// responding.
var ErrCRMUnavailable = errors.New("crm unavailable")

// CRMDirectory is the lookup side of the CRM collaborator, used on the
// inbound path to reconcile webhook events into contact properties.
type CRMDirectory interface {
	ContactByID(ctx context.Context, id string) (sinks.Contact, error)
	FindOrCreateContactByEmail(ctx context.Context, email string, props map[string]string) (sinks.Contact, error)
}

// WebhookEvent is one CRM callback. The CRM delivers these in arrays and
// retries aggressively on non-200s, so webhook processing always acknowledges
// receipt regardless of per-event outcomes.
type WebhookEvent struct {
	SubscriptionType string `json:"subscriptionType"`
	ObjectID         int64  `json:"objectId"`
	PortalID         int64  `json:"portalId"`
	EventDate        int64  `json:"eventDate"` // epoch millis
}

// Orchestrator runs the per-event state machine.
type Orchestrator struct {
	merge     *merge.Engine
	forwarder *forward.Forwarder
	crm       CRMDirectory // nil when CRM credentials are absent
	formGUID  string       // webhook filter: only contacts from this form merge
	log       *zap.Logger
}

// New wires an orchestrator. crm may be nil; webhook and sync operations
// then fail with ErrCRMUnavailable.
func New(eng *merge.Engine, fwd *forward.Forwarder, crm CRMDirectory, formGUID string, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		merge:     eng,
		forwarder: fwd,
		crm:       crm,
		formGUID:  formGUID,
		log:       log,
	}
}

// Ingest processes one inbound interaction. The returned snapshot reflects
// the committed merge; forwarding has been dispatched but not awaited.
func (o *Orchestrator) Ingest(ctx context.Context, kind models.EventKind, payload map[string]any, meta models.RequestMeta) (*models.Lead, error) {
	ev, err := normalize.Event(kind, payload, meta)
	if err != nil {
		return nil, err
	}

	key, err := identity.Resolve(ev)
	if err != nil {
		return nil, err
	}

	snap, err := o.merge.Apply(ctx, key, ev)
	if err != nil {
		return nil, err
	}

	if o.forwarder != nil {
		o.forwarder.Dispatch(key, ev)
	}

	return snap, nil
}

// ProcessWebhook reconciles a batch of CRM callbacks. Each event is handled
// independently: a failing lookup or merge skips that event with a warning
// and the rest continue. The counts are informational only; the HTTP layer
// acknowledges regardless.
func (o *Orchestrator) ProcessWebhook(ctx context.Context, events []WebhookEvent, meta models.RequestMeta) (processed, skipped int) {
	for _, evt := range events {
		if err := o.processWebhookEvent(ctx, evt, meta); err != nil {
			if !errors.Is(err, errWebhookFiltered) {
				o.log.Warn("webhook event skipped",
					zap.Int64("object_id", evt.ObjectID),
					zap.String("subscription_type", evt.SubscriptionType),
					zap.Error(err))
			}
			skipped++
			continue
		}
		processed++
	}
	return processed, skipped
}

// errWebhookFiltered marks events that are simply not ours (wrong
// subscription type or foreign form); they are skipped without noise.
var errWebhookFiltered = errors.New("webhook event filtered")

func (o *Orchestrator) processWebhookEvent(ctx context.Context, evt WebhookEvent, meta models.RequestMeta) error {
	if evt.SubscriptionType != "object.creation" {
		return errWebhookFiltered
	}
	if o.crm == nil {
		return ErrCRMUnavailable
	}

	objectID := strconv.FormatInt(evt.ObjectID, 10)
	contact, err := o.crm.ContactByID(ctx, objectID)
	if err != nil {
		return fmt.Errorf("contact lookup: %w", err)
	}

	// Only contacts that originated from our form merge into leads.
	if o.formGUID != "" && contact.Properties["hs_analytics_source_data_2"] != o.formGUID {
		return errWebhookFiltered
	}

	if evt.EventDate > 0 {
		meta.ReceivedAt = time.UnixMilli(evt.EventDate).UTC()
	}

	ev, err := normalize.Event(models.EventWebhookContact, webhookPayload(contact), meta)
	if err != nil {
		return err
	}
	ev.CRMObjectID = objectID

	key, err := identity.Resolve(ev)
	if err != nil {
		return err
	}

	_, err = o.merge.Apply(ctx, key, ev)
	return err
}

// SyncSubmission reconciles one externally-captured form submission: the
// contact is found-or-created in the CRM by email, then the reconciled
// properties merge into the lead as a webhook-kind event.
func (o *Orchestrator) SyncSubmission(ctx context.Context, fields map[string]any, meta models.RequestMeta) (*models.Lead, error) {
	if o.crm == nil {
		return nil, ErrCRMUnavailable
	}

	// Normalize first so the email key and field canonicalization match the
	// regular ingestion path.
	ev, err := normalize.Event(models.EventWebhookContact, map[string]any{"fields": fields}, meta)
	if err != nil {
		return nil, err
	}

	contact, err := o.crm.FindOrCreateContactByEmail(ctx, ev.Fields["email"], crmProperties(ev.Fields))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCRMUnavailable, err)
	}
	ev.CRMObjectID = contact.ID

	key, err := identity.Resolve(ev)
	if err != nil {
		return nil, err
	}

	return o.merge.Apply(ctx, key, ev)
}

// webhookPayload rebuilds a normalizer payload from reconciled CRM contact
// properties, so the webhook path shares the regular field canonicalization.
func webhookPayload(contact sinks.Contact) map[string]any {
	fields := make(map[string]any, len(contact.Properties))
	for k, v := range contact.Properties {
		fields[k] = v
	}
	payload := map[string]any{"fields": fields}
	if vid := contact.Properties["visitor_id"]; vid != "" {
		payload["visitorId"] = vid
	}
	return payload
}

// crmProperties projects normalized fields onto CRM contact property names.
func crmProperties(fields map[string]string) map[string]string {
	return map[string]string{
		"firstname": fields["firstname"],
		"lastname":  fields["lastname"],
		"phone":     fields["phone"],
		"company":   fields["company"],
		"jobtitle":  fields["jobtitle"],
	}
}
