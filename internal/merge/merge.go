// Package merge applies normalized events to canonical leads. Every field's
// merge policy (increment, set-on-insert, last-write-wins, append-only) is
// derived here into one store op bundle, committed atomically per key.
package merge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/checoluis2212/backend-b2b/internal/identity"
	"github.com/checoluis2212/backend-b2b/internal/models"
	"github.com/checoluis2212/backend-b2b/internal/store"
)

// ErrInvariantViolation marks an internal contract break, e.g. a button name
// that slipped past normalization. Logged as a defect; never user-recoverable.
var ErrInvariantViolation = errors.New("invariant violation")

// Engine turns one normalized event into one atomic upsert.
type Engine struct {
	store store.Store
	log   *zap.Logger
}

// New returns a merge engine writing through st.
func New(st store.Store, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: st, log: log}
}

// Apply merges ev into the lead at key and returns the post-merge snapshot.
func (e *Engine) Apply(ctx context.Context, key identity.Key, ev *models.NormalizedEvent) (*models.Lead, error) {
	var up store.Upsert

	switch ev.Kind {
	case models.EventButtonClick:
		// Normalization rejects unknown buttons; one reaching this layer is
		// a programming error, not user input.
		if !models.ButtonAllowed(ev.ButtonName) {
			return nil, fmt.Errorf("%w: button %q not in allow-list", ErrInvariantViolation, ev.ButtonName)
		}
		up = store.Upsert{
			VisitorID: ev.VisitorID,
			ButtonInc: ev.ButtonName,
			ButtonEvent: &models.ButtonEvent{
				Name:     ev.ButtonName,
				PageURI:  ev.Context.PageURI,
				PageName: ev.Context.PageName,
				At:       ev.Meta.ReceivedAt,
			},
			Acquisition: acquisitionFrom(ev),
		}

	case models.EventFormSubmit, models.EventWebhookContact:
		at := ev.Meta.ReceivedAt
		up = store.Upsert{
			VisitorID:      ev.VisitorID,
			FormInc:        1,
			FirstFormAt:    &at,
			LastFormAt:     &at,
			LastFormFields: ev.Fields,
			Contact: &models.ContactRecord{
				Name:        contactName(ev.Fields),
				Email:       ev.Fields["email"],
				Phone:       ev.Fields["phone"],
				Company:     ev.Fields["company"],
				JobTitle:    ev.Fields["jobtitle"],
				Payload:     ev.Raw,
				SubmittedAt: at,
			},
			Acquisition: acquisitionFrom(ev),
			CRMObjectID: ev.CRMObjectID,
		}

	default:
		return nil, fmt.Errorf("%w: unknown event kind %q", ErrInvariantViolation, ev.Kind)
	}

	snap, err := e.store.ApplyUpsert(ctx, key.String(), up)
	if err != nil {
		return nil, err
	}

	// The CRM id is set-on-insert; a later webhook carrying a different id
	// is ignored to avoid oscillation, but is worth a defect trail.
	if ev.CRMObjectID != "" && snap.CRMObjectID != ev.CRMObjectID {
		e.log.Warn("crm object id mismatch ignored",
			zap.String("key", key.String()),
			zap.String("recorded", snap.CRMObjectID),
			zap.String("incoming", ev.CRMObjectID))
	}

	return snap, nil
}

// acquisitionFrom projects the event's transport and campaign metadata.
// Last-write-wins on the lead; UTM fields were already defaulted by the
// normalizer, so the tuple is always complete.
func acquisitionFrom(ev *models.NormalizedEvent) *models.Acquisition {
	return &models.Acquisition{
		IP:      ev.Meta.IP,
		Referer: ev.Context.PageReferrer,
		UTM:     ev.Context.UTM,
	}
}

// contactName joins first and last name the way the original lead records do.
func contactName(fields map[string]string) string {
	first, last := fields["firstname"], fields["lastname"]
	if first == "" {
		return last
	}
	if last == "" {
		return first
	}
	return first + " " + last
}
