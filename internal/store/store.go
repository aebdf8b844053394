// Package store is the durable persistence layer for canonical leads. The
// ApplyUpsert contract commits one event's init/increment/set/append bundle
// as a single unit, so concurrent events for the same key never lose updates.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/checoluis2212/backend-b2b/internal/models"
)

// ErrUnavailable marks a durable write or read that could not be attempted
// or committed. Surfaced as 503; callers may retry.
var ErrUnavailable = errors.New("store unavailable")

// Upsert is the op bundle the merge engine derives from one event. Every
// field carries a named merge policy; the store must apply the whole bundle
// atomically per key.
type Upsert struct {
	// Set-on-insert: written only when the lead is created.
	VisitorID   string
	CRMObjectID string

	// Increment.
	ButtonInc string // allow-listed button name to bump by 1; "" for none
	FormInc   int    // 0 or 1

	// FirstFormAt is set-on-insert; LastFormAt is last-write-wins.
	FirstFormAt *time.Time
	LastFormAt  *time.Time

	// Last-write-wins: replaced wholesale when non-nil.
	LastFormFields map[string]string
	Acquisition    *models.Acquisition

	// Append-only.
	Contact     *models.ContactRecord
	ButtonEvent *models.ButtonEvent
}

// Store is the canonical-lead collaborator contract.
type Store interface {
	// FindByKey returns the lead at key, or nil when absent.
	FindByKey(ctx context.Context, key string) (*models.Lead, error)
	// ApplyUpsert creates the lead if absent (buttonCounts all-zero,
	// formCount 0) and applies the bundle in one atomic operation,
	// returning the post-merge snapshot.
	ApplyUpsert(ctx context.Context, key string, up Upsert) (*models.Lead, error)
}
