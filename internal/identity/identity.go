// Package identity maps a normalized event to the key of the canonical lead
// it belongs to.
package identity

import (
	"errors"
	"fmt"

	"github.com/checoluis2212/backend-b2b/internal/models"
)

// ErrUnresolvable marks events with neither a visitorId nor an email. The
// caller must reject the request rather than merge.
var ErrUnresolvable = errors.New("unresolvable identity")

// KeyKind distinguishes the two identity namespaces. Visitor keys and email
// keys never collide in the store, and a pre-existing email-keyed lead is not
// folded into a visitor-keyed one when both surface later.
type KeyKind string

const (
	KeyVisitor KeyKind = "visitor"
	KeyEmail   KeyKind = "email"
)

// Key is the resolved identity of a canonical lead.
type Key struct {
	Kind  KeyKind
	Value string
}

// String renders the store key. The kind prefix keeps the namespaces apart.
func (k Key) String() string {
	return string(k.Kind) + ":" + k.Value
}

// Resolve picks the durable identity for an event: visitorId when present,
// normalized email otherwise.
func Resolve(ev *models.NormalizedEvent) (Key, error) {
	if ev.VisitorID != "" {
		return Key{Kind: KeyVisitor, Value: ev.VisitorID}, nil
	}
	if email := ev.Fields["email"]; email != "" {
		return Key{Kind: KeyEmail, Value: email}, nil
	}
	return Key{}, fmt.Errorf("%w: no visitorId or email", ErrUnresolvable)
}
