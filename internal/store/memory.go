package store

import (
	"context"
	"sync"
	"time"

	"github.com/checoluis2212/backend-b2b/internal/models"
)

// MemoryStore is a mutex-serialized in-process Store. It backs unit and
// property tests; the HTTP service runs on Postgres.
type MemoryStore struct {
	mu    sync.Mutex
	leads map[string]*models.Lead
	now   func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads: map[string]*models.Lead{},
		now:   time.Now,
	}
}

// SetClock overrides the timestamp source. Test hook.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.now = now
}

func (m *MemoryStore) FindByKey(_ context.Context, key string) (*models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[key]
	if !ok {
		return nil, nil
	}
	return copyLead(lead), nil
}

func (m *MemoryStore) ApplyUpsert(_ context.Context, key string, up Upsert) (*models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lead, ok := m.leads[key]
	if !ok {
		lead = &models.Lead{
			Key:          key,
			ButtonCounts: models.ZeroButtonCounts(),
			Contacts:     []models.ContactRecord{},
			ButtonEvents: []models.ButtonEvent{},
			CreatedAt:    m.now().UTC(),
		}
		m.leads[key] = lead
	}

	// Set-if-absent: visitorId and the CRM object id are durable once set.
	if lead.VisitorID == "" {
		lead.VisitorID = up.VisitorID
	}
	if lead.CRMObjectID == "" {
		lead.CRMObjectID = up.CRMObjectID
	}

	if up.ButtonInc != "" {
		lead.ButtonCounts[up.ButtonInc]++
	}
	lead.FormCount += up.FormInc
	if lead.FirstFormAt == nil && up.FirstFormAt != nil {
		t := *up.FirstFormAt
		lead.FirstFormAt = &t
	}
	if up.LastFormAt != nil {
		t := *up.LastFormAt
		lead.LastFormAt = &t
	}
	if up.LastFormFields != nil {
		lead.LastFormFields = copyStringMap(up.LastFormFields)
	}
	if up.Acquisition != nil {
		lead.Acquisition = *up.Acquisition
	}
	if up.Contact != nil {
		contact := *up.Contact
		contact.Payload = copyAnyMap(contact.Payload)
		lead.Contacts = append(lead.Contacts, contact)
	}
	if up.ButtonEvent != nil {
		lead.ButtonEvents = append(lead.ButtonEvents, *up.ButtonEvent)
	}
	lead.UpdatedAt = m.now().UTC()

	return copyLead(lead), nil
}

// copyLead snapshots a lead so callers never alias the store's state.
func copyLead(src *models.Lead) *models.Lead {
	dst := *src
	dst.ButtonCounts = make(map[string]int, len(src.ButtonCounts))
	for k, v := range src.ButtonCounts {
		dst.ButtonCounts[k] = v
	}
	dst.LastFormFields = copyStringMap(src.LastFormFields)
	dst.Contacts = append([]models.ContactRecord(nil), src.Contacts...)
	for i := range dst.Contacts {
		dst.Contacts[i].Payload = copyAnyMap(dst.Contacts[i].Payload)
	}
	dst.ButtonEvents = append([]models.ButtonEvent(nil), src.ButtonEvents...)
	if src.FirstFormAt != nil {
		t := *src.FirstFormAt
		dst.FirstFormAt = &t
	}
	if src.LastFormAt != nil {
		t := *src.LastFormAt
		dst.LastFormAt = &t
	}
	return &dst
}

func copyAnyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyStringMap(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
