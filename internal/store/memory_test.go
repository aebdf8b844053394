package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/checoluis2212/backend-b2b/internal/models"
)

func TestMemoryStore_FirstWriteInitializes(t *testing.T) {
	st := NewMemoryStore()

	lead, err := st.ApplyUpsert(context.Background(), "visitor:v1", Upsert{
		VisitorID: "v1",
		ButtonInc: "cotizar",
	})
	require.NoError(t, err)

	assert.Equal(t, "v1", lead.VisitorID)
	assert.Equal(t, map[string]int{"cotizar": 1, "publicar": 0, "oportunidades": 0}, lead.ButtonCounts)
	assert.Zero(t, lead.FormCount)
	assert.False(t, lead.CreatedAt.IsZero())
}

func TestMemoryStore_SetOnInsertFields(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	t1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	_, err := st.ApplyUpsert(ctx, "email:a@b.com", Upsert{
		FormInc: 1, FirstFormAt: &t1, LastFormAt: &t1, CRMObjectID: "111",
	})
	require.NoError(t, err)

	lead, err := st.ApplyUpsert(ctx, "email:a@b.com", Upsert{
		FormInc: 1, FirstFormAt: &t2, LastFormAt: &t2, CRMObjectID: "222",
	})
	require.NoError(t, err)

	assert.Equal(t, t1, *lead.FirstFormAt, "firstFormAt is set-on-insert")
	assert.Equal(t, t2, *lead.LastFormAt, "lastFormAt is last-write-wins")
	assert.Equal(t, "111", lead.CRMObjectID, "crm id is set-on-insert")
	assert.Equal(t, 2, lead.FormCount)
}

func TestMemoryStore_AppendOnly(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	at := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_, err := st.ApplyUpsert(ctx, "email:a@b.com", Upsert{
			FormInc:     1,
			FirstFormAt: &at, LastFormAt: &at,
			Contact: &models.ContactRecord{Email: "a@b.com", SubmittedAt: at},
		})
		require.NoError(t, err)
	}

	lead, err := st.FindByKey(ctx, "email:a@b.com")
	require.NoError(t, err)
	require.NotNil(t, lead)
	assert.Len(t, lead.Contacts, 3)
	assert.Equal(t, lead.FormCount, len(lead.Contacts))
}

func TestMemoryStore_FindMissingReturnsNil(t *testing.T) {
	st := NewMemoryStore()
	lead, err := st.FindByKey(context.Background(), "visitor:absent")
	require.NoError(t, err)
	assert.Nil(t, lead)
}

// Snapshots must not alias internal state: mutating a returned lead cannot
// change what the store holds.
func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	snap, err := st.ApplyUpsert(ctx, "visitor:v1", Upsert{VisitorID: "v1", ButtonInc: "publicar"})
	require.NoError(t, err)
	snap.ButtonCounts["publicar"] = 99

	fresh, err := st.FindByKey(ctx, "visitor:v1")
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.ButtonCounts["publicar"])
}

// Appended contact records are audit data; neither the caller's original
// payload map nor a returned snapshot may reach through to the stored copy.
func TestMemoryStore_ContactPayloadIsolation(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	at := time.Now().UTC()
	payload := map[string]any{"email": "a@b.com", "nombre": "Ana"}
	snap, err := st.ApplyUpsert(ctx, "email:a@b.com", Upsert{
		FormInc:     1,
		FirstFormAt: &at, LastFormAt: &at,
		Contact: &models.ContactRecord{Email: "a@b.com", Payload: payload, SubmittedAt: at},
	})
	require.NoError(t, err)

	payload["nombre"] = "tampered-by-caller"
	snap.Contacts[0].Payload["email"] = "tampered-by-snapshot"

	fresh, err := st.FindByKey(ctx, "email:a@b.com")
	require.NoError(t, err)
	require.Len(t, fresh.Contacts, 1)
	assert.Equal(t, "a@b.com", fresh.Contacts[0].Payload["email"])
	assert.Equal(t, "Ana", fresh.Contacts[0].Payload["nombre"])
}

func TestMemoryStore_AcquisitionLastWriteWins(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.ApplyUpsert(ctx, "visitor:v1", Upsert{
		VisitorID:   "v1",
		ButtonInc:   "cotizar",
		Acquisition: &models.Acquisition{IP: "10.0.0.1", UTM: models.UTM{Source: "google"}},
	})
	require.NoError(t, err)

	lead, err := st.ApplyUpsert(ctx, "visitor:v1", Upsert{
		VisitorID:   "v1",
		ButtonInc:   "cotizar",
		Acquisition: &models.Acquisition{IP: "10.0.0.2", UTM: models.UTM{Source: "bing"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.2", lead.Acquisition.IP)
	assert.Equal(t, "bing", lead.Acquisition.UTM.Source)
}
