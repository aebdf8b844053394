package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/checoluis2212/backend-b2b/internal/models"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore persists leads in a single jsonb-document table. The whole
// merge bundle is expressed in one INSERT ... ON CONFLICT DO UPDATE
// statement; Postgres row-level locking serializes concurrent events for the
// same key, so no read-modify-write race exists.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema() error {
	_, err := p.pool.Exec(context.Background(), schemaSQL)
	return err
}

// Ping is used by the readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

const leadColumns = `entity_key, visitor_id, button_counts, form_count,
	first_form_at, last_form_at, last_form_fields, contacts, button_events,
	acquisition, crm_object_id, created_at, updated_at`

// upsertSQL applies one merge bundle atomically. Policies per column:
// set-if-absent (visitor_id, crm_object_id, first_form_at), increment
// (button_counts via jsonb_set, form_count), last-write-wins (last_form_at,
// last_form_fields, acquisition), append-only (contacts, button_events).
const upsertSQL = `
	INSERT INTO leads (` + leadColumns + `)
	VALUES ($1, $2, $3::jsonb, $4, $5, $6,
	        COALESCE($7::jsonb, '{}'::jsonb), $8::jsonb, $9::jsonb,
	        COALESCE($10::jsonb, '{}'::jsonb), $11, now(), now())
	ON CONFLICT (entity_key) DO UPDATE SET
	    visitor_id       = CASE WHEN leads.visitor_id = '' THEN excluded.visitor_id
	                            ELSE leads.visitor_id END,
	    button_counts    = CASE WHEN $12 = '' THEN leads.button_counts
	                            ELSE jsonb_set(leads.button_counts, ARRAY[$12::text],
	                                 to_jsonb(COALESCE((leads.button_counts->>$12)::int, 0) + 1)) END,
	    form_count       = leads.form_count + $4,
	    first_form_at    = COALESCE(leads.first_form_at, $5),
	    last_form_at     = COALESCE($6, leads.last_form_at),
	    last_form_fields = COALESCE($7::jsonb, leads.last_form_fields),
	    contacts         = leads.contacts || $8::jsonb,
	    button_events    = leads.button_events || $9::jsonb,
	    acquisition      = CASE WHEN $10 IS NULL THEN leads.acquisition
	                            ELSE $10::jsonb END,
	    crm_object_id    = CASE WHEN leads.crm_object_id = '' THEN excluded.crm_object_id
	                            ELSE leads.crm_object_id END,
	    updated_at       = now()
	RETURNING ` + leadColumns

// ApplyUpsert commits the bundle and returns the post-merge snapshot.
func (p *PostgresStore) ApplyUpsert(ctx context.Context, key string, up Upsert) (*models.Lead, error) {
	// Insert-side counts start at zero for every allow-listed button, with
	// this event's increment pre-applied.
	counts := models.ZeroButtonCounts()
	if up.ButtonInc != "" {
		counts[up.ButtonInc] = 1
	}
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return nil, err
	}

	var lastFieldsJSON *string
	if up.LastFormFields != nil {
		b, err := json.Marshal(up.LastFormFields)
		if err != nil {
			return nil, err
		}
		s := string(b)
		lastFieldsJSON = &s
	}

	var acquisitionJSON *string
	if up.Acquisition != nil {
		b, err := json.Marshal(up.Acquisition)
		if err != nil {
			return nil, err
		}
		s := string(b)
		acquisitionJSON = &s
	}

	contactsJSON, err := appendArrayJSON(up.Contact)
	if err != nil {
		return nil, err
	}
	eventsJSON, err := appendArrayJSON(up.ButtonEvent)
	if err != nil {
		return nil, err
	}

	row := p.pool.QueryRow(ctx, upsertSQL,
		key, up.VisitorID, string(countsJSON), up.FormInc,
		up.FirstFormAt, up.LastFormAt, lastFieldsJSON,
		contactsJSON, eventsJSON, acquisitionJSON,
		up.CRMObjectID, up.ButtonInc,
	)

	lead, err := scanLead(row)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert %s: %v", ErrUnavailable, key, err)
	}
	return lead, nil
}

// FindByKey returns the lead at key, or nil when absent.
func (p *PostgresStore) FindByKey(ctx context.Context, key string) (*models.Lead, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE entity_key = $1`, key)

	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: find %s: %v", ErrUnavailable, key, err)
	}
	return lead, nil
}

// appendArrayJSON renders a single append item as a one-element jsonb array,
// or an empty array when there is nothing to append.
func appendArrayJSON(item any) (string, error) {
	switch v := item.(type) {
	case *models.ContactRecord:
		if v == nil {
			return "[]", nil
		}
	case *models.ButtonEvent:
		if v == nil {
			return "[]", nil
		}
	}
	b, err := json.Marshal([]any{item})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func scanLead(row pgx.Row) (*models.Lead, error) {
	var (
		lead       models.Lead
		countsRaw  []byte
		fieldsRaw  []byte
		contactsRw []byte
		eventsRaw  []byte
		acqRaw     []byte
	)
	err := row.Scan(
		&lead.Key, &lead.VisitorID, &countsRaw, &lead.FormCount,
		&lead.FirstFormAt, &lead.LastFormAt, &fieldsRaw, &contactsRw,
		&eventsRaw, &acqRaw, &lead.CRMObjectID,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(countsRaw, &lead.ButtonCounts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fieldsRaw, &lead.LastFormFields); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(contactsRw, &lead.Contacts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(eventsRaw, &lead.ButtonEvents); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(acqRaw, &lead.Acquisition); err != nil {
		return nil, err
	}
	return &lead, nil
}
