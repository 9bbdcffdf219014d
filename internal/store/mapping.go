package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/gestureflow/internal/action"
	"github.com/ayusman/gestureflow/internal/mapping"
)

// Mapping is a stored gesture-to-action binding within a profile.
type Mapping struct {
	ID        string
	ProfileID string
	GestureID string
	Action    action.Definition
	Enabled   bool
	Priority  int
	UseCount  int
	LastUsed  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entry converts the row to a mapping.Entry.
func (m *Mapping) Entry() mapping.Entry {
	return mapping.Entry{
		ID:        m.ID,
		GestureID: m.GestureID,
		Action:    m.Action,
		Enabled:   m.Enabled,
		Priority:  m.Priority,
		UseCount:  m.UseCount,
		LastUsed:  m.LastUsed,
	}
}

// MappingFromEntry builds a row for profileID from a mapping.Entry.
func MappingFromEntry(profileID string, e mapping.Entry) *Mapping {
	return &Mapping{
		ID:        e.ID,
		ProfileID: profileID,
		GestureID: mapping.NormalizeGestureID(e.GestureID),
		Action:    e.Action,
		Enabled:   e.Enabled,
		Priority:  e.Priority,
	}
}

// MappingRepository provides operations for mappings.
type MappingRepository struct {
	db *sql.DB
}

// Mappings returns the mapping repository for this store.
func (s *Store) Mappings() *MappingRepository {
	return &MappingRepository{db: s.db}
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

const mappingColumns = `id, profile_id, gesture_id, action, enabled, priority, use_count, last_used, created_at, updated_at`

func scanMapping(row scanner) (*Mapping, error) {
	m := &Mapping{}
	var raw string
	var enabled int
	var lastUsed sql.NullTime
	err := row.Scan(&m.ID, &m.ProfileID, &m.GestureID, &raw, &enabled, &m.Priority,
		&m.UseCount, &lastUsed, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if err := json.Unmarshal([]byte(raw), &m.Action); err != nil {
		return nil, fmt.Errorf("decode action for %s/%s: %w", m.ProfileID, m.GestureID, err)
	}
	m.Enabled = enabled != 0
	if lastUsed.Valid {
		t := lastUsed.Time
		m.LastUsed = &t
	}
	return m, nil
}

// Upsert inserts m or replaces the existing mapping for the same
// (profile, gesture). The existing row keeps its ID and usage statistics;
// m.ID is updated to the stored ID.
func (r *MappingRepository) Upsert(m *Mapping) error {
	return upsertMapping(r.db, m)
}

func upsertMapping(db execer, m *Mapping) error {
	m.GestureID = mapping.NormalizeGestureID(m.GestureID)
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	raw, err := json.Marshal(m.Action)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}

	now := time.Now()
	err = db.QueryRow(
		`INSERT INTO mappings (id, profile_id, gesture_id, action, enabled, priority, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(profile_id, gesture_id) DO UPDATE SET
			action = excluded.action,
			enabled = excluded.enabled,
			priority = excluded.priority,
			updated_at = excluded.updated_at
		 RETURNING id`,
		m.ID, m.ProfileID, m.GestureID, string(raw), boolInt(m.Enabled), m.Priority, now, now,
	).Scan(&m.ID)
	if err != nil {
		return translate(err)
	}
	m.UpdatedAt = now
	return nil
}

// Get retrieves the mapping for a gesture in a profile.
func (r *MappingRepository) Get(profileID, gestureID string) (*Mapping, error) {
	return scanMapping(r.db.QueryRow(
		`SELECT `+mappingColumns+` FROM mappings WHERE profile_id = ? AND gesture_id = ?`,
		profileID, mapping.NormalizeGestureID(gestureID),
	))
}

// ListByProfile retrieves a profile's mappings ordered by priority, then gesture.
func (r *MappingRepository) ListByProfile(profileID string) ([]*Mapping, error) {
	rows, err := r.db.Query(
		`SELECT `+mappingColumns+` FROM mappings WHERE profile_id = ? ORDER BY priority DESC, gesture_id`,
		profileID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete removes the mapping for a gesture in a profile.
func (r *MappingRepository) Delete(profileID, gestureID string) error {
	result, err := r.db.Exec(
		`DELETE FROM mappings WHERE profile_id = ? AND gesture_id = ?`,
		profileID, mapping.NormalizeGestureID(gestureID),
	)
	if err != nil {
		return err
	}
	return affected(result)
}

// RecordUse increments the usage counter of a mapping.
func (r *MappingRepository) RecordUse(profileID, gestureID string, at time.Time) error {
	result, err := r.db.Exec(
		`UPDATE mappings SET use_count = use_count + 1, last_used = ? WHERE profile_id = ? AND gesture_id = ?`,
		at, profileID, mapping.NormalizeGestureID(gestureID),
	)
	if err != nil {
		return err
	}
	return affected(result)
}
