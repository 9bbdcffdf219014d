package store

import (
	"fmt"
	"time"

	"github.com/ayusman/gestureflow/internal/mapping"
)

// LoadProfile assembles the immutable mapping.Profile for id from the
// profile row and its mappings.
func (s *Store) LoadProfile(id string) (*mapping.Profile, error) {
	row, err := s.Profiles().GetByID(id)
	if err != nil {
		return nil, err
	}
	rows, err := s.Mappings().ListByProfile(id)
	if err != nil {
		return nil, fmt.Errorf("load mappings for %s: %w", id, err)
	}

	entries := make([]mapping.Entry, 0, len(rows))
	for _, m := range rows {
		entries = append(entries, m.Entry())
	}
	p := mapping.NewProfile(row.ID, row.Name, entries...).WithInfo(row.Name, row.Description)
	p.IsDefault = row.IsDefault
	return p, nil
}

// SaveProfile writes p and replaces its full mapping table in one
// transaction. The profile row is created if it does not exist.
func (s *Store) SaveProfile(p *mapping.Profile) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.Exec(
		`INSERT INTO profiles (id, name, description, is_default, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Description, boolInt(p.IsDefault), now, now,
	)
	if err != nil {
		return translate(err)
	}

	keep := make(map[string]bool, p.Len())
	for _, e := range p.Entries() {
		m := MappingFromEntry(p.ID, e)
		if err := upsertMapping(tx, m); err != nil {
			return fmt.Errorf("save mapping %s: %w", e.GestureID, err)
		}
		keep[m.GestureID] = true
	}

	rows, err := tx.Query(`SELECT gesture_id FROM mappings WHERE profile_id = ?`, p.ID)
	if err != nil {
		return err
	}
	var stale []string
	for rows.Next() {
		var gid string
		if err := rows.Scan(&gid); err != nil {
			rows.Close()
			return err
		}
		if !keep[gid] {
			stale = append(stale, gid)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, gid := range stale {
		if _, err := tx.Exec(`DELETE FROM mappings WHERE profile_id = ? AND gesture_id = ?`, p.ID, gid); err != nil {
			return err
		}
	}

	return tx.Commit()
}
