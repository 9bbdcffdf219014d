package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SampleRepository stores recorded feature vectors for gestures.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Add appends vectors to a gesture's samples in one transaction and returns
// the new total. The gesture's sample count is updated.
func (r *SampleRepository) Add(gestureID string, vectors [][]float64) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(sample_index) + 1, 0) FROM gesture_samples WHERE gesture_id = ?`,
		gestureID,
	).Scan(&next)
	if err != nil {
		return 0, err
	}

	total := next + len(vectors)
	result, err := tx.Exec(`UPDATE gestures SET samples = ?, updated_at = ? WHERE id = ?`, total, time.Now(), gestureID)
	if err != nil {
		return 0, err
	}
	if err := affected(result); err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`INSERT INTO gesture_samples (gesture_id, sample_index, data, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now()
	for i, v := range vectors {
		raw, err := json.Marshal(v)
		if err != nil {
			return 0, fmt.Errorf("encode sample %d: %w", i, err)
		}
		if _, err := stmt.Exec(gestureID, next+i, string(raw), now); err != nil {
			return 0, translate(err)
		}
	}

	return total, tx.Commit()
}

// Vectors returns all samples for a gesture in recording order.
func (r *SampleRepository) Vectors(gestureID string) ([][]float64, error) {
	rows, err := r.db.Query(
		`SELECT data FROM gesture_samples WHERE gesture_id = ? ORDER BY sample_index`,
		gestureID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]float64
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var v []float64
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode sample: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteByGestureID removes all samples for a gesture.
func (r *SampleRepository) DeleteByGestureID(gestureID string) error {
	_, err := r.db.Exec(`DELETE FROM gesture_samples WHERE gesture_id = ?`, gestureID)
	return err
}
