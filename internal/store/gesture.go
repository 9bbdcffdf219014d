package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ayusman/gestureflow/internal/classifier"
)

// Gesture is a trained custom gesture. Name is its normalised gesture ID;
// Template is nil until enough samples have been recorded.
type Gesture struct {
	ID          string
	Name        string
	Description string
	Template    *classifier.Template
	Samples     int
	Accuracy    float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GestureRepository provides CRUD operations for gestures.
type GestureRepository struct {
	db *sql.DB
}

// Gestures returns the gesture repository for this store.
func (s *Store) Gestures() *GestureRepository {
	return &GestureRepository{db: s.db}
}

const gestureColumns = `id, name, description, template, samples, accuracy, created_at, updated_at`

func scanGesture(row scanner) (*Gesture, error) {
	g := &Gesture{}
	var tmpl sql.NullString
	err := row.Scan(&g.ID, &g.Name, &g.Description, &tmpl, &g.Samples, &g.Accuracy, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if tmpl.Valid && tmpl.String != "" {
		g.Template = &classifier.Template{}
		if err := json.Unmarshal([]byte(tmpl.String), g.Template); err != nil {
			return nil, fmt.Errorf("decode template for %s: %w", g.Name, err)
		}
	}
	return g, nil
}

// Create inserts a new gesture. A duplicate name returns ErrConflict.
func (r *GestureRepository) Create(g *Gesture) error {
	now := time.Now()
	g.CreatedAt = now
	g.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO gestures (id, name, description, samples, accuracy, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Description, g.Samples, g.Accuracy, g.CreatedAt, g.UpdatedAt,
	)
	return translate(err)
}

// GetByID retrieves a gesture by its ID.
func (r *GestureRepository) GetByID(id string) (*Gesture, error) {
	return scanGesture(r.db.QueryRow(`SELECT `+gestureColumns+` FROM gestures WHERE id = ?`, id))
}

// GetByName retrieves a gesture by its name.
func (r *GestureRepository) GetByName(name string) (*Gesture, error) {
	return scanGesture(r.db.QueryRow(`SELECT `+gestureColumns+` FROM gestures WHERE name = ?`, name))
}

// List retrieves all gestures ordered by name.
func (r *GestureRepository) List() ([]*Gesture, error) {
	rows, err := r.db.Query(`SELECT ` + gestureColumns + ` FROM gestures ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gestures []*Gesture
	for rows.Next() {
		g, err := scanGesture(rows)
		if err != nil {
			return nil, err
		}
		gestures = append(gestures, g)
	}
	return gestures, rows.Err()
}

// SetTemplate stores a trained template and its statistics.
func (r *GestureRepository) SetTemplate(id string, t *classifier.Template) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	result, err := r.db.Exec(
		`UPDATE gestures SET template = ?, samples = ?, accuracy = ?, updated_at = ? WHERE id = ?`,
		string(raw), t.Samples, t.Accuracy, time.Now(), id,
	)
	if err != nil {
		return err
	}
	return affected(result)
}

// Delete removes a gesture and, through the foreign key, its samples.
func (r *GestureRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM gestures WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affected(result)
}
