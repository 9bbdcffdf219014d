package store

import (
	"database/sql"
	"time"
)

// Profile is a stored profile row. Its mappings live in the mappings table.
type Profile struct {
	ID          string
	Name        string
	Description string
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProfileRepository provides CRUD operations for profiles.
type ProfileRepository struct {
	db *sql.DB
}

// Profiles returns the profile repository for this store.
func (s *Store) Profiles() *ProfileRepository {
	return &ProfileRepository{db: s.db}
}

const profileColumns = `id, name, description, is_default, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*Profile, error) {
	p := &Profile{}
	var isDefault int
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &isDefault, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	p.IsDefault = isDefault != 0
	return p, nil
}

// Create inserts a new profile. A duplicate name returns ErrConflict.
func (r *ProfileRepository) Create(p *Profile) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, boolInt(p.IsDefault), p.CreatedAt, p.UpdatedAt,
	)
	return translate(err)
}

// GetByID retrieves a profile by its ID.
func (r *ProfileRepository) GetByID(id string) (*Profile, error) {
	return scanProfile(r.db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
}

// GetByName retrieves a profile by its name.
func (r *ProfileRepository) GetByName(name string) (*Profile, error) {
	return scanProfile(r.db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE name = ?`, name))
}

// GetDefault retrieves the default profile.
func (r *ProfileRepository) GetDefault() (*Profile, error) {
	return scanProfile(r.db.QueryRow(`SELECT ` + profileColumns + ` FROM profiles WHERE is_default = 1 LIMIT 1`))
}

// List retrieves all profiles ordered by name.
func (r *ProfileRepository) List() ([]*Profile, error) {
	rows, err := r.db.Query(`SELECT ` + profileColumns + ` FROM profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Update changes a profile's name and description.
func (r *ProfileRepository) Update(p *Profile) error {
	p.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE profiles SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Description, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return translate(err)
	}
	return affected(result)
}

// SetDefault makes id the only default profile.
func (r *ProfileRepository) SetDefault(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(`UPDATE profiles SET is_default = 1, updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return err
	}
	if err := affected(result); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE profiles SET is_default = 0 WHERE id != ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a profile and, through the foreign key, its mappings.
func (r *ProfileRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affected(result)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
