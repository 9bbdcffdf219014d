// Package profile owns the set of stored profiles and publishes the active
// one to the mapping engine. It is the only writer of the engine snapshot.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/gestureflow/internal/action"
	"github.com/ayusman/gestureflow/internal/logging"
	"github.com/ayusman/gestureflow/internal/mapping"
	"github.com/ayusman/gestureflow/internal/store"
)

var (
	// ErrInvalidName is returned for an empty profile name.
	ErrInvalidName = errors.New("profile name is required")
	// ErrProfileActive is returned when deleting the active profile.
	ErrProfileActive = errors.New("profile is active")
	// ErrProfileDefault is returned when deleting the default profile.
	ErrProfileDefault = errors.New("profile is the default")
)

// Config holds profile service settings.
type Config struct {
	// DefaultName names the profile created on first start.
	DefaultName string `yaml:"default_name"`
	// WatchDir is scanned for YAML profiles to import. Empty disables it.
	WatchDir string `yaml:"watch_dir"`
	// Settle is how long a dropped file must be quiet before import.
	Settle time.Duration `yaml:"settle"`
}

// DefaultConfig returns the default profile settings.
func DefaultConfig() Config {
	return Config{DefaultName: "Default", Settle: 500 * time.Millisecond}
}

// Summary describes a stored profile for listings.
type Summary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsDefault   bool   `json:"is_default"`
	Active      bool   `json:"active"`
	Mappings    int    `json:"mappings"`
}

// Service manages profiles in the store and keeps the engine's active
// snapshot current. Writes are serialised; reads of the active profile go
// straight to the engine.
type Service struct {
	cfg       Config
	store     *store.Store
	engine    *mapping.Engine
	validator *action.Validator
	log       *logging.Logger

	mu sync.Mutex
}

// NewService creates a profile service. A nil validator accepts every action.
func NewService(cfg Config, st *store.Store, engine *mapping.Engine, validator *action.Validator, log *logging.Logger) *Service {
	if cfg.DefaultName == "" {
		cfg.DefaultName = DefaultConfig().DefaultName
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Service{
		cfg:       cfg,
		store:     st,
		engine:    engine,
		validator: validator,
		log:       log.With("profile"),
	}
}

// Load makes sure a default profile exists and publishes the profile that
// was active last time, falling back to the default.
func (s *Service) Load() (*mapping.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, err := s.store.Profiles().GetDefault()
	if errors.Is(err, store.ErrNotFound) {
		def = &store.Profile{
			ID:          uuid.New().String(),
			Name:        s.cfg.DefaultName,
			Description: "Default GestureFlow profile",
			IsDefault:   true,
		}
		if err := s.store.Profiles().Create(def); err != nil {
			return nil, fmt.Errorf("create default profile: %w", err)
		}
		s.log.Infof("created default profile %q", def.Name)
	} else if err != nil {
		return nil, fmt.Errorf("load default profile: %w", err)
	}

	id := def.ID
	if last, err := s.store.Settings().Get(store.KeyActiveProfile); err == nil && last != "" {
		id = last
	}

	p, err := s.store.LoadProfile(id)
	if errors.Is(err, store.ErrNotFound) && id != def.ID {
		s.log.Warnf("last active profile %s is gone, using default", id)
		p, err = s.store.LoadProfile(def.ID)
	}
	if err != nil {
		return nil, err
	}
	s.publish(p)
	return p, nil
}

// Active returns the published profile snapshot.
func (s *Service) Active() *mapping.Profile {
	return s.engine.Active()
}

// Subscribe registers fn for profile switches.
func (s *Service) Subscribe(fn mapping.SwitchFunc) {
	s.engine.Subscribe(fn)
}

// List returns every stored profile with its mapping count.
func (s *Service) List() ([]Summary, error) {
	rows, err := s.store.Profiles().List()
	if err != nil {
		return nil, err
	}
	activeID := s.activeID()

	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		mappings, err := s.store.Mappings().ListByProfile(r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			IsDefault:   r.IsDefault,
			Active:      r.ID == activeID,
			Mappings:    len(mappings),
		})
	}
	return out, nil
}

// Get returns a profile by ID. The active profile is served from the
// published snapshot.
func (s *Service) Get(id string) (*mapping.Profile, error) {
	if p := s.engine.Active(); p != nil && p.ID == id {
		return p, nil
	}
	return s.store.LoadProfile(id)
}

// Create stores a new, empty profile.
func (s *Service) Create(name, description string) (*mapping.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := &store.Profile{ID: uuid.New().String(), Name: name, Description: description}
	if err := s.store.Profiles().Create(row); err != nil {
		return nil, err
	}
	s.log.Infof("created profile %q", name)
	return s.store.LoadProfile(row.ID)
}

// Update renames a profile and replaces its description.
func (s *Service) Update(id, name, description string) (*mapping.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Profiles().Update(&store.Profile{ID: id, Name: name, Description: description}); err != nil {
		return nil, err
	}
	return s.reload(id)
}

// Delete removes a profile. The active and the default profile cannot be
// deleted.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.store.Profiles().GetByID(id)
	if err != nil {
		return err
	}
	if row.IsDefault {
		return ErrProfileDefault
	}
	if id == s.activeID() {
		return ErrProfileActive
	}
	if err := s.store.Profiles().Delete(id); err != nil {
		return err
	}
	s.log.Infof("deleted profile %q", row.Name)
	return nil
}

// SetDefault marks id as the default profile.
func (s *Service) SetDefault(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Profiles().SetDefault(id); err != nil {
		return err
	}
	_, err := s.reload(id)
	return err
}

// Activate loads a profile and publishes it as the active snapshot. The
// switch is a single atomic swap; resolutions in flight finish against the
// previous table.
func (s *Service) Activate(id string) (*mapping.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.LoadProfile(id)
	if err != nil {
		return nil, err
	}
	s.publish(p)
	if err := s.store.Settings().Set(store.KeyActiveProfile, id); err != nil {
		s.log.Warnf("remember active profile: %v", err)
	}
	s.log.Infof("activated profile %q", p.Name)
	return p, nil
}

// SetMapping validates e and stores it as the mapping for its gesture in
// the profile, replacing any previous mapping. Editing the active profile
// publishes a new snapshot.
func (s *Service) SetMapping(profileID string, e mapping.Entry) (mapping.Entry, error) {
	e.GestureID = mapping.NormalizeGestureID(e.GestureID)
	if e.GestureID == "" {
		return mapping.Entry{}, fmt.Errorf("%w: gesture is required", action.ErrInvalid)
	}
	if s.validator != nil {
		if err := s.validator.Validate(e.Action); err != nil {
			return mapping.Entry{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := store.MappingFromEntry(profileID, e)
	if err := s.store.Mappings().Upsert(m); err != nil {
		return mapping.Entry{}, err
	}
	if _, err := s.reload(profileID); err != nil {
		return mapping.Entry{}, err
	}
	stored, err := s.store.Mappings().Get(profileID, e.GestureID)
	if err != nil {
		return mapping.Entry{}, err
	}
	return stored.Entry(), nil
}

// RemoveMapping deletes the mapping for gestureID from the profile.
func (s *Service) RemoveMapping(profileID, gestureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Mappings().Delete(profileID, gestureID); err != nil {
		return err
	}
	_, err := s.reload(profileID)
	return err
}

// RecordUse bumps the usage statistics of a mapping. The published
// snapshot is not refreshed; statistics are read from the store.
func (s *Service) RecordUse(profileID, gestureID string, at time.Time) {
	if err := s.store.Mappings().RecordUse(profileID, gestureID, at); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.Warnf("record use of %s: %v", gestureID, err)
	}
}

// Stats summarises a profile's mappings. It reads from the store so use
// counts are current.
func (s *Service) Stats(id string) (mapping.Stats, error) {
	p, err := s.store.LoadProfile(id)
	if err != nil {
		return mapping.Stats{}, err
	}
	return p.Stats(), nil
}

// reload re-reads id and republishes it when it is the active profile.
// The caller holds s.mu.
func (s *Service) reload(id string) (*mapping.Profile, error) {
	p, err := s.store.LoadProfile(id)
	if err != nil {
		return nil, err
	}
	if id == s.activeID() {
		s.publish(p)
	}
	return p, nil
}

func (s *Service) publish(p *mapping.Profile) {
	s.engine.Switch(p)
}

func (s *Service) activeID() string {
	if p := s.engine.Active(); p != nil {
		return p.ID
	}
	return ""
}
