package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/gestureflow/internal/mapping"
	"github.com/ayusman/gestureflow/internal/store"
)

// DocumentVersion is the export format version.
const DocumentVersion = "1"

var (
	// ErrBadDocument is returned for an unreadable or unsupported export.
	ErrBadDocument = errors.New("invalid profile document")
	// ErrFingerprintMismatch is returned when a document's mappings do not
	// match its recorded fingerprint.
	ErrFingerprintMismatch = errors.New("profile fingerprint mismatch")
)

// Document is the YAML export form of a profile.
type Document struct {
	Version     string          `yaml:"version"`
	Exported    time.Time       `yaml:"exported"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Fingerprint string          `yaml:"fingerprint,omitempty"`
	Mappings    []mapping.Entry `yaml:"mappings"`
}

// Export renders a profile as a YAML document with its fingerprint.
func (s *Service) Export(id string) ([]byte, error) {
	p, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	fp, err := p.Fingerprint()
	if err != nil {
		return nil, err
	}

	doc := Document{
		Version:     DocumentVersion,
		Exported:    time.Now().UTC().Truncate(time.Second),
		Name:        p.Name,
		Description: p.Description,
		Fingerprint: fp,
	}
	for _, e := range p.Entries() {
		e.ID = ""
		doc.Mappings = append(doc.Mappings, e)
	}
	return yaml.Marshal(&doc)
}

// Import stores a YAML document as a new profile. A name already in use
// gets a numeric suffix. Every action is validated, and a recorded
// fingerprint must match the imported mappings.
func (s *Service) Import(data []byte) (*mapping.Profile, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDocument, err)
	}
	if doc.Version != DocumentVersion {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrBadDocument, doc.Version)
	}
	doc.Name = strings.TrimSpace(doc.Name)
	if doc.Name == "" {
		return nil, ErrInvalidName
	}

	for i := range doc.Mappings {
		doc.Mappings[i].ID = ""
		if s.validator == nil {
			continue
		}
		if err := s.validator.Validate(doc.Mappings[i].Action); err != nil {
			return nil, fmt.Errorf("mapping %q: %w", doc.Mappings[i].GestureID, err)
		}
	}

	p := mapping.NewProfile("", doc.Name, doc.Mappings...).WithInfo(doc.Name, doc.Description)
	if doc.Fingerprint != "" {
		fp, err := p.Fingerprint()
		if err != nil {
			return nil, err
		}
		if fp != doc.Fingerprint {
			return nil, ErrFingerprintMismatch
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.uniqueName(doc.Name)
	if err != nil {
		return nil, err
	}
	p = mapping.NewProfile(uuid.New().String(), name, p.Entries()...).WithInfo(name, doc.Description)
	if err := s.store.SaveProfile(p); err != nil {
		return nil, err
	}
	s.log.Infof("imported profile %q with %d mappings", name, p.Len())
	return s.store.LoadProfile(p.ID)
}

func (s *Service) uniqueName(name string) (string, error) {
	candidate := name
	for i := 1; ; i++ {
		_, err := s.store.Profiles().GetByName(candidate)
		if errors.Is(err, store.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s_%d", name, i)
	}
}
