// Package mapping resolves gesture events against the active profile.
package mapping

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ucarion/jcs"
	"golang.org/x/text/unicode/norm"

	"github.com/ayusman/gestureflow/internal/action"
)

// Entry binds one gesture to an action definition inside a profile.
type Entry struct {
	ID        string            `json:"id" yaml:"id,omitempty"`
	GestureID string            `json:"gesture_id" yaml:"gesture"`
	Action    action.Definition `json:"action" yaml:"action"`
	Enabled   bool              `json:"enabled" yaml:"enabled"`
	Priority  int               `json:"priority" yaml:"priority,omitempty"`
	UseCount  int               `json:"use_count" yaml:"-"`
	LastUsed  *time.Time        `json:"last_used,omitempty" yaml:"-"`
}

// Profile is an immutable, named mapping table. Modifications return a new
// Profile so a published snapshot never changes under a reader.
type Profile struct {
	ID          string
	Name        string
	Description string
	IsDefault   bool

	entries map[string]Entry
}

// NormalizeGestureID canonicalises a gesture identifier: NFKC, trimmed,
// lower-cased, with inner whitespace runs replaced by underscores.
func NormalizeGestureID(id string) string {
	s := norm.NFKC.String(id)
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "_")
}

// NewProfile builds a profile. Later entries for the same gesture replace
// earlier ones.
func NewProfile(id, name string, entries ...Entry) *Profile {
	p := &Profile{ID: id, Name: name, entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		e.GestureID = NormalizeGestureID(e.GestureID)
		e.Action = e.Action.Clone()
		p.entries[e.GestureID] = e
	}
	return p
}

func (p *Profile) clone() *Profile {
	c := *p
	c.entries = make(map[string]Entry, len(p.entries))
	for k, v := range p.entries {
		c.entries[k] = v
	}
	return &c
}

// WithInfo returns a copy with name and description replaced.
func (p *Profile) WithInfo(name, description string) *Profile {
	c := p.clone()
	c.Name = name
	c.Description = description
	return c
}

// WithEntry returns a copy in which e is the mapping for its gesture,
// replacing any existing one.
func (p *Profile) WithEntry(e Entry) *Profile {
	c := p.clone()
	e.GestureID = NormalizeGestureID(e.GestureID)
	e.Action = e.Action.Clone()
	c.entries[e.GestureID] = e
	return c
}

// WithoutEntry returns a copy without a mapping for gestureID.
func (p *Profile) WithoutEntry(gestureID string) *Profile {
	c := p.clone()
	delete(c.entries, NormalizeGestureID(gestureID))
	return c
}

// Entry looks up the mapping for gestureID, enabled or not.
func (p *Profile) Entry(gestureID string) (Entry, bool) {
	if p == nil {
		return Entry{}, false
	}
	e, ok := p.entries[NormalizeGestureID(gestureID)]
	if !ok {
		return Entry{}, false
	}
	e.Action = e.Action.Clone()
	return e, true
}

// Has reports whether gestureID has an enabled mapping.
func (p *Profile) Has(gestureID string) bool {
	e, ok := p.Entry(gestureID)
	return ok && e.Enabled
}

// Len returns the number of mappings.
func (p *Profile) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Entries returns the mappings ordered by priority (highest first), then gesture.
func (p *Profile) Entries() []Entry {
	if p == nil {
		return nil
	}
	out := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		e.Action = e.Action.Clone()
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].GestureID < out[j].GestureID
	})
	return out
}

// Gestures returns the mapped gesture IDs in sorted order.
func (p *Profile) Gestures() []string {
	if p == nil {
		return nil
	}
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type fingerprintDoc struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Mappings    []fingerprintE `json:"mappings"`
}

type fingerprintE struct {
	Gesture  string            `json:"gesture"`
	Action   action.Definition `json:"action"`
	Enabled  bool              `json:"enabled"`
	Priority int               `json:"priority"`
}

// Fingerprint returns a hex SHA-256 of the profile's canonical JSON form.
// IDs and usage statistics are excluded, so an exported and re-imported
// profile keeps its fingerprint.
func (p *Profile) Fingerprint() (string, error) {
	doc := fingerprintDoc{Name: p.Name, Description: p.Description, Mappings: []fingerprintE{}}
	for _, id := range p.Gestures() {
		e := p.entries[id]
		doc.Mappings = append(doc.Mappings, fingerprintE{
			Gesture:  e.GestureID,
			Action:   e.Action,
			Enabled:  e.Enabled,
			Priority: e.Priority,
		})
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal profile: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return "", fmt.Errorf("normalize profile: %w", err)
	}
	canonical, err := jcs.Format(normalized)
	if err != nil {
		return "", fmt.Errorf("canonicalize profile: %w", err)
	}

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}
