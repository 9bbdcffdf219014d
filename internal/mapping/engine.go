package mapping

import (
	"sync"
	"sync/atomic"

	"github.com/ayusman/gestureflow/internal/recognition"
)

// Resolution is a gesture event bound to the entry it triggers.
type Resolution struct {
	ProfileID   string
	ProfileName string
	Entry       Entry
	Event       recognition.GestureEvent
}

// Resolve looks up ev in p. It is a pure function of (p, ev.GestureID): a
// missing or disabled mapping yields false.
func Resolve(ev recognition.GestureEvent, p *Profile) (Resolution, bool) {
	e, ok := p.Entry(ev.GestureID)
	if !ok || !e.Enabled || len(e.Action.Steps) == 0 {
		return Resolution{}, false
	}
	return Resolution{
		ProfileID:   p.ID,
		ProfileName: p.Name,
		Entry:       e,
		Event:       ev,
	}, true
}

// SwitchFunc is called after the active profile changes.
type SwitchFunc func(prev, next *Profile)

// Engine publishes the active profile as an atomic snapshot. Readers load
// the pointer once per resolution, so a concurrent Switch is seen either
// entirely or not at all.
type Engine struct {
	active atomic.Pointer[Profile]

	// switchMu is held across a swap and its callbacks, so listeners see
	// switches in the order they were applied.
	switchMu sync.Mutex

	// mu guards listeners.
	mu        sync.Mutex
	listeners []SwitchFunc
}

// NewEngine creates an Engine with p active. A nil p means an empty profile.
func NewEngine(p *Profile) *Engine {
	if p == nil {
		p = NewProfile("", "")
	}
	e := &Engine{}
	e.active.Store(p)
	return e
}

// Active returns the current snapshot.
func (e *Engine) Active() *Profile {
	return e.active.Load()
}

// Resolve resolves ev against the current snapshot.
func (e *Engine) Resolve(ev recognition.GestureEvent) (Resolution, bool) {
	return Resolve(ev, e.active.Load())
}

// Switch makes p active and returns the previous profile. Listeners run
// synchronously after the swap, in registration order. Concurrent switches
// are serialised, so each listener call's prev is the previous call's next.
// A listener must not call Switch.
func (e *Engine) Switch(p *Profile) *Profile {
	if p == nil {
		p = NewProfile("", "")
	}
	e.switchMu.Lock()
	defer e.switchMu.Unlock()

	old := e.active.Swap(p)
	e.mu.Lock()
	listeners := append([]SwitchFunc(nil), e.listeners...)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(old, p)
	}
	return old
}

// Subscribe registers fn to be called on every Switch.
func (e *Engine) Subscribe(fn SwitchFunc) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}
