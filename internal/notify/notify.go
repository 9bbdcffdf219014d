// Package notify delivers fire-and-forget notifications about recognitions
// and action outcomes.
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/gestureflow/internal/logging"
)

// Kind identifies what happened.
type Kind string

const (
	KindRecognized      Kind = "gesture_recognized"
	KindStarted         Kind = "action_started"
	KindExecuted        Kind = "action_executed"
	KindFailed          Kind = "action_failed"
	KindCancelled       Kind = "action_cancelled"
	KindProfileSwitched Kind = "profile_switched"
	KindEmergencyStop   Kind = "emergency_stop"
	KindResumed         Kind = "resumed"
)

// Event is a notification payload.
type Event struct {
	Kind      Kind      `json:"kind"`
	GestureID string    `json:"gesture_id,omitempty"`
	PlanID    string    `json:"plan_id,omitempty"`
	ProfileID string    `json:"profile_id,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Err       string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// Notifier receives events. Implementations must not block the caller for long.
type Notifier interface {
	Notify(Event)
}

// Func adapts a function to Notifier.
type Func func(Event)

// Notify calls f(ev).
func (f Func) Notify(ev Event) { f(ev) }

// Nop discards events.
var Nop Notifier = Func(func(Event) {})

// Multi fans an event out to several notifiers in order.
type Multi []Notifier

// Notify forwards ev to every notifier.
func (m Multi) Notify(ev Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ev)
		}
	}
}

// Async decouples a slow notifier from the caller through a bounded buffer.
// Events arriving while the buffer is full are dropped.
type Async struct {
	next    Notifier
	ch      chan Event
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	log     *logging.Logger
}

// NewAsync starts a delivery goroutine feeding next.
func NewAsync(next Notifier, buffer int, log *logging.Logger) *Async {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = logging.Discard()
	}
	a := &Async{
		next: next,
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
		log:  log,
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for ev := range a.ch {
		a.next.Notify(ev)
	}
}

// Notify enqueues ev without blocking.
func (a *Async) Notify(ev Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- ev:
	default:
		a.dropped.Add(1)
		a.log.Warnf("notification buffer full, dropped %s", ev.Kind)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits until queued ones are delivered.
func (a *Async) Close() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()
	})
	<-a.done
}

// Log writes events to a logger.
type Log struct {
	Logger *logging.Logger
}

// Notify logs ev; failures at warn level, everything else at info.
func (l Log) Notify(ev Event) {
	switch ev.Kind {
	case KindFailed:
		l.Logger.Warnf("%s %s: %s (%s)", ev.Kind, ev.GestureID, ev.Summary, ev.Err)
	case KindRecognized:
		l.Logger.Debugf("%s %s", ev.Kind, ev.GestureID)
	default:
		l.Logger.Infof("%s %s %s", ev.Kind, ev.GestureID, ev.Summary)
	}
}

// Filter forwards only events of the listed kinds.
func Filter(next Notifier, kinds ...Kind) Notifier {
	allowed := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	return Func(func(ev Event) {
		if allowed[ev.Kind] {
			next.Notify(ev)
		}
	})
}
