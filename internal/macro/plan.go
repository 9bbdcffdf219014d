package macro

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/gestureflow/internal/action"
	"github.com/ayusman/gestureflow/internal/mapping"
	"github.com/ayusman/gestureflow/internal/recognition"
)

// State is the lifecycle stage of a plan.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Plan is one execution of an action definition triggered by a gesture
// event. It is created by Scheduler.Submit and runs in its own goroutine.
type Plan struct {
	ID         string
	GestureID  string
	ProfileID  string
	Definition action.Definition
	Event      recognition.GestureEvent
	Created    time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	// turn is closed when the plan may start executing. Nil means immediately.
	turn <-chan struct{}
	// holdTurn makes a plan cancelled while waiting still wait for its turn
	// before finishing, so restart chains end in order.
	holdTurn bool

	mu       sync.Mutex
	state    State
	step     int
	loop     int
	err      error
	started  time.Time
	finished time.Time
}

func newPlan(res mapping.Resolution) *Plan {
	ctx, cancel := context.WithCancel(action.WithGesture(context.Background(), res.Entry.GestureID))
	return &Plan{
		ID:         uuid.New().String(),
		GestureID:  res.Entry.GestureID,
		ProfileID:  res.ProfileID,
		Definition: res.Entry.Action.Clone(),
		Event:      res.Event,
		Created:    time.Now(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Cancel stops the plan before its next step. A step already handed to the
// executor is allowed to finish.
func (p *Plan) Cancel() {
	p.cancel()
}

// Done is closed when the plan reaches a terminal state.
func (p *Plan) Done() <-chan struct{} {
	return p.done
}

// State returns the current state.
func (p *Plan) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Progress returns the zero-based step and loop being executed.
func (p *Plan) Progress() (step, loop int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.step, p.loop
}

// Err returns the failure that ended the plan, or nil.
func (p *Plan) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Wait blocks until the plan finishes or ctx is done.
func (p *Plan) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Info is a point-in-time view of a plan for APIs and the tray.
type Info struct {
	ID        string    `json:"id"`
	GestureID string    `json:"gesture_id"`
	ProfileID string    `json:"profile_id"`
	Summary   string    `json:"summary"`
	State     string    `json:"state"`
	Step      int       `json:"step"`
	Loop      int       `json:"loop"`
	Created   time.Time `json:"created"`
	Started   time.Time `json:"started,omitempty"`
	Finished  time.Time `json:"finished,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Info returns a snapshot of the plan.
func (p *Plan) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := Info{
		ID:        p.ID,
		GestureID: p.GestureID,
		ProfileID: p.ProfileID,
		Summary:   p.Definition.Summary(),
		State:     p.state.String(),
		Step:      p.step,
		Loop:      p.loop,
		Created:   p.Created,
		Started:   p.started,
		Finished:  p.finished,
	}
	if p.err != nil {
		info.Error = p.err.Error()
	}
	return info
}

func (p *Plan) setRunning() {
	p.mu.Lock()
	p.state = StateRunning
	p.started = time.Now()
	p.mu.Unlock()
}

func (p *Plan) setProgress(step, loop int) {
	p.mu.Lock()
	p.step = step
	p.loop = loop
	p.mu.Unlock()
}

func (p *Plan) setFinished(state State, err error) {
	p.mu.Lock()
	p.state = state
	p.err = err
	p.finished = time.Now()
	p.mu.Unlock()
}
