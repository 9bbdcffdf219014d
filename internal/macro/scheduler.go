// Package macro runs action definitions as plans: ordered steps with
// delays, waits and loops, one plan per gesture at a time.
package macro

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ayusman/gestureflow/internal/action"
	"github.com/ayusman/gestureflow/internal/logging"
	"github.com/ayusman/gestureflow/internal/mapping"
	"github.com/ayusman/gestureflow/internal/notify"
)

var (
	// ErrStepFailed wraps an error returned by the executor.
	ErrStepFailed = errors.New("step failed")
	// ErrStepTimeout is returned when the executor does not return within the step timeout.
	ErrStepTimeout = errors.New("step timed out")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid scheduler config")
)

// Executor performs one primitive action.
type Executor interface {
	Execute(ctx context.Context, step action.Step) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, step action.Step) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, step action.Step) error {
	return f(ctx, step)
}

// Decision is the outcome of Submit.
type Decision int

const (
	Started Decision = iota
	Ignored
	Restarted
	Queued
	Rejected
)

func (d Decision) String() string {
	switch d {
	case Started:
		return "started"
	case Ignored:
		return "ignored"
	case Restarted:
		return "restarted"
	case Queued:
		return "queued"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// FailurePolicy decides what a plan does after a failed step.
type FailurePolicy string

const (
	FailAbort FailurePolicy = "abort"
	FailSkip  FailurePolicy = "skip"
)

// DuplicatePolicy decides what happens when a gesture fires while its
// previous plan is still running.
type DuplicatePolicy string

const (
	DuplicateIgnore  DuplicatePolicy = "ignore"
	DuplicateRestart DuplicatePolicy = "restart"
	DuplicateQueue   DuplicatePolicy = "queue"
)

// SwitchPolicy decides what happens to running plans when the active profile changes.
type SwitchPolicy string

const (
	SwitchKeep          SwitchPolicy = "keep"
	SwitchCancelRemoved SwitchPolicy = "cancel_removed"
	SwitchCancelAll     SwitchPolicy = "cancel_all"
)

// Config holds scheduler settings.
type Config struct {
	StepTimeout     time.Duration
	FailurePolicy   FailurePolicy
	DuplicatePolicy DuplicatePolicy
	QueueLimit      int
	SwitchPolicy    SwitchPolicy
	// HistorySize bounds the finished-plan history.
	HistorySize int
}

// DefaultConfig returns the default scheduler settings.
func DefaultConfig() Config {
	return Config{
		StepTimeout:     5 * time.Second,
		FailurePolicy:   FailAbort,
		DuplicatePolicy: DuplicateIgnore,
		QueueLimit:      4,
		SwitchPolicy:    SwitchKeep,
		HistorySize:     DefaultHistorySize,
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.StepTimeout <= 0 {
		return fmt.Errorf("%w: step timeout must be positive", ErrInvalidConfig)
	}
	switch c.FailurePolicy {
	case FailAbort, FailSkip:
	default:
		return fmt.Errorf("%w: failure policy %q", ErrInvalidConfig, c.FailurePolicy)
	}
	switch c.DuplicatePolicy {
	case DuplicateIgnore, DuplicateRestart:
	case DuplicateQueue:
		if c.QueueLimit < 1 {
			return fmt.Errorf("%w: queue limit must be at least 1", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: duplicate policy %q", ErrInvalidConfig, c.DuplicatePolicy)
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("%w: history size must not be negative", ErrInvalidConfig)
	}
	switch c.SwitchPolicy {
	case SwitchKeep, SwitchCancelRemoved, SwitchCancelAll:
	default:
		return fmt.Errorf("%w: switch policy %q", ErrInvalidConfig, c.SwitchPolicy)
	}
	return nil
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithNotifier sets where plan outcomes are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// WithValidator rejects definitions the validator refuses.
func WithValidator(v *action.Validator) Option {
	return func(s *Scheduler) { s.validator = v }
}

// WithStartHook registers fn to run when a plan starts executing.
func WithStartHook(fn func(*Plan)) Option {
	return func(s *Scheduler) { s.onStart = fn }
}

// Scheduler executes plans. Each plan runs in its own goroutine; steps
// within a plan are strictly sequential.
type Scheduler struct {
	cfg       Config
	exec      Executor
	log       *logging.Logger
	notifier  notify.Notifier
	validator *action.Validator
	onStart   func(*Plan)
	history   *History

	mu sync.Mutex
	// active holds the plan that owns each gesture, running or waiting for
	// its predecessor to finish.
	active map[string]*Plan
	queued map[string][]*queuedPlan
	paused bool
	closed bool
	wg     sync.WaitGroup
}

type queuedPlan struct {
	plan *Plan
	turn chan struct{}
}

// New creates a Scheduler.
func New(cfg Config, exec Executor, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, errors.New("scheduler needs an executor")
	}
	s := &Scheduler{
		cfg:      cfg,
		exec:     exec,
		log:      logging.Discard(),
		notifier: notify.Nop,
		active:   make(map[string]*Plan),
		queued:   make(map[string][]*queuedPlan),
		history:  NewHistory(cfg.HistorySize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the scheduler settings.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Submit creates a plan for res and starts it according to the duplicate
// policy. It never waits for execution. The returned plan is nil when the
// decision is Ignored or Rejected.
func (s *Scheduler) Submit(res mapping.Resolution) (*Plan, Decision) {
	if s.validator != nil {
		if err := s.validator.Validate(res.Entry.Action); err != nil {
			s.log.Warnf("rejecting %s: %v", res.Entry.GestureID, err)
			s.notify(notify.Event{Kind: notify.KindFailed, GestureID: res.Entry.GestureID, ProfileID: res.ProfileID, Summary: res.Entry.Action.Summary(), Outcome: "rejected", Err: err.Error()})
			return nil, Rejected
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused || s.closed {
		s.log.Debugf("rejecting %s: scheduler paused", res.Entry.GestureID)
		return nil, Rejected
	}

	gesture := res.Entry.GestureID
	cur := s.active[gesture]
	if cur == nil {
		p := newPlan(res)
		s.active[gesture] = p
		s.launch(p)
		return p, Started
	}

	switch s.cfg.DuplicatePolicy {
	case DuplicateRestart:
		p := newPlan(res)
		p.turn = cur.done
		p.holdTurn = true
		cur.Cancel()
		s.active[gesture] = p
		s.launch(p)
		s.log.Debugf("restarting %s: plan %s replaces %s", gesture, p.ID, cur.ID)
		return p, Restarted
	case DuplicateQueue:
		if len(s.queued[gesture]) >= s.cfg.QueueLimit {
			s.log.Warnf("queue for %s is full, dropping event", gesture)
			return nil, Rejected
		}
		p := newPlan(res)
		turn := make(chan struct{})
		p.turn = turn
		s.queued[gesture] = append(s.queued[gesture], &queuedPlan{plan: p, turn: turn})
		s.launch(p)
		return p, Queued
	default:
		s.log.Debugf("ignoring %s: plan %s still running", gesture, cur.ID)
		return nil, Ignored
	}
}

// launch starts p's goroutine. Called with s.mu held.
func (s *Scheduler) launch(p *Plan) {
	s.wg.Add(1)
	go s.run(p)
}

func (s *Scheduler) run(p *Plan) {
	defer s.wg.Done()

	if p.turn != nil {
		select {
		case <-p.turn:
		case <-p.ctx.Done():
		}
	}
	if p.ctx.Err() != nil {
		if p.holdTurn {
			<-p.turn
		}
		s.finish(p, StateCancelled, nil)
		return
	}

	p.setRunning()
	if s.onStart != nil {
		s.onStart(p)
	}
	s.notify(notify.Event{Kind: notify.KindStarted, GestureID: p.GestureID, PlanID: p.ID, ProfileID: p.ProfileID, Summary: p.Definition.Summary()})

	def := p.Definition
	loops := def.Loops()
	for loop := 0; def.Forever() || loop < loops; loop++ {
		for i, step := range def.Steps {
			p.setProgress(i, loop)

			if err := sleep(p.ctx, step.DelayBefore()); err != nil {
				s.finish(p, StateCancelled, nil)
				return
			}
			if step.Type == action.KindWait {
				if err := sleep(p.ctx, step.WaitDuration()); err != nil {
					s.finish(p, StateCancelled, nil)
					return
				}
				continue
			}
			if p.ctx.Err() != nil {
				s.finish(p, StateCancelled, nil)
				return
			}

			if err := s.execute(p, step); err != nil {
				if s.cfg.FailurePolicy == FailAbort {
					s.finish(p, StateFailed, err)
					return
				}
				s.log.Warnf("plan %s (%s): %v, continuing", p.ID, p.GestureID, err)
				s.notify(notify.Event{Kind: notify.KindFailed, GestureID: p.GestureID, PlanID: p.ID, ProfileID: p.ProfileID, Summary: step.String(), Outcome: "skipped", Err: err.Error()})
			}
		}
	}
	s.finish(p, StateCompleted, nil)
}

// execute runs one step with the step timeout. The executor context is
// detached from plan cancellation so an issued call is never retracted.
func (s *Scheduler) execute(p *Plan, step action.Step) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), s.cfg.StepTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.exec.Execute(ctx, step)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrStepFailed, step, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s after %s", ErrStepTimeout, step, s.cfg.StepTimeout)
	}
}

// finish records the terminal state, hands the gesture to the next queued
// plan, and closes p.Done.
func (s *Scheduler) finish(p *Plan, state State, err error) {
	p.setFinished(state, err)
	p.cancel()
	s.history.Add(p.Info())

	ev := notify.Event{GestureID: p.GestureID, PlanID: p.ID, ProfileID: p.ProfileID, Summary: p.Definition.Summary(), Outcome: state.String()}
	switch state {
	case StateCompleted:
		ev.Kind = notify.KindExecuted
	case StateFailed:
		ev.Kind = notify.KindFailed
		ev.Err = err.Error()
		s.log.Warnf("plan %s (%s) failed: %v", p.ID, p.GestureID, err)
	default:
		ev.Kind = notify.KindCancelled
	}
	s.notify(ev)

	s.mu.Lock()
	if s.active[p.GestureID] == p {
		if q := s.queued[p.GestureID]; len(q) > 0 {
			next := q[0]
			s.queued[p.GestureID] = q[1:]
			s.active[p.GestureID] = next.plan
			close(next.turn)
		} else {
			delete(s.active, p.GestureID)
		}
	} else {
		s.dequeue(p)
	}
	if len(s.queued[p.GestureID]) == 0 {
		delete(s.queued, p.GestureID)
	}
	s.mu.Unlock()

	close(p.done)
}

// dequeue removes a plan that ended while still waiting in a queue.
// Called with s.mu held.
func (s *Scheduler) dequeue(p *Plan) {
	q := s.queued[p.GestureID]
	for i, qp := range q {
		if qp.plan == p {
			s.queued[p.GestureID] = append(q[:i:i], q[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) notify(ev notify.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.notifier.Notify(ev)
}

// History returns up to limit finished plans, newest first.
func (s *Scheduler) History(limit int) []Info {
	return s.history.List(limit)
}

// ClearHistory forgets finished plans and returns how many were dropped.
func (s *Scheduler) ClearHistory() int {
	return s.history.Clear()
}

// Cancel cancels the plans of gestureID, including queued ones, and
// returns how many were cancelled.
func (s *Scheduler) Cancel(gestureID string) int {
	gestureID = mapping.NormalizeGestureID(gestureID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(gestureID)
}

func (s *Scheduler) cancelLocked(gestureID string) int {
	n := 0
	if p := s.active[gestureID]; p != nil {
		p.Cancel()
		n++
	}
	for _, qp := range s.queued[gestureID] {
		qp.plan.Cancel()
		n++
	}
	return n
}

// CancelAll cancels every plan and returns how many were cancelled.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelAllLocked()
}

func (s *Scheduler) cancelAllLocked() int {
	n := 0
	seen := make(map[string]bool)
	for g := range s.active {
		seen[g] = true
		n += s.cancelLocked(g)
	}
	for g := range s.queued {
		if !seen[g] {
			n += s.cancelLocked(g)
		}
	}
	return n
}

// Pause cancels everything and rejects submissions until Resume. It is the
// emergency stop.
func (s *Scheduler) Pause() int {
	s.mu.Lock()
	s.paused = true
	n := s.cancelAllLocked()
	s.mu.Unlock()

	s.log.Warnf("emergency stop: %d plan(s) cancelled", n)
	s.notify(notify.Event{Kind: notify.KindEmergencyStop, Outcome: fmt.Sprintf("%d cancelled", n)})
	return n
}

// Resume accepts submissions again after Pause.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	was := s.paused
	s.paused = false
	s.mu.Unlock()

	if was {
		s.log.Infof("resumed")
		s.notify(notify.Event{Kind: notify.KindResumed})
	}
}

// Paused reports whether the scheduler is in emergency stop.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Active returns the plans currently owning a gesture, oldest first.
func (s *Scheduler) Active() []*Plan {
	s.mu.Lock()
	out := make([]*Plan, 0, len(s.active))
	for _, p := range s.active {
		out = append(out, p)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// OnProfileSwitch applies the switch policy. It is meant to be registered
// with the mapping engine or the profile service.
func (s *Scheduler) OnProfileSwitch(prev, next *mapping.Profile) {
	switch s.cfg.SwitchPolicy {
	case SwitchCancelAll:
		if n := s.CancelAll(); n > 0 {
			s.log.Infof("profile switch: cancelled %d plan(s)", n)
		}
	case SwitchCancelRemoved:
		s.mu.Lock()
		n := 0
		for g := range s.active {
			if !next.Has(g) {
				n += s.cancelLocked(g)
			}
		}
		s.mu.Unlock()
		if n > 0 {
			s.log.Infof("profile switch: cancelled %d plan(s) for unmapped gestures", n)
		}
	}
}

// Shutdown cancels all plans, rejects new ones, and waits for plan
// goroutines to exit or ctx to end.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.cancelAllLocked()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sleep waits d or until ctx is done. It reports ctx's error even for d == 0.
func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
