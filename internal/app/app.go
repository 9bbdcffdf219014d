// Package app wires the recognition pipeline: landmark samples are
// classified and debounced on the frame path, and the resulting gesture
// events are resolved and scheduled on the dispatch path.
package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/gestureflow/internal/action"
	"github.com/ayusman/gestureflow/internal/capture"
	"github.com/ayusman/gestureflow/internal/classifier"
	"github.com/ayusman/gestureflow/internal/logging"
	"github.com/ayusman/gestureflow/internal/macro"
	"github.com/ayusman/gestureflow/internal/mapping"
	"github.com/ayusman/gestureflow/internal/notify"
	"github.com/ayusman/gestureflow/internal/recognition"
)

// DefaultEventBuffer bounds the queue between the frame and dispatch paths.
const DefaultEventBuffer = 16

// ShutdownTimeout bounds how long Run waits for running plans on exit.
const ShutdownTimeout = 5 * time.Second

// Profiles is the profile store the pipeline reads from.
type Profiles interface {
	Active() *mapping.Profile
	Subscribe(fn mapping.SwitchFunc)
	RecordUse(profileID, gestureID string, at time.Time)
}

// Runner is a background loop supervised by Run, such as the profile
// directory watcher.
type Runner interface {
	Run(ctx context.Context) error
}

// Config holds the collaborators and settings of the pipeline.
type Config struct {
	Recognition recognition.Config
	Scheduler   macro.Config
	EventBuffer int

	Source     capture.SampleSource
	Classifier classifier.Classifier
	Executor   macro.Executor
	Profiles   Profiles
	Validator  *action.Validator
	Notifier   notify.Notifier
	Logger     *logging.Logger
	// Background loops run alongside the pipeline.
	Background []Runner
}

// Stats counts pipeline activity.
type Stats struct {
	Samples    int64 `json:"samples"`
	Events     int64 `json:"events"`
	Dropped    int64 `json:"dropped"`
	Dispatched int64 `json:"dispatched"`
	NotMapped  int64 `json:"not_mapped"`
}

// App is the gesture pipeline.
type App struct {
	cfg        Config
	log        *logging.Logger
	notifier   notify.Notifier
	classifier classifier.Classifier
	debouncer  *recognition.Debouncer
	scheduler  *macro.Scheduler
	profiles   Profiles
	events     chan recognition.GestureEvent

	enabled     atomic.Bool
	resetNeeded atomic.Bool

	samples    atomic.Int64
	emitted    atomic.Int64
	dropped    atomic.Int64
	dispatched atomic.Int64
	notMapped  atomic.Int64
}

// New creates the pipeline and its scheduler and subscribes the scheduler
// to profile switches.
func New(cfg Config) (*App, error) {
	if cfg.Classifier == nil {
		return nil, errors.New("app: classifier is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("app: executor is required")
	}
	if cfg.Profiles == nil {
		return nil, errors.New("app: profile store is required")
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop
	}

	deb, err := recognition.New(cfg.Recognition)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		log:        cfg.Logger.With("app"),
		notifier:   cfg.Notifier,
		classifier: cfg.Classifier,
		debouncer:  deb,
		profiles:   cfg.Profiles,
		events:     make(chan recognition.GestureEvent, cfg.EventBuffer),
	}
	a.enabled.Store(true)

	opts := []macro.Option{
		macro.WithLogger(cfg.Logger.With("macro")),
		macro.WithNotifier(cfg.Notifier),
		macro.WithStartHook(a.onPlanStart),
	}
	if cfg.Validator != nil {
		opts = append(opts, macro.WithValidator(cfg.Validator))
	}
	a.scheduler, err = macro.New(cfg.Scheduler, cfg.Executor, opts...)
	if err != nil {
		return nil, err
	}

	a.profiles.Subscribe(a.onProfileSwitch)
	return a, nil
}

// Run supervises the landmark source, the dispatch loop and the background
// runners until ctx is done, then cancels running plans.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.dispatchLoop(gctx)
	})

	if a.cfg.Source != nil {
		g.Go(func() error {
			err := a.cfg.Source.Run(gctx, a.HandleSample)
			if err != nil && !errors.Is(err, context.Canceled) {
				// The API and tray stay up without a camera.
				a.log.Errorf("landmark source stopped: %v", err)
			}
			return nil
		})
	}

	for _, r := range a.cfg.Background {
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if serr := a.scheduler.Shutdown(shutdownCtx); serr != nil {
		a.log.Warnf("plans still running at shutdown: %v", serr)
	}
	return err
}

// SetEnabled pauses or resumes recognition. Disabling forgets any held
// gesture so resuming starts idle.
func (a *App) SetEnabled(enabled bool) {
	if a.enabled.Swap(enabled) == enabled {
		return
	}
	if !enabled {
		a.resetNeeded.Store(true)
	}
	if s, ok := a.cfg.Source.(interface{ SetEnabled(bool) }); ok {
		s.SetEnabled(enabled)
	}
	if enabled {
		a.log.Infof("recognition enabled")
	} else {
		a.log.Infof("recognition disabled")
	}
}

// Enabled reports whether recognition is running.
func (a *App) Enabled() bool {
	return a.enabled.Load()
}

// EmergencyStop cancels every running plan and rejects new ones until Resume.
func (a *App) EmergencyStop() int {
	return a.scheduler.Pause()
}

// Resume lifts an emergency stop.
func (a *App) Resume() {
	a.scheduler.Resume()
}

// Stopped reports whether an emergency stop is in effect.
func (a *App) Stopped() bool {
	return a.scheduler.Paused()
}

// Plans returns a snapshot of the running and queued plans.
func (a *App) Plans() []macro.Info {
	active := a.scheduler.Active()
	out := make([]macro.Info, len(active))
	for i, p := range active {
		out[i] = p.Info()
	}
	return out
}

// History returns up to limit finished plans, newest first.
func (a *App) History(limit int) []macro.Info {
	return a.scheduler.History(limit)
}

// ClearHistory forgets finished plans and returns how many were dropped.
func (a *App) ClearHistory() int {
	return a.scheduler.ClearHistory()
}

// Scheduler returns the macro scheduler.
func (a *App) Scheduler() *macro.Scheduler {
	return a.scheduler
}

// Stats returns the pipeline counters.
func (a *App) Stats() Stats {
	return Stats{
		Samples:    a.samples.Load(),
		Events:     a.emitted.Load(),
		Dropped:    a.dropped.Load(),
		Dispatched: a.dispatched.Load(),
		NotMapped:  a.notMapped.Load(),
	}
}

func (a *App) onPlanStart(p *macro.Plan) {
	a.profiles.RecordUse(p.ProfileID, p.GestureID, time.Now())
}

func (a *App) onProfileSwitch(prev, next *mapping.Profile) {
	if next == nil {
		return
	}
	a.scheduler.OnProfileSwitch(prev, next)
	if prev != nil && prev.ID == next.ID {
		return
	}
	a.log.Infof("active profile: %s", next.Name)
	a.notifier.Notify(notify.Event{
		Kind:      notify.KindProfileSwitched,
		ProfileID: next.ID,
		Summary:   next.Name,
		Time:      time.Now(),
	})
}
