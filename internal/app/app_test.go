package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/gestureflow/internal/action"
	"github.com/ayusman/gestureflow/internal/capture"
	"github.com/ayusman/gestureflow/internal/classifier"
	"github.com/ayusman/gestureflow/internal/macro"
	"github.com/ayusman/gestureflow/internal/mapping"
	"github.com/ayusman/gestureflow/internal/notify"
	"github.com/ayusman/gestureflow/internal/recognition"
)

// labels maps the first vector value to a gesture.
var labels = map[float64]string{1: "open_palm", 2: "fist"}

func fakeClassifier() classifier.Classifier {
	return classifier.Func(func(v []float64) (classifier.Result, error) {
		return classifier.Result{Label: labels[v[0]], Confidence: 0.95}, nil
	})
}

type fakeProfiles struct {
	*mapping.Engine

	mu   sync.Mutex
	uses []string
}

func (f *fakeProfiles) RecordUse(profileID, gestureID string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uses = append(f.uses, profileID+"/"+gestureID)
}

func (f *fakeProfiles) Uses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uses...)
}

type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) Execute(ctx context.Context, step action.Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, action.GestureFrom(ctx)+":"+step.String())
	return nil
}

func (r *recorder) Steps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

type events struct {
	mu  sync.Mutex
	evs []notify.Event
}

func (e *events) Notify(ev notify.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evs = append(e.evs, ev)
}

func (e *events) Kinds() []notify.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]notify.Kind, len(e.evs))
	for i, ev := range e.evs {
		out[i] = ev.Kind
	}
	return out
}

type fixture struct {
	app      *App
	profiles *fakeProfiles
	exec     *recorder
	events   *events
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	p := mapping.NewProfile("p1", "Work",
		mapping.Entry{GestureID: "open_palm", Action: action.Single(action.Key("cmd", "space")), Enabled: true},
	)
	f := &fixture{
		profiles: &fakeProfiles{Engine: mapping.NewEngine(p)},
		exec:     &recorder{},
		events:   &events{},
	}
	cfg := Config{
		Recognition: recognition.DefaultConfig(),
		Scheduler:   macro.DefaultConfig(),
		Classifier:  fakeClassifier(),
		Executor:    f.exec,
		Profiles:    f.profiles,
		Notifier:    f.events,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg)
	require.NoError(t, err)
	f.app = a
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		a.Scheduler().Shutdown(ctx)
	})
	return f
}

// samples returns n samples of value v spaced 66ms apart from start.
func samples(start time.Time, v float64, n int) []capture.Sample {
	out := make([]capture.Sample, n)
	for i := range out {
		out[i] = capture.Sample{Vector: []float64{v}, Timestamp: start.Add(time.Duration(i) * 66 * time.Millisecond)}
	}
	return out
}

func feed(a *App, ss []capture.Sample) {
	for _, s := range ss {
		a.HandleSample(s)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Recognition: recognition.DefaultConfig(), Scheduler: macro.DefaultConfig()})
	assert.Error(t, err)

	_, err = New(Config{
		Recognition: recognition.Config{Required: 0},
		Scheduler:   macro.DefaultConfig(),
		Classifier:  fakeClassifier(),
		Executor:    &recorder{},
		Profiles:    &fakeProfiles{Engine: mapping.NewEngine(nil)},
	})
	assert.ErrorIs(t, err, recognition.ErrInvalidConfig)
}

func TestApp_Run_RecognisesAndExecutes(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Source = &capture.Replay{Samples: samples(time.Now(), 1, 5)}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.app.Run(ctx) }()

	require.Eventually(t, func() bool { return len(f.exec.Steps()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"open_palm:key(cmd+space)"}, f.exec.Steps())

	require.Eventually(t, func() bool { return len(f.profiles.Uses()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"p1/open_palm"}, f.profiles.Uses())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	st := f.app.Stats()
	assert.Equal(t, int64(5), st.Samples)
	assert.Equal(t, int64(1), st.Events)
	assert.Equal(t, int64(1), st.Dispatched)
	assert.Contains(t, f.events.Kinds(), notify.KindRecognized)
}

func TestApp_HandleSample_EmitsOnceWhileHeld(t *testing.T) {
	f := newFixture(t, nil)

	feed(f.app, samples(time.Now(), 1, 20))

	assert.Equal(t, int64(1), f.app.Stats().Events)
	assert.Len(t, f.app.events, 1)
	assert.Equal(t, "open_palm", f.app.debouncer.Held())
}

func TestApp_HandleSample_ClassifierErrorIsNoGesture(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Classifier = classifier.Func(func([]float64) (classifier.Result, error) {
			return classifier.None, classifier.ErrUnavailable
		})
	})

	feed(f.app, samples(time.Now(), 1, 10))
	feed(f.app, []capture.Sample{{Timestamp: time.Now().Add(time.Second)}})

	assert.Equal(t, int64(11), f.app.Stats().Samples)
	assert.Equal(t, int64(0), f.app.Stats().Events)
}

func TestApp_HandleSample_DropsWhenQueueFull(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.EventBuffer = 1 })
	start := time.Now()

	feed(f.app, samples(start, 1, 3))
	feed(f.app, samples(start.Add(time.Second), 2, 3))

	st := f.app.Stats()
	assert.Equal(t, int64(2), st.Events)
	assert.Equal(t, int64(1), st.Dropped)

	ev := <-f.app.events
	assert.Equal(t, "open_palm", ev.GestureID)
}

func TestApp_SetEnabled_ResetsHeldGesture(t *testing.T) {
	f := newFixture(t, nil)
	start := time.Now()

	feed(f.app, samples(start, 1, 3))
	require.Equal(t, int64(1), f.app.Stats().Events)

	f.app.SetEnabled(false)
	assert.False(t, f.app.Enabled())
	feed(f.app, samples(start.Add(time.Second), 1, 3))
	assert.Equal(t, int64(3), f.app.Stats().Samples, "disabled samples are not counted")

	// Re-enabling starts idle with cooldowns forgotten.
	f.app.SetEnabled(true)
	feed(f.app, samples(start.Add(2*time.Second), 1, 3))
	assert.Equal(t, int64(2), f.app.Stats().Events)
}

func TestApp_Dispatch(t *testing.T) {
	f := newFixture(t, nil)

	_, _, ok := f.app.Dispatch(recognition.GestureEvent{GestureID: "fist", Timestamp: time.Now()})
	assert.False(t, ok)
	assert.Equal(t, int64(1), f.app.Stats().NotMapped)

	plan, decision, ok := f.app.Dispatch(recognition.GestureEvent{GestureID: "open_palm", Timestamp: time.Now()})
	require.True(t, ok)
	require.NotNil(t, plan)
	assert.Equal(t, macro.Started, decision)
	require.NoError(t, plan.Wait(context.Background()))
	assert.Equal(t, macro.StateCompleted, plan.State())
}

func TestApp_EmergencyStop(t *testing.T) {
	f := newFixture(t, nil)
	ev := recognition.GestureEvent{GestureID: "open_palm", Timestamp: time.Now()}

	f.app.EmergencyStop()
	plan, decision, ok := f.app.Dispatch(ev)
	assert.True(t, ok)
	assert.Nil(t, plan)
	assert.Equal(t, macro.Rejected, decision)

	f.app.Resume()
	plan, decision, _ = f.app.Dispatch(ev)
	require.NotNil(t, plan)
	assert.Equal(t, macro.Started, decision)

	assert.Contains(t, f.events.Kinds(), notify.KindEmergencyStop)
	assert.Contains(t, f.events.Kinds(), notify.KindResumed)
}

func TestApp_ProfileSwitchNotifies(t *testing.T) {
	f := newFixture(t, nil)

	cur := f.profiles.Active()
	f.profiles.Switch(cur.WithEntry(mapping.Entry{GestureID: "fist", Action: action.Single(action.Key("cmd", "w")), Enabled: true}))
	assert.NotContains(t, f.events.Kinds(), notify.KindProfileSwitched, "editing the active profile is not a switch")

	f.profiles.Switch(mapping.NewProfile("p2", "Games"))
	assert.Contains(t, f.events.Kinds(), notify.KindProfileSwitched)

	_, _, ok := f.app.Dispatch(recognition.GestureEvent{GestureID: "open_palm", Timestamp: time.Now()})
	assert.False(t, ok, "the new profile has no mapping for open_palm")
}

func TestApp_Inject(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.EventBuffer = 1 })

	assert.True(t, f.app.Inject(recognition.GestureEvent{GestureID: " Open Palm "}))
	assert.False(t, f.app.Inject(recognition.GestureEvent{GestureID: "fist"}))

	ev := <-f.app.events
	assert.Equal(t, "open_palm", ev.GestureID)
	assert.False(t, ev.Timestamp.IsZero())
}

type failingRunner struct{}

func (failingRunner) Run(context.Context) error { return errors.New("watch failed") }

func TestApp_Run_BackgroundErrorStopsRun(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Background = []Runner{failingRunner{}} })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := f.app.Run(ctx)
	assert.EqualError(t, err, "watch failed")
}
