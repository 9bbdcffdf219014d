package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/gestureflow/internal/action"
	"github.com/ayusman/gestureflow/internal/capture"
	"github.com/ayusman/gestureflow/internal/classifier"
	"github.com/ayusman/gestureflow/internal/detector"
	"github.com/ayusman/gestureflow/internal/macro"
	"github.com/ayusman/gestureflow/internal/mapping"
	"github.com/ayusman/gestureflow/internal/profile"
	"github.com/ayusman/gestureflow/internal/recognition"
	"github.com/ayusman/gestureflow/internal/store"
)

func TestApp_DetectionPipeline_PredefinedGesture(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	validator := action.NewValidator(action.DefaultLimits())
	svc := profile.NewService(profile.DefaultConfig(), s, mapping.NewEngine(nil), validator, nil)
	active, err := svc.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	_, err = svc.SetMapping(active.ID, mapping.Entry{
		GestureID: "thumbs_up",
		Action:    action.Macro(1, action.Key("cmd", "c"), action.Wait(50*time.Millisecond), action.Key("cmd", "v")),
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("SetMapping() error = %v", err)
	}

	// The camera plays a blank frame; the mock detector reports a thumbs up.
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	cam := capture.NewMockCamera([]*gocv.Mat{&frame}, true)

	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{detector.ThumbsUpLandmarks()})

	src := capture.NewSource(capture.SourceConfig{IdleFPS: 30, ActiveFPS: 30, AlwaysActive: true}, cam, nil, det, nil)

	exec := &recorder{}
	a, err := New(Config{
		Recognition: recognition.DefaultConfig(),
		Scheduler:   macro.DefaultConfig(),
		Source:      src,
		Classifier:  classifier.NewChain(0.6, classifier.Stage{Name: "rules", Classifier: classifier.NewRuleClassifier()}),
		Executor:    exec,
		Profiles:    svc,
		Validator:   validator,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for len(exec.Steps()) < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	steps := exec.Steps()
	want := []string{"thumbs_up:key(cmd+c)", "thumbs_up:key(cmd+v)"}
	if len(steps) != len(want) {
		t.Fatalf("executed %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, steps[i], want[i])
		}
	}

	// A held pose fires once, and the start was recorded in the store.
	if ev := a.Stats().Events; ev != 1 {
		t.Errorf("expected 1 gesture event, got %d", ev)
	}
	m, err := s.Mappings().Get(active.ID, "thumbs_up")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if m.UseCount != 1 {
		t.Errorf("expected use count 1, got %d", m.UseCount)
	}
	if cam.IsOpen() {
		t.Error("camera should be closed after Run returns")
	}
}

func TestApp_DetectionPipeline_NoHand(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	cam := capture.NewMockCamera([]*gocv.Mat{&frame}, true)
	det := detector.NewMockDetector()

	src := capture.NewSource(capture.SourceConfig{IdleFPS: 30, ActiveFPS: 30, AlwaysActive: true}, cam, nil, det, nil)

	exec := &recorder{}
	a, err := New(Config{
		Recognition: recognition.DefaultConfig(),
		Scheduler:   macro.DefaultConfig(),
		Source:      src,
		Classifier:  classifier.NewRuleClassifier(),
		Executor:    exec,
		Profiles:    &fakeProfiles{Engine: mapping.NewEngine(nil)},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if a.Stats().Samples == 0 {
		t.Error("expected samples from the camera loop")
	}
	if a.Stats().Events != 0 {
		t.Errorf("expected no events without a hand, got %d", a.Stats().Events)
	}
}
