package capture

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/gestureflow/internal/detector"
	"github.com/ayusman/gestureflow/internal/logging"
)

// Sample is one frame's landmarks. Vector holds the 63 raw landmark values
// of the first detected hand, or is empty when no hand was found.
type Sample struct {
	Vector    []float64
	Timestamp time.Time
}

// HasHand reports whether the sample carries landmarks.
func (s Sample) HasHand() bool {
	return len(s.Vector) > 0
}

// SampleSource produces time-ordered samples until ctx is done.
type SampleSource interface {
	Run(ctx context.Context, emit func(Sample)) error
}

// SourceConfig controls frame pacing and motion gating.
type SourceConfig struct {
	IdleFPS   int `yaml:"idle_fps"`
	ActiveFPS int `yaml:"active_fps"`
	// IdleAfter returns to idle pacing after this long without motion.
	IdleAfter time.Duration `yaml:"idle_after"`
	// AlwaysActive disables motion gating.
	AlwaysActive bool         `yaml:"always_active"`
	Motion       MotionConfig `yaml:"motion"`
}

// DefaultSourceConfig returns 5 fps idle, 15 fps active, 2s idle timeout.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		IdleFPS:   5,
		ActiveFPS: 15,
		IdleAfter: 2 * time.Second,
		Motion:    DefaultMotionConfig(),
	}
}

// Source reads frames from a camera and runs hand detection while motion is
// present. In idle mode frames are only used for motion detection and no
// samples are emitted, so a held pose stays held.
type Source struct {
	cfg      SourceConfig
	camera   Camera
	motion   *MotionDetector
	detector detector.Detector
	log      *logging.Logger

	enabled atomic.Bool
	now     func() time.Time

	active     bool
	lastMotion time.Time
}

// NewSource creates a Source. A nil motion detector means always active.
func NewSource(cfg SourceConfig, cam Camera, motion *MotionDetector, det detector.Detector, log *logging.Logger) *Source {
	if cfg.IdleFPS <= 0 {
		cfg.IdleFPS = DefaultSourceConfig().IdleFPS
	}
	if cfg.ActiveFPS <= 0 {
		cfg.ActiveFPS = DefaultSourceConfig().ActiveFPS
	}
	if log == nil {
		log = logging.Discard()
	}
	s := &Source{
		cfg:      cfg,
		camera:   cam,
		motion:   motion,
		detector: det,
		log:      log.With("capture"),
		now:      time.Now,
	}
	s.enabled.Store(true)
	return s
}

// SetEnabled pauses or resumes frame processing.
func (s *Source) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// Enabled reports whether frames are processed.
func (s *Source) Enabled() bool {
	return s.enabled.Load()
}

// Run opens the camera and emits samples until ctx is done. It closes the
// camera on return.
func (s *Source) Run(ctx context.Context, emit func(Sample)) error {
	if err := s.camera.Open(); err != nil {
		return err
	}
	defer s.camera.Close()

	s.camera.SetFPS(s.cfg.IdleFPS)
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.IdleFPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.Enabled() {
				continue
			}
			frame, err := s.camera.ReadFrame()
			if err != nil {
				if errors.Is(err, ErrCameraNotOpen) {
					return err
				}
				s.log.Debugf("read frame: %v", err)
				continue
			}

			wasActive := s.active
			sample, ok := s.process(frame)
			frame.Close()

			if s.active != wasActive {
				fps := s.cfg.IdleFPS
				if s.active {
					fps = s.cfg.ActiveFPS
				}
				s.camera.SetFPS(fps)
				ticker.Reset(time.Second / time.Duration(fps))
				s.log.Debugf("switched to %s mode at %d fps", mode(s.active), fps)
			}
			if ok {
				emit(sample)
			}
		}
	}
}

// process updates the motion state for frame and, when active, runs the
// detector. It reports false when no sample should be emitted.
func (s *Source) process(frame *gocv.Mat) (Sample, bool) {
	now := s.now()

	switch {
	case s.cfg.AlwaysActive || s.motion == nil:
		s.active = true
	default:
		moved, _ := s.motion.Detect(frame)
		if moved {
			s.lastMotion = now
			s.active = true
		} else if s.active && now.Sub(s.lastMotion) > s.cfg.IdleAfter {
			s.active = false
		}
	}

	if !s.active || s.detector == nil {
		return Sample{}, false
	}

	sample := Sample{Timestamp: now}
	hands, err := s.detector.Detect(frame)
	if err != nil {
		s.log.Debugf("detect hands: %v", err)
		return sample, true
	}
	if len(hands) > 0 {
		sample.Vector = hands[0].Vector()
	}
	return sample, true
}

func mode(active bool) string {
	if active {
		return "active"
	}
	return "idle"
}

// Replay emits a fixed sequence of samples, spaced by their timestamps
// when Pace is set. It is used for recorded sessions and tests.
type Replay struct {
	Samples []Sample
	Pace    bool
}

// Run implements SampleSource. It returns once all samples are emitted.
func (r *Replay) Run(ctx context.Context, emit func(Sample)) error {
	for i, s := range r.Samples {
		if r.Pace && i > 0 {
			gap := s.Timestamp.Sub(r.Samples[i-1].Timestamp)
			if gap > 0 {
				t := time.NewTimer(gap)
				select {
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				case <-t.C:
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		emit(s)
	}
	return nil
}
