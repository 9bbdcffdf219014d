// Package recognition turns the per-frame output of a classifier into
// discrete gesture events.
//
// A Debouncer keeps a sliding window of the last M frame labels. A label
// becomes "held" once it fills at least N slots of that window and the
// current frame carries it; entering the held state emits one GestureEvent.
// The held label is released after M' consecutive frames without a gesture,
// or immediately when a different label shows up.
package recognition

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate and New.
var ErrInvalidConfig = errors.New("invalid recognition config")

// Observation is one classified frame. An empty Label means no gesture.
type Observation struct {
	Label      string
	Confidence float64
	Timestamp  time.Time
}

// GestureEvent is a debounced, confidence-gated recognition.
type GestureEvent struct {
	GestureID  string    `json:"gesture_id"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
}

// Config holds the debouncing parameters.
type Config struct {
	// Threshold is the minimum confidence for a frame to count as its label.
	Threshold float64
	// Required is N, the number of window slots a label must occupy.
	Required int
	// Window is M, the number of most recent frames considered. Window ==
	// Required means N consecutive frames.
	Window int
	// Release is M', the run of no-gesture frames that releases a held label.
	Release int
	// Cooldown suppresses a new event for a label whose previous event is
	// younger than this.
	Cooldown time.Duration
	// RepeatWhileHeld re-emits a held label every RepeatInterval.
	RepeatWhileHeld bool
	RepeatInterval  time.Duration
}

// DefaultConfig returns the default debouncing parameters.
func DefaultConfig() Config {
	return Config{
		Threshold:      0.8,
		Required:       3,
		Window:         5,
		Release:        5,
		Cooldown:       time.Second,
		RepeatInterval: 500 * time.Millisecond,
	}
}

// Validate checks the parameter relationships.
func (c Config) Validate() error {
	switch {
	case c.Threshold < 0 || c.Threshold > 1:
		return fmt.Errorf("%w: threshold %.2f outside [0,1]", ErrInvalidConfig, c.Threshold)
	case c.Required < 1:
		return fmt.Errorf("%w: required frames must be at least 1", ErrInvalidConfig)
	case c.Window < c.Required:
		return fmt.Errorf("%w: window %d smaller than required %d", ErrInvalidConfig, c.Window, c.Required)
	case c.Release < c.Window:
		return fmt.Errorf("%w: release %d smaller than window %d", ErrInvalidConfig, c.Release, c.Window)
	case c.Cooldown < 0:
		return fmt.Errorf("%w: negative cooldown", ErrInvalidConfig)
	case c.RepeatInterval < 0:
		return fmt.Errorf("%w: negative repeat interval", ErrInvalidConfig)
	case c.RepeatWhileHeld && c.RepeatInterval == 0:
		return fmt.Errorf("%w: repeat while held needs a positive interval", ErrInvalidConfig)
	}
	return nil
}

type slot struct {
	label      string
	confidence float64
}

// Debouncer implements the recognition state machine. It is owned by the
// frame loop and is not safe for concurrent use.
type Debouncer struct {
	cfg Config

	window []slot
	held   string
	// noneRun counts consecutive no-gesture frames while a label is held.
	noneRun int

	lastEvent map[string]time.Time
	lastSeen  time.Time
	started   bool
}

// New creates a Debouncer in the idle state.
func New(cfg Config) (*Debouncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Debouncer{
		cfg:       cfg,
		window:    make([]slot, 0, cfg.Window),
		lastEvent: make(map[string]time.Time),
	}, nil
}

// Config returns the parameters the debouncer was built with.
func (d *Debouncer) Config() Config {
	return d.cfg
}

// Held returns the currently held label, or "" when idle.
func (d *Debouncer) Held() string {
	return d.held
}

// Reset returns to idle and forgets window contents and cooldowns.
func (d *Debouncer) Reset() {
	d.window = d.window[:0]
	d.held = ""
	d.noneRun = 0
	d.started = false
	d.lastSeen = time.Time{}
	clear(d.lastEvent)
}

// Observe feeds one frame. It returns an event and true when the frame
// causes a recognition.
//
// Frames older than the last accepted frame are ignored.
func (d *Debouncer) Observe(o Observation) (GestureEvent, bool) {
	if d.started && o.Timestamp.Before(d.lastSeen) {
		return GestureEvent{}, false
	}
	d.started = true
	d.lastSeen = o.Timestamp

	label := o.Label
	if label == "" || o.Confidence < d.cfg.Threshold {
		label = ""
	}
	cur := slot{label: label, confidence: o.Confidence}

	if d.held != "" {
		switch label {
		case d.held:
			d.noneRun = 0
			d.push(cur)
			if d.cfg.RepeatWhileHeld && o.Timestamp.Sub(d.lastEvent[label]) >= d.cfg.RepeatInterval {
				return d.emit(label, o.Timestamp), true
			}
			return GestureEvent{}, false
		case "":
			d.noneRun++
			d.push(cur)
			if d.noneRun >= d.cfg.Release {
				d.held = ""
				d.noneRun = 0
			}
			return GestureEvent{}, false
		default:
			// A different gesture ends the held one and starts counting afresh.
			d.held = ""
			d.noneRun = 0
			d.window = d.window[:0]
		}
	}

	d.push(cur)
	if label == "" || d.count(label) < d.cfg.Required {
		return GestureEvent{}, false
	}

	d.held = label
	d.noneRun = 0
	if last, ok := d.lastEvent[label]; ok && o.Timestamp.Sub(last) < d.cfg.Cooldown {
		return GestureEvent{}, false
	}
	return d.emit(label, o.Timestamp), true
}

func (d *Debouncer) push(s slot) {
	if len(d.window) == d.cfg.Window {
		copy(d.window, d.window[1:])
		d.window = d.window[:len(d.window)-1]
	}
	d.window = append(d.window, s)
}

func (d *Debouncer) count(label string) int {
	n := 0
	for _, s := range d.window {
		if s.label == label {
			n++
		}
	}
	return n
}

// emit records the event time and reports the mean confidence of the
// window slots holding label.
func (d *Debouncer) emit(label string, ts time.Time) GestureEvent {
	d.lastEvent[label] = ts

	var sum float64
	n := 0
	for _, s := range d.window {
		if s.label == label {
			sum += s.confidence
			n++
		}
	}
	conf := 0.0
	if n > 0 {
		conf = sum / float64(n)
	}
	return GestureEvent{GestureID: label, Timestamp: ts, Confidence: conf}
}
