package recognition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frame = 33 * time.Millisecond

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// feed plays labels at one frame per tick starting at start and returns the
// events emitted together with the frame index that produced each.
func feed(d *Debouncer, start time.Time, labels ...string) ([]GestureEvent, []int) {
	var events []GestureEvent
	var idx []int
	for i, l := range labels {
		o := Observation{Label: l, Confidence: 0.9, Timestamp: start.Add(time.Duration(i) * frame)}
		if ev, ok := d.Observe(o); ok {
			events = append(events, ev)
			idx = append(idx, i)
		}
	}
	return events, idx
}

func repeat(label string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = label
	}
	return out
}

func newDebouncer(t *testing.T, mutate func(*Config)) *Debouncer {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := New(cfg)
	require.NoError(t, err)
	return d
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"consecutive", func(c *Config) { c.Window = c.Required }, true},
		{"zero required", func(c *Config) { c.Required = 0 }, false},
		{"window below required", func(c *Config) { c.Window = 2 }, false},
		{"release below window", func(c *Config) { c.Release = 4 }, false},
		{"threshold above one", func(c *Config) { c.Threshold = 1.2 }, false},
		{"negative cooldown", func(c *Config) { c.Cooldown = -time.Second }, false},
		{"repeat without interval", func(c *Config) { c.RepeatWhileHeld = true; c.RepeatInterval = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestDebouncer_OpenPalmEmitsOnceOnThirdFrame(t *testing.T) {
	d := newDebouncer(t, nil)

	events, idx := feed(d, t0, repeat("open_palm", 10)...)

	require.Len(t, events, 1)
	assert.Equal(t, 2, idx[0])
	assert.Equal(t, "open_palm", events[0].GestureID)
	assert.Equal(t, t0.Add(2*frame), events[0].Timestamp)
	assert.InDelta(t, 0.9, events[0].Confidence, 1e-9)
	assert.Equal(t, "open_palm", d.Held())
}

func TestDebouncer_FewerThanRequiredNeverEmits(t *testing.T) {
	d := newDebouncer(t, nil)

	// Never three of the last five frames.
	events, _ := feed(d, t0, "fist", "", "fist", "", "", "fist", "", "", "fist", "", "")

	assert.Empty(t, events)
	assert.Equal(t, "", d.Held())
}

func TestDebouncer_RequiredNeedNotBeConsecutive(t *testing.T) {
	d := newDebouncer(t, nil)

	events, idx := feed(d, t0, "fist", "fist", "", "fist")

	require.Len(t, events, 1)
	assert.Equal(t, 3, idx[0])
}

func TestDebouncer_LowConfidenceCountsAsNoGesture(t *testing.T) {
	d := newDebouncer(t, nil)

	for i := 0; i < 6; i++ {
		_, ok := d.Observe(Observation{Label: "fist", Confidence: 0.5, Timestamp: t0.Add(time.Duration(i) * frame)})
		assert.False(t, ok)
	}
	assert.Equal(t, "", d.Held())
}

func TestDebouncer_ReleaseAndCooldown(t *testing.T) {
	d := newDebouncer(t, nil)

	// Hold, release after five empty frames, hold again well inside the cooldown.
	labels := append(repeat("fist", 3), repeat("", 5)...)
	labels = append(labels, repeat("fist", 3)...)
	events, _ := feed(d, t0, labels...)
	require.Len(t, events, 1)
	assert.Equal(t, "fist", d.Held())

	// Release and hold again once the cooldown has passed.
	later := t0.Add(2 * time.Second)
	feed(d, later, repeat("", 5)...)
	assert.Equal(t, "", d.Held())
	events, _ = feed(d, later.Add(5*frame), repeat("fist", 3)...)
	require.Len(t, events, 1)
}

func TestDebouncer_ShortGapDoesNotRelease(t *testing.T) {
	d := newDebouncer(t, func(c *Config) { c.Cooldown = 0 })

	labels := append(repeat("fist", 3), repeat("", 4)...)
	labels = append(labels, repeat("fist", 3)...)
	events, _ := feed(d, t0, labels...)

	assert.Len(t, events, 1)
}

func TestDebouncer_HeldPastCooldownDoesNotRepeat(t *testing.T) {
	d := newDebouncer(t, nil)

	// 90 frames at 33ms is about three seconds, far beyond the cooldown.
	events, _ := feed(d, t0, repeat("thumbs_up", 90)...)

	assert.Len(t, events, 1)
}

func TestDebouncer_RepeatWhileHeld(t *testing.T) {
	d := newDebouncer(t, func(c *Config) {
		c.RepeatWhileHeld = true
		c.RepeatInterval = 100 * time.Millisecond
	})

	var events []GestureEvent
	for i := 0; i < 12; i++ {
		ts := t0.Add(time.Duration(i) * 50 * time.Millisecond)
		if ev, ok := d.Observe(Observation{Label: "pointing", Confidence: 0.95, Timestamp: ts}); ok {
			events = append(events, ev)
		}
	}

	// First event at frame 2 (100ms), then every 100ms: 200, 300, ..., 550.
	require.Len(t, events, 5)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, 100*time.Millisecond, events[i].Timestamp.Sub(events[i-1].Timestamp))
	}
}

func TestDebouncer_DifferentLabelForcesRelease(t *testing.T) {
	d := newDebouncer(t, nil)

	labels := append(repeat("open_palm", 4), repeat("fist", 3)...)
	events, idx := feed(d, t0, labels...)

	require.Len(t, events, 2)
	assert.Equal(t, "open_palm", events[0].GestureID)
	assert.Equal(t, "fist", events[1].GestureID)
	// fist counting starts at its first frame (index 4) so it is held on index 6.
	assert.Equal(t, 6, idx[1])
	assert.Equal(t, "fist", d.Held())
}

func alternate(n int, labels ...string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = labels[i%len(labels)]
	}
	return out
}

// assertCooldownRespected checks that no label fires twice within cooldown.
func assertCooldownRespected(t *testing.T, events []GestureEvent, cooldown time.Duration) map[string]int {
	t.Helper()
	last := map[string]time.Time{}
	counts := map[string]int{}
	for _, ev := range events {
		if prev, ok := last[ev.GestureID]; ok {
			assert.GreaterOrEqual(t, ev.Timestamp.Sub(prev), cooldown,
				"%s fired again after %v", ev.GestureID, ev.Timestamp.Sub(prev))
		}
		last[ev.GestureID] = ev.Timestamp
		counts[ev.GestureID]++
	}
	return counts
}

func TestDebouncer_OscillatingLabelsRespectCooldown(t *testing.T) {
	tests := []struct {
		name     string
		required int
	}{
		{"default", 3},
		{"single frame", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDebouncer(t, func(c *Config) { c.Required = tt.required })
			cooldown := d.Config().Cooldown

			// 150 frames at 33ms is about five cooldowns.
			labels := alternate(150, "fist", "open_palm")
			events, _ := feed(d, t0, labels...)

			counts := assertCooldownRespected(t, events, cooldown)
			span := time.Duration(len(labels)-1) * frame
			limit := int(span/cooldown) + 1
			for _, label := range []string{"fist", "open_palm"} {
				assert.GreaterOrEqual(t, counts[label], 2, "%s should fire again once the cooldown passes", label)
				assert.LessOrEqual(t, counts[label], limit, label)
			}
		})
	}
}

func TestDebouncer_OscillationWithinCooldownFiresEachLabelOnce(t *testing.T) {
	d := newDebouncer(t, func(c *Config) { c.Required = 1 })

	// 20 frames is 627ms, inside the one second cooldown.
	events, idx := feed(d, t0, alternate(20, "fist", "open_palm")...)

	require.Len(t, events, 2)
	assert.Equal(t, "fist", events[0].GestureID)
	assert.Equal(t, "open_palm", events[1].GestureID)
	assert.Equal(t, []int{0, 1}, idx)
}

func TestDebouncer_SingleFrameInterruptionResetsCount(t *testing.T) {
	d := newDebouncer(t, nil)

	feed(d, t0, repeat("open_palm", 3)...)
	require.Equal(t, "open_palm", d.Held())

	// One stray fist frame clears the window, so open_palm must rebuild from zero.
	events, _ := feed(d, t0.Add(3*frame), "fist", "open_palm", "open_palm")
	assert.Empty(t, events)
	assert.Equal(t, "", d.Held())
}

func TestDebouncer_OutOfOrderFramesAreDropped(t *testing.T) {
	d := newDebouncer(t, nil)

	d.Observe(Observation{Label: "fist", Confidence: 0.9, Timestamp: t0.Add(10 * frame)})
	d.Observe(Observation{Label: "fist", Confidence: 0.9, Timestamp: t0.Add(11 * frame)})
	_, ok := d.Observe(Observation{Label: "fist", Confidence: 0.9, Timestamp: t0})
	assert.False(t, ok, "stale frame must not complete the window")

	ev, ok := d.Observe(Observation{Label: "fist", Confidence: 0.9, Timestamp: t0.Add(12 * frame)})
	require.True(t, ok)
	assert.Equal(t, t0.Add(12*frame), ev.Timestamp)
}

func TestDebouncer_ConsecutiveMode(t *testing.T) {
	d := newDebouncer(t, func(c *Config) { c.Window = 3 })

	events, _ := feed(d, t0, "fist", "fist", "", "fist", "fist")
	assert.Empty(t, events)

	events, _ = feed(d, t0.Add(5*frame), "fist")
	assert.Len(t, events, 1)
}

func TestDebouncer_Reset(t *testing.T) {
	d := newDebouncer(t, nil)
	feed(d, t0, repeat("fist", 3)...)
	require.Equal(t, "fist", d.Held())

	d.Reset()
	assert.Equal(t, "", d.Held())

	// Cooldown is forgotten too, and older timestamps are accepted again.
	events, _ := feed(d, t0, repeat("fist", 3)...)
	assert.Len(t, events, 1)
}
