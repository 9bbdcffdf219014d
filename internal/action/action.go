// Package action defines the steps a gesture can trigger and the definitions that group them into macros.
package action

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the closed set of step types. The executor switches on Kind and
// reads only the payload that matches it.
type Kind string

const (
	// KindKey sends a key combination or types text.
	KindKey Kind = "key"
	// KindMouse performs a pointer operation.
	KindMouse Kind = "mouse"
	// KindLaunch starts an application.
	KindLaunch Kind = "launch"
	// KindWait suspends the macro. It never reaches the executor.
	KindWait Kind = "wait"
)

// LoopUntilCancelled makes a definition repeat until its plan is cancelled.
const LoopUntilCancelled = -1

// ErrInvalid is returned for definitions or steps that cannot be executed.
var ErrInvalid = errors.New("invalid action")

// KeyParams describes a keyboard step. Either Keys (a combination pressed
// together, modifiers first) or Text (typed literally) is set.
type KeyParams struct {
	Keys []string `json:"keys,omitempty" yaml:"keys,omitempty"`
	Text string   `json:"text,omitempty" yaml:"text,omitempty"`
}

// MouseOp is a pointer operation.
type MouseOp string

const (
	MouseClick  MouseOp = "click"
	MouseMove   MouseOp = "move"
	MouseDrag   MouseOp = "drag"
	MouseScroll MouseOp = "scroll"
)

// MouseParams describes a mouse step.
type MouseParams struct {
	Op        MouseOp `json:"op" yaml:"op"`
	X         int     `json:"x,omitempty" yaml:"x,omitempty"`
	Y         int     `json:"y,omitempty" yaml:"y,omitempty"`
	ToX       int     `json:"to_x,omitempty" yaml:"to_x,omitempty"`
	ToY       int     `json:"to_y,omitempty" yaml:"to_y,omitempty"`
	Button    string  `json:"button,omitempty" yaml:"button,omitempty"`
	Clicks    int     `json:"clicks,omitempty" yaml:"clicks,omitempty"`
	Direction string  `json:"direction,omitempty" yaml:"direction,omitempty"`
	Amount    int     `json:"amount,omitempty" yaml:"amount,omitempty"`
}

// LaunchParams describes an application launch.
type LaunchParams struct {
	Path    string   `json:"path" yaml:"path"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
	WorkDir string   `json:"work_dir,omitempty" yaml:"work_dir,omitempty"`
}

// WaitParams describes a pause inside a macro.
type WaitParams struct {
	DurationMs int `json:"duration_ms" yaml:"duration_ms"`
}

// Step is one action in a definition. Exactly one payload pointer is set and
// it must match Type.
type Step struct {
	Type          Kind          `json:"type" yaml:"type"`
	Key           *KeyParams    `json:"key,omitempty" yaml:"key,omitempty"`
	Mouse         *MouseParams  `json:"mouse,omitempty" yaml:"mouse,omitempty"`
	Launch        *LaunchParams `json:"launch,omitempty" yaml:"launch,omitempty"`
	Wait          *WaitParams   `json:"wait,omitempty" yaml:"wait,omitempty"`
	DelayBeforeMs int           `json:"delay_before_ms,omitempty" yaml:"delay_before_ms,omitempty"`
}

// Key builds a key-combination step, e.g. Key("ctrl", "c").
func Key(keys ...string) Step {
	return Step{Type: KindKey, Key: &KeyParams{Keys: keys}}
}

// TypeText builds a step that types text.
func TypeText(text string) Step {
	return Step{Type: KindKey, Key: &KeyParams{Text: text}}
}

// Click builds a left click at x, y.
func Click(x, y int) Step {
	return Step{Type: KindMouse, Mouse: &MouseParams{Op: MouseClick, X: x, Y: y, Button: "left", Clicks: 1}}
}

// Launch builds an application launch step.
func Launch(path string, args ...string) Step {
	return Step{Type: KindLaunch, Launch: &LaunchParams{Path: path, Args: args}}
}

// Wait builds a pause step.
func Wait(d time.Duration) Step {
	return Step{Type: KindWait, Wait: &WaitParams{DurationMs: int(d / time.Millisecond)}}
}

// After returns a copy of s that waits d before running.
func (s Step) After(d time.Duration) Step {
	s.DelayBeforeMs = int(d / time.Millisecond)
	return s
}

// DelayBefore returns the pre-step delay.
func (s Step) DelayBefore() time.Duration {
	return time.Duration(s.DelayBeforeMs) * time.Millisecond
}

// WaitDuration returns the pause length of a wait step, or zero for other kinds.
func (s Step) WaitDuration() time.Duration {
	if s.Type != KindWait || s.Wait == nil {
		return 0
	}
	return time.Duration(s.Wait.DurationMs) * time.Millisecond
}

// Subtype names the concrete operation, used as the plugin action name.
func (s Step) Subtype() string {
	switch s.Type {
	case KindKey:
		if s.Key != nil && s.Key.Text != "" {
			return "type"
		}
		return "combo"
	case KindMouse:
		if s.Mouse != nil {
			return string(s.Mouse.Op)
		}
	case KindLaunch:
		return "launch"
	case KindWait:
		return "wait"
	}
	return ""
}

// Payload returns the parameter struct that matches Type, or nil.
func (s Step) Payload() any {
	switch s.Type {
	case KindKey:
		if s.Key != nil {
			return s.Key
		}
	case KindMouse:
		if s.Mouse != nil {
			return s.Mouse
		}
	case KindLaunch:
		if s.Launch != nil {
			return s.Launch
		}
	case KindWait:
		if s.Wait != nil {
			return s.Wait
		}
	}
	return nil
}

// String renders the step compactly, e.g. "key(ctrl+c)" or "wait 200ms".
func (s Step) String() string {
	var out string
	switch s.Type {
	case KindKey:
		switch {
		case s.Key == nil:
			out = "key(?)"
		case s.Key.Text != "":
			out = fmt.Sprintf("type(%q)", s.Key.Text)
		default:
			out = "key(" + strings.Join(s.Key.Keys, "+") + ")"
		}
	case KindMouse:
		if s.Mouse == nil {
			out = "mouse(?)"
		} else {
			out = fmt.Sprintf("mouse.%s(%d,%d)", s.Mouse.Op, s.Mouse.X, s.Mouse.Y)
		}
	case KindLaunch:
		if s.Launch == nil {
			out = "launch(?)"
		} else {
			out = "launch(" + s.Launch.Path + ")"
		}
	case KindWait:
		out = "wait " + s.WaitDuration().String()
	default:
		out = string(s.Type) + "(?)"
	}
	if s.DelayBeforeMs > 0 {
		out = fmt.Sprintf("+%s %s", s.DelayBefore(), out)
	}
	return out
}

// Definition is what a mapping triggers: one step, or an ordered macro run
// LoopCount times (or until cancelled).
type Definition struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Steps     []Step `json:"steps" yaml:"steps"`
	LoopCount int    `json:"loop_count,omitempty" yaml:"loop_count,omitempty"`
}

// Single wraps one step into a definition.
func Single(s Step) Definition {
	return Definition{Steps: []Step{s}, LoopCount: 1}
}

// Macro builds a definition from steps run loops times.
func Macro(loops int, steps ...Step) Definition {
	return Definition{Steps: steps, LoopCount: loops}
}

// Loops returns the effective loop count. Zero is read as one.
func (d Definition) Loops() int {
	if d.LoopCount == 0 {
		return 1
	}
	return d.LoopCount
}

// Forever reports whether the definition loops until cancelled.
func (d Definition) Forever() bool {
	return d.LoopCount == LoopUntilCancelled
}

// IsMacro reports whether the definition is more than a single one-shot step.
func (d Definition) IsMacro() bool {
	return len(d.Steps) > 1 || d.Loops() != 1
}

// ExecutableSteps counts steps that reach the executor per loop.
func (d Definition) ExecutableSteps() int {
	n := 0
	for _, s := range d.Steps {
		if s.Type != KindWait {
			n++
		}
	}
	return n
}

// Summary renders the definition for notifications, e.g.
// "key(ctrl+c) → wait 200ms → key(ctrl+v)" with a loop suffix when relevant.
func (d Definition) Summary() string {
	if d.Name != "" && !d.IsMacro() {
		return d.Name
	}
	parts := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		parts[i] = s.String()
	}
	out := strings.Join(parts, " → ")
	if d.Name != "" {
		out = d.Name + ": " + out
	}
	switch {
	case d.Forever():
		out += " (until cancelled)"
	case d.Loops() > 1:
		out += fmt.Sprintf(" ×%d", d.Loops())
	}
	return out
}

// Clone returns a deep copy so callers can keep definitions immutable.
func (d Definition) Clone() Definition {
	out := Definition{Name: d.Name, LoopCount: d.LoopCount, Steps: make([]Step, len(d.Steps))}
	for i, s := range d.Steps {
		out.Steps[i] = s.clone()
	}
	return out
}

func (s Step) clone() Step {
	c := s
	if s.Key != nil {
		k := *s.Key
		k.Keys = append([]string(nil), s.Key.Keys...)
		c.Key = &k
	}
	if s.Mouse != nil {
		m := *s.Mouse
		c.Mouse = &m
	}
	if s.Launch != nil {
		l := *s.Launch
		l.Args = append([]string(nil), s.Launch.Args...)
		c.Launch = &l
	}
	if s.Wait != nil {
		w := *s.Wait
		c.Wait = &w
	}
	return c
}
