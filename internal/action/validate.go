package action

import (
	"fmt"
	"strings"
)

// Limits bounds what a saved definition may contain.
type Limits struct {
	EnabledKinds  []Kind
	MaxSteps      int
	MaxLoops      int
	AllowForever  bool
	MaxTextLength int
	MaxCoordinate int
	DangerousKeys []string
	AllowedPaths  []string
	BlockedPaths  []string
	MaxDelayMs    int
	MaxWaitMs     int
}

// DefaultLimits returns the limits used when configuration does not override them.
func DefaultLimits() Limits {
	return Limits{
		EnabledKinds:  []Kind{KindKey, KindMouse, KindLaunch, KindWait},
		MaxSteps:      20,
		MaxLoops:      10,
		AllowForever:  true,
		MaxTextLength: 1000,
		MaxCoordinate: 10000,
		DangerousKeys: []string{"ctrl+alt+delete", "ctrl+alt+del", "alt+f4", "cmd+q"},
		MaxDelayMs:    60000,
		MaxWaitMs:     60000,
	}
}

// Validator checks definitions against Limits before they are saved or run.
type Validator struct {
	limits Limits
}

// NewValidator creates a Validator.
func NewValidator(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// Validate returns an error wrapping ErrInvalid describing the first problem found.
func (v *Validator) Validate(d Definition) error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: definition has no steps", ErrInvalid)
	}
	if v.limits.MaxSteps > 0 && len(d.Steps) > v.limits.MaxSteps {
		return fmt.Errorf("%w: macro has %d steps, max %d", ErrInvalid, len(d.Steps), v.limits.MaxSteps)
	}

	switch {
	case d.LoopCount == LoopUntilCancelled:
		if !v.limits.AllowForever {
			return fmt.Errorf("%w: looping until cancelled is disabled", ErrInvalid)
		}
		if d.ExecutableSteps() == 0 && totalPause(d) == 0 {
			return fmt.Errorf("%w: endless macro needs at least one action or pause", ErrInvalid)
		}
	case d.LoopCount < 0:
		return fmt.Errorf("%w: loop count %d", ErrInvalid, d.LoopCount)
	case v.limits.MaxLoops > 0 && d.Loops() > v.limits.MaxLoops:
		return fmt.Errorf("%w: loop count %d exceeds max %d", ErrInvalid, d.LoopCount, v.limits.MaxLoops)
	}

	for i, s := range d.Steps {
		if err := v.ValidateStep(s); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// ValidateStep checks a single step.
func (v *Validator) ValidateStep(s Step) error {
	if !v.kindEnabled(s.Type) {
		return fmt.Errorf("%w: step type %q is not enabled", ErrInvalid, s.Type)
	}
	if s.DelayBeforeMs < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalid)
	}
	if v.limits.MaxDelayMs > 0 && s.DelayBeforeMs > v.limits.MaxDelayMs {
		return fmt.Errorf("%w: delay %dms exceeds max %dms", ErrInvalid, s.DelayBeforeMs, v.limits.MaxDelayMs)
	}
	if n := countPayloads(s); n != 1 {
		return fmt.Errorf("%w: step %q must carry exactly one payload, has %d", ErrInvalid, s.Type, n)
	}

	switch s.Type {
	case KindKey:
		return v.validateKey(s.Key)
	case KindMouse:
		return v.validateMouse(s.Mouse)
	case KindLaunch:
		return v.validateLaunch(s.Launch)
	case KindWait:
		return v.validateWait(s.Wait)
	}
	return fmt.Errorf("%w: unknown step type %q", ErrInvalid, s.Type)
}

func (v *Validator) validateKey(p *KeyParams) error {
	if p == nil {
		return fmt.Errorf("%w: key step without key parameters", ErrInvalid)
	}
	if len(p.Keys) == 0 && p.Text == "" {
		return fmt.Errorf("%w: key step needs keys or text", ErrInvalid)
	}
	if len(p.Keys) > 0 && p.Text != "" {
		return fmt.Errorf("%w: key step has both keys and text", ErrInvalid)
	}
	if v.limits.MaxTextLength > 0 && len(p.Text) > v.limits.MaxTextLength {
		return fmt.Errorf("%w: text too long (max %d characters)", ErrInvalid, v.limits.MaxTextLength)
	}
	combo := strings.ToLower(strings.Join(p.Keys, "+"))
	for _, k := range p.Keys {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("%w: empty key in combination", ErrInvalid)
		}
	}
	for _, dangerous := range v.limits.DangerousKeys {
		if combo != "" && combo == strings.ToLower(dangerous) {
			return fmt.Errorf("%w: dangerous key combination %s", ErrInvalid, dangerous)
		}
	}
	return nil
}

func (v *Validator) validateMouse(p *MouseParams) error {
	if p == nil {
		return fmt.Errorf("%w: mouse step without mouse parameters", ErrInvalid)
	}
	switch p.Op {
	case MouseClick, MouseMove, MouseDrag:
		for _, c := range []int{p.X, p.Y, p.ToX, p.ToY} {
			if c < 0 || (v.limits.MaxCoordinate > 0 && c > v.limits.MaxCoordinate) {
				return fmt.Errorf("%w: mouse coordinate %d out of range", ErrInvalid, c)
			}
		}
	case MouseScroll:
		switch p.Direction {
		case "up", "down", "left", "right", "":
		default:
			return fmt.Errorf("%w: invalid scroll direction %q", ErrInvalid, p.Direction)
		}
	default:
		return fmt.Errorf("%w: unknown mouse op %q", ErrInvalid, p.Op)
	}
	switch p.Button {
	case "", "left", "right", "middle":
	default:
		return fmt.Errorf("%w: invalid mouse button %q", ErrInvalid, p.Button)
	}
	if p.Clicks < 0 {
		return fmt.Errorf("%w: negative click count", ErrInvalid)
	}
	return nil
}

func (v *Validator) validateLaunch(p *LaunchParams) error {
	if p == nil || strings.TrimSpace(p.Path) == "" {
		return fmt.Errorf("%w: application path is required", ErrInvalid)
	}
	path := strings.ToLower(p.Path)
	for _, blocked := range v.limits.BlockedPaths {
		if strings.Contains(path, strings.ToLower(blocked)) {
			return fmt.Errorf("%w: application path is blocked: %s", ErrInvalid, blocked)
		}
	}
	if len(v.limits.AllowedPaths) > 0 {
		for _, allowed := range v.limits.AllowedPaths {
			if strings.Contains(path, strings.ToLower(allowed)) {
				return nil
			}
		}
		return fmt.Errorf("%w: application path is not in the allowed list", ErrInvalid)
	}
	return nil
}

func (v *Validator) validateWait(p *WaitParams) error {
	if p == nil || p.DurationMs <= 0 {
		return fmt.Errorf("%w: wait step needs a positive duration", ErrInvalid)
	}
	if v.limits.MaxWaitMs > 0 && p.DurationMs > v.limits.MaxWaitMs {
		return fmt.Errorf("%w: wait %dms exceeds max %dms", ErrInvalid, p.DurationMs, v.limits.MaxWaitMs)
	}
	return nil
}

func (v *Validator) kindEnabled(k Kind) bool {
	if len(v.limits.EnabledKinds) == 0 {
		return k == KindKey || k == KindMouse || k == KindLaunch || k == KindWait
	}
	for _, e := range v.limits.EnabledKinds {
		if e == k {
			return true
		}
	}
	return false
}

func countPayloads(s Step) int {
	n := 0
	if s.Key != nil {
		n++
	}
	if s.Mouse != nil {
		n++
	}
	if s.Launch != nil {
		n++
	}
	if s.Wait != nil {
		n++
	}
	return n
}

func totalPause(d Definition) int {
	total := 0
	for _, s := range d.Steps {
		total += s.DelayBeforeMs
		if s.Wait != nil {
			total += s.Wait.DurationMs
		}
	}
	return total
}
