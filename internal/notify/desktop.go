package notify

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Desktop shows macOS notifications through osascript. Repeated
// notifications for the same gesture and kind inside MinInterval are
// suppressed so a held gesture does not flood the notification centre.
type Desktop struct {
	Title       string
	MinInterval time.Duration
	// Send delivers one notification. Defaults to osascript.
	Send func(title, message string) error

	mu   sync.Mutex
	last map[string]time.Time
}

// NewDesktop creates a Desktop notifier.
func NewDesktop(title string, minInterval time.Duration) *Desktop {
	return &Desktop{Title: title, MinInterval: minInterval, Send: Send}
}

// Notify shows ev. Errors from osascript are ignored.
func (d *Desktop) Notify(ev Event) {
	if ev.Kind == KindRecognized {
		return
	}
	key := string(ev.Kind) + "/" + ev.GestureID
	now := ev.Time
	if now.IsZero() {
		now = time.Now()
	}

	d.mu.Lock()
	if d.last == nil {
		d.last = make(map[string]time.Time)
	}
	if prev, ok := d.last[key]; ok && now.Sub(prev) < d.MinInterval {
		d.mu.Unlock()
		return
	}
	d.last[key] = now
	d.mu.Unlock()

	send := d.Send
	if send == nil {
		send = Send
	}
	_ = send(d.Title, Message(ev))
}

// Message renders ev as a one-line notification body.
func Message(ev Event) string {
	switch ev.Kind {
	case KindExecuted:
		return fmt.Sprintf("%s → %s", ev.GestureID, ev.Summary)
	case KindFailed:
		return fmt.Sprintf("%s failed: %s", ev.GestureID, ev.Err)
	case KindCancelled:
		return fmt.Sprintf("%s cancelled", ev.GestureID)
	case KindProfileSwitched:
		return "Profile: " + ev.Summary
	case KindEmergencyStop:
		return "Emergency stop: all actions halted"
	case KindResumed:
		return "Actions resumed"
	default:
		if ev.Summary != "" {
			return fmt.Sprintf("%s: %s", ev.GestureID, ev.Summary)
		}
		return string(ev.Kind)
	}
}

// Send sends a macOS notification via osascript.
func Send(title, message string) error {
	title = escapeAppleScript(title)
	message = escapeAppleScript(message)

	script := fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)

	cmd := exec.Command("osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
