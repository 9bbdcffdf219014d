// Package tray provides the system tray menu of GestureFlow.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/gestureflow/internal/mapping"
	"github.com/ayusman/gestureflow/internal/notify"
	"github.com/ayusman/gestureflow/internal/profile"
)

// Callbacks are invoked from the menu goroutine. Any of them may be nil.
type Callbacks struct {
	Toggle        func(enabled bool)
	EmergencyStop func()
	Resume        func()
	Activate      func(profileID string)
	Settings      func()
	Quit          func()
}

type profileItem struct {
	id   string
	item *systray.MenuItem
}

// Tray is the system tray menu. It implements notify.Notifier to show the
// last gesture, the active profile and the emergency stop state.
type Tray struct {
	cb       Callbacks
	profiles func() ([]profile.Summary, error)

	mu          sync.RWMutex
	enabled     bool
	stopped     bool
	lastGesture string
	lastError   string
	profileName string
	profileID   string

	// Menu items stored for later updates
	menuToggle      *systray.MenuItem
	menuStop        *systray.MenuItem
	menuLastGesture *systray.MenuItem
	menuProfile     *systray.MenuItem
	profileItems    []profileItem
}

// New creates a Tray with recognition enabled. profiles lists the entries
// of the profile submenu; it may be nil.
func New(cb Callbacks, profiles func() ([]profile.Summary, error)) *Tray {
	return &Tray{cb: cb, profiles: profiles, enabled: true}
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("GestureFlow")
	systray.SetTooltip("GestureFlow gesture control")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle gesture recognition")
	t.menuStop = systray.AddMenuItem(stopTitle(t.stopped), "Cancel running actions")
	systray.AddSeparator()

	t.menuLastGesture = systray.AddMenuItem(gestureTitle(t.lastGesture, t.lastError), "Last detected gesture")
	t.menuLastGesture.Disable()
	t.menuProfile = systray.AddMenuItem(profileTitle(t.profileName), "Switch profile")
	t.addProfileItems()
	systray.AddSeparator()
	t.mu.Unlock()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit GestureFlow")

	for _, p := range t.profileItems {
		go func() {
			for range p.item.ClickedCh {
				t.activate(p.id)
			}
		}()
	}

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-t.menuStop.ClickedCh:
				t.handleStop()
			case <-menuSettings.ClickedCh:
				call(t.cb.Settings)
			case <-menuQuit.ClickedCh:
				call(t.cb.Quit)
				systray.Quit()
				return
			}
		}
	}()
}

// addProfileItems fills the profile submenu once; profiles created later
// appear after a restart. The caller holds t.mu.
func (t *Tray) addProfileItems() {
	if t.profiles == nil {
		return
	}
	list, err := t.profiles()
	if err != nil {
		return
	}
	for _, p := range list {
		item := t.menuProfile.AddSubMenuItem(p.Name, p.Description)
		if p.Active {
			item.Check()
		}
		t.profileItems = append(t.profileItems, profileItem{id: p.ID, item: item})
	}
}

func (t *Tray) onExit() {}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}

func stopTitle(stopped bool) string {
	if stopped {
		return "Resume Actions"
	}
	return "Emergency Stop"
}

func gestureTitle(name, errMsg string) string {
	switch {
	case errMsg != "":
		return "Last: " + name + " (failed)"
	case name == "":
		return "Last: none"
	default:
		return "Last: " + name
	}
}

func profileTitle(name string) string {
	if name == "" {
		return "Profile"
	}
	return "Profile: " + name
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.cb.Toggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// handleStop stops or resumes. The menu title follows the notification the
// scheduler emits, not the click.
func (t *Tray) handleStop() {
	t.mu.RLock()
	stopped := t.stopped
	t.mu.RUnlock()

	if stopped {
		call(t.cb.Resume)
	} else {
		call(t.cb.EmergencyStop)
	}
}

func (t *Tray) activate(id string) {
	if t.cb.Activate != nil {
		t.cb.Activate(id)
	}
}

// Notify implements notify.Notifier.
func (t *Tray) Notify(ev notify.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case notify.KindRecognized:
		t.lastGesture = ev.GestureID
		t.lastError = ""
	case notify.KindFailed:
		t.lastGesture = ev.GestureID
		t.lastError = ev.Err
	case notify.KindEmergencyStop:
		t.stopped = true
	case notify.KindResumed:
		t.stopped = false
	case notify.KindProfileSwitched:
		t.profileID = ev.ProfileID
		t.profileName = ev.Summary
	default:
		return
	}
	t.refresh()
}

// SetProfile shows p as the active profile.
func (t *Tray) SetProfile(p *mapping.Profile) {
	if p == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.profileID = p.ID
	t.profileName = p.Name
	t.refresh()
}

// SetEnabled updates the enabled state without invoking the callback.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	t.refresh()
}

// refresh updates the menu from the state. The caller holds t.mu.
func (t *Tray) refresh() {
	if t.menuToggle == nil {
		return
	}
	t.menuToggle.SetTitle(toggleTitle(t.enabled))
	t.menuStop.SetTitle(stopTitle(t.stopped))
	t.menuLastGesture.SetTitle(gestureTitle(t.lastGesture, t.lastError))
	t.menuProfile.SetTitle(profileTitle(t.profileName))
	for _, p := range t.profileItems {
		if p.id == t.profileID {
			p.item.Check()
		} else {
			p.item.Uncheck()
		}
	}
}

// LastGesture returns the most recent gesture shown in the menu.
func (t *Tray) LastGesture() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastGesture
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Stopped reports whether the menu shows an emergency stop.
func (t *Tray) Stopped() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stopped
}

// Profile returns the name of the profile shown as active.
func (t *Tray) Profile() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.profileName
}
