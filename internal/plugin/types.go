// Package plugin discovers action plugins and runs them as subprocesses
// speaking JSON over stdin and stdout.
package plugin

import "encoding/json"

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Supports reports whether the plugin declares action. A manifest without
// an action list accepts everything.
func (m Manifest) Supports(action string) bool {
	if len(m.Actions) == 0 {
		return true
	}
	for _, a := range m.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Request is written to the plugin's stdin. Action is the step subtype
// (combo, type, click, move, drag, scroll, launch) and Params its payload.
type Request struct {
	Action  string          `json:"action"`
	Gesture string          `json:"gesture"`
	Config  json.RawMessage `json:"config"`
	Params  json.RawMessage `json:"params"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
