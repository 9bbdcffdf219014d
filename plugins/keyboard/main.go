// Package main provides a keyboard plugin for macOS.
// It presses key combinations and types text via AppleScript.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action  string          `json:"action"`
	Gesture string          `json:"gesture"`
	Config  json.RawMessage `json:"config"`
	Params  json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// KeyParams mirrors the key step payload: a combination or literal text.
type KeyParams struct {
	Keys []string `json:"keys"`
	Text string   `json:"text"`
}

var errNoKeys = errors.New("at least one key is required")

// modifierMap maps modifier names to AppleScript equivalents.
var modifierMap = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"meta":    "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

// keyCodes are the virtual key codes of keys without a printable character.
var keyCodes = map[string]int{
	"enter":     36,
	"return":    36,
	"tab":       48,
	"space":     49,
	"backspace": 51,
	"delete":    117,
	"escape":    53,
	"esc":       53,
	"left":      123,
	"right":     124,
	"down":      125,
	"up":        126,
	"home":      115,
	"end":       119,
	"pageup":    116,
	"pagedown":  121,
	"f1":        122,
	"f2":        120,
	"f3":        99,
	"f4":        118,
	"f5":        96,
	"f6":        97,
	"f7":        98,
	"f8":        100,
	"f9":        101,
	"f10":       109,
	"f11":       103,
	"f12":       111,
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	var p KeyParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse params: %v", err))
			return
		}
	}

	var (
		script string
		err    error
	)
	switch req.Action {
	case "combo":
		script, err = comboScript(p.Keys)
	case "type":
		script, err = typeScript(p.Text)
	default:
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}
	if err == nil {
		err = runAppleScript(script)
	}
	if err != nil {
		writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
		return
	}

	writeSuccessResponse()
}

// comboScript builds the AppleScript that presses keys together. Modifiers
// may appear anywhere; exactly one non-modifier key is expected.
func comboScript(keys []string) (string, error) {
	if len(keys) == 0 {
		return "", errNoKeys
	}

	var modifiers []string
	var main string
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if mod, ok := modifierMap[k]; ok {
			modifiers = append(modifiers, mod)
			continue
		}
		if main != "" {
			return "", fmt.Errorf("more than one non-modifier key: %s and %s", main, k)
		}
		main = k
	}
	if main == "" {
		return "", fmt.Errorf("combination has only modifiers")
	}

	press := fmt.Sprintf("keystroke %s", quote(main))
	if code, ok := keyCodes[main]; ok {
		press = fmt.Sprintf("key code %d", code)
	}
	if len(modifiers) > 0 {
		press += " using {" + strings.Join(modifiers, ", ") + "}"
	}
	return `tell application "System Events" to ` + press, nil
}

// typeScript builds the AppleScript that types text literally.
func typeScript(text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("text is required")
	}
	return `tell application "System Events" to keystroke ` + quote(text), nil
}

// quote renders s as an AppleScript string literal.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	resp := Response{
		Success: true,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// runAppleScript executes an AppleScript command and returns any error.
func runAppleScript(script string) error {
	cmd := exec.Command("osascript", "-e", script)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
