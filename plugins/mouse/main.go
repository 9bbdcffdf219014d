// Package main provides a mouse plugin for macOS.
// It posts CoreGraphics pointer events through JavaScript for Automation.
package main

import (
	"encoding/json"
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

// MouseParams mirrors the mouse step payload.
type MouseParams struct {
	Op        string `json:"op"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	ToX       int    `json:"to_x"`
	ToY       int    `json:"to_y"`
	Button    string `json:"button"`
	Clicks    int    `json:"clicks"`
	Direction string `json:"direction"`
	Amount    int    `json:"amount"`
}

// buttonEvents holds the CGEventType down/up/drag codes and the CGMouseButton
// of each button.
type buttonEvents struct {
	down, up, drag, button int
}

var buttons = map[string]buttonEvents{
	"left":   {down: 1, up: 2, drag: 6, button: 0},
	"right":  {down: 3, up: 4, drag: 7, button: 1},
	"middle": {down: 25, up: 26, drag: 27, button: 2},
}

const jxaPrelude = `ObjC.import('CoreGraphics');
function here() { return $.CGEventGetLocation($.CGEventCreate(null)); }
function post(type, x, y, button, clicks) {
	var e = $.CGEventCreateMouseEvent(null, type, $.CGPointMake(x, y), button);
	if (clicks) { $.CGEventSetIntegerValueField(e, 1, clicks); }
	$.CGEventPost(0, e);
}
`

type scriptFunc func(MouseParams) (string, error)

var actionHandlers = map[string]scriptFunc{
	"click":  clickScript,
	"move":   moveScript,
	"drag":   dragScript,
	"scroll": scrollScript,
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	handler, ok := actionHandlers[req.Action]
	if !ok {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	var p MouseParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse params: %v", err))
			return
		}
	}

	script, err := handler(p)
	if err == nil {
		err = runJXA(script)
	}
	if err != nil {
		writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
		return
	}

	writeSuccessResponse()
}

func lookupButton(name string) (buttonEvents, error) {
	if name == "" {
		name = "left"
	}
	b, ok := buttons[strings.ToLower(name)]
	if !ok {
		return buttonEvents{}, fmt.Errorf("unknown button %q", name)
	}
	return b, nil
}

// position returns the JXA expressions for x and y. A zero point means the
// current pointer location.
func position(x, y int) string {
	if x == 0 && y == 0 {
		return "var p = here();\n"
	}
	return fmt.Sprintf("var p = {x: %d, y: %d};\n", x, y)
}

// clickScript presses and releases the button Clicks times at (X, Y).
func clickScript(p MouseParams) (string, error) {
	b, err := lookupButton(p.Button)
	if err != nil {
		return "", err
	}
	clicks := p.Clicks
	if clicks <= 0 {
		clicks = 1
	}

	var sb strings.Builder
	sb.WriteString(jxaPrelude)
	sb.WriteString(position(p.X, p.Y))
	for i := 1; i <= clicks; i++ {
		fmt.Fprintf(&sb, "post(%d, p.x, p.y, %d, %d);\n", b.down, b.button, i)
		fmt.Fprintf(&sb, "post(%d, p.x, p.y, %d, %d);\n", b.up, b.button, i)
	}
	return sb.String(), nil
}

// moveScript warps the pointer to (X, Y).
func moveScript(p MouseParams) (string, error) {
	if p.X < 0 || p.Y < 0 {
		return "", fmt.Errorf("coordinates must not be negative")
	}
	return jxaPrelude + fmt.Sprintf("post(5, %d, %d, 0, 0);\n", p.X, p.Y), nil
}

// dragScript holds the button at (X, Y) and releases it at (ToX, ToY).
func dragScript(p MouseParams) (string, error) {
	b, err := lookupButton(p.Button)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(jxaPrelude)
	sb.WriteString(position(p.X, p.Y))
	fmt.Fprintf(&sb, "post(%d, p.x, p.y, %d, 0);\n", b.down, b.button)
	fmt.Fprintf(&sb, "post(%d, %d, %d, %d, 0);\n", b.drag, p.ToX, p.ToY, b.button)
	fmt.Fprintf(&sb, "post(%d, %d, %d, %d, 0);\n", b.up, p.ToX, p.ToY, b.button)
	return sb.String(), nil
}

// scrollScript scrolls Amount lines in Direction.
func scrollScript(p MouseParams) (string, error) {
	amount := p.Amount
	if amount <= 0 {
		amount = 1
	}
	var dy, dx int
	switch strings.ToLower(p.Direction) {
	case "up", "":
		dy = amount
	case "down":
		dy = -amount
	case "left":
		dx = amount
	case "right":
		dx = -amount
	default:
		return "", fmt.Errorf("unknown direction %q", p.Direction)
	}
	return fmt.Sprintf("ObjC.import('CoreGraphics');\n$.CGEventPost(0, $.CGEventCreateScrollWheelEvent(null, 1, 2, %d, %d));\n", dy, dx), nil
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

// runJXA executes a JavaScript for Automation script and returns any error.
func runJXA(script string) error {
	cmd := exec.Command("osascript", "-l", "JavaScript", "-e", script)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
