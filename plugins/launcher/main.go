// Package main provides an application launcher plugin.
// On macOS .app bundles are opened with open(1); anything else is started
// directly and left running.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
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

// LaunchParams mirrors the launch step payload.
type LaunchParams struct {
	Path    string   `json:"path"`
	Args    []string `json:"args"`
	WorkDir string   `json:"work_dir"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Action != "launch" {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	var p LaunchParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse params: %v", err))
			return
		}
	}

	pid, err := launch(p)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("action launch failed: %v", err))
		return
	}

	data, _ := json.Marshal(map[string]int{"pid": pid})
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}

// command builds the process that starts p on goos.
func command(p LaunchParams, goos string) (*exec.Cmd, error) {
	if strings.TrimSpace(p.Path) == "" {
		return nil, fmt.Errorf("path is required")
	}

	var cmd *exec.Cmd
	if goos == "darwin" && strings.HasSuffix(strings.TrimSuffix(p.Path, "/"), ".app") {
		args := []string{"-a", p.Path}
		if len(p.Args) > 0 {
			args = append(args, "--args")
			args = append(args, p.Args...)
		}
		cmd = exec.Command("open", args...)
	} else {
		cmd = exec.Command(p.Path, p.Args...)
	}
	cmd.Dir = p.WorkDir
	return cmd, nil
}

// launch starts the application without waiting for it and returns its pid.
func launch(p LaunchParams) (int, error) {
	cmd, err := command(p, runtime.GOOS)
	if err != nil {
		return 0, err
	}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	cmd.Process.Release()
	return pid, nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
