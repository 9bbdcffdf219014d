package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/gestureflow/internal/app"
	"github.com/ayusman/gestureflow/internal/macro"
	"github.com/ayusman/gestureflow/internal/mapping"
	"github.com/ayusman/gestureflow/internal/recognition"
)

// Controller is the part of the running pipeline the control API drives.
// *app.App implements it.
type Controller interface {
	Plans() []macro.Info
	History(limit int) []macro.Info
	ClearHistory() int
	EmergencyStop() int
	Resume()
	Stopped() bool
	Inject(ev recognition.GestureEvent) bool
	Enabled() bool
	SetEnabled(enabled bool)
	Stats() app.Stats
}

// PlanHandler serves running plans, emergency stop and simulated gestures.
type PlanHandler struct {
	ctl Controller
}

// NewPlanHandler creates a PlanHandler.
func NewPlanHandler(ctl Controller) *PlanHandler {
	return &PlanHandler{ctl: ctl}
}

type plansResponse struct {
	Stopped bool         `json:"stopped"`
	Plans   []macro.Info `json:"plans"`
}

type stopResponse struct {
	Stopped   bool `json:"stopped"`
	Cancelled int  `json:"cancelled"`
}

// defaultHistoryLimit is how many finished plans GET /api/plans/history
// returns without a limit parameter.
const defaultHistoryLimit = 100

type historyResponse struct {
	Plans []macro.Info `json:"plans"`
}

type clearHistoryResponse struct {
	Cleared int `json:"cleared"`
}

type triggerRequest struct {
	GestureID string `json:"gesture_id"`
}

// ServeHTTP routes /api/plans, /api/plans/history and /api/plans/resume.
func (h *PlanHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/plans")
	path = strings.Trim(path, "/")

	switch path {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.list(w)
		case http.MethodPost:
			h.trigger(w, r)
		case http.MethodDelete:
			h.stop(w)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "history":
		switch r.Method {
		case http.MethodGet:
			h.history(w, r)
		case http.MethodDelete:
			writeJSON(w, http.StatusOK, clearHistoryResponse{Cleared: h.ctl.ClearHistory()})
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "resume":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.ctl.Resume()
		writeJSON(w, http.StatusOK, stopResponse{Stopped: h.ctl.Stopped()})
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// list handles GET /api/plans.
func (h *PlanHandler) list(w http.ResponseWriter) {
	plans := h.ctl.Plans()
	if plans == nil {
		plans = []macro.Info{}
	}
	writeJSON(w, http.StatusOK, plansResponse{Stopped: h.ctl.Stopped(), Plans: plans})
}

// history handles GET /api/plans/history?limit=N.
func (h *PlanHandler) history(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	plans := h.ctl.History(limit)
	if plans == nil {
		plans = []macro.Info{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Plans: plans})
}

// stop handles DELETE /api/plans: every plan is cancelled and new ones are
// rejected until resume.
func (h *PlanHandler) stop(w http.ResponseWriter) {
	n := h.ctl.EmergencyStop()
	writeJSON(w, http.StatusOK, stopResponse{Stopped: true, Cancelled: n})
}

// trigger handles POST /api/plans by dispatching a gesture as if it had
// been recognised.
func (h *PlanHandler) trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	id := mapping.NormalizeGestureID(req.GestureID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "gesture_id is required")
		return
	}
	if !h.ctl.Inject(recognition.GestureEvent{GestureID: id, Confidence: 1}) {
		writeError(w, http.StatusServiceUnavailable, "Dispatch queue is full")
		return
	}
	writeJSON(w, http.StatusAccepted, triggerRequest{GestureID: id})
}

type recognitionResponse struct {
	Enabled bool      `json:"enabled"`
	Stats   app.Stats `json:"stats"`
}

type recognitionRequest struct {
	Enabled *bool `json:"enabled"`
}

// RecognitionHandler serves /api/recognition: pipeline counters and the
// enable switch.
type RecognitionHandler struct {
	ctl Controller
}

// NewRecognitionHandler creates a RecognitionHandler.
func NewRecognitionHandler(ctl Controller) *RecognitionHandler {
	return &RecognitionHandler{ctl: ctl}
}

// ServeHTTP implements http.Handler.
func (h *RecognitionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req recognitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "enabled is required")
			return
		}
		h.ctl.SetEnabled(*req.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, recognitionResponse{Enabled: h.ctl.Enabled(), Stats: h.ctl.Stats()})
}
