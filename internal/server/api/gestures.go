// Package api provides the HTTP handlers of the GestureFlow control API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/gestureflow/internal/classifier"
	"github.com/ayusman/gestureflow/internal/mapping"
	"github.com/ayusman/gestureflow/internal/store"
)

// GestureHandler serves the trained custom gestures and their samples.
type GestureHandler struct {
	store     *store.Store
	trainer   *classifier.Trainer
	templates *classifier.TemplateClassifier
}

// NewGestureHandler creates a GestureHandler. Retrained templates are
// published to templates so recognition picks them up immediately.
func NewGestureHandler(s *store.Store, trainer *classifier.Trainer, templates *classifier.TemplateClassifier) *GestureHandler {
	return &GestureHandler{store: s, trainer: trainer, templates: templates}
}

// ServeHTTP routes /api/gestures, /api/gestures/{id} and
// /api/gestures/{id}/samples.
func (h *GestureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/gestures")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodDelete:
			h.delete(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "samples":
		switch r.Method {
		case http.MethodGet:
			h.listSamples(w, r, id)
		case http.MethodPost:
			h.addSamples(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type createGestureRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type gestureResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Samples     int     `json:"samples"`
	Trained     bool    `json:"trained"`
	Accuracy    float64 `json:"accuracy"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type predefinedResponse struct {
	Label string `json:"label"`
	Name  string `json:"name"`
}

type listGesturesResponse struct {
	Gestures   []gestureResponse    `json:"gestures"`
	Predefined []predefinedResponse `json:"predefined"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(g *store.Gesture) gestureResponse {
	return gestureResponse{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Samples:     g.Samples,
		Trained:     g.Template != nil,
		Accuracy:    g.Accuracy,
		CreatedAt:   g.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   g.UpdatedAt.Format(time.RFC3339),
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func isPredefined(name string) bool {
	for _, r := range classifier.PredefinedRules() {
		if r.Label == name {
			return true
		}
	}
	return false
}

// list handles GET /api/gestures.
func (h *GestureHandler) list(w http.ResponseWriter, r *http.Request) {
	gestures, err := h.store.Gestures().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list gestures")
		return
	}

	response := listGesturesResponse{
		Gestures: make([]gestureResponse, 0, len(gestures)),
	}
	for _, g := range gestures {
		response.Gestures = append(response.Gestures, toResponse(g))
	}
	for _, rule := range classifier.PredefinedRules() {
		response.Predefined = append(response.Predefined, predefinedResponse{Label: rule.Label, Name: rule.Name})
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/gestures/{id}.
func (h *GestureHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	g, err := h.store.Gestures().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Gesture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get gesture")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(g))
}

// create handles POST /api/gestures. The name becomes the gesture ID used
// in mappings.
func (h *GestureHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createGestureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	name := mapping.NormalizeGestureID(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if isPredefined(name) {
		writeError(w, http.StatusConflict, "Name is used by a predefined gesture")
		return
	}

	g := &store.Gesture{
		ID:          uuid.New().String(),
		Name:        name,
		Description: req.Description,
	}
	if err := h.store.Gestures().Create(g); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "Gesture already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create gesture")
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(g))
}

// delete handles DELETE /api/gestures/{id}. The template stops matching
// immediately.
func (h *GestureHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	g, err := h.store.Gestures().GetByID(id)
	if err == nil {
		err = h.store.Gestures().Delete(id)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Gesture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete gesture")
		return
	}

	if h.templates != nil {
		h.templates.Remove(g.Name)
	}
	w.WriteHeader(http.StatusNoContent)
}
