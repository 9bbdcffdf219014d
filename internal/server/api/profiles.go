package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ayusman/gestureflow/internal/action"
	"github.com/ayusman/gestureflow/internal/mapping"
	"github.com/ayusman/gestureflow/internal/profile"
	"github.com/ayusman/gestureflow/internal/store"
)

// maxDocumentSize bounds an imported profile document.
const maxDocumentSize = 1 << 20

// ProfileHandler serves profiles and their gesture mappings.
type ProfileHandler struct {
	profiles *profile.Service
}

// NewProfileHandler creates a ProfileHandler over the profile service.
func NewProfileHandler(svc *profile.Service) *ProfileHandler {
	return &ProfileHandler{profiles: svc}
}

// ServeHTTP routes:
//
//	/api/profiles
//	/api/profiles/import
//	/api/profiles/{id}
//	/api/profiles/{id}/activate
//	/api/profiles/{id}/default
//	/api/profiles/{id}/export
//	/api/profiles/{id}/stats
//	/api/profiles/{id}/mappings/{gesture}
func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/profiles")
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

	if path == "import" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.importProfile(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodPut:
			h.update(w, r, id)
		case http.MethodDelete:
			h.delete(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "activate":
		h.post(w, r, func() { h.activate(w, id) })
	case len(parts) == 2 && parts[1] == "default":
		h.post(w, r, func() { h.setDefault(w, id) })
	case len(parts) == 2 && parts[1] == "export":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.export(w, id)
	case len(parts) == 2 && parts[1] == "stats":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.stats(w, id)
	case len(parts) == 3 && parts[1] == "mappings":
		switch r.Method {
		case http.MethodPut:
			h.setMapping(w, r, id, parts[2])
		case http.MethodDelete:
			h.removeMapping(w, id, parts[2])
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *ProfileHandler) post(w http.ResponseWriter, r *http.Request, fn func()) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fn()
}

type profileRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type mappingRequest struct {
	Action   action.Definition `json:"action"`
	Enabled  *bool             `json:"enabled"`
	Priority int               `json:"priority"`
}

type profileResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	IsDefault   bool            `json:"is_default"`
	Active      bool            `json:"active"`
	Mappings    []mapping.Entry `json:"mappings"`
}

type listProfilesResponse struct {
	Profiles []profile.Summary `json:"profiles"`
}

func (h *ProfileHandler) toResponse(p *mapping.Profile) profileResponse {
	resp := profileResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		IsDefault:   p.IsDefault,
		Mappings:    p.Entries(),
	}
	if active := h.profiles.Active(); active != nil {
		resp.Active = active.ID == p.ID
	}
	if resp.Mappings == nil {
		resp.Mappings = []mapping.Entry{}
	}
	return resp
}

// writeServiceError maps profile, store and validation errors to a status.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Profile not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "Profile name already in use")
	case errors.Is(err, profile.ErrProfileActive), errors.Is(err, profile.ErrProfileDefault):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, profile.ErrInvalidName),
		errors.Is(err, profile.ErrBadDocument),
		errors.Is(err, profile.ErrFingerprintMismatch),
		errors.Is(err, action.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// list handles GET /api/profiles.
func (h *ProfileHandler) list(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.profiles.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list profiles")
		return
	}
	if summaries == nil {
		summaries = []profile.Summary{}
	}
	writeJSON(w, http.StatusOK, listProfilesResponse{Profiles: summaries})
}

// get handles GET /api/profiles/{id}.
func (h *ProfileHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.profiles.Get(id)
	if err != nil {
		writeServiceError(w, err, "Failed to get profile")
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(p))
}

// create handles POST /api/profiles.
func (h *ProfileHandler) create(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	p, err := h.profiles.Create(req.Name, req.Description)
	if err != nil {
		writeServiceError(w, err, "Failed to create profile")
		return
	}
	writeJSON(w, http.StatusCreated, h.toResponse(p))
}

// update handles PUT /api/profiles/{id}.
func (h *ProfileHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	p, err := h.profiles.Update(id, req.Name, req.Description)
	if err != nil {
		writeServiceError(w, err, "Failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(p))
}

// delete handles DELETE /api/profiles/{id}.
func (h *ProfileHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.profiles.Delete(id); err != nil {
		writeServiceError(w, err, "Failed to delete profile")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// activate handles POST /api/profiles/{id}/activate.
func (h *ProfileHandler) activate(w http.ResponseWriter, id string) {
	p, err := h.profiles.Activate(id)
	if err != nil {
		writeServiceError(w, err, "Failed to activate profile")
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(p))
}

// setDefault handles POST /api/profiles/{id}/default.
func (h *ProfileHandler) setDefault(w http.ResponseWriter, id string) {
	if err := h.profiles.SetDefault(id); err != nil {
		writeServiceError(w, err, "Failed to set default profile")
		return
	}
	p, err := h.profiles.Get(id)
	if err != nil {
		writeServiceError(w, err, "Failed to get profile")
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(p))
}

// export handles GET /api/profiles/{id}/export.
func (h *ProfileHandler) export(w http.ResponseWriter, id string) {
	doc, err := h.profiles.Export(id)
	if err != nil {
		writeServiceError(w, err, "Failed to export profile")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

func (h *ProfileHandler) stats(w http.ResponseWriter, id string) {
	st, err := h.profiles.Stats(id)
	if err != nil {
		writeServiceError(w, err, "Failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// importProfile handles POST /api/profiles/import with a YAML body.
func (h *ProfileHandler) importProfile(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	p, err := h.profiles.Import(data)
	if err != nil {
		writeServiceError(w, err, "Failed to import profile")
		return
	}
	writeJSON(w, http.StatusCreated, h.toResponse(p))
}

// setMapping handles PUT /api/profiles/{id}/mappings/{gesture}. An
// existing mapping for the gesture is replaced.
func (h *ProfileHandler) setMapping(w http.ResponseWriter, r *http.Request, id, gesture string) {
	if _, err := h.profiles.Get(id); err != nil {
		writeServiceError(w, err, "Failed to get profile")
		return
	}

	var req mappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	e, err := h.profiles.SetMapping(id, mapping.Entry{
		GestureID: gesture,
		Action:    req.Action,
		Enabled:   enabled,
		Priority:  req.Priority,
	})
	if err != nil {
		writeServiceError(w, err, "Failed to save mapping")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// removeMapping handles DELETE /api/profiles/{id}/mappings/{gesture}.
func (h *ProfileHandler) removeMapping(w http.ResponseWriter, id, gesture string) {
	err := h.profiles.RemoveMapping(id, mapping.NormalizeGestureID(gesture))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Mapping not found")
		return
	}
	if err != nil {
		writeServiceError(w, err, "Failed to remove mapping")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
