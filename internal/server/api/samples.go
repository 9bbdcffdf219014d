package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ayusman/gestureflow/internal/classifier"
	"github.com/ayusman/gestureflow/internal/detector"
	"github.com/ayusman/gestureflow/internal/store"
)

// maxSamplesPerRequest bounds one recording upload.
const maxSamplesPerRequest = 500

type createSamplesRequest struct {
	// Samples are raw landmark vectors, 21 points of x, y, z.
	Samples [][]float64 `json:"samples"`
}

type samplesResponse struct {
	GestureID string  `json:"gesture_id"`
	Samples   int     `json:"samples"`
	Trained   bool    `json:"trained"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Message   string  `json:"message,omitempty"`
}

type listSamplesResponse struct {
	GestureID string      `json:"gesture_id"`
	Samples   [][]float64 `json:"samples"`
}

// listSamples handles GET /api/gestures/{id}/samples.
func (h *GestureHandler) listSamples(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.store.Gestures().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Gesture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get gesture")
		return
	}

	vectors, err := h.store.Samples().Vectors(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}
	if vectors == nil {
		vectors = [][]float64{}
	}
	writeJSON(w, http.StatusOK, listSamplesResponse{GestureID: id, Samples: vectors})
}

// addSamples handles POST /api/gestures/{id}/samples: the vectors are
// appended and the gesture's template is retrained from every stored
// sample. Too few samples is not an error; the gesture stays untrained.
func (h *GestureHandler) addSamples(w http.ResponseWriter, r *http.Request, id string) {
	g, err := h.store.Gestures().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Gesture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get gesture")
		return
	}

	var req createSamplesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(req.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "No samples provided")
		return
	}
	if len(req.Samples) > maxSamplesPerRequest {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("At most %d samples per request", maxSamplesPerRequest))
		return
	}
	for i, s := range req.Samples {
		if len(s) != detector.VectorSize {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Sample %d has %d values, want %d", i, len(s), detector.VectorSize))
			return
		}
	}

	total, err := h.store.Samples().Add(id, req.Samples)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store samples")
		return
	}

	resp := samplesResponse{GestureID: id, Samples: total}
	tmpl, err := h.retrain(g)
	switch {
	case errors.Is(err, classifier.ErrNotEnoughSamples):
		resp.Message = err.Error()
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to train gesture")
		return
	default:
		resp.Trained = true
		resp.Accuracy = tmpl.Accuracy
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *GestureHandler) retrain(g *store.Gesture) (*classifier.Template, error) {
	vectors, err := h.store.Samples().Vectors(g.ID)
	if err != nil {
		return nil, err
	}
	tmpl, err := h.trainer.TrainLandmarks(g.Name, vectors)
	if err != nil {
		return nil, err
	}
	tmpl.ID = g.ID
	if err := h.store.Gestures().SetTemplate(g.ID, tmpl); err != nil {
		return nil, err
	}
	if h.templates != nil {
		h.templates.Set(tmpl)
	}
	return tmpl, nil
}
