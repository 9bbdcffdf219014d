// Package classifier maps a landmark vector to a gesture label and confidence.
//
// Vectors are raw landmark vectors as produced by detector.HandLandmarks.Vector
// (63 values, image-normalised). Classifiers that work on position- and
// scale-invariant features derive them with HandLandmarks.FeatureVector.
package classifier

import (
	"errors"
	"fmt"

	"github.com/ayusman/gestureflow/internal/detector"
)

// ErrUnavailable is returned when a classifier cannot produce a result for
// a frame. Callers treat it as "no gesture".
var ErrUnavailable = errors.New("classification unavailable")

// Result is a classification. An empty Label means no gesture.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	// Source names the classifier that produced the label.
	Source string `json:"source,omitempty"`
}

// None is the "no gesture" result.
var None = Result{}

// Classifier is the contract the recognition pipeline depends on.
type Classifier interface {
	Classify(vector []float64) (Result, error)
}

// Func adapts a function to Classifier.
type Func func(vector []float64) (Result, error)

// Classify calls f.
func (f Func) Classify(vector []float64) (Result, error) {
	return f(vector)
}

func landmarks(vector []float64) (detector.HandLandmarks, error) {
	h, err := detector.FromVector(vector)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return h, nil
}

// features returns the feature vector for a raw landmark vector.
func features(vector []float64) ([]float64, error) {
	h, err := landmarks(vector)
	if err != nil {
		return nil, err
	}
	f := h.FeatureVector()
	if !detector.ValidFeatures(f) {
		return nil, fmt.Errorf("%w: invalid feature vector", ErrUnavailable)
	}
	return f, nil
}
