// Package detector provides hand detection interfaces and landmark types.
package detector

import (
	"fmt"
	"math"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

const (
	// VectorSize is the length of a raw landmark vector: x, y, z per landmark.
	VectorSize = NumLandmarks * 3
	// FeatureSize is the length of a feature vector: x, y per landmark.
	FeatureSize = NumLandmarks * 2
)

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
// Coordinates are image-normalised: x and y in [0,1], y growing downwards.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Vector flattens the landmarks into x0, y0, z0, x1, ... (VectorSize values).
func (h *HandLandmarks) Vector() []float64 {
	v := make([]float64, 0, VectorSize)
	for _, p := range h.Points {
		v = append(v, p.X, p.Y, p.Z)
	}
	return v
}

// FromVector rebuilds landmarks from a raw vector. A vector of FeatureSize
// values is read as x, y pairs with z = 0.
func FromVector(v []float64) (HandLandmarks, error) {
	var h HandLandmarks
	switch len(v) {
	case VectorSize:
		for i := 0; i < NumLandmarks; i++ {
			h.Points[i] = Point3D{X: v[3*i], Y: v[3*i+1], Z: v[3*i+2]}
		}
	case FeatureSize:
		for i := 0; i < NumLandmarks; i++ {
			h.Points[i] = Point3D{X: v[2*i], Y: v[2*i+1]}
		}
	default:
		return h, fmt.Errorf("landmark vector has %d values, want %d or %d", len(v), VectorSize, FeatureSize)
	}
	return h, nil
}

// FeatureVector returns the position- and scale-invariant form used by
// trained classifiers: the (x, y) of every landmark relative to the wrist,
// divided by the wrist to middle fingertip distance.
func (h *HandLandmarks) FeatureVector() []float64 {
	wrist := h.Points[Wrist]
	tip := h.Points[MiddleTip]
	size := math.Hypot(tip.X-wrist.X, tip.Y-wrist.Y)
	if size < 1e-6 {
		size = 1.0
	}

	out := make([]float64, 0, FeatureSize)
	for _, p := range h.Points {
		out = append(out, (p.X-wrist.X)/size, (p.Y-wrist.Y)/size)
	}
	return out
}

// ValidFeatures reports whether v is a usable feature vector.
func ValidFeatures(v []float64) bool {
	if len(v) != FeatureSize {
		return false
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
