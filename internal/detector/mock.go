package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	hands []HandLandmarks
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	m.hands = hands
	m.mu.Unlock()
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// Finger joint y positions for fixtures. Image y grows downwards, so an
// extended finger has its tip above (smaller y than) its PIP joint.
type finger struct{ mcp, pip, dip, tip Point3D }

func extended(x float64) finger {
	return finger{
		mcp: Point3D{X: x, Y: 0.68},
		pip: Point3D{X: x, Y: 0.55},
		dip: Point3D{X: x, Y: 0.45},
		tip: Point3D{X: x, Y: 0.35},
	}
}

func curled(x float64) finger {
	return finger{
		mcp: Point3D{X: x, Y: 0.70, Z: -0.02},
		pip: Point3D{X: x, Y: 0.68, Z: -0.05},
		dip: Point3D{X: x - 0.03, Y: 0.70, Z: -0.04},
		tip: Point3D{X: x - 0.05, Y: 0.72, Z: -0.02},
	}
}

func hand(thumb [4]Point3D, index, middle, ring, pinky finger) HandLandmarks {
	h := HandLandmarks{Handedness: "Right", Score: 0.95}
	h.Points[Wrist] = Point3D{X: 0.5, Y: 0.8}
	copy(h.Points[ThumbCMC:ThumbTip+1], thumb[:])
	for i, f := range []finger{index, middle, ring, pinky} {
		base := IndexMCP + 4*i
		h.Points[base] = f.mcp
		h.Points[base+1] = f.pip
		h.Points[base+2] = f.dip
		h.Points[base+3] = f.tip
	}
	return h
}

var (
	thumbOut = [4]Point3D{{X: 0.55, Y: 0.75}, {X: 0.62, Y: 0.70}, {X: 0.68, Y: 0.65}, {X: 0.73, Y: 0.60}}
	thumbUp  = [4]Point3D{{X: 0.55, Y: 0.75}, {X: 0.58, Y: 0.65}, {X: 0.58, Y: 0.50}, {X: 0.58, Y: 0.35}}
	thumbIn  = [4]Point3D{{X: 0.53, Y: 0.76}, {X: 0.54, Y: 0.73}, {X: 0.52, Y: 0.71}, {X: 0.50, Y: 0.70}}
)

// ThumbsUpLandmarks returns a thumb pointing up with the other fingers curled.
func ThumbsUpLandmarks() HandLandmarks {
	return hand(thumbUp, curled(0.55), curled(0.50), curled(0.45), curled(0.40))
}

// OpenPalmLandmarks returns all fingers extended with the thumb out to the side.
func OpenPalmLandmarks() HandLandmarks {
	return hand(thumbOut, extended(0.57), extended(0.50), extended(0.43), extended(0.36))
}

// FistLandmarks returns all fingers curled with the thumb tucked in.
func FistLandmarks() HandLandmarks {
	return hand(thumbIn, curled(0.55), curled(0.50), curled(0.45), curled(0.40))
}

// PeaceSignLandmarks returns index and middle extended, the rest curled.
func PeaceSignLandmarks() HandLandmarks {
	return hand(thumbIn, extended(0.57), extended(0.50), curled(0.45), curled(0.40))
}

// PointingLandmarks returns only the index finger extended.
func PointingLandmarks() HandLandmarks {
	return hand(thumbIn, extended(0.57), curled(0.50), curled(0.45), curled(0.40))
}
