package detector

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

const epsilon = 1e-9

func TestHandLandmarks_FeatureVector(t *testing.T) {
	t.Run("wrist at origin and length 42", func(t *testing.T) {
		hand := OpenPalmLandmarks()

		v := hand.FeatureVector()

		if len(v) != FeatureSize {
			t.Fatalf("expected %d values, got %d", FeatureSize, len(v))
		}
		if math.Abs(v[0]) > epsilon || math.Abs(v[1]) > epsilon {
			t.Errorf("expected wrist at origin, got (%f, %f)", v[0], v[1])
		}
	})

	t.Run("middle fingertip at unit distance", func(t *testing.T) {
		hand := HandLandmarks{}
		hand.Points[Wrist] = Point3D{X: 10.0, Y: 20.0}
		hand.Points[MiddleTip] = Point3D{X: 13.0, Y: 24.0} // distance = 5.0

		v := hand.FeatureVector()

		x, y := v[2*MiddleTip], v[2*MiddleTip+1]
		if d := math.Hypot(x, y); math.Abs(d-1.0) > epsilon {
			t.Errorf("expected middle tip at distance 1.0, got %f", d)
		}
	})

	t.Run("invariant to position and scale", func(t *testing.T) {
		a := FistLandmarks()
		b := FistLandmarks()
		for i := range b.Points {
			b.Points[i].X = b.Points[i].X*2 + 0.1
			b.Points[i].Y = b.Points[i].Y*2 - 0.3
		}

		va, vb := a.FeatureVector(), b.FeatureVector()
		for i := range va {
			if math.Abs(va[i]-vb[i]) > 1e-6 {
				t.Fatalf("feature %d differs: %f vs %f", i, va[i], vb[i])
			}
		}
	})

	t.Run("zero size keeps translation only", func(t *testing.T) {
		hand := HandLandmarks{}
		hand.Points[Wrist] = Point3D{X: 0.5, Y: 0.5}
		hand.Points[MiddleTip] = Point3D{X: 0.5, Y: 0.5}
		hand.Points[IndexTip] = Point3D{X: 0.6, Y: 0.5}

		v := hand.FeatureVector()

		if math.Abs(v[2*IndexTip]-0.1) > epsilon {
			t.Errorf("expected index tip x 0.1, got %f", v[2*IndexTip])
		}
		if !ValidFeatures(v) {
			t.Error("expected valid features")
		}
	})
}

func TestFromVector(t *testing.T) {
	t.Run("round trips raw vector", func(t *testing.T) {
		hand := ThumbsUpLandmarks()

		back, err := FromVector(hand.Vector())

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if back.Points != hand.Points {
			t.Error("points differ after round trip")
		}
	})

	t.Run("accepts xy pairs", func(t *testing.T) {
		v := make([]float64, FeatureSize)
		v[2*IndexTip] = 0.25
		v[2*IndexTip+1] = 0.75

		back, err := FromVector(v)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if back.Points[IndexTip] != (Point3D{X: 0.25, Y: 0.75}) {
			t.Errorf("unexpected index tip %+v", back.Points[IndexTip])
		}
	})

	t.Run("rejects other lengths", func(t *testing.T) {
		if _, err := FromVector(make([]float64, 10)); err == nil {
			t.Error("expected error for short vector")
		}
	})
}

func TestValidFeatures(t *testing.T) {
	v := make([]float64, FeatureSize)
	if !ValidFeatures(v) {
		t.Error("zero vector should be valid")
	}
	v[3] = math.NaN()
	if ValidFeatures(v) {
		t.Error("NaN should be invalid")
	}
	if ValidFeatures(make([]float64, 5)) {
		t.Error("wrong length should be invalid")
	}
}

func TestParseResponse(t *testing.T) {
	palm := OpenPalmLandmarks()
	raw, err := json.Marshal(palm.Points[:])
	if err != nil {
		t.Fatalf("marshal points: %v", err)
	}
	points := string(raw)

	t.Run("converts hands above min score", func(t *testing.T) {
		line := `{"hands":[{"points":` + points + `,"handedness":"Right","score":0.9},{"points":` + points + `,"handedness":"Left","score":0.3}]}`

		hands, err := parseResponse([]byte(line), 0.5)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hands) != 1 {
			t.Fatalf("expected 1 hand, got %d", len(hands))
		}
		if hands[0].Points != palm.Points {
			t.Error("points not copied")
		}
	})

	t.Run("service error", func(t *testing.T) {
		if _, err := parseResponse([]byte(`{"error":"no model"}`), 0); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := parseResponse([]byte(`not json`), 0); err == nil {
			t.Error("expected error")
		}
	})
}

func TestMockDetector(t *testing.T) {
	t.Run("returns empty hands by default", func(t *testing.T) {
		mock := NewMockDetector()

		hands, err := mock.Detect(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if hands != nil {
			t.Errorf("expected nil hands, got %v", hands)
		}
	})

	t.Run("returns configured hands", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetHands([]HandLandmarks{ThumbsUpLandmarks(), OpenPalmLandmarks()})

		hands, err := mock.Detect(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(hands) != 2 {
			t.Errorf("expected 2 hands, got %d", len(hands))
		}
		if mock.Calls() != 1 {
			t.Errorf("expected 1 call, got %d", mock.Calls())
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()
		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		hands, err := mock.Detect(nil)

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if hands != nil {
			t.Errorf("expected nil hands when error is set, got %v", hands)
		}
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
	})
}

func TestFixtures(t *testing.T) {
	extendedCount := func(h HandLandmarks) int {
		n := 0
		for _, tip := range []int{IndexTip, MiddleTip, RingTip, PinkyTip} {
			if h.Points[tip].Y < h.Points[tip-2].Y {
				n++
			}
		}
		return n
	}

	tests := []struct {
		name string
		hand HandLandmarks
		want int
	}{
		{"open palm", OpenPalmLandmarks(), 4},
		{"fist", FistLandmarks(), 0},
		{"thumbs up", ThumbsUpLandmarks(), 0},
		{"peace sign", PeaceSignLandmarks(), 2},
		{"pointing", PointingLandmarks(), 1},
	}
	for _, tt := range tests {
		if got := extendedCount(tt.hand); got != tt.want {
			t.Errorf("%s: expected %d extended fingers, got %d", tt.name, tt.want, got)
		}
	}

	thumbs := ThumbsUpLandmarks()
	if thumbs.Points[ThumbTip].Y >= thumbs.Points[ThumbMCP].Y {
		t.Error("thumb tip should be above thumb MCP (lower Y value)")
	}
}
