package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MotionConfig tunes frame-difference motion gating.
type MotionConfig struct {
	// Threshold is the percentage of pixels that must change (1.0 = 1%).
	Threshold float64 `yaml:"threshold"`
	// BlurSize is the Gaussian kernel size; it must be odd.
	BlurSize int `yaml:"blur_size"`
	// PixelDelta is the per-pixel grey-level change counted as motion.
	PixelDelta float32 `yaml:"pixel_delta"`
}

// DefaultMotionConfig returns a 1% threshold with a 21x21 blur.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{Threshold: 1.0, BlurSize: 21, PixelDelta: 25}
}

// MotionDetector detects motion between consecutive frames using blurred
// grey-level differencing. It is safe for concurrent use.
type MotionDetector struct {
	mu          sync.Mutex
	cfg         MotionConfig
	prevGray    gocv.Mat
	initialized bool
}

// NewMotionDetector creates a MotionDetector. Invalid fields fall back to
// the defaults.
func NewMotionDetector(cfg MotionConfig) *MotionDetector {
	def := DefaultMotionConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.BlurSize <= 0 || cfg.BlurSize%2 == 0 {
		cfg.BlurSize = def.BlurSize
	}
	if cfg.PixelDelta <= 0 {
		cfg.PixelDelta = def.PixelDelta
	}
	return &MotionDetector{cfg: cfg, prevGray: gocv.NewMat()}
}

// Detect compares frame with the previous one and reports whether the
// changed-pixel percentage exceeds the threshold. The first frame after
// construction or Reset only sets the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	k := m.cfg.BlurSize
	gocv.GaussianBlur(gray, &blurred, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)

	if !m.initialized {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, m.cfg.PixelDelta, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0
	blurred.CopyTo(&m.prevGray)

	return changed > m.cfg.Threshold, changed
}

// Threshold returns the current change threshold in percent.
func (m *MotionDetector) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Threshold
}

// SetThreshold sets the change threshold. Values <= 0 are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	m.mu.Lock()
	m.cfg.Threshold = threshold
	m.mu.Unlock()
}

// Reset forgets the baseline frame.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

// Close releases the baseline Mat. The detector stays usable.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *MotionDetector) release() {
	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.initialized = false
}
