package classifier

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/gestureflow/internal/detector"
)

// ErrNotEnoughSamples is returned when training has too few valid samples.
var ErrNotEnoughSamples = errors.New("not enough samples")

// TrainerConfig holds training parameters.
type TrainerConfig struct {
	MinSamples int
	// StdFloor bounds per-feature spread from below so a perfectly steady
	// feature does not make every other pose infinitely far.
	StdFloor  float64
	Threshold float64
}

// DefaultTrainerConfig returns the default training parameters.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		MinSamples: 5,
		StdFloor:   0.1,
		Threshold:  2.0,
	}
}

// Trainer turns recorded feature vectors into templates.
type Trainer struct {
	cfg TrainerConfig
}

// NewTrainer creates a new Trainer instance.
func NewTrainer(cfg TrainerConfig) *Trainer {
	return &Trainer{cfg: cfg}
}

// Train builds a template for label from feature vectors. Invalid vectors
// are skipped. The template's Accuracy is the leave-one-out rate at which a
// held-out sample still falls within the threshold.
func (t *Trainer) Train(label string, samples [][]float64) (*Template, error) {
	valid := make([][]float64, 0, len(samples))
	for _, s := range samples {
		if detector.ValidFeatures(s) {
			valid = append(valid, s)
		}
	}
	if len(valid) < t.cfg.MinSamples {
		return nil, fmt.Errorf("%w: need at least %d, have %d", ErrNotEnoughSamples, t.cfg.MinSamples, len(valid))
	}

	mean, std := meanStd(valid)
	scale := make([]float64, len(std))
	for i, s := range std {
		scale[i] = s
		if s == 0 {
			scale[i] = 1
		}
	}

	scaled := make([][]float64, len(valid))
	for i, s := range valid {
		scaled[i] = standardise(s, mean, scale)
	}
	_, spread := meanStd(scaled)
	floor(spread, t.cfg.StdFloor)

	tmpl := &Template{
		Label:     label,
		Name:      label,
		Mean:      mean,
		Scale:     scale,
		Std:       spread,
		Threshold: t.cfg.Threshold,
		Samples:   len(valid),
	}
	tmpl.Accuracy = t.leaveOneOut(scaled)
	return tmpl, nil
}

// TrainLandmarks builds a template from raw landmark vectors as recorded by
// the capture loop. Vectors that do not decode are skipped.
func (t *Trainer) TrainLandmarks(label string, vectors [][]float64) (*Template, error) {
	feats := make([][]float64, 0, len(vectors))
	for _, v := range vectors {
		f, err := features(v)
		if err != nil {
			continue
		}
		feats = append(feats, f)
	}
	return t.Train(label, feats)
}

func (t *Trainer) leaveOneOut(scaled [][]float64) float64 {
	if len(scaled) < 2 {
		return 0
	}
	correct := 0
	rest := make([][]float64, 0, len(scaled)-1)
	for i := range scaled {
		rest = rest[:0]
		rest = append(rest, scaled[:i]...)
		rest = append(rest, scaled[i+1:]...)

		m, s := meanStd(rest)
		floor(s, t.cfg.StdFloor)

		var sum float64
		for j, x := range scaled[i] {
			d := (x - m[j]) / s[j]
			sum += d * d
		}
		if math.Sqrt(sum/float64(len(scaled[i]))) <= t.cfg.Threshold {
			correct++
		}
	}
	return float64(correct) / float64(len(scaled))
}

// Similarity returns the cosine similarity of two templates' mean poses,
// clamped to [0,1].
func Similarity(a, b *Template) float64 {
	if len(a.Mean) == 0 || len(a.Mean) != len(b.Mean) {
		return 0
	}
	var dot, na, nb float64
	for i := range a.Mean {
		dot += a.Mean[i] * b.Mean[i]
		na += a.Mean[i] * a.Mean[i]
		nb += b.Mean[i] * b.Mean[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return math.Max(0, math.Min(1, dot/(math.Sqrt(na)*math.Sqrt(nb))))
}

// meanStd returns the per-column mean and population standard deviation.
func meanStd(rows [][]float64) (mean, std []float64) {
	n := float64(len(rows))
	dim := len(rows[0])
	mean = make([]float64, dim)
	std = make([]float64, dim)
	for _, r := range rows {
		for i, x := range r {
			mean[i] += x
		}
	}
	for i := range mean {
		mean[i] /= n
	}
	for _, r := range rows {
		for i, x := range r {
			d := x - mean[i]
			std[i] += d * d
		}
	}
	for i := range std {
		std[i] = math.Sqrt(std[i] / n)
	}
	return mean, std
}

func standardise(v, mean, scale []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - mean[i]) / scale[i]
	}
	return out
}

func floor(v []float64, lo float64) {
	for i := range v {
		if v[i] < lo {
			v[i] = lo
		}
	}
}
