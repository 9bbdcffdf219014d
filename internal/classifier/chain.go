package classifier

import (
	"errors"
	"fmt"
	"math"
)

// Stage is one classifier in a Chain. Boost is added to its confidence
// when comparing against other stages.
type Stage struct {
	Name       string
	Classifier Classifier
	Boost      float64
}

// Chain asks every stage and keeps the highest boosted confidence. On ties
// the earlier stage wins. A stage that errors is skipped; if every stage
// errors the chain returns ErrUnavailable.
type Chain struct {
	stages        []Stage
	minConfidence float64
}

// NewChain creates a chain. Results below minConfidence are reported as no gesture.
func NewChain(minConfidence float64, stages ...Stage) *Chain {
	return &Chain{stages: stages, minConfidence: minConfidence}
}

// Classify implements Classifier.
func (c *Chain) Classify(vector []float64) (Result, error) {
	best := None
	var errs []error
	for _, s := range c.stages {
		if s.Classifier == nil {
			continue
		}
		r, err := s.Classifier.Classify(vector)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		if r.Label == "" {
			continue
		}
		r.Confidence = math.Min(1, r.Confidence+s.Boost)
		if r.Source == "" {
			r.Source = s.Name
		}
		if r.Confidence > best.Confidence {
			best = r
		}
	}

	if best.Label == "" && len(errs) > 0 && len(errs) == c.active() {
		return None, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
	}
	if best.Confidence < c.minConfidence {
		return None, nil
	}
	return best, nil
}

func (c *Chain) active() int {
	n := 0
	for _, s := range c.stages {
		if s.Classifier != nil {
			n++
		}
	}
	return n
}
