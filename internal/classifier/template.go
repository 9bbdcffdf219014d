package classifier

import (
	"math"
	"sort"
	"sync"
)

// Template is a trained custom gesture: per-feature statistics of the
// recorded samples.
type Template struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Name  string `json:"name"`
	// Mean and Scale standardise a feature vector.
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
	// Std is the spread of the standardised samples, floored.
	Std       []float64 `json:"std"`
	Threshold float64   `json:"threshold"`
	Samples   int       `json:"samples"`
	Accuracy  float64   `json:"accuracy"`
}

// Distance returns the RMS standardised distance of f from the template,
// in units of the per-feature spread.
func (t *Template) Distance(f []float64) float64 {
	if len(f) != len(t.Mean) || len(f) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i, x := range f {
		z := (x - t.Mean[i]) / t.Scale[i]
		d := z / t.Std[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(f)))
}

// Confidence maps a distance to [0,1]; 1 at the template, 0 at the threshold.
func (t *Template) Confidence(distance float64) float64 {
	if t.Threshold <= 0 || distance > t.Threshold {
		return 0
	}
	return math.Max(0, 1-distance/t.Threshold)
}

// TemplateClassifier matches feature vectors against trained templates.
// It is safe for concurrent use; templates can be replaced while classifying.
type TemplateClassifier struct {
	MinConfidence float64

	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateClassifier creates an empty classifier.
func NewTemplateClassifier(minConfidence float64) *TemplateClassifier {
	return &TemplateClassifier{
		MinConfidence: minConfidence,
		templates:     make(map[string]*Template),
	}
}

// Set adds or replaces the template for t.Label.
func (c *TemplateClassifier) Set(t *Template) {
	if t == nil || t.Label == "" {
		return
	}
	c.mu.Lock()
	c.templates[t.Label] = t
	c.mu.Unlock()
}

// Remove deletes the template for label.
func (c *TemplateClassifier) Remove(label string) {
	c.mu.Lock()
	delete(c.templates, label)
	c.mu.Unlock()
}

// Len returns the number of templates.
func (c *TemplateClassifier) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.templates)
}

// Labels returns the template labels in sorted order.
func (c *TemplateClassifier) Labels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.templates))
	for l := range c.templates {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Classify implements Classifier.
func (c *TemplateClassifier) Classify(vector []float64) (Result, error) {
	f, err := features(vector)
	if err != nil {
		return None, err
	}
	return c.ClassifyFeatures(f), nil
}

// ClassifyFeatures returns the best template match for a feature vector.
func (c *TemplateClassifier) ClassifyFeatures(f []float64) Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	best := None
	for _, label := range sortedKeys(c.templates) {
		t := c.templates[label]
		conf := t.Confidence(t.Distance(f))
		if conf > best.Confidence && conf >= c.MinConfidence {
			best = Result{Label: label, Confidence: conf, Source: "template"}
		}
	}
	return best
}

func sortedKeys(m map[string]*Template) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
