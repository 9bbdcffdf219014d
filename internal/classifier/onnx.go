package classifier

import (
	"errors"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/ayusman/gestureflow/internal/detector"
)

// ONNXConfig describes an exported gesture model. The model takes a
// [1, 42] float32 feature tensor and returns [1, len(Labels)] scores.
type ONNXConfig struct {
	LibraryPath string   `yaml:"library_path"`
	ModelPath   string   `yaml:"model_path"`
	Labels      []string `yaml:"labels"`
	InputName   string   `yaml:"input_name"`
	OutputName  string   `yaml:"output_name"`
	// Softmax converts raw logits to probabilities.
	Softmax       bool    `yaml:"softmax"`
	MinConfidence float64 `yaml:"min_confidence"`
}

var (
	ortOnce sync.Once
	ortErr  error
)

func initRuntime(libraryPath string) error {
	ortOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ONNXClassifier runs a gesture model through ONNX Runtime.
type ONNXClassifier struct {
	cfg ONNXConfig

	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewONNXClassifier loads the model and allocates its tensors.
func NewONNXClassifier(cfg ONNXConfig) (*ONNXClassifier, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("onnx: model path is required")
	}
	if len(cfg.Labels) == 0 {
		return nil, errors.New("onnx: labels are required")
	}
	if cfg.InputName == "" {
		cfg.InputName = "input"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output"
	}
	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("onnx: initialize runtime: %w", err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, detector.FeatureSize))
	if err != nil {
		return nil, fmt.Errorf("onnx: input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(cfg.Labels))))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("onnx: output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("onnx: load %s: %w", cfg.ModelPath, err)
	}

	return &ONNXClassifier{cfg: cfg, session: session, input: input, output: output}, nil
}

// Classify implements Classifier.
func (c *ONNXClassifier) Classify(vector []float64) (Result, error) {
	f, err := features(vector)
	if err != nil {
		return None, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return None, fmt.Errorf("%w: onnx classifier closed", ErrUnavailable)
	}

	in := c.input.GetData()
	for i, x := range f {
		in[i] = float32(x)
	}
	if err := c.session.Run(); err != nil {
		return None, fmt.Errorf("%w: onnx run: %v", ErrUnavailable, err)
	}

	scores := make([]float64, len(c.cfg.Labels))
	for i, s := range c.output.GetData()[:len(scores)] {
		scores[i] = float64(s)
	}
	return pickLabel(scores, c.cfg.Labels, c.cfg.Softmax, c.cfg.MinConfidence), nil
}

// Close releases the session and tensors.
func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.input.Destroy()
	c.output.Destroy()
	c.session = nil
	return err
}

// pickLabel returns the arg-max label when its score reaches minConfidence.
func pickLabel(scores []float64, labels []string, softmax bool, minConfidence float64) Result {
	if softmax {
		scores = softmaxOf(scores)
	}
	best := -1
	for i, s := range scores {
		if best < 0 || s > scores[best] {
			best = i
		}
	}
	if best < 0 || scores[best] < minConfidence || labels[best] == "" {
		return None
	}
	return Result{Label: labels[best], Confidence: math.Min(1, scores[best]), Source: "onnx"}
}

func softmaxOf(logits []float64) []float64 {
	out := make([]float64, len(logits))
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = math.Max(maxLogit, l)
	}
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
