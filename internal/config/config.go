// Package config loads the daemon configuration from a YAML file, a .env
// file and GESTUREFLOW_* environment variables, in that order of precedence
// from lowest to highest.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/gestureflow/internal/action"
	"github.com/ayusman/gestureflow/internal/capture"
	"github.com/ayusman/gestureflow/internal/classifier"
	"github.com/ayusman/gestureflow/internal/detector"
	"github.com/ayusman/gestureflow/internal/logging"
	"github.com/ayusman/gestureflow/internal/macro"
	"github.com/ayusman/gestureflow/internal/plugin"
	"github.com/ayusman/gestureflow/internal/profile"
	"github.com/ayusman/gestureflow/internal/recognition"
)

// Environment variables that override the file.
const (
	EnvDataDir  = "GESTUREFLOW_DATA_DIR"
	EnvAddr     = "GESTUREFLOW_ADDR"
	EnvLogLevel = "GESTUREFLOW_LOG_LEVEL"
	EnvLogFile  = "GESTUREFLOW_LOG_FILE"
	EnvPlugins  = "GESTUREFLOW_PLUGIN_DIR"
	EnvTray     = "GESTUREFLOW_TRAY"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config is the complete daemon configuration.
type Config struct {
	DataDir     string               `yaml:"data_dir"`
	Camera      capture.CameraConfig `yaml:"camera"`
	Capture     capture.SourceConfig `yaml:"capture"`
	Detector    detector.Config      `yaml:"detector"`
	Classifier  ClassifierConfig     `yaml:"classifier"`
	Recognition RecognitionConfig    `yaml:"recognition"`
	Scheduler   SchedulerConfig      `yaml:"scheduler"`
	Actions     ActionsConfig        `yaml:"actions"`
	Plugins     PluginsConfig        `yaml:"plugins"`
	Profiles    profile.Config       `yaml:"profiles"`
	Server      ServerConfig         `yaml:"server"`
	Tray        TrayConfig           `yaml:"tray"`
	Notify      NotifyConfig         `yaml:"notifications"`
	Logging     LoggingConfig        `yaml:"logging"`
}

// ClassifierConfig selects and tunes the classifier chain.
type ClassifierConfig struct {
	MinConfidence   float64 `yaml:"min_confidence"`
	PredefinedBoost float64 `yaml:"predefined_boost"`
	Rules           bool    `yaml:"rules"`
	// ONNX is used when ModelPath is set.
	ONNX    classifier.ONNXConfig `yaml:"onnx"`
	Trainer TrainerConfig         `yaml:"trainer"`
}

// TrainerConfig tunes template training.
type TrainerConfig struct {
	MinSamples int     `yaml:"min_samples"`
	StdFloor   float64 `yaml:"std_floor"`
	Threshold  float64 `yaml:"threshold"`
}

// RecognitionConfig tunes the debouncer.
type RecognitionConfig struct {
	Threshold       float64       `yaml:"threshold"`
	Required        int           `yaml:"required"`
	Window          int           `yaml:"window"`
	Release         int           `yaml:"release"`
	Cooldown        time.Duration `yaml:"cooldown"`
	RepeatWhileHeld bool          `yaml:"repeat_while_held"`
	RepeatInterval  time.Duration `yaml:"repeat_interval"`
	// EventBuffer bounds the queue between recognition and dispatch.
	EventBuffer int `yaml:"event_buffer"`
}

// SchedulerConfig tunes macro execution.
type SchedulerConfig struct {
	StepTimeout     time.Duration `yaml:"step_timeout"`
	FailurePolicy   string        `yaml:"failure_policy"`
	DuplicatePolicy string        `yaml:"duplicate_policy"`
	QueueLimit      int           `yaml:"queue_limit"`
	SwitchPolicy    string        `yaml:"switch_policy"`
	HistorySize     int           `yaml:"history_size"`
}

// ActionsConfig bounds what a mapping may contain.
type ActionsConfig struct {
	EnabledKinds  []string `yaml:"enabled_kinds"`
	MaxSteps      int      `yaml:"max_steps"`
	MaxLoops      int      `yaml:"max_loops"`
	AllowForever  bool     `yaml:"allow_until_cancelled"`
	MaxTextLength int      `yaml:"max_text_length"`
	MaxCoordinate int      `yaml:"max_coordinate"`
	DangerousKeys []string `yaml:"dangerous_keys"`
	AllowedPaths  []string `yaml:"allowed_paths"`
	BlockedPaths  []string `yaml:"blocked_paths"`
	MaxDelayMs    int      `yaml:"max_delay_ms"`
	MaxWaitMs     int      `yaml:"max_wait_ms"`
}

// PluginsConfig locates plugins and routes step kinds to them.
type PluginsConfig struct {
	Dir     string            `yaml:"dir"`
	Timeout time.Duration     `yaml:"timeout"`
	Routes  map[string]string `yaml:"routes"`
	// Settings is handed to each plugin as its request config.
	Settings map[string]map[string]any `yaml:"settings"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// TrayConfig configures the menu bar icon.
type TrayConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NotifyConfig configures notification delivery.
type NotifyConfig struct {
	Desktop     bool          `yaml:"desktop"`
	MinInterval time.Duration `yaml:"min_interval"`
	Buffer      int           `yaml:"buffer"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	rec := recognition.DefaultConfig()
	sched := macro.DefaultConfig()
	limits := action.DefaultLimits()
	tr := classifier.DefaultTrainerConfig()
	plug := plugin.DefaultConfig()

	kinds := make([]string, len(limits.EnabledKinds))
	for i, k := range limits.EnabledKinds {
		kinds[i] = string(k)
	}
	routes := make(map[string]string, len(plug.Routes))
	for k, v := range plug.Routes {
		routes[string(k)] = v
	}

	return Config{
		DataDir:  defaultDataDir(),
		Camera:   capture.DefaultCameraConfig(),
		Capture:  capture.DefaultSourceConfig(),
		Detector: detector.DefaultConfig(),
		Classifier: ClassifierConfig{
			MinConfidence:   0.6,
			PredefinedBoost: 0.1,
			Rules:           true,
			Trainer: TrainerConfig{
				MinSamples: tr.MinSamples,
				StdFloor:   tr.StdFloor,
				Threshold:  tr.Threshold,
			},
		},
		Recognition: RecognitionConfig{
			Threshold:       rec.Threshold,
			Required:        rec.Required,
			Window:          rec.Window,
			Release:         rec.Release,
			Cooldown:        rec.Cooldown,
			RepeatWhileHeld: rec.RepeatWhileHeld,
			RepeatInterval:  rec.RepeatInterval,
			EventBuffer:     16,
		},
		Scheduler: SchedulerConfig{
			StepTimeout:     sched.StepTimeout,
			FailurePolicy:   string(sched.FailurePolicy),
			DuplicatePolicy: string(sched.DuplicatePolicy),
			QueueLimit:      sched.QueueLimit,
			SwitchPolicy:    string(sched.SwitchPolicy),
			HistorySize:     sched.HistorySize,
		},
		Actions: ActionsConfig{
			EnabledKinds:  kinds,
			MaxSteps:      limits.MaxSteps,
			MaxLoops:      limits.MaxLoops,
			AllowForever:  limits.AllowForever,
			MaxTextLength: limits.MaxTextLength,
			MaxCoordinate: limits.MaxCoordinate,
			DangerousKeys: limits.DangerousKeys,
			MaxDelayMs:    limits.MaxDelayMs,
			MaxWaitMs:     limits.MaxWaitMs,
		},
		Plugins: PluginsConfig{
			Dir:     plug.Dir,
			Timeout: plug.Timeout,
			Routes:  routes,
		},
		Profiles: profile.DefaultConfig(),
		Server:   ServerConfig{Addr: "127.0.0.1:8080"},
		Tray:     TrayConfig{Enabled: true},
		Notify:   NotifyConfig{Desktop: true, MinInterval: 3 * time.Second, Buffer: 64},
		Logging:  LoggingConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gestureflow"
	}
	return filepath.Join(home, ".gestureflow")
}

// Load reads path over the defaults, applies .env and environment
// overrides, and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config YAML: %w", err)
			}
		}
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDataDir); ok && v != "" {
		c.DataDir = v
	}
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvLogFile); ok {
		c.Logging.File = v
	}
	if v, ok := lookup(EnvPlugins); ok && v != "" {
		c.Plugins.Dir = v
	}
	if v, ok := lookup(EnvTray); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, EnvTray, v)
		}
		c.Tray.Enabled = b
	}
	return nil
}

// Validate checks every section that has rules of its own.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", ErrInvalid)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalid)
	}
	if c.Classifier.MinConfidence < 0 || c.Classifier.MinConfidence > 1 {
		return fmt.Errorf("%w: classifier.min_confidence %.2f outside [0,1]", ErrInvalid, c.Classifier.MinConfidence)
	}
	if c.Recognition.EventBuffer < 1 {
		return fmt.Errorf("%w: recognition.event_buffer must be at least 1", ErrInvalid)
	}
	if err := c.RecognitionConfig().Validate(); err != nil {
		return err
	}
	if err := c.SchedulerConfig().Validate(); err != nil {
		return err
	}
	for _, k := range c.Actions.EnabledKinds {
		switch action.Kind(k) {
		case action.KindKey, action.KindMouse, action.KindLaunch, action.KindWait:
		default:
			return fmt.Errorf("%w: unknown action kind %q", ErrInvalid, k)
		}
	}
	for k := range c.Plugins.Routes {
		switch action.Kind(k) {
		case action.KindKey, action.KindMouse, action.KindLaunch:
		default:
			return fmt.Errorf("%w: cannot route %q steps to a plugin", ErrInvalid, k)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file inside DataDir.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "gestureflow.db")
}

// LogLevel returns the parsed logging level.
func (c Config) LogLevel() logging.Level {
	return logging.ParseLevel(c.Logging.Level)
}

// RecognitionConfig converts the recognition section.
func (c Config) RecognitionConfig() recognition.Config {
	r := c.Recognition
	return recognition.Config{
		Threshold:       r.Threshold,
		Required:        r.Required,
		Window:          r.Window,
		Release:         r.Release,
		Cooldown:        r.Cooldown,
		RepeatWhileHeld: r.RepeatWhileHeld,
		RepeatInterval:  r.RepeatInterval,
	}
}

// SchedulerConfig converts the scheduler section.
func (c Config) SchedulerConfig() macro.Config {
	s := c.Scheduler
	return macro.Config{
		StepTimeout:     s.StepTimeout,
		FailurePolicy:   macro.FailurePolicy(s.FailurePolicy),
		DuplicatePolicy: macro.DuplicatePolicy(s.DuplicatePolicy),
		QueueLimit:      s.QueueLimit,
		SwitchPolicy:    macro.SwitchPolicy(s.SwitchPolicy),
		HistorySize:     s.HistorySize,
	}
}

// Limits converts the actions section.
func (c Config) Limits() action.Limits {
	a := c.Actions
	kinds := make([]action.Kind, len(a.EnabledKinds))
	for i, k := range a.EnabledKinds {
		kinds[i] = action.Kind(k)
	}
	return action.Limits{
		EnabledKinds:  kinds,
		MaxSteps:      a.MaxSteps,
		MaxLoops:      a.MaxLoops,
		AllowForever:  a.AllowForever,
		MaxTextLength: a.MaxTextLength,
		MaxCoordinate: a.MaxCoordinate,
		DangerousKeys: a.DangerousKeys,
		AllowedPaths:  a.AllowedPaths,
		BlockedPaths:  a.BlockedPaths,
		MaxDelayMs:    a.MaxDelayMs,
		MaxWaitMs:     a.MaxWaitMs,
	}
}

// TrainerConfig converts the trainer section.
func (c Config) TrainerConfig() classifier.TrainerConfig {
	t := c.Classifier.Trainer
	return classifier.TrainerConfig{
		MinSamples: t.MinSamples,
		StdFloor:   t.StdFloor,
		Threshold:  t.Threshold,
	}
}

// PluginConfig converts the plugins section. A relative plugin directory
// is resolved against DataDir when it does not exist in the working
// directory.
func (c Config) PluginConfig() (plugin.Config, error) {
	p := c.Plugins
	out := plugin.Config{
		Dir:      p.Dir,
		Timeout:  p.Timeout,
		Routes:   make(map[action.Kind]string, len(p.Routes)),
		Settings: make(map[string]json.RawMessage, len(p.Settings)),
	}
	if !filepath.IsAbs(out.Dir) {
		if _, err := os.Stat(out.Dir); err != nil {
			out.Dir = filepath.Join(c.DataDir, out.Dir)
		}
	}
	for k, v := range p.Routes {
		out.Routes[action.Kind(k)] = v
	}
	for name, settings := range p.Settings {
		raw, err := json.Marshal(settings)
		if err != nil {
			return out, fmt.Errorf("plugin %s settings: %w", name, err)
		}
		out.Settings[name] = raw
	}
	return out, nil
}

// DetectorConfig returns the detector section with DataDir filled in.
func (c Config) DetectorConfig() detector.Config {
	d := c.Detector
	d.DataDir = c.DataDir
	return d
}

// ProfileConfig returns the profiles section. A relative watch directory
// lives under DataDir.
func (c Config) ProfileConfig() profile.Config {
	p := c.Profiles
	if p.WatchDir != "" && !filepath.IsAbs(p.WatchDir) {
		p.WatchDir = filepath.Join(c.DataDir, p.WatchDir)
	}
	return p
}
