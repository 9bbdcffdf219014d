package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/gestureflow/internal/action"
	"github.com/ayusman/gestureflow/internal/logging"
)

var (
	// ErrActionFailed is returned when a plugin reports success=false.
	ErrActionFailed = errors.New("plugin reported failure")
	// ErrUnsupportedAction is returned when no plugin handles a step.
	ErrUnsupportedAction = errors.New("unsupported action")
)

// Config routes step kinds to plugins.
type Config struct {
	Dir     string                 `yaml:"dir"`
	Timeout time.Duration          `yaml:"timeout"`
	Routes  map[action.Kind]string `yaml:"routes"`
	// Settings is passed to each plugin as the request config, keyed by plugin name.
	Settings map[string]json.RawMessage `yaml:"-"`
}

// DefaultConfig routes key, mouse and launch steps to the bundled plugins.
func DefaultConfig() Config {
	return Config{
		Dir:     "plugins",
		Timeout: 5 * time.Second,
		Routes: map[action.Kind]string{
			action.KindKey:    "keyboard",
			action.KindMouse:  "mouse",
			action.KindLaunch: "launcher",
		},
	}
}

// Actuator executes action steps by handing them to the plugin registered
// for the step's kind.
type Actuator struct {
	manager  *Manager
	executor *Executor
	routes   map[action.Kind]string
	config   map[string]json.RawMessage
	log      *logging.Logger
}

// NewActuator creates an Actuator over a discovered Manager.
func NewActuator(cfg Config, manager *Manager, log *logging.Logger) *Actuator {
	if log == nil {
		log = logging.Discard()
	}
	routes := cfg.Routes
	if len(routes) == 0 {
		routes = DefaultConfig().Routes
	}
	return &Actuator{
		manager:  manager,
		executor: NewExecutor(cfg.Timeout),
		routes:   routes,
		config:   cfg.Settings,
		log:      log.With("plugin"),
	}
}

// Execute runs step through its plugin. Wait steps are a no-op.
func (a *Actuator) Execute(ctx context.Context, step action.Step) error {
	if step.Type == action.KindWait {
		return nil
	}

	name, ok := a.routes[step.Type]
	if !ok {
		return fmt.Errorf("%w: no plugin for %q steps", ErrUnsupportedAction, step.Type)
	}
	p, err := a.manager.Get(name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	sub := step.Subtype()
	if !p.Manifest.Supports(sub) {
		return fmt.Errorf("%w: %s does not handle %q", ErrUnsupportedAction, name, sub)
	}

	params, err := json.Marshal(step.Payload())
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", sub, err)
	}
	cfg := a.config[name]
	if cfg == nil {
		cfg = json.RawMessage("{}")
	}

	req := &Request{
		Action:  sub,
		Gesture: action.GestureFrom(ctx),
		Config:  cfg,
		Params:  params,
	}

	a.log.Debugf("executing %s via %s", step, name)
	resp, err := a.executor.Execute(ctx, p, req)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s: %s", ErrActionFailed, name, resp.Error)
	}
	return nil
}
