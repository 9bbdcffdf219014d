package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/gestureflow/internal/action"
	"github.com/ayusman/gestureflow/internal/app"
	"github.com/ayusman/gestureflow/internal/capture"
	"github.com/ayusman/gestureflow/internal/classifier"
	"github.com/ayusman/gestureflow/internal/config"
	"github.com/ayusman/gestureflow/internal/detector"
	"github.com/ayusman/gestureflow/internal/logging"
	"github.com/ayusman/gestureflow/internal/mapping"
	"github.com/ayusman/gestureflow/internal/notify"
	"github.com/ayusman/gestureflow/internal/plugin"
	"github.com/ayusman/gestureflow/internal/profile"
	"github.com/ayusman/gestureflow/internal/server"
	"github.com/ayusman/gestureflow/internal/store"
	"github.com/ayusman/gestureflow/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: <data dir>/config.yaml)")
	noCamera := flag.Bool("no-camera", false, "run without camera capture")
	flag.Parse()

	fmt.Println("GestureFlow - Hand Gesture Control")

	path := *configPath
	if path == "" {
		path = filepath.Join(config.Default().DataDir, "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel())
	if cfg.Logging.File != "" {
		logger, err = logging.NewFile(cfg.Logging.File, cfg.LogLevel())
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
	}
	defer logger.Close()

	if err := run(cfg, logger, !*noCamera); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *logging.Logger, withCamera bool) error {
	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	// Profiles
	validator := action.NewValidator(cfg.Limits())
	engine := mapping.NewEngine(nil)
	profiles := profile.NewService(cfg.ProfileConfig(), st, engine, validator, logger)
	active, err := profiles.Load()
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	logger.Infof("active profile: %s (%d mappings)", active.Name, active.Len())

	// Classifiers
	templates := classifier.NewTemplateClassifier(cfg.Classifier.MinConfidence)
	n, err := app.LoadTemplates(st, templates)
	if err != nil {
		return fmt.Errorf("load gesture templates: %w", err)
	}
	logger.Infof("loaded %d custom gestures", n)

	var stages []classifier.Stage
	if cfg.Classifier.Rules {
		stages = append(stages, classifier.Stage{Name: "rules", Classifier: classifier.NewRuleClassifier(), Boost: cfg.Classifier.PredefinedBoost})
	}
	stages = append(stages, classifier.Stage{Name: "templates", Classifier: templates})
	if cfg.Classifier.ONNX.ModelPath != "" {
		model, err := classifier.NewONNXClassifier(cfg.Classifier.ONNX)
		if err != nil {
			logger.Warnf("onnx classifier disabled: %v", err)
		} else {
			defer model.Close()
			stages = append(stages, classifier.Stage{Name: "onnx", Classifier: model})
		}
	}
	chain := classifier.NewChain(cfg.Classifier.MinConfidence, stages...)

	// Actions
	pcfg, err := cfg.PluginConfig()
	if err != nil {
		return err
	}
	plugins := plugin.NewManager(pcfg.Dir)
	if err := plugins.Discover(); err != nil {
		return fmt.Errorf("discover plugins: %w", err)
	}
	for _, p := range plugins.List() {
		logger.Debugf("plugin %s %s", p.Manifest.Name, p.Manifest.Version)
	}
	for _, skipped := range plugins.Skipped() {
		logger.Warnf("skipped plugin: %s", skipped)
	}
	actuator := plugin.NewActuator(pcfg, plugins, logger)

	// Notifications
	hub := server.NewEventHub(logger)
	var tr *tray.Tray
	sinks := notify.Multi{notify.Log{Logger: logger.With("notify")}, hub}
	if cfg.Notify.Desktop && runtime.GOOS == "darwin" {
		sinks = append(sinks, notify.NewDesktop("GestureFlow", cfg.Notify.MinInterval))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var a *app.App
	if cfg.Tray.Enabled {
		tr = tray.New(tray.Callbacks{
			Toggle:        func(enabled bool) { a.SetEnabled(enabled) },
			EmergencyStop: func() { a.EmergencyStop() },
			Resume:        func() { a.Resume() },
			Activate: func(id string) {
				if _, err := profiles.Activate(id); err != nil {
					logger.Warnf("activate profile: %v", err)
				}
			},
			Settings: func() { openBrowser("http://" + cfg.Server.Addr) },
			Quit:     stop,
		}, profiles.List)
		tr.SetProfile(active)
		sinks = append(sinks, tr)
	}
	notifier := notify.NewAsync(sinks, cfg.Notify.Buffer, logger.With("notify"))
	defer notifier.Close()

	// Capture
	var source capture.SampleSource
	if withCamera {
		det, err := detector.NewMediaPipeDetector(cfg.DetectorConfig())
		if err != nil {
			logger.Warnf("hand detection unavailable, running without camera: %v", err)
		} else {
			defer det.Close()
			var motion *capture.MotionDetector
			if !cfg.Capture.AlwaysActive {
				motion = capture.NewMotionDetector(cfg.Capture.Motion)
				defer motion.Close()
			}
			source = capture.NewSource(cfg.Capture, capture.NewCamera(cfg.Camera), motion, det, logger)
		}
	}

	var background []app.Runner
	if cfg.ProfileConfig().WatchDir != "" {
		background = append(background, profile.NewWatcher(profiles))
	}

	a, err = app.New(app.Config{
		Recognition: cfg.RecognitionConfig(),
		Scheduler:   cfg.SchedulerConfig(),
		EventBuffer: cfg.Recognition.EventBuffer,
		Source:      source,
		Classifier:  chain,
		Executor:    actuator,
		Profiles:    profiles,
		Validator:   validator,
		Notifier:    notifier,
		Logger:      logger,
		Background:  background,
	})
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:      cfg.Server.Addr,
		StaticDir: findWebDir(cfg.Server.StaticDir, cfg.DataDir),
		Store:     st,
		Profiles:  profiles,
		Trainer:   classifier.NewTrainer(cfg.TrainerConfig()),
		Templates: templates,
		Control:   a,
		Events:    hub,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	if tr != nil {
		// The tray owns the main thread until quit.
		go func() {
			<-gctx.Done()
			tr.Quit()
		}()
		tr.Run()
		stop()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Infof("shut down")
	return nil
}

// findWebDir returns configured if set, else the first web directory found
// next to the working directory or under dataDir.
func findWebDir(configured, dataDir string) string {
	if configured != "" {
		return configured
	}
	for _, p := range []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

func openBrowser(url string) {
	cmd := "xdg-open"
	if runtime.GOOS == "darwin" {
		cmd = "open"
	}
	exec.Command(cmd, url).Start()
}
