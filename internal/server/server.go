// Package server provides the local HTTP control API of GestureFlow.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ayusman/gestureflow/internal/classifier"
	"github.com/ayusman/gestureflow/internal/logging"
	"github.com/ayusman/gestureflow/internal/profile"
	"github.com/ayusman/gestureflow/internal/server/api"
	"github.com/ayusman/gestureflow/internal/store"
)

// Config holds the server configuration. Route groups whose collaborators
// are nil are not registered.
type Config struct {
	Addr      string
	StaticDir string

	Store     *store.Store
	Profiles  *profile.Service
	Trainer   *classifier.Trainer
	Templates *classifier.TemplateClassifier
	Control   api.Controller
	Events    *EventHub
	Logger    *logging.Logger
}

// Server is the HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	log    *logging.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    config.Logger.With("server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Profiles != nil {
		h := api.NewProfileHandler(s.config.Profiles)
		s.mux.Handle("/api/profiles", h)
		s.mux.Handle("/api/profiles/", h)
	}

	if s.config.Store != nil {
		trainer := s.config.Trainer
		if trainer == nil {
			trainer = classifier.NewTrainer(classifier.DefaultTrainerConfig())
		}
		h := api.NewGestureHandler(s.config.Store, trainer, s.config.Templates)
		s.mux.Handle("/api/gestures", h)
		s.mux.Handle("/api/gestures/", h)
	}

	if s.config.Control != nil {
		plans := api.NewPlanHandler(s.config.Control)
		s.mux.Handle("/api/plans", plans)
		s.mux.Handle("/api/plans/", plans)
		s.mux.Handle("/api/recognition", api.NewRecognitionHandler(s.config.Control))
	}

	if s.config.Events != nil {
		s.mux.Handle("/api/events", s.config.Events)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	}
	if p := s.activeProfile(); p != "" {
		response["profile"] = p
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

func (s *Server) activeProfile() string {
	if s.config.Profiles == nil {
		return ""
	}
	if p := s.config.Profiles.Active(); p != nil {
		return p.Name
	}
	return ""
}

// Run serves on config.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infof("listening on http://%s", s.config.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	if s.config.Events != nil {
		s.config.Events.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
