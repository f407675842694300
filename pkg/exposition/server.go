package exposition

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/meterhub/meterhub/pkg/metrics"
)

const contentTypeText = "text/plain; version=0.0.4; charset=utf-8"

// ServerConfig configures the scrape endpoint.
type ServerConfig struct {
	Address        string
	Port           int
	Path           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	StreamInterval time.Duration
}

// Registry is the snapshot source the server exposes. *metrics.Registry
// satisfies it.
type Registry interface {
	Gather() []metrics.FamilySamples
}

// Server serves registry snapshots over HTTP: the scrape path in text or JSON
// form, a health endpoint, and a WebSocket stream of periodic snapshots.
type Server struct {
	config   ServerConfig
	tracer   trace.Tracer
	streamer *Streamer
	router   *mux.Router
}

// NewServer creates the exposition server for a registry. Extra mux
// middleware (request timing, tracing) is applied to every route.
func NewServer(cfg ServerConfig, registry Registry, middleware ...mux.MiddlewareFunc) *Server {
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 5 * time.Second
	}

	s := &Server{
		config:   cfg,
		tracer:   otel.Tracer("meterhub/exposition"),
		streamer: NewStreamer(registry, cfg.StreamInterval),
	}

	r := mux.NewRouter()
	r.Use(middleware...)
	r.HandleFunc(cfg.Path, s.handleScrape(registry)).Methods(http.MethodGet)
	r.HandleFunc(cfg.Path+"/stream", s.streamer.HandleStream).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	s.router = r
	return s
}

// Router returns the server's router, mainly for tests.
func (s *Server) Router() *mux.Router { return s.router }

// UseTaskRunner routes periodic stream broadcasts through submit, typically a
// worker pool's Submit. Must be called before Start.
func (s *Server) UseTaskRunner(submit func(func()) error) {
	s.streamer.submit = submit
}

func (s *Server) handleScrape(registry Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		_, span := s.tracer.Start(req.Context(), "metrics.scrape")
		defer span.End()

		families := registry.Gather()
		span.SetAttributes(attribute.Int("metrics.families", len(families)))

		switch req.URL.Query().Get("format") {
		case "json":
			data, err := RenderJSON(families)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(data))
		default:
			w.Header().Set("Content-Type", contentTypeText)
			w.Write([]byte(RenderText(families)))
		}
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Start runs the server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Address, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go s.streamer.Run(ctx)

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down metrics server")
		s.streamer.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("address", server.Addr).
		Str("path", s.config.Path).
		Msg("Starting metrics server")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	return nil
}
