// Package server exposes predictions, prediction history, batch jobs and
// geocoding over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"scoutout/internal/common"
	"scoutout/internal/dataset"
	"scoutout/internal/engine"
	"scoutout/internal/geo"
	"scoutout/internal/ml"
	"scoutout/internal/property"
	"scoutout/internal/storage"
)

// Predictor runs single and batch predictions.
type Predictor interface {
	Predict(ctx context.Context, f property.FeatureVector, years int) (*property.PredictionResult, error)
	BatchPredict(ctx context.Context, table *dataset.Table, progress engine.ProgressFunc) (*engine.BatchResult, error)
}

// ModelInfo reports the metadata of the loaded model.
type ModelInfo interface {
	Metadata() *ml.ModelMetadata
}

// Geocoder resolves addresses.
type Geocoder interface {
	Geocode(ctx context.Context, address string) geo.Coordinates
}

// MetricsInterface defines metrics methods needed by the server
type MetricsInterface interface {
	HTTPRequestsInc(route, method string, status int)
	ErrorRate() float64
}

// Options wires the server's collaborators. History, Models, Geocoder,
// Metrics and Gatherer may be nil.
type Options struct {
	Port         int
	Engine       Predictor
	Models       ModelInfo
	History      storage.History
	Geocoder     Geocoder
	Cities       []geo.City
	Metrics      MetricsInterface
	Gatherer     prometheus.Gatherer
	DefaultYears int
}

// Server serves the prediction API.
type Server struct {
	opts   Options
	router *chi.Mux
	server *http.Server

	// background batch jobs
	jobs   sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	if opts.DefaultYears <= 0 {
		opts.DefaultYears = common.DefaultTimelineYears
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:   opts,
		router: chi.NewRouter(),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/model/info", s.handleModelInfo)
	s.router.Handle("/metrics", s.metricsHandler())

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/predict", s.handlePredict)
		r.Get("/predictions", s.handleListPredictions)
		r.Get("/predictions/{id}", s.handleGetPrediction)
		r.Post("/batch-predict", s.handleBatchPredict)
		r.Get("/batch-jobs", s.handleListBatchJobs)
		r.Get("/batch-jobs/{id}", s.handleGetBatchJob)
		r.Get("/geocode", s.handleGeocode)
		r.Get("/nearby-cities", s.handleNearbyCities)
	})
}

func (s *Server) metricsHandler() http.Handler {
	if s.opts.Gatherer != nil {
		return promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, cancels running batch jobs and waits
// for them to record their final state.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("All batch jobs stopped")
	case <-ctx.Done():
		log.Warn().Msg("Shutdown timeout, batch jobs still running")
	}
	return err
}

// Wait blocks until running batch jobs finish.
func (s *Server) Wait() {
	s.jobs.Wait()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			if s.opts.Metrics != nil {
				s.opts.Metrics.HTTPRequestsInc(route, r.Method, status)
			}

			event := log.Debug()
			if status >= http.StatusInternalServerError {
				event = log.Warn()
			}
			event.
				Str("method", r.Method).
				Str("route", route).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("HTTP request")
		}()

		next.ServeHTTP(ww, r)
	})
}
