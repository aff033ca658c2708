package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/splitkit/splitkit/internal/engine"
	"github.com/splitkit/splitkit/internal/tracker"
)

// Server exposes the experimentation engine over HTTP: beacon-style
// ingest endpoints for the response runtime, and token-guarded
// management endpoints for the experiment dashboard.
type Server struct {
	engine    *engine.Engine
	tracker   *tracker.Tracker
	log       *zap.Logger
	token     string
	router    *http.ServeMux
	startTime time.Time
}

func New(eng *engine.Engine, tr *tracker.Tracker, log *zap.Logger, token string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if token == "" {
		token = generateToken()
	}

	s := &Server{
		engine:    eng,
		tracker:   tr,
		log:       log,
		token:     token,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Public endpoints used by the response runtime.
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /api/variant", s.handleVariant)
	s.router.HandleFunc("/api/feedback", s.corsPOST(s.handleFeedback))
	s.router.HandleFunc("/api/conversion", s.corsPOST(s.handleConversion))
	s.router.HandleFunc("/api/playback", s.corsPOST(s.handlePlayback))
	s.router.Handle("GET /metrics", promhttp.Handler())

	// Management endpoints (protected).
	s.router.Handle("POST /api/tests", s.authMiddleware(http.HandlerFunc(s.handleCreateTest)))
	s.router.Handle("GET /api/tests", s.authMiddleware(http.HandlerFunc(s.handleListTests)))
	s.router.Handle("GET /api/tests/{id}/status", s.authMiddleware(http.HandlerFunc(s.handleTestStatus)))
	s.router.Handle("GET /api/tests/{id}/analysis", s.authMiddleware(http.HandlerFunc(s.handleTestAnalysis)))
	s.router.Handle("POST /api/tests/{id}/promote", s.authMiddleware(http.HandlerFunc(s.handlePromote)))
	s.router.Handle("POST /api/tests/{id}/stop", s.authMiddleware(http.HandlerFunc(s.handleStop)))
	s.router.Handle("GET /api/analyze", s.authMiddleware(http.HandlerFunc(s.handleAnalyze)))
}

// Run serves HTTP and drives the background loops (periodic analysis
// and the daily retention sweep) until the context is cancelled.
func (s *Server) Run(ctx context.Context, port int, analysisInterval time.Duration) error {
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		s.log.Info("server listening", zap.Int("port", port))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		s.analyzerLoop(ctx, analysisInterval)
		return nil
	})

	g.Go(func() error {
		s.retentionLoop(ctx)
		return nil
	})

	return g.Wait()
}

// analyzerLoop periodically analyzes active tests, decoupled from the
// request path.
func (s *Server) analyzerLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			analyses, err := s.engine.AnalyzeResults(ctx)
			if err != nil {
				s.log.Warn("periodic analysis failed", zap.Error(err))
				continue
			}
			for _, a := range analyses {
				s.log.Info("analysis",
					zap.String("test_id", a.TestID),
					zap.Bool("significant", a.Significance.Significant),
					zap.String("action", string(a.Recommendation.Action)))
			}
		}
	}
}

// retentionLoop runs the cleanup once at startup and then once per day.
func (s *Server) retentionLoop(ctx context.Context) {
	if err := s.engine.Cleanup(ctx); err != nil {
		s.log.Warn("retention sweep failed at startup", zap.Error(err))
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.engine.Cleanup(ctx); err != nil {
				s.log.Warn("retention sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback if crypto/rand fails
		return "a1b2c3d4e5f6a7b8"
	}
	return hex.EncodeToString(bytes)
}
