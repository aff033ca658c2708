package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/splitkit/splitkit/internal/engine"
	"github.com/splitkit/splitkit/internal/stats"
	"github.com/splitkit/splitkit/internal/store"
	"github.com/splitkit/splitkit/internal/tracker"
)

type HealthResponse struct {
	Status        string `json:"status"`
	TestsCount    int    `json:"tests_count"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tests, err := s.engine.ListTests(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		TestsCount:    len(tests),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

// handleVariant resolves the variant to serve. This is the hot path:
// it degrades to the default variant instead of failing.
func (s *Server) handleVariant(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	responseType := q.Get("response_type")
	userID := q.Get("user_id")
	if responseType == "" || userID == "" {
		http.Error(w, "response_type and user_id are required", http.StatusBadRequest)
		return
	}

	uc := engine.UserContext{
		Segment:    q.Get("segment"),
		DeviceType: q.Get("device_type"),
	}
	if v := q.Get("hour"); v != "" {
		if hour, err := strconv.Atoi(v); err == nil && hour >= 0 && hour <= 23 {
			uc.HourOfDay = &hour
		}
	}

	assignment := s.engine.GetVariant(r.Context(), responseType, userID, uc)
	writeJSON(w, http.StatusOK, assignment)
}

// FeedbackRequest is an incoming feedback beacon.
type FeedbackRequest struct {
	ResponseID   string  `json:"response_id"`
	Rating       int     `json:"rating,omitempty"`
	FeedbackType string  `json:"feedback_type,omitempty"`
	Comments     string  `json:"comments,omitempty"`
	ResponseTime float64 `json:"response_time,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ResponseID == "" {
		http.Error(w, "response_id is required", http.StatusBadRequest)
		return
	}
	if req.Rating < 0 || req.Rating > 5 {
		http.Error(w, "rating must be between 1 and 5", http.StatusBadRequest)
		return
	}

	err := s.tracker.RecordFeedback(r.Context(), req.ResponseID, tracker.Feedback{
		Rating:       req.Rating,
		FeedbackType: req.FeedbackType,
		Comments:     req.Comments,
		ResponseTime: req.ResponseTime,
	})
	if err != nil {
		s.log.Error("failed to record feedback", zap.Error(err))
		http.Error(w, "Failed to record feedback", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ConversionRequest is an incoming conversion beacon.
type ConversionRequest struct {
	TestID         string `json:"test_id"`
	VariantID      string `json:"variant_id"`
	UserID         string `json:"user_id"`
	ConversionType string `json:"conversion_type"`
}

func (s *Server) handleConversion(w http.ResponseWriter, r *http.Request) {
	var req ConversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.TestID == "" || req.VariantID == "" {
		http.Error(w, "test_id and variant_id are required", http.StatusBadRequest)
		return
	}

	if err := s.tracker.RecordConversion(r.Context(), req.TestID, req.VariantID, req.UserID, req.ConversionType); err != nil {
		s.log.Error("failed to record conversion", zap.Error(err))
		http.Error(w, "Failed to record conversion", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PlaybackRequest is an incoming playback lifecycle beacon.
type PlaybackRequest struct {
	TestID    string `json:"test_id"`
	VariantID string `json:"variant_id"`
	UserID    string `json:"user_id"`
	Signal    string `json:"signal"`
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	var req PlaybackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.TestID == "" || req.VariantID == "" {
		http.Error(w, "test_id and variant_id are required", http.StatusBadRequest)
		return
	}

	err := s.tracker.RecordPlayback(r.Context(), req.TestID, req.VariantID, req.UserID, tracker.Signal(req.Signal))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	var cfg engine.TestConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	test, err := s.engine.CreateTest(r.Context(), cfg)
	if err != nil {
		var invalid *engine.ValidationError
		switch {
		case errors.As(err, &invalid):
			http.Error(w, invalid.Error(), http.StatusBadRequest)
		case errors.Is(err, engine.ErrMaxConcurrentTests):
			http.Error(w, err.Error(), http.StatusTooManyRequests)
		default:
			s.log.Error("failed to create test", zap.Error(err))
			http.Error(w, "Failed to create test", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, test)
}

func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := s.engine.ListTests(r.Context())
	if err != nil {
		http.Error(w, "Failed to list tests", http.StatusInternalServerError)
		return
	}
	if tests == nil {
		tests = []*store.Test{}
	}
	writeJSON(w, http.StatusOK, tests)
}

func (s *Server) handleTestStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.GetTestStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Test not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get test status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleTestAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.engine.AnalyzeTest(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Test not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to analyze test", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// PromoteRequest selects the winning variant.
type PromoteRequest struct {
	VariantID string `json:"variant_id"`
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req PromoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	err := s.engine.PromoteWinningVariant(r.Context(), r.PathValue("id"), req.VariantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StopRequest optionally carries the reason a test is halted.
type StopRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req StopRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "stopped manually"
	}

	err := s.engine.StopTest(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	analyses, err := s.engine.AnalyzeResults(r.Context())
	if err != nil {
		http.Error(w, "Failed to analyze results", http.StatusInternalServerError)
		return
	}
	if analyses == nil {
		analyses = []*stats.Analysis{}
	}
	writeJSON(w, http.StatusOK, analyses)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
