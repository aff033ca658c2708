package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/splitkit/splitkit/internal/stats"
	"github.com/splitkit/splitkit/internal/store"
	"github.com/splitkit/splitkit/internal/tracker"
)

// Config holds the lifecycle manager's tunables.
type Config struct {
	// MaxConcurrentTests caps how many tests may be active at once.
	MaxConcurrentTests int

	// MinAnalysisAge is how old a test must be before AnalyzeResults
	// will consider it.
	MinAnalysisAge time.Duration

	// RetentionPeriod bounds how long terminal tests, assignments and
	// event logs are kept before Cleanup removes them.
	RetentionPeriod time.Duration

	// DefaultMinSampleSize applies when a test config leaves
	// MinSampleSize unset.
	DefaultMinSampleSize int

	// DefaultConfidenceLevel applies when a test config leaves
	// ConfidenceLevel unset.
	DefaultConfidenceLevel float64
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrentTests:     5,
		MinAnalysisAge:         24 * time.Hour,
		RetentionPeriod:        30 * 24 * time.Hour,
		DefaultMinSampleSize:   50,
		DefaultConfidenceLevel: 0.95,
	}
}

// Engine is the experiment lifecycle manager: it validates and creates
// tests, resolves variant assignments, gates statistical analysis, and
// promotes or stops tests. It is stateless over the injected gateway
// and safe for concurrent use.
type Engine struct {
	store    store.Gateway
	tracker  *tracker.Tracker
	log      *zap.Logger
	cfg      Config
	validate *validator.Validate
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(gw store.Gateway, tr *tracker.Tracker, log *zap.Logger, cfg Config, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	defaults := DefaultConfig()
	if cfg.MaxConcurrentTests <= 0 {
		cfg.MaxConcurrentTests = defaults.MaxConcurrentTests
	}
	if cfg.MinAnalysisAge <= 0 {
		cfg.MinAnalysisAge = defaults.MinAnalysisAge
	}
	if cfg.RetentionPeriod <= 0 {
		cfg.RetentionPeriod = defaults.RetentionPeriod
	}
	if cfg.DefaultMinSampleSize <= 0 {
		cfg.DefaultMinSampleSize = defaults.DefaultMinSampleSize
	}
	if cfg.DefaultConfidenceLevel <= 0 {
		cfg.DefaultConfidenceLevel = defaults.DefaultConfidenceLevel
	}

	e := &Engine{
		store:    gw,
		tracker:  tr,
		log:      log,
		cfg:      cfg,
		validate: validator.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// VariantConfig describes one variant in a CreateTest request.
type VariantConfig struct {
	ID       string         `json:"id"`
	Name     string         `json:"name" validate:"required"`
	Weight   float64        `json:"weight" validate:"gte=0"`
	Config   map[string]any `json:"config,omitempty"`
	Template string         `json:"template,omitempty"`
	Voice    string         `json:"voice,omitempty"`
}

// TestConfig is the CreateTest input.
type TestConfig struct {
	Name            string                `json:"name" validate:"required"`
	Description     string                `json:"description,omitempty"`
	ResponseType    string                `json:"response_type" validate:"required"`
	Variants        []VariantConfig       `json:"variants" validate:"required,min=2,dive"`
	Metrics         []string              `json:"metrics" validate:"required,min=1"`
	TargetAudience  *store.TargetAudience `json:"target_audience,omitempty"`
	MinSampleSize   int                   `json:"min_sample_size" validate:"gte=0"`
	ConfidenceLevel float64               `json:"confidence_level" validate:"gte=0,lte=1"`
	StartDate       time.Time             `json:"start_date,omitempty"`
	EndDate         *time.Time            `json:"end_date,omitempty"`
	Priority        int                   `json:"priority,omitempty"`
}

// CreateTest validates a test definition, enforces the concurrency cap
// and persists the new test as active.
func (e *Engine) CreateTest(ctx context.Context, cfg TestConfig) (*store.Test, error) {
	if err := e.validate.Struct(cfg); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			return nil, &ValidationError{
				Field:  fields[0].Namespace(),
				Reason: fmt.Sprintf("failed %q constraint", fields[0].Tag()),
			}
		}
		return nil, &ValidationError{Reason: err.Error()}
	}

	totalWeight := 0.0
	for _, v := range cfg.Variants {
		totalWeight += v.Weight
	}
	if totalWeight <= 0 {
		return nil, &ValidationError{Field: "Variants", Reason: "total variant weight must be positive"}
	}

	active, err := e.activeTests(ctx)
	if err != nil {
		return nil, err
	}
	if len(active) >= e.cfg.MaxConcurrentTests {
		return nil, ErrMaxConcurrentTests
	}

	now := e.now()
	test := &store.Test{
		ID:              uuid.NewString(),
		Name:            cfg.Name,
		Description:     cfg.Description,
		ResponseType:    cfg.ResponseType,
		Status:          store.StatusActive,
		Metrics:         cfg.Metrics,
		TargetAudience:  cfg.TargetAudience,
		MinSampleSize:   cfg.MinSampleSize,
		ConfidenceLevel: cfg.ConfidenceLevel,
		StartDate:       cfg.StartDate,
		EndDate:         cfg.EndDate,
		Priority:        cfg.Priority,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if test.MinSampleSize == 0 {
		test.MinSampleSize = e.cfg.DefaultMinSampleSize
	}
	if test.ConfidenceLevel == 0 {
		test.ConfidenceLevel = e.cfg.DefaultConfidenceLevel
	}
	if test.StartDate.IsZero() {
		test.StartDate = now
	}

	test.Variants = make([]store.Variant, len(cfg.Variants))
	for i, v := range cfg.Variants {
		id := v.ID
		if id == "" {
			id = fmt.Sprintf("variant_%d", i)
		}
		test.Variants[i] = store.Variant{
			ID:       id,
			Name:     v.Name,
			Weight:   v.Weight,
			Config:   v.Config,
			Template: v.Template,
			Voice:    v.Voice,
		}
	}

	data, err := json.Marshal(test)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal test: %w", err)
	}
	if err := e.store.CompareAndSet(ctx, store.NamespaceTests, test.ID, data, 0); err != nil {
		return nil, fmt.Errorf("failed to persist test: %w", err)
	}

	e.log.Info("created test",
		zap.String("test_id", test.ID),
		zap.String("name", test.Name),
		zap.String("response_type", test.ResponseType),
		zap.Int("variants", len(test.Variants)))

	return test, nil
}

// ListTests returns all stored tests, newest first. Corrupt entries
// are logged and skipped rather than failing the whole listing.
func (e *Engine) ListTests(ctx context.Context) ([]*store.Test, error) {
	entries, err := e.store.List(ctx, store.NamespaceTests)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}

	tests := make([]*store.Test, 0, len(entries))
	for key, raw := range entries {
		if strings.HasPrefix(key, "winner/") {
			continue
		}
		var test store.Test
		if err := json.Unmarshal(raw, &test); err != nil {
			e.log.Warn("skipping corrupt test record", zap.String("key", key), zap.Error(err))
			continue
		}
		tests = append(tests, &test)
	}

	sort.Slice(tests, func(i, j int) bool {
		return tests[i].CreatedAt.After(tests[j].CreatedAt)
	})
	return tests, nil
}

// GetTest looks up a single test by id.
func (e *Engine) GetTest(ctx context.Context, testID string) (*store.Test, error) {
	test, _, err := e.getTest(ctx, testID)
	return test, err
}

func (e *Engine) getTest(ctx context.Context, testID string) (*store.Test, uint64, error) {
	raw, version, err := e.store.Get(ctx, store.NamespaceTests, testID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, fmt.Errorf("test %q: %w", testID, store.ErrNotFound)
	}
	if err != nil {
		return nil, 0, err
	}

	var test store.Test
	if err := json.Unmarshal(raw, &test); err != nil {
		e.log.Warn("corrupt test record", zap.String("test_id", testID), zap.Error(err))
		return nil, 0, fmt.Errorf("test %q: %w", testID, store.ErrNotFound)
	}
	return &test, version, nil
}

func (e *Engine) activeTests(ctx context.Context) ([]*store.Test, error) {
	tests, err := e.ListTests(ctx)
	if err != nil {
		return nil, err
	}
	active := tests[:0]
	for _, test := range tests {
		if test.Status == store.StatusActive {
			active = append(active, test)
		}
	}
	return active, nil
}

func (e *Engine) casTest(ctx context.Context, test *store.Test, version uint64) error {
	data, err := json.Marshal(test)
	if err != nil {
		return fmt.Errorf("failed to marshal test: %w", err)
	}
	if err := e.store.CompareAndSet(ctx, store.NamespaceTests, test.ID, data, version); err != nil {
		return fmt.Errorf("failed to update test %q: %w", test.ID, err)
	}
	return nil
}

// PromoteWinningVariant completes a test and snapshots the winning
// configuration for the response generator. Promoting the already
// recorded winner of a completed test is a no-op.
func (e *Engine) PromoteWinningVariant(ctx context.Context, testID, variantID string) error {
	test, version, err := e.getTest(ctx, testID)
	if err != nil {
		return err
	}

	variant := test.Variant(variantID)
	if variant == nil {
		return fmt.Errorf("variant %q in test %q: %w", variantID, testID, store.ErrNotFound)
	}

	switch test.Status {
	case store.StatusCompleted:
		if test.WinningVariant == variantID {
			return nil
		}
		return fmt.Errorf("test %q already completed with winner %q", testID, test.WinningVariant)
	case store.StatusStopped:
		return fmt.Errorf("test %q is stopped", testID)
	}

	now := e.now()
	test.Status = store.StatusCompleted
	test.WinningVariant = variantID
	test.CompletedAt = &now
	test.UpdatedAt = now
	if err := e.casTest(ctx, test, version); err != nil {
		return err
	}

	snapshot := store.WinnerSnapshot{
		TestID:     testID,
		VariantID:  variantID,
		Config:     variant.Config,
		Template:   variant.Template,
		Voice:      variant.Voice,
		PromotedAt: now,
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal winner snapshot: %w", err)
	}
	if err := e.store.Set(ctx, store.NamespaceTests, store.WinnerKey(test.ResponseType), data); err != nil {
		return fmt.Errorf("failed to persist winner snapshot: %w", err)
	}

	e.log.Info("promoted winning variant",
		zap.String("test_id", testID), zap.String("variant_id", variantID))
	return nil
}

// StopTest halts a test without declaring a winner. Stopping an
// already stopped test is a no-op.
func (e *Engine) StopTest(ctx context.Context, testID, reason string) error {
	test, version, err := e.getTest(ctx, testID)
	if err != nil {
		return err
	}

	switch test.Status {
	case store.StatusStopped:
		return nil
	case store.StatusCompleted:
		return fmt.Errorf("test %q is already completed", testID)
	}

	now := e.now()
	test.Status = store.StatusStopped
	test.StoppedAt = &now
	test.StopReason = reason
	test.UpdatedAt = now
	if err := e.casTest(ctx, test, version); err != nil {
		return err
	}

	e.log.Info("stopped test", zap.String("test_id", testID), zap.String("reason", reason))
	return nil
}

// WinningConfig returns the promoted configuration for a response
// type, if a test for it has completed.
func (e *Engine) WinningConfig(ctx context.Context, responseType string) (*store.WinnerSnapshot, error) {
	raw, _, err := e.store.Get(ctx, store.NamespaceTests, store.WinnerKey(responseType))
	if err != nil {
		return nil, err
	}
	var snapshot store.WinnerSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal winner snapshot: %w", err)
	}
	return &snapshot, nil
}

// variantResults loads the aggregation records for every variant of a
// test, zero-valued where no events have arrived yet.
func (e *Engine) variantResults(ctx context.Context, test *store.Test) ([]store.VariantResult, error) {
	results := make([]store.VariantResult, len(test.Variants))
	for i, variant := range test.Variants {
		key := store.ResultKey{TestID: test.ID, VariantID: variant.ID}.String()
		raw, _, err := e.store.Get(ctx, store.NamespaceResults, key)
		if errors.Is(err, store.ErrNotFound) {
			results[i] = store.VariantResult{TestID: test.ID, VariantID: variant.ID}
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &results[i]); err != nil {
			e.log.Warn("corrupt variant result record",
				zap.String("key", key), zap.Error(err))
			results[i] = store.VariantResult{TestID: test.ID, VariantID: variant.ID}
		}
	}
	return results, nil
}

// Results returns the raw per-variant aggregation records for a test,
// event logs included. Used by the export surface.
func (e *Engine) Results(ctx context.Context, testID string) ([]store.VariantResult, error) {
	test, _, err := e.getTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	return e.variantResults(ctx, test)
}

// AnalyzeResults runs the statistical analysis over every active test
// old enough to be analyzed. Tests past their end date are stopped
// instead of analyzed. Analysis never runs inside GetVariant.
func (e *Engine) AnalyzeResults(ctx context.Context) ([]*stats.Analysis, error) {
	tests, err := e.ListTests(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var analyses []*stats.Analysis
	for _, test := range tests {
		if test.Status != store.StatusActive {
			continue
		}
		if test.EndDate != nil && now.After(*test.EndDate) {
			if err := e.StopTest(ctx, test.ID, "end date reached"); err != nil {
				e.log.Warn("failed to stop expired test",
					zap.String("test_id", test.ID), zap.Error(err))
			}
			continue
		}
		if now.Sub(test.StartDate) < e.cfg.MinAnalysisAge {
			continue
		}

		results, err := e.variantResults(ctx, test)
		if err != nil {
			e.log.Warn("failed to load results for analysis",
				zap.String("test_id", test.ID), zap.Error(err))
			continue
		}
		analyses = append(analyses, stats.Analyze(test, results))
	}

	return analyses, nil
}

// AnalyzeTest runs the analysis for one test regardless of the age
// gate. Used by the CLI and the dashboard views.
func (e *Engine) AnalyzeTest(ctx context.Context, testID string) (*stats.Analysis, error) {
	test, _, err := e.getTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	results, err := e.variantResults(ctx, test)
	if err != nil {
		return nil, err
	}
	return stats.Analyze(test, results), nil
}

// TestStatusView is the dashboard-facing summary of a single test.
type TestStatusView struct {
	TestID        string           `json:"test_id"`
	Name          string           `json:"name"`
	Status        store.TestStatus `json:"status"`
	Variants      int              `json:"variants"`
	TotalSamples  int              `json:"total_samples"`
	Progress      float64          `json:"progress"`
	TimeRemaining time.Duration    `json:"time_remaining,omitempty"`
}

// GetTestStatus summarizes a test's progress toward its sample target.
func (e *Engine) GetTestStatus(ctx context.Context, testID string) (*TestStatusView, error) {
	test, _, err := e.getTest(ctx, testID)
	if err != nil {
		return nil, err
	}

	results, err := e.variantResults(ctx, test)
	if err != nil {
		return nil, err
	}

	totalSamples := 0
	for _, r := range results {
		totalSamples += r.Samples
	}

	progress := 0.0
	if target := test.MinSampleSize * len(test.Variants); target > 0 {
		progress = float64(totalSamples) / float64(target) * 100
		if progress > 100 {
			progress = 100
		}
	}

	view := &TestStatusView{
		TestID:       test.ID,
		Name:         test.Name,
		Status:       test.Status,
		Variants:     len(test.Variants),
		TotalSamples: totalSamples,
		Progress:     progress,
	}
	if test.EndDate != nil && test.Status == store.StatusActive {
		if remaining := test.EndDate.Sub(e.now()); remaining > 0 {
			view.TimeRemaining = remaining
		}
	}
	return view, nil
}

// Cleanup is the retention sweep: it deletes terminal tests past the
// retention horizon along with their variant results, response
// references, and any assignment that has gone stale.
func (e *Engine) Cleanup(ctx context.Context) error {
	now := e.now()
	horizon := now.Add(-e.cfg.RetentionPeriod)

	tests, err := e.ListTests(ctx)
	if err != nil {
		return err
	}

	removedTests := 0
	for _, test := range tests {
		terminalAt := test.UpdatedAt
		if test.CompletedAt != nil {
			terminalAt = *test.CompletedAt
		} else if test.StoppedAt != nil {
			terminalAt = *test.StoppedAt
		}
		if !terminalAt.Before(horizon) {
			continue
		}

		for _, variant := range test.Variants {
			key := store.ResultKey{TestID: test.ID, VariantID: variant.ID}.String()
			if err := e.store.Delete(ctx, store.NamespaceResults, key); err != nil && !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("failed to delete result %s: %w", key, err)
			}
		}
		if err := e.store.Delete(ctx, store.NamespaceTests, test.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to delete test %s: %w", test.ID, err)
		}
		removedTests++
	}

	removedAssignments, err := e.sweepAssignments(ctx, horizon)
	if err != nil {
		return err
	}
	removedRefs, err := e.sweepResponseRefs(ctx, horizon)
	if err != nil {
		return err
	}

	e.log.Info("retention sweep complete",
		zap.Int("tests", removedTests),
		zap.Int("assignments", removedAssignments),
		zap.Int("response_refs", removedRefs))
	return nil
}

func (e *Engine) sweepAssignments(ctx context.Context, horizon time.Time) (int, error) {
	entries, err := e.store.List(ctx, store.NamespaceAssignments)
	if err != nil {
		return 0, fmt.Errorf("failed to list assignments: %w", err)
	}

	removed := 0
	for key, raw := range entries {
		var assignment store.Assignment
		if err := json.Unmarshal(raw, &assignment); err != nil {
			e.log.Warn("deleting corrupt assignment record", zap.String("key", key), zap.Error(err))
		} else {
			lastActive := assignment.AssignedAt
			if assignment.LastExposure.After(lastActive) {
				lastActive = assignment.LastExposure
			}
			if !lastActive.Before(horizon) {
				continue
			}
		}
		if err := e.store.Delete(ctx, store.NamespaceAssignments, key); err != nil && !errors.Is(err, store.ErrNotFound) {
			return removed, fmt.Errorf("failed to delete assignment %s: %w", key, err)
		}
		removed++
	}
	return removed, nil
}

func (e *Engine) sweepResponseRefs(ctx context.Context, horizon time.Time) (int, error) {
	entries, err := e.store.List(ctx, store.NamespaceResults)
	if err != nil {
		return 0, fmt.Errorf("failed to list results: %w", err)
	}

	removed := 0
	for key, raw := range entries {
		if !strings.HasPrefix(key, "response/") {
			continue
		}
		var ref store.ResponseRef
		if err := json.Unmarshal(raw, &ref); err != nil {
			e.log.Warn("deleting corrupt response ref", zap.String("key", key), zap.Error(err))
		} else if !ref.CreatedAt.Before(horizon) {
			continue
		}
		if err := e.store.Delete(ctx, store.NamespaceResults, key); err != nil && !errors.Is(err, store.ErrNotFound) {
			return removed, fmt.Errorf("failed to delete response ref %s: %w", key, err)
		}
		removed++
	}
	return removed, nil
}
