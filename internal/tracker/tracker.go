// Package tracker ingests interaction events and maintains the running
// per-variant metrics. Every mutation appends to the variant's event
// log and updates the counters incrementally; replaying the log must
// always reproduce the same metrics (see ReplayMetrics).
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/splitkit/splitkit/internal/store"
)

// Feedback is a user's reaction to a served response.
type Feedback struct {
	// Rating is 1..5; zero means no rating was given.
	Rating       int     `json:"rating,omitempty"`
	FeedbackType string  `json:"feedback_type,omitempty"`
	Comments     string  `json:"comments,omitempty"`
	ResponseTime float64 `json:"response_time,omitempty"`
}

// Signal is a playback lifecycle marker.
type Signal string

const (
	SignalStart        Signal = "start"
	SignalCompletion   Signal = "completion"
	SignalInterruption Signal = "interruption"
)

// ConversionPositiveFeedback tags conversions emitted automatically
// from high ratings or thumbs-up feedback.
const ConversionPositiveFeedback = "positive_feedback"

const maxCASRetries = 5

// Tracker records events against variant results. It is stateless over
// the gateway and safe for concurrent use; contention on a result key
// is resolved with compare-and-set retries so no update is lost.
type Tracker struct {
	store      store.Gateway
	log        *zap.Logger
	collectors *Collectors
	now        func() time.Time
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock overrides the tracker's time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New builds a Tracker. collectors may be nil when prometheus metrics
// are not wanted (one-shot CLI commands, tests).
func New(gw store.Gateway, log *zap.Logger, collectors *Collectors, opts ...Option) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tracker{
		store:      gw,
		log:        log,
		collectors: collectors,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordExposure records that a variant was actually served to a user.
// It appends the exposure event, registers the response id for later
// feedback attribution, and bumps the assignment's exposure count.
func (t *Tracker) RecordExposure(ctx context.Context, testID, variantID, userID, responseID string) error {
	now := t.now()

	err := t.updateResult(ctx, testID, variantID, store.Event{
		Type:       store.EventExposure,
		UserID:     userID,
		ResponseID: responseID,
		Timestamp:  now,
	})
	if err != nil {
		return err
	}

	if responseID != "" {
		ref := store.ResponseRef{
			TestID:    testID,
			VariantID: variantID,
			UserID:    userID,
			CreatedAt: now,
		}
		data, err := json.Marshal(ref)
		if err != nil {
			return fmt.Errorf("failed to marshal response ref: %w", err)
		}
		if err := t.store.Set(ctx, store.NamespaceResults, store.ResponseKey(responseID), data); err != nil {
			return err
		}
	}

	if err := t.bumpAssignmentExposure(ctx, testID, userID, now); err != nil {
		return err
	}

	if t.collectors != nil {
		t.collectors.Exposures.WithLabelValues(testID, variantID).Inc()
	}
	return nil
}

// RecordFeedback attributes feedback to the variant that produced the
// given response. An unknown response id is a logged no-op: feedback
// may legitimately arrive after the retention sweep purged the
// exposure record. A rating of 4+ or a thumbs_up also emits a
// conversion tagged positive_feedback.
func (t *Tracker) RecordFeedback(ctx context.Context, responseID string, fb Feedback) error {
	raw, _, err := t.store.Get(ctx, store.NamespaceResults, store.ResponseKey(responseID))
	if errors.Is(err, store.ErrNotFound) {
		t.log.Warn("feedback for unknown response id", zap.String("response_id", responseID))
		return nil
	}
	if err != nil {
		return err
	}

	var ref store.ResponseRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		t.log.Warn("corrupt response ref, dropping feedback",
			zap.String("response_id", responseID), zap.Error(err))
		return nil
	}

	err = t.updateResult(ctx, ref.TestID, ref.VariantID, store.Event{
		Type:         store.EventFeedback,
		UserID:       ref.UserID,
		ResponseID:   responseID,
		Rating:       fb.Rating,
		FeedbackType: fb.FeedbackType,
		Comments:     fb.Comments,
		Timestamp:    t.now(),
	})
	if err != nil {
		return err
	}

	if t.collectors != nil {
		t.collectors.Feedback.WithLabelValues(ref.TestID, ref.VariantID, feedbackKind(fb)).Inc()
	}

	if fb.Rating >= 4 || fb.FeedbackType == "thumbs_up" {
		return t.RecordConversion(ctx, ref.TestID, ref.VariantID, ref.UserID, ConversionPositiveFeedback)
	}
	return nil
}

// RecordConversion records a configurable success signal for a variant.
func (t *Tracker) RecordConversion(ctx context.Context, testID, variantID, userID, conversionType string) error {
	err := t.updateResult(ctx, testID, variantID, store.Event{
		Type:           store.EventConversion,
		UserID:         userID,
		ConversionType: conversionType,
		Timestamp:      t.now(),
	})
	if err != nil {
		return err
	}

	if t.collectors != nil {
		t.collectors.Conversions.WithLabelValues(testID, variantID, conversionType).Inc()
	}
	return nil
}

// RecordPlayback records a playback lifecycle signal. Completion and
// interruption rates are re-derived from the counters, not accumulated,
// since their denominators keep growing.
func (t *Tracker) RecordPlayback(ctx context.Context, testID, variantID, userID string, signal Signal) error {
	var eventType store.EventType
	switch signal {
	case SignalStart:
		eventType = store.EventStart
	case SignalCompletion:
		eventType = store.EventCompletion
	case SignalInterruption:
		eventType = store.EventInterruption
	default:
		return fmt.Errorf("unknown playback signal %q", signal)
	}

	return t.updateResult(ctx, testID, variantID, store.Event{
		Type:      eventType,
		UserID:    userID,
		Timestamp: t.now(),
	})
}

// updateResult appends an event to the variant's log and applies it to
// the running metrics, retrying on version conflicts so concurrent
// writers never lose updates.
func (t *Tracker) updateResult(ctx context.Context, testID, variantID string, event store.Event) error {
	key := store.ResultKey{TestID: testID, VariantID: variantID}.String()

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		raw, version, err := t.store.Get(ctx, store.NamespaceResults, key)
		result := store.VariantResult{TestID: testID, VariantID: variantID}
		switch {
		case err == nil:
			if jsonErr := json.Unmarshal(raw, &result); jsonErr != nil {
				t.log.Warn("corrupt variant result record, reinitializing",
					zap.String("key", key), zap.Error(jsonErr))
				result = store.VariantResult{TestID: testID, VariantID: variantID}
			}
		case errors.Is(err, store.ErrNotFound):
			version = 0
		default:
			return err
		}

		result.Events = append(result.Events, event)
		apply(&result.Metrics, event)
		result.Samples = result.Metrics.Exposures
		result.LastUpdated = t.now()

		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal variant result: %w", err)
		}

		err = t.store.CompareAndSet(ctx, store.NamespaceResults, key, data, version)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		return err
	}

	return fmt.Errorf("failed to update result %s after %d attempts: %w", key, maxCASRetries, store.ErrConflict)
}

// bumpAssignmentExposure increments the per-assignment exposure count.
// Exposure is once-per-delivery, so the count can exceed one.
func (t *Tracker) bumpAssignmentExposure(ctx context.Context, testID, userID string, now time.Time) error {
	key := store.AssignmentKey{TestID: testID, UserID: userID}.String()

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		raw, version, err := t.store.Get(ctx, store.NamespaceAssignments, key)
		if errors.Is(err, store.ErrNotFound) {
			// Exposure without an assignment: tolerated for events fed
			// in from outside the assignment path.
			t.log.Warn("exposure without assignment",
				zap.String("test_id", testID), zap.String("user_id", userID))
			return nil
		}
		if err != nil {
			return err
		}

		var assignment store.Assignment
		if jsonErr := json.Unmarshal(raw, &assignment); jsonErr != nil {
			t.log.Warn("corrupt assignment record, skipping exposure bump",
				zap.String("key", key), zap.Error(jsonErr))
			return nil
		}

		assignment.ExposureCount++
		assignment.LastExposure = now

		data, err := json.Marshal(assignment)
		if err != nil {
			return fmt.Errorf("failed to marshal assignment: %w", err)
		}

		err = t.store.CompareAndSet(ctx, store.NamespaceAssignments, key, data, version)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		return err
	}

	return fmt.Errorf("failed to update assignment %s after %d attempts: %w", key, maxCASRetries, store.ErrConflict)
}

// apply folds one event into the running metrics. ReplayMetrics uses
// the same transition, which is what keeps incremental updates and
// full replays in agreement.
func apply(m *store.Metrics, event store.Event) {
	switch event.Type {
	case store.EventExposure:
		m.Exposures++
	case store.EventConversion:
		m.Conversions++
	case store.EventFeedback:
		if event.Rating > 0 {
			m.AverageRating = (m.AverageRating*float64(m.RatingCount) + float64(event.Rating)) / float64(m.RatingCount+1)
			m.RatingCount++
			if event.Rating >= 4 {
				m.PositiveRatings++
			}
			if event.Rating <= 2 {
				m.NegativeRatings++
			}
		}
	case store.EventStart:
		m.Starts++
		m.Plays++
	case store.EventCompletion:
		m.Completions++
	case store.EventInterruption:
		m.Interruptions++
	}

	m.CompletionRate = float64(m.Completions) / math.Max(float64(m.Starts), 1)
	m.InterruptionRate = float64(m.Interruptions) / math.Max(float64(m.Plays), 1)
}

// ReplayMetrics re-derives metrics from scratch by replaying an event
// log. The result must equal the incrementally maintained metrics for
// the same log.
func ReplayMetrics(events []store.Event) store.Metrics {
	var m store.Metrics
	for _, event := range events {
		apply(&m, event)
	}
	return m
}

func feedbackKind(fb Feedback) string {
	switch {
	case fb.Rating >= 4 || fb.FeedbackType == "thumbs_up":
		return "positive"
	case fb.Rating > 0 && fb.Rating <= 2 || fb.FeedbackType == "thumbs_down":
		return "negative"
	default:
		return "neutral"
	}
}
