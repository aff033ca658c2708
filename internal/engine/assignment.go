package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/splitkit/splitkit/internal/store"
)

// DefaultVariantID is served when no test matches. It is the
// not-in-experiment fallback and is never a measured variant.
const DefaultVariantID = "default"

// VariantAssignment is the resolved variant returned to the caller,
// enriched with test identity and a response id for later feedback
// attribution.
type VariantAssignment struct {
	TestID      string         `json:"test_id,omitempty"`
	TestName    string         `json:"test_name,omitempty"`
	VariantID   string         `json:"variant_id"`
	VariantName string         `json:"variant_name,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	Template    string         `json:"template,omitempty"`
	Voice       string         `json:"voice,omitempty"`
	ResponseID  string         `json:"response_id,omitempty"`
	Default     bool           `json:"default,omitempty"`
}

func defaultAssignment() *VariantAssignment {
	return &VariantAssignment{VariantID: DefaultVariantID, Default: true}
}

// GetVariant resolves the variant to serve for a response type and
// user. It never fails: when storage is unavailable or no active test
// matches, the default variant is returned. Serving a measured variant
// records an exposure and mints a response id.
func (e *Engine) GetVariant(ctx context.Context, responseType, userID string, uc UserContext) *VariantAssignment {
	tests, err := e.ListTests(ctx)
	if err != nil {
		e.log.Warn("serving default variant: failed to load tests",
			zap.String("response_type", responseType), zap.Error(err))
		return defaultAssignment()
	}

	now := e.now()
	var candidates []*store.Test
	for _, test := range tests {
		if test.Status != store.StatusActive || test.ResponseType != responseType {
			continue
		}
		if !IsEligible(test, userID, uc, now) {
			continue
		}
		candidates = append(candidates, test)
	}
	if len(candidates) == 0 {
		return defaultAssignment()
	}

	// Highest priority wins; ties go to the earliest start date.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].StartDate.Before(candidates[j].StartDate)
	})
	test := candidates[0]

	variant, err := e.resolveAssignment(ctx, test, userID)
	if err != nil {
		e.log.Warn("serving default variant: assignment failed",
			zap.String("test_id", test.ID), zap.String("user_id", userID), zap.Error(err))
		return defaultAssignment()
	}

	responseID := uuid.NewString()
	if err := e.tracker.RecordExposure(ctx, test.ID, variant.ID, userID, responseID); err != nil {
		// The variant is still served; the exposure is lost, not the response.
		e.log.Warn("failed to record exposure",
			zap.String("test_id", test.ID), zap.String("variant_id", variant.ID), zap.Error(err))
	}

	return &VariantAssignment{
		TestID:      test.ID,
		TestName:    test.Name,
		VariantID:   variant.ID,
		VariantName: variant.Name,
		Config:      variant.Config,
		Template:    variant.Template,
		Voice:       variant.Voice,
		ResponseID:  responseID,
	}
}

// resolveAssignment returns the user's sticky variant for a test,
// creating it with first-write-wins semantics when absent.
func (e *Engine) resolveAssignment(ctx context.Context, test *store.Test, userID string) (*store.Variant, error) {
	key := store.AssignmentKey{TestID: test.ID, UserID: userID}.String()

	raw, _, err := e.store.Get(ctx, store.NamespaceAssignments, key)
	if err == nil {
		var existing store.Assignment
		if jsonErr := json.Unmarshal(raw, &existing); jsonErr != nil {
			e.log.Warn("corrupt assignment record, reassigning",
				zap.String("key", key), zap.Error(jsonErr))
		} else if variant := test.Variant(existing.VariantID); variant != nil {
			return variant, nil
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	variant := pickVariant(test, userID)
	assignment := store.Assignment{
		TestID:     test.ID,
		UserID:     userID,
		VariantID:  variant.ID,
		AssignedAt: e.now(),
	}
	data, err := json.Marshal(assignment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assignment: %w", err)
	}

	err = e.store.CompareAndSet(ctx, store.NamespaceAssignments, key, data, 0)
	if errors.Is(err, store.ErrConflict) {
		// A concurrent request created the assignment first; honor it.
		raw, _, getErr := e.store.Get(ctx, store.NamespaceAssignments, key)
		if getErr != nil {
			return nil, getErr
		}
		var winner store.Assignment
		if jsonErr := json.Unmarshal(raw, &winner); jsonErr != nil {
			return nil, fmt.Errorf("failed to unmarshal assignment: %w", jsonErr)
		}
		if existing := test.Variant(winner.VariantID); existing != nil {
			return existing, nil
		}
		return variant, nil
	}
	if err != nil {
		return nil, err
	}

	return variant, nil
}

// pickVariant deterministically buckets a user into one of the test's
// variants according to their relative weights. For a fixed (userID,
// testID, variants) it always yields the same variant.
func pickVariant(test *store.Test, userID string) *store.Variant {
	totalWeight := test.TotalWeight()
	if totalWeight <= 0 {
		return &test.Variants[len(test.Variants)-1]
	}

	h := Hash32(userID + test.ID)
	position := float64(h) / float64(1<<32) * totalWeight

	cumulative := 0.0
	for i := range test.Variants {
		cumulative += test.Variants[i].Weight
		if cumulative >= position {
			return &test.Variants[i]
		}
	}

	// Rounding can push position past the final cumulative sum.
	return &test.Variants[len(test.Variants)-1]
}
