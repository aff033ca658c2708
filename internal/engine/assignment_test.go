package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitkit/splitkit/internal/store"
	"github.com/splitkit/splitkit/internal/tracker"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, store.Gateway) {
	t.Helper()
	gw := store.NewMemoryStore()
	tr := tracker.New(gw, nil, nil)
	return New(gw, tr, nil, Config{}, opts...), gw
}

func activeTestConfig(name, responseType string) TestConfig {
	return TestConfig{
		Name:         name,
		ResponseType: responseType,
		Variants: []VariantConfig{
			{Name: "Control", Weight: 0.5},
			{Name: "Challenger", Weight: 0.5},
		},
		Metrics: []string{"conversion_rate"},
	}
}

func TestGetVariantDeterministic(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.CreateTest(ctx, activeTestConfig("greeting", "greeting"))
	require.NoError(t, err)

	first := eng.GetVariant(ctx, "greeting", "alice", UserContext{})
	require.False(t, first.Default)
	require.NotEmpty(t, first.ResponseID)

	for i := 0; i < 10; i++ {
		again := eng.GetVariant(ctx, "greeting", "alice", UserContext{})
		assert.Equal(t, first.VariantID, again.VariantID)
		assert.Equal(t, first.TestID, again.TestID)
	}
}

func TestGetVariantNoMatchingTest(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	va := eng.GetVariant(ctx, "greeting", "alice", UserContext{})
	assert.True(t, va.Default)
	assert.Equal(t, DefaultVariantID, va.VariantID)
	assert.Empty(t, va.TestID)
	assert.Empty(t, va.ResponseID)
}

func TestGetVariantIneligibleUser(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	cfg := activeTestConfig("mobile-only", "greeting")
	cfg.TargetAudience = &store.TargetAudience{DeviceTypes: []string{"mobile"}}
	_, err := eng.CreateTest(ctx, cfg)
	require.NoError(t, err)

	va := eng.GetVariant(ctx, "greeting", "alice", UserContext{DeviceType: "desktop"})
	assert.True(t, va.Default)

	va = eng.GetVariant(ctx, "greeting", "alice", UserContext{DeviceType: "mobile"})
	assert.False(t, va.Default)
}

func TestGetVariantPriorityOrder(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	low := activeTestConfig("low", "greeting")
	low.Priority = 1
	lowTest, err := eng.CreateTest(ctx, low)
	require.NoError(t, err)

	high := activeTestConfig("high", "greeting")
	high.Priority = 5
	highTest, err := eng.CreateTest(ctx, high)
	require.NoError(t, err)

	va := eng.GetVariant(ctx, "greeting", "alice", UserContext{})
	assert.Equal(t, highTest.ID, va.TestID)
	assert.NotEqual(t, lowTest.ID, va.TestID)
}

func TestGetVariantRecordsExposure(t *testing.T) {
	eng, gw := newTestEngine(t)
	ctx := context.Background()

	test, err := eng.CreateTest(ctx, activeTestConfig("greeting", "greeting"))
	require.NoError(t, err)

	va := eng.GetVariant(ctx, "greeting", "alice", UserContext{})
	require.False(t, va.Default)

	results, err := eng.Results(ctx, test.ID)
	require.NoError(t, err)

	samples := 0
	for _, r := range results {
		samples += r.Samples
	}
	assert.Equal(t, 1, samples)

	// The response id is registered for later feedback attribution.
	_, _, err = gw.Get(ctx, store.NamespaceResults, store.ResponseKey(va.ResponseID))
	assert.NoError(t, err)
}

func TestPickVariantWeightFidelity(t *testing.T) {
	cases := []struct {
		weights []float64
		want    []float64
	}{
		{[]float64{0.5, 0.5}, []float64{0.5, 0.5}},
		{[]float64{0.2, 0.8}, []float64{0.2, 0.8}},
	}

	for _, tc := range cases {
		test := &store.Test{ID: "t"}
		for i, w := range tc.weights {
			test.Variants = append(test.Variants, store.Variant{
				ID:     fmt.Sprintf("variant_%d", i),
				Weight: w,
			})
		}

		const n = 10000
		counts := make(map[string]int)
		for i := 0; i < n; i++ {
			v := pickVariant(test, fmt.Sprintf("user-%d", i))
			counts[v.ID]++
		}

		for i, want := range tc.want {
			got := float64(counts[fmt.Sprintf("variant_%d", i)]) / n
			assert.InDelta(t, want, got, 0.02,
				"weights %v variant %d got %.1f%%", tc.weights, i, got*100)
		}
	}
}

func TestPickVariantDeterministic(t *testing.T) {
	test := &store.Test{
		ID: "t",
		Variants: []store.Variant{
			{ID: "a", Weight: 1},
			{ID: "b", Weight: 1},
			{ID: "c", Weight: 1},
		},
	}

	for i := 0; i < 100; i++ {
		user := fmt.Sprintf("user-%d", i)
		first := pickVariant(test, user)
		assert.Equal(t, first.ID, pickVariant(test, user).ID)
	}
}

func TestResolveAssignmentHonorsExistingWinner(t *testing.T) {
	eng, gw := newTestEngine(t)
	ctx := context.Background()

	test, err := eng.CreateTest(ctx, activeTestConfig("greeting", "greeting"))
	require.NoError(t, err)

	// Pre-seed an assignment as if a concurrent request won the race.
	assignment := store.Assignment{
		TestID:     test.ID,
		UserID:     "alice",
		VariantID:  test.Variants[1].ID,
		AssignedAt: time.Now(),
	}
	key := store.AssignmentKey{TestID: test.ID, UserID: "alice"}.String()
	data, err := json.Marshal(assignment)
	require.NoError(t, err)
	require.NoError(t, gw.CompareAndSet(ctx, store.NamespaceAssignments, key, data, 0))

	va := eng.GetVariant(ctx, "greeting", "alice", UserContext{})
	assert.Equal(t, test.Variants[1].ID, va.VariantID)
}
