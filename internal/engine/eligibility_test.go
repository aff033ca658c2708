package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/splitkit/splitkit/internal/store"
)

func TestIsEligibleNoAudience(t *testing.T) {
	test := &store.Test{}
	assert.True(t, IsEligible(test, "anyone", UserContext{}, time.Now()))
}

func TestIsEligibleSegments(t *testing.T) {
	test := &store.Test{
		TargetAudience: &store.TargetAudience{UserSegments: []string{"power"}},
	}

	// Explicit context overrides the derived segment.
	assert.True(t, IsEligible(test, "u", UserContext{Segment: "power"}, time.Now()))
	assert.False(t, IsEligible(test, "u", UserContext{Segment: "new"}, time.Now()))

	// Without a context segment, the derived one decides.
	derived := DeriveSegment("some-user")
	test.TargetAudience.UserSegments = []string{derived}
	assert.True(t, IsEligible(test, "some-user", UserContext{}, time.Now()))
}

func TestIsEligibleDeviceTypes(t *testing.T) {
	test := &store.Test{
		TargetAudience: &store.TargetAudience{DeviceTypes: []string{"mobile", "tablet"}},
	}

	assert.True(t, IsEligible(test, "u", UserContext{DeviceType: "mobile"}, time.Now()))
	assert.False(t, IsEligible(test, "u", UserContext{DeviceType: "desktop"}, time.Now()))
	// Unknown device fails a device-constrained test.
	assert.False(t, IsEligible(test, "u", UserContext{}, time.Now()))
}

func TestIsEligibleTimeSlots(t *testing.T) {
	test := &store.Test{
		TargetAudience: &store.TargetAudience{
			TimeSlots: []store.TimeSlot{{Start: 9, End: 17}},
		},
	}

	noon := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	midnight := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, IsEligible(test, "u", UserContext{}, noon))
	assert.False(t, IsEligible(test, "u", UserContext{}, midnight))

	// Boundary hours are inclusive.
	nine := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	seventeen := time.Date(2025, 6, 1, 17, 59, 0, 0, time.UTC)
	assert.True(t, IsEligible(test, "u", UserContext{}, nine))
	assert.True(t, IsEligible(test, "u", UserContext{}, seventeen))

	// The caller's reported hour beats the server clock.
	three := 3
	assert.False(t, IsEligible(test, "u", UserContext{HourOfDay: &three}, noon))
}

func TestIsEligibleFiltersCombineWithAND(t *testing.T) {
	test := &store.Test{
		TargetAudience: &store.TargetAudience{
			UserSegments: []string{"new"},
			DeviceTypes:  []string{"mobile"},
			TimeSlots:    []store.TimeSlot{{Start: 18, End: 23}},
		},
	}

	evening := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	match := UserContext{Segment: "new", DeviceType: "mobile"}

	assert.True(t, IsEligible(test, "u", match, evening))
	assert.False(t, IsEligible(test, "u", UserContext{Segment: "power", DeviceType: "mobile"}, evening))
	assert.False(t, IsEligible(test, "u", UserContext{Segment: "new", DeviceType: "desktop"}, evening))
	assert.False(t, IsEligible(test, "u", match, evening.Add(-10*time.Hour)))
}
