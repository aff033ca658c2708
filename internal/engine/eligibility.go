package engine

import (
	"time"

	"github.com/splitkit/splitkit/internal/store"
)

// UserContext is the caller-supplied user/device context used for
// audience targeting. All fields are optional.
type UserContext struct {
	// Segment overrides the segment derived from the user id.
	Segment string `json:"segment,omitempty"`

	// DeviceType is the device class reported by the caller.
	DeviceType string `json:"device_type,omitempty"`

	// HourOfDay is the caller's local hour (0-23). Nil means unknown,
	// in which case the engine's clock is consulted.
	HourOfDay *int `json:"hour_of_day,omitempty"`
}

// IsEligible reports whether a user qualifies for a test's target
// audience. Tests without a target audience accept everyone. Configured
// filters are combined with AND; an absent filter places no constraint
// on that dimension.
func IsEligible(test *store.Test, userID string, uc UserContext, now time.Time) bool {
	audience := test.TargetAudience
	if audience == nil {
		return true
	}

	if len(audience.UserSegments) > 0 {
		segment := uc.Segment
		if segment == "" {
			segment = DeriveSegment(userID)
		}
		if !containsString(audience.UserSegments, segment) {
			return false
		}
	}

	if len(audience.DeviceTypes) > 0 {
		if !containsString(audience.DeviceTypes, uc.DeviceType) {
			return false
		}
	}

	if len(audience.TimeSlots) > 0 {
		hour := now.Hour()
		if uc.HourOfDay != nil {
			hour = *uc.HourOfDay
		}
		inSlot := false
		for _, slot := range audience.TimeSlots {
			if hour >= slot.Start && hour <= slot.End {
				inSlot = true
				break
			}
		}
		if !inSlot {
			return false
		}
	}

	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
