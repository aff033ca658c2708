package store

import "time"

type TestStatus string

const (
	StatusActive    TestStatus = "active"
	StatusCompleted TestStatus = "completed"
	StatusStopped   TestStatus = "stopped"
)

// Variant is one candidate configuration under test.
type Variant struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Weight   float64        `json:"weight"`
	Config   map[string]any `json:"config,omitempty"`
	Template string         `json:"template,omitempty"`
	Voice    string         `json:"voice,omitempty"`
}

// TimeSlot is an inclusive local-hour range, e.g. {9, 17}.
type TimeSlot struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// TargetAudience filters who qualifies for a test. A nil or empty field
// means no constraint on that dimension.
type TargetAudience struct {
	UserSegments []string   `json:"user_segments,omitempty"`
	DeviceTypes  []string   `json:"device_types,omitempty"`
	TimeSlots    []TimeSlot `json:"time_slots,omitempty"`
}

type Test struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	ResponseType    string          `json:"response_type"`
	Status          TestStatus      `json:"status"`
	Variants        []Variant       `json:"variants"`
	TargetAudience  *TargetAudience `json:"target_audience,omitempty"`
	Metrics         []string        `json:"metrics"`
	MinSampleSize   int             `json:"min_sample_size"`
	ConfidenceLevel float64         `json:"confidence_level"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         *time.Time      `json:"end_date,omitempty"`
	Priority        int             `json:"priority"`
	WinningVariant  string          `json:"winning_variant,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	StoppedAt       *time.Time      `json:"stopped_at,omitempty"`
	StopReason      string          `json:"stop_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Variant returns the variant with the given id, or nil.
func (t *Test) Variant(id string) *Variant {
	for i := range t.Variants {
		if t.Variants[i].ID == id {
			return &t.Variants[i]
		}
	}
	return nil
}

// TotalWeight sums the variant weights. Weights are relative and get
// normalized at assignment time, not at creation.
func (t *Test) TotalWeight() float64 {
	total := 0.0
	for _, v := range t.Variants {
		total += v.Weight
	}
	return total
}

// Assignment pins a user to a variant for the duration of a test.
// Once created it never changes.
type Assignment struct {
	TestID        string    `json:"test_id"`
	UserID        string    `json:"user_id"`
	VariantID     string    `json:"variant_id"`
	AssignedAt    time.Time `json:"assigned_at"`
	ExposureCount int       `json:"exposure_count"`
	LastExposure  time.Time `json:"last_exposure,omitempty"`
}

type EventType string

const (
	EventExposure     EventType = "exposure"
	EventFeedback     EventType = "feedback"
	EventConversion   EventType = "conversion"
	EventStart        EventType = "start"
	EventCompletion   EventType = "completion"
	EventInterruption EventType = "interruption"
)

// Event is one ingested interaction record in a variant's event log.
type Event struct {
	Type           EventType `json:"type"`
	UserID         string    `json:"user_id,omitempty"`
	ResponseID     string    `json:"response_id,omitempty"`
	Rating         int       `json:"rating,omitempty"`
	FeedbackType   string    `json:"feedback_type,omitempty"`
	Comments       string    `json:"comments,omitempty"`
	ConversionType string    `json:"conversion_type,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Metrics holds the running per-variant aggregates. Counters are
// maintained incrementally; rates are re-derived from the counters on
// every write so they stay correct when denominators change.
type Metrics struct {
	Exposures        int     `json:"exposures"`
	Conversions      int     `json:"conversions"`
	PositiveRatings  int     `json:"positive_ratings"`
	NegativeRatings  int     `json:"negative_ratings"`
	RatingCount      int     `json:"rating_count"`
	AverageRating    float64 `json:"average_rating"`
	Starts           int     `json:"starts"`
	Plays            int     `json:"plays"`
	Completions      int     `json:"completions"`
	Interruptions    int     `json:"interruptions"`
	CompletionRate   float64 `json:"completion_rate"`
	InterruptionRate float64 `json:"interruption_rate"`
}

// VariantResult is the aggregation unit for one (test, variant) pair.
// Metrics must always be derivable by replaying Events.
type VariantResult struct {
	TestID      string    `json:"test_id"`
	VariantID   string    `json:"variant_id"`
	Events      []Event   `json:"events"`
	Metrics     Metrics   `json:"metrics"`
	Samples     int       `json:"samples"`
	LastUpdated time.Time `json:"last_updated"`
}

// ResponseRef links a served response id back to the test, variant and
// user that produced it, so later feedback can be attributed.
type ResponseRef struct {
	TestID    string    `json:"test_id"`
	VariantID string    `json:"variant_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// WinnerSnapshot records the promoted configuration for a response type
// when a test completes, for downstream response generation.
type WinnerSnapshot struct {
	TestID     string         `json:"test_id"`
	VariantID  string         `json:"variant_id"`
	Config     map[string]any `json:"config,omitempty"`
	Template   string         `json:"template,omitempty"`
	Voice      string         `json:"voice,omitempty"`
	PromotedAt time.Time      `json:"promoted_at"`
}
