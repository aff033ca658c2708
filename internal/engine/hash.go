package engine

// Hash32 maps an arbitrary string to a 32-bit value using a rolling
// multiply-and-add. Deterministic and uniform enough for weighted
// bucketing; not cryptographic.
func Hash32(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}

// Segments is the fixed set that user segments are derived from.
// Order matters: segment derivation buckets by index.
var Segments = []string{"new", "casual", "regular", "power"}

// DeriveSegment deterministically buckets a user id into a segment.
func DeriveSegment(userID string) string {
	return Segments[int(Hash32(userID))%len(Segments)]
}
