package domain

// Attribution is the decision produced for one raw event: a resolved
// event type (possibly downgraded to false_positive), an owning
// character when one could be resolved, and an accept/review
// disposition.
//
// Invariant: exactly one of AutoAccepted and NeedsReview is true.
type Attribution struct {
	EventID       int64
	EventType     EventType
	CharacterName *string
	CharacterID   *int64
	Payload       map[string]any
	Confidence    float64
	Reasoning     string
	AutoAccepted  bool
	NeedsReview   bool
}

// Valid reports whether the disposition invariant holds.
func (a Attribution) Valid() bool {
	return a.AutoAccepted != a.NeedsReview
}

// AttributionStats aggregates the outcome of an attribution pass.
type AttributionStats struct {
	Processed    int
	AutoAccepted int
	NeedsReview  int
	Errored      int
}

// Add folds one attribution into the tally.
func (s *AttributionStats) Add(a Attribution) {
	s.Processed++
	if a.AutoAccepted {
		s.AutoAccepted++
	} else {
		s.NeedsReview++
	}
}
