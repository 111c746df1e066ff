package domain

import "time"

// RawEvent is a bracket occurrence persisted from a scanned chapter.
// Before attribution only the parse-derived fields are set; attribution
// fills in the character, confidence, and disposition columns.
type RawEvent struct {
	ID           int64
	ChapterID    int64
	EventType    EventType
	RawText      string
	Context      string
	Payload      map[string]any
	EventIndex   int
	IsIncomplete bool

	CharacterID *int64
	Confidence  *float64
	Reasoning   *string
	IsAssigned  bool
	NeedsReview bool

	CreatedAt time.Time
}

// Chapter is a stored chapter of narrative text. Roster lists the
// characters known to appear in the chapter; attribution falls back to
// the full registry when it is empty. RosterUpdatedAt is nil until
// roster extraction has run for the chapter.
type Chapter struct {
	ID              int64
	OrderIndex      int
	ChapterNumber   string
	Title           *string
	Content         string
	WordCount       int
	Roster          []string
	RosterUpdatedAt *time.Time
}

// ChapterState tracks per-chapter attribution progress. Upserted after
// each attribution pass, synchronous or bulk.
type ChapterState struct {
	ChapterID       int64
	EventsProcessed int
	AutoAccepted    int
	FlaggedReview   int
	AttributedAt    time.Time
}
