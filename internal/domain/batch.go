package domain

import "time"

// RequestCounts breaks a batch job's requests down by outcome.
type RequestCounts struct {
	Processing int
	Succeeded  int
	Errored    int
	Canceled   int
	Expired    int
}

// BatchJob mirrors an external batch job's lifecycle. It is created on
// submission and mutated only by polling; once Status is ended the
// record is terminal and results may be fetched.
type BatchJob struct {
	ID            int64
	BatchID       string
	Status        BatchStatus
	TotalRequests int
	Counts        RequestCounts
	SubmittedAt   time.Time
	ExpiresAt     time.Time
	EndedAt       *time.Time
	ProcessedAt   *time.Time
}

// BatchRequestMeta is the caller-held metadata for one request unit in
// a batch job, keyed by its correlation identifier. It records which
// chapter's events the unit carries so results can be demultiplexed.
type BatchRequestMeta struct {
	CustomID      string
	ChapterID     int64
	ChapterNumber string
	EventIDs      []int64
}
