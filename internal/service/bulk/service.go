// Package bulk implements attribution through the asynchronous batch
// API: submission of one request per chapter, polling until the job
// ends, and result processing with per-request isolation.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/hearthkeep/chronicle/internal/ai"
	"github.com/hearthkeep/chronicle/internal/attribution"
	"github.com/hearthkeep/chronicle/internal/domain"
)

// ErrWaitTimeout is returned by Wait when the job does not end within
// the configured timeout. The stored job is left untouched and can be
// polled again later.
var ErrWaitTimeout = errors.New("batch wait timeout elapsed")

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type chapterRepo interface {
	ListRange(ctx context.Context, from, to int) ([]domain.Chapter, error)
}

type eventRepo interface {
	ListNeedingAttribution(ctx context.Context, chapterID int64) ([]domain.RawEvent, error)
	ListByIDs(ctx context.Context, ids []int64) ([]domain.RawEvent, error)
	ApplyAttribution(ctx context.Context, a domain.Attribution) error
	UpsertChapterState(ctx context.Context, st domain.ChapterState) error
}

type jobRepo interface {
	Create(ctx context.Context, job domain.BatchJob, requests []domain.BatchRequestMeta) (domain.BatchJob, error)
	UpdateFromPoll(ctx context.Context, job domain.BatchJob) error
	MarkProcessed(ctx context.Context, jobID int64, at time.Time) error
	GetByID(ctx context.Context, id int64) (domain.BatchJob, error)
	ListUnfinished(ctx context.Context) ([]domain.BatchJob, error)
	ListAwaitingProcessing(ctx context.Context) ([]domain.BatchJob, error)
	Requests(ctx context.Context, jobID int64) (map[string]domain.BatchRequestMeta, error)
}

type batchAPI interface {
	CreateBatch(ctx context.Context, requests []ai.BatchRequest) (domain.BatchJob, error)
	GetBatch(ctx context.Context, batchID string) (domain.BatchJob, error)
	Results(ctx context.Context, batchID string) iter.Seq2[ai.BatchResult, error]
}

type promptBuilder interface {
	SystemPrompt() string
	AttributionMessage(ctx context.Context, chapterNumber string, events []domain.RawEvent, roster []string) (string, error)
}

type decisionEngine interface {
	Decide(ctx context.Context, events []domain.RawEvent, judgments []ai.Judgment) []domain.Attribution
}

type rosterSource interface {
	CharacterNames(ctx context.Context) []string
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service orchestrates bulk attribution jobs.
type Service struct {
	log      *slog.Logger
	chapters chapterRepo
	events   eventRepo
	jobs     jobRepo
	api      batchAPI
	prompts  promptBuilder
	engine   decisionEngine
	roster   rosterSource
	tx       txManager

	pollInterval time.Duration
	pollTimeout  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates a new bulk service. pollTimeout zero means Wait
// polls until the job ends or the context is canceled.
func NewService(
	logger *slog.Logger,
	chapters chapterRepo,
	events eventRepo,
	jobs jobRepo,
	api batchAPI,
	prompts promptBuilder,
	engine decisionEngine,
	roster rosterSource,
	tx txManager,
	pollInterval, pollTimeout time.Duration,
) *Service {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Service{
		log:          logger.With("service", "bulk"),
		chapters:     chapters,
		events:       events,
		jobs:         jobs,
		api:          api,
		prompts:      prompts,
		engine:       engine,
		roster:       roster,
		tx:           tx,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func customID(chapterID int64) string {
	return fmt.Sprintf("event_attr_%d", chapterID)
}

// ---------------------------------------------------------------------------
// Submission
// ---------------------------------------------------------------------------

// Submit collects all events needing attribution in the chapter range
// and submits them as one batch job, one request per chapter. Chapters
// without pending events are skipped; a range with nothing to do is a
// validation error.
func (s *Service) Submit(ctx context.Context, from, to int) (domain.BatchJob, error) {
	chapters, err := s.chapters.ListRange(ctx, from, to)
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("list chapters: %w", err)
	}

	var (
		requests []ai.BatchRequest
		meta     []domain.BatchRequestMeta
	)
	var registryRoster []string

	for _, ch := range chapters {
		pending, err := s.events.ListNeedingAttribution(ctx, ch.ID)
		if err != nil {
			return domain.BatchJob{}, fmt.Errorf("list pending events of chapter %d: %w", ch.ID, err)
		}
		if len(pending) == 0 {
			continue
		}

		roster := ch.Roster
		if len(roster) == 0 {
			if registryRoster == nil {
				registryRoster = s.roster.CharacterNames(ctx)
			}
			roster = registryRoster
		}

		user, err := s.prompts.AttributionMessage(ctx, ch.ChapterNumber, pending, roster)
		if err != nil {
			return domain.BatchJob{}, fmt.Errorf("build prompt for chapter %d: %w", ch.ID, err)
		}

		ids := make([]int64, len(pending))
		for i, ev := range pending {
			ids[i] = ev.ID
		}

		requests = append(requests, ai.BatchRequest{
			CustomID: customID(ch.ID),
			System:   s.prompts.SystemPrompt(),
			User:     user,
		})
		meta = append(meta, domain.BatchRequestMeta{
			CustomID:      customID(ch.ID),
			ChapterID:     ch.ID,
			ChapterNumber: ch.ChapterNumber,
			EventIDs:      ids,
		})
	}

	if len(requests) == 0 {
		return domain.BatchJob{}, fmt.Errorf("%w: no events need attribution in range", domain.ErrValidation)
	}

	job, err := s.api.CreateBatch(ctx, requests)
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("submit batch: %w", err)
	}
	job.TotalRequests = len(requests)

	var saved domain.BatchJob
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		saved, err = s.jobs.Create(ctx, job, meta)
		return err
	})
	if err != nil {
		// The provider job exists but we lost its record. The batch ID in
		// the error is the operator's handle for manual recovery.
		return domain.BatchJob{}, fmt.Errorf("record batch %s: %w", job.BatchID, err)
	}

	s.log.Info("batch submitted",
		slog.Int64("job_id", saved.ID),
		slog.String("batch_id", saved.BatchID),
		slog.Int("requests", saved.TotalRequests),
	)

	return saved, nil
}

// ---------------------------------------------------------------------------
// Polling
// ---------------------------------------------------------------------------

// Poll refreshes one job from the provider and stores the result.
func (s *Service) Poll(ctx context.Context, jobID int64) (domain.BatchJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return domain.BatchJob{}, err
	}

	polled, err := s.api.GetBatch(ctx, job.BatchID)
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("poll batch %s: %w", job.BatchID, err)
	}

	// Provider-owned fields overwrite; locally-owned fields survive.
	job.Status = polled.Status
	job.Counts = polled.Counts
	job.EndedAt = polled.EndedAt

	if err := s.jobs.UpdateFromPoll(ctx, job); err != nil {
		return domain.BatchJob{}, err
	}

	s.log.Info("batch polled",
		slog.Int64("job_id", job.ID),
		slog.String("batch_id", job.BatchID),
		slog.String("status", string(job.Status)),
		slog.Int("succeeded", job.Counts.Succeeded),
		slog.Int("processing", job.Counts.Processing),
	)

	return job, nil
}

// PollUnfinished polls every job the provider still owns. A failing
// poll is logged and skipped so one dead job cannot starve the rest.
func (s *Service) PollUnfinished(ctx context.Context) ([]domain.BatchJob, error) {
	unfinished, err := s.jobs.ListUnfinished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unfinished jobs: %w", err)
	}

	polled := make([]domain.BatchJob, 0, len(unfinished))
	for _, job := range unfinished {
		updated, err := s.Poll(ctx, job.ID)
		if err != nil {
			s.log.Error("poll failed",
				slog.Int64("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		polled = append(polled, updated)
	}

	return polled, nil
}

// Wait polls the job at the configured interval until it ends. On
// timeout the job record is left as the last poll wrote it and
// ErrWaitTimeout is returned alongside that state.
func (s *Service) Wait(ctx context.Context, jobID int64) (domain.BatchJob, error) {
	var deadline time.Time
	if s.pollTimeout > 0 {
		deadline = s.now().Add(s.pollTimeout)
	}

	for {
		job, err := s.Poll(ctx, jobID)
		if err != nil {
			return domain.BatchJob{}, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		if !deadline.IsZero() && !s.now().Before(deadline) {
			return job, fmt.Errorf("batch %s still %s: %w", job.BatchID, job.Status, ErrWaitTimeout)
		}
		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return job, err
		}
	}
}

// ---------------------------------------------------------------------------
// Result processing
// ---------------------------------------------------------------------------

// ProcessResults applies an ended job's results. Each request unit is
// isolated: a succeeded chapter is attributed through the decision
// engine, a failed one gets review-flagged attributions, and every
// event named in the job's metadata receives exactly one outcome.
// Processing a job twice reports domain.ErrConflict.
func (s *Service) ProcessResults(ctx context.Context, jobID int64) (domain.AttributionStats, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return domain.AttributionStats{}, err
	}
	if !job.Status.Terminal() {
		return domain.AttributionStats{}, fmt.Errorf("batch_job %d is still %s: %w", job.ID, job.Status, domain.ErrConflict)
	}
	if job.ProcessedAt != nil {
		return domain.AttributionStats{}, fmt.Errorf("batch_job %d already processed: %w", job.ID, domain.ErrConflict)
	}

	meta, err := s.jobs.Requests(ctx, jobID)
	if err != nil {
		return domain.AttributionStats{}, err
	}

	var total domain.AttributionStats
	for res, err := range s.api.Results(ctx, job.BatchID) {
		if err != nil {
			return total, err
		}

		m, ok := meta[res.CustomID]
		if !ok {
			s.log.Warn("result for unknown request",
				slog.Int64("job_id", job.ID),
				slog.String("custom_id", res.CustomID),
			)
			continue
		}

		stats := s.processResult(ctx, m, res)
		total.Processed += stats.Processed
		total.AutoAccepted += stats.AutoAccepted
		total.NeedsReview += stats.NeedsReview
		total.Errored += stats.Errored
	}

	if err := s.jobs.MarkProcessed(ctx, job.ID, s.now().UTC()); err != nil {
		return total, err
	}

	s.log.Info("batch results processed",
		slog.Int64("job_id", job.ID),
		slog.String("batch_id", job.BatchID),
		slog.Int("processed", total.Processed),
		slog.Int("auto_accepted", total.AutoAccepted),
		slog.Int("needs_review", total.NeedsReview),
		slog.Int("errored", total.Errored),
	)

	return total, nil
}

// ProcessAwaiting applies results of every ended, unprocessed job. A
// job another processor claimed first is skipped silently.
func (s *Service) ProcessAwaiting(ctx context.Context) (domain.AttributionStats, error) {
	awaiting, err := s.jobs.ListAwaitingProcessing(ctx)
	if err != nil {
		return domain.AttributionStats{}, fmt.Errorf("list jobs awaiting processing: %w", err)
	}

	var total domain.AttributionStats
	for _, job := range awaiting {
		stats, err := s.ProcessResults(ctx, job.ID)
		total.Processed += stats.Processed
		total.AutoAccepted += stats.AutoAccepted
		total.NeedsReview += stats.NeedsReview
		total.Errored += stats.Errored
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return total, err
		}
	}

	return total, nil
}

// processResult turns one request unit's outcome into attributions and
// persists them with the chapter's processing state.
func (s *Service) processResult(ctx context.Context, m domain.BatchRequestMeta, res ai.BatchResult) domain.AttributionStats {
	var stats domain.AttributionStats
	attrs := s.decideResult(ctx, m, res, &stats)

	for _, attr := range attrs {
		if err := s.events.ApplyAttribution(ctx, attr); err != nil {
			stats.Errored++
			s.log.Error("attribution save failed",
				slog.Int64("event_id", attr.EventID),
				slog.String("error", err.Error()),
			)
			continue
		}
		stats.Add(attr)
	}

	state := domain.ChapterState{
		ChapterID:       m.ChapterID,
		EventsProcessed: stats.Processed,
		AutoAccepted:    stats.AutoAccepted,
		FlaggedReview:   stats.NeedsReview,
		AttributedAt:    s.now().UTC(),
	}
	if err := s.events.UpsertChapterState(ctx, state); err != nil {
		s.log.Error("chapter state upsert failed",
			slog.Int64("chapter_id", m.ChapterID),
			slog.String("error", err.Error()),
		)
	}

	return stats
}

func (s *Service) decideResult(ctx context.Context, m domain.BatchRequestMeta, res ai.BatchResult, stats *domain.AttributionStats) []domain.Attribution {
	if res.Type != domain.BatchResultSucceeded {
		stats.Errored += len(m.EventIDs)
		s.log.Warn("batch request did not succeed",
			slog.String("custom_id", res.CustomID),
			slog.String("type", string(res.Type)),
			slog.String("error", res.ErrorMessage),
		)
		return attribution.Failed(m.EventIDs, fmt.Sprintf("batch request %s: %s", res.Type, res.ErrorMessage))
	}

	judgments, err := ai.ParseJudgments(res.Content)
	if err != nil {
		stats.Errored += len(m.EventIDs)
		s.log.Error("batch response unparseable",
			slog.String("custom_id", res.CustomID),
			slog.String("error", err.Error()),
		)
		return attribution.Failed(m.EventIDs, fmt.Sprintf("classification response unparseable: %v", err))
	}

	events, err := s.events.ListByIDs(ctx, m.EventIDs)
	if err != nil {
		stats.Errored += len(m.EventIDs)
		s.log.Error("load events for result failed",
			slog.String("custom_id", res.CustomID),
			slog.String("error", err.Error()),
		)
		return attribution.Failed(m.EventIDs, fmt.Sprintf("events could not be loaded: %v", err))
	}

	return s.engine.Decide(ctx, events, judgments)
}
