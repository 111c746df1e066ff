// Package attribute implements synchronous attribution: events needing
// attribution are sent to the classification service in fixed-size
// batches, judged, decided by the attribution engine, and persisted one
// by one. A failed batch flags only its own events; a failed save skips
// only its own record.
package attribute

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hearthkeep/chronicle/internal/ai"
	"github.com/hearthkeep/chronicle/internal/attribution"
	"github.com/hearthkeep/chronicle/internal/domain"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type chapterRepo interface {
	GetByID(ctx context.Context, id int64) (domain.Chapter, error)
	ListRange(ctx context.Context, from, to int) ([]domain.Chapter, error)
}

type eventRepo interface {
	ListNeedingAttribution(ctx context.Context, chapterID int64) ([]domain.RawEvent, error)
	ApplyAttribution(ctx context.Context, a domain.Attribution) error
	UpsertChapterState(ctx context.Context, st domain.ChapterState) error
}

type classifierClient interface {
	Complete(ctx context.Context, system, user string) (ai.Completion, error)
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

type usageLog interface {
	Create(ctx context.Context, req domain.AIRequest) (domain.AIRequest, error)
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service implements the synchronous attribution flow.
type Service struct {
	log       *slog.Logger
	chapters  chapterRepo
	events    eventRepo
	client    classifierClient
	prompts   promptBuilder
	engine    decisionEngine
	roster    rosterSource
	usage     usageLog
	batchSize int
	now       func() time.Time
}

// NewService creates a new attribute service. batchSize bounds how many
// events share one classification request; values below 1 are treated
// as 1.
func NewService(
	logger *slog.Logger,
	chapters chapterRepo,
	events eventRepo,
	client classifierClient,
	prompts promptBuilder,
	engine decisionEngine,
	roster rosterSource,
	usage usageLog,
	batchSize int,
) *Service {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Service{
		log:       logger.With("service", "attribute"),
		chapters:  chapters,
		events:    events,
		client:    client,
		prompts:   prompts,
		engine:    engine,
		roster:    roster,
		usage:     usage,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// AttributeChapter attributes all pending events of one chapter and
// upserts its processing state. The returned stats count every pending
// event exactly once.
func (s *Service) AttributeChapter(ctx context.Context, chapterID int64) (domain.AttributionStats, error) {
	ch, err := s.chapters.GetByID(ctx, chapterID)
	if err != nil {
		return domain.AttributionStats{}, fmt.Errorf("load chapter: %w", err)
	}

	pending, err := s.events.ListNeedingAttribution(ctx, ch.ID)
	if err != nil {
		return domain.AttributionStats{}, fmt.Errorf("list pending events: %w", err)
	}
	if len(pending) == 0 {
		return domain.AttributionStats{}, nil
	}

	roster := ch.Roster
	if len(roster) == 0 {
		roster = s.roster.CharacterNames(ctx)
	}

	var stats domain.AttributionStats
	for start := 0; start < len(pending); start += s.batchSize {
		end := min(start+s.batchSize, len(pending))
		batch := pending[start:end]

		attrs := s.judgeBatch(ctx, ch, batch, roster, &stats)
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
	}

	state := domain.ChapterState{
		ChapterID:       ch.ID,
		EventsProcessed: stats.Processed,
		AutoAccepted:    stats.AutoAccepted,
		FlaggedReview:   stats.NeedsReview,
		AttributedAt:    s.now().UTC(),
	}
	if err := s.events.UpsertChapterState(ctx, state); err != nil {
		return stats, fmt.Errorf("upsert chapter state: %w", err)
	}

	s.log.Info("chapter attributed",
		slog.Int64("chapter_id", ch.ID),
		slog.Int("processed", stats.Processed),
		slog.Int("auto_accepted", stats.AutoAccepted),
		slog.Int("needs_review", stats.NeedsReview),
		slog.Int("errored", stats.Errored),
	)

	return stats, nil
}

// AttributeRange attributes every chapter in [from, to] sequentially.
// A failing chapter is logged and skipped; classification requests are
// already rate-bound, so there is no parallelism here.
func (s *Service) AttributeRange(ctx context.Context, from, to int) (domain.AttributionStats, error) {
	chapters, err := s.chapters.ListRange(ctx, from, to)
	if err != nil {
		return domain.AttributionStats{}, fmt.Errorf("list chapters: %w", err)
	}

	var total domain.AttributionStats
	for _, ch := range chapters {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		stats, err := s.AttributeChapter(ctx, ch.ID)
		total.Processed += stats.Processed
		total.AutoAccepted += stats.AutoAccepted
		total.NeedsReview += stats.NeedsReview
		total.Errored += stats.Errored
		if err != nil {
			s.log.Error("chapter attribution failed",
				slog.Int64("chapter_id", ch.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return total, nil
}

// judgeBatch runs one classification request and turns the outcome into
// attributions. Request or parse failures produce review-flagged
// attributions for exactly this batch's events.
func (s *Service) judgeBatch(ctx context.Context, ch domain.Chapter, batch []domain.RawEvent, roster []string, stats *domain.AttributionStats) []domain.Attribution {
	ids := make([]int64, len(batch))
	for i, ev := range batch {
		ids[i] = ev.ID
	}

	user, err := s.prompts.AttributionMessage(ctx, ch.ChapterNumber, batch, roster)
	if err != nil {
		stats.Errored += len(batch)
		return attribution.Failed(ids, fmt.Sprintf("prompt construction failed: %v", err))
	}

	completion, err := s.client.Complete(ctx, s.prompts.SystemPrompt(), user)
	s.recordUsage(ctx, ai.UsageRecord(completion, ch.ID, domain.AIPurposeAttribution, err))
	if err != nil {
		stats.Errored += len(batch)
		s.log.Error("classification request failed",
			slog.Int64("chapter_id", ch.ID),
			slog.Int("events", len(batch)),
			slog.String("error", err.Error()),
		)
		return attribution.Failed(ids, fmt.Sprintf("classification request failed: %v", err))
	}

	judgments, err := ai.ParseJudgments(completion.Content)
	if err != nil {
		stats.Errored += len(batch)
		s.log.Error("classification response unparseable",
			slog.Int64("chapter_id", ch.ID),
			slog.String("error", err.Error()),
		)
		return attribution.Failed(ids, fmt.Sprintf("classification response unparseable: %v", err))
	}

	return s.engine.Decide(ctx, batch, judgments)
}

// recordUsage appends one accounting record. Accounting never fails the
// attribution pass.
func (s *Service) recordUsage(ctx context.Context, rec domain.AIRequest) {
	if _, err := s.usage.Create(ctx, rec); err != nil {
		s.log.Warn("usage accounting failed",
			slog.Int64("chapter_id", rec.ChapterID),
			slog.String("error", err.Error()),
		)
	}
}
