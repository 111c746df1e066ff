// Package ingest implements the chapter scan service: it runs the
// parsing pipeline over stored chapter text and persists the classified
// raw events. Chapters are independent pure transforms, so scanning is
// parallelized with a bounded worker group; a failing chapter is
// recorded and never aborts its siblings.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hearthkeep/chronicle/internal/domain"
	"github.com/hearthkeep/chronicle/internal/parser"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type chapterRepo interface {
	Upsert(ctx context.Context, ch domain.Chapter) (domain.Chapter, error)
	ListRange(ctx context.Context, from, to int) ([]domain.Chapter, error)
}

type eventRepo interface {
	DeleteByChapter(ctx context.Context, chapterID int64) error
	SaveBatch(ctx context.Context, events []domain.RawEvent) ([]domain.RawEvent, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type chapterParser interface {
	Parse(text string) ([]domain.RawEvent, parser.Stats)
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// ChapterFailure records one chapter whose scan or persistence failed.
type ChapterFailure struct {
	ChapterID     int64
	ChapterNumber string
	Err           error
}

// Report aggregates a scan pass over a chapter range.
type Report struct {
	ChaptersScanned int
	ChaptersFailed  int
	Candidates      int
	Excluded        int
	Events          int
	Dropped         int
	Incomplete      int
	Failures        []ChapterFailure
}

// Service implements chapter ingestion and scanning.
type Service struct {
	log      *slog.Logger
	chapters chapterRepo
	events   eventRepo
	tx       txManager
	parse    chapterParser
	workers  int
}

// NewService creates a new ingest service. workers bounds the number of
// chapters scanned concurrently; values below 1 are treated as 1.
func NewService(
	logger *slog.Logger,
	chapters chapterRepo,
	events eventRepo,
	tx txManager,
	parse chapterParser,
	workers int,
) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		log:      logger.With("service", "ingest"),
		chapters: chapters,
		events:   events,
		tx:       tx,
		parse:    parse,
		workers:  workers,
	}
}

// ImportChapter stores (or refreshes) a chapter. The word count is
// derived from the content when the caller leaves it zero.
func (s *Service) ImportChapter(ctx context.Context, ch domain.Chapter) (domain.Chapter, error) {
	if strings.TrimSpace(ch.ChapterNumber) == "" {
		return domain.Chapter{}, domain.NewValidationError("chapter_number", "must not be empty")
	}
	if ch.WordCount == 0 {
		ch.WordCount = len(strings.Fields(ch.Content))
	}

	saved, err := s.chapters.Upsert(ctx, ch)
	if err != nil {
		return domain.Chapter{}, fmt.Errorf("import chapter %s: %w", ch.ChapterNumber, err)
	}

	s.log.Info("chapter imported",
		slog.Int64("chapter_id", saved.ID),
		slog.String("chapter_number", saved.ChapterNumber),
		slog.Int("word_count", saved.WordCount),
	)

	return saved, nil
}

// ScanRange scans all chapters whose order index falls within [from, to]
// (to == 0 means no upper bound) and replaces their stored raw events.
// Chapters are processed concurrently; per-chapter failures are recorded
// in the report instead of aborting the pass.
func (s *Service) ScanRange(ctx context.Context, from, to int) (Report, error) {
	chapters, err := s.chapters.ListRange(ctx, from, to)
	if err != nil {
		return Report{}, fmt.Errorf("list chapters: %w", err)
	}

	var (
		mu     sync.Mutex
		report Report
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, ch := range chapters {
		g.Go(func() error {
			saved, stats, scanErr := s.scanChapter(gctx, ch)

			mu.Lock()
			defer mu.Unlock()

			if scanErr != nil {
				report.ChaptersFailed++
				report.Failures = append(report.Failures, ChapterFailure{
					ChapterID:     ch.ID,
					ChapterNumber: ch.ChapterNumber,
					Err:           scanErr,
				})
				s.log.Error("chapter scan failed",
					slog.Int64("chapter_id", ch.ID),
					slog.String("chapter_number", ch.ChapterNumber),
					slog.String("error", scanErr.Error()),
				)
				return nil
			}

			report.ChaptersScanned++
			report.Candidates += stats.Candidates
			report.Excluded += stats.Excluded
			report.Events += len(saved)
			report.Dropped += stats.Dropped
			report.Incomplete += stats.Incomplete
			return nil
		})
	}

	// Workers never return errors; Wait only propagates ctx cancellation.
	if err := g.Wait(); err != nil {
		return report, err
	}

	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].ChapterID < report.Failures[j].ChapterID
	})

	s.log.Info("scan pass finished",
		slog.Int("chapters_scanned", report.ChaptersScanned),
		slog.Int("chapters_failed", report.ChaptersFailed),
		slog.Int("events", report.Events),
		slog.Int("dropped", report.Dropped),
	)

	return report, nil
}

// scanChapter parses one chapter and atomically replaces its events.
func (s *Service) scanChapter(ctx context.Context, ch domain.Chapter) ([]domain.RawEvent, parser.Stats, error) {
	events, stats := s.parse.Parse(ch.Content)
	for i := range events {
		events[i].ChapterID = ch.ID
	}

	var saved []domain.RawEvent
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.events.DeleteByChapter(ctx, ch.ID); err != nil {
			return fmt.Errorf("delete previous events: %w", err)
		}
		var err error
		saved, err = s.events.SaveBatch(ctx, events)
		if err != nil {
			return fmt.Errorf("save events: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, parser.Stats{}, err
	}

	return saved, stats, nil
}
