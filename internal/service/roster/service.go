// Package roster implements per-chapter roster extraction: the
// classification service reads a chapter, reports which known
// characters appear in it and which names are new, and the resulting
// roster is stored on the chapter for attribution to use. New names are
// registered in the reference tables so later chapters can match them.
package roster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hearthkeep/chronicle/internal/ai"
	"github.com/hearthkeep/chronicle/internal/domain"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type chapterRepo interface {
	GetByID(ctx context.Context, id int64) (domain.Chapter, error)
	ListRange(ctx context.Context, from, to int) ([]domain.Chapter, error)
	UpdateRoster(ctx context.Context, id int64, roster []string) error
}

type characterRegistrar interface {
	InsertCharacter(ctx context.Context, ch domain.Character) (domain.Character, bool, error)
}

type classifierClient interface {
	Complete(ctx context.Context, system, user string) (ai.Completion, error)
}

type promptBuilder interface {
	RosterSystemPrompt() string
	RosterMessage(ctx context.Context, chapterNumber, text string) (string, error)
}

type characterResolver interface {
	FindCharacter(ctx context.Context, name string) (domain.Character, bool)
}

type usageLog interface {
	Create(ctx context.Context, req domain.AIRequest) (domain.AIRequest, error)
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Report tallies one roster-extraction run.
type Report struct {
	ChaptersProcessed int
	ChaptersSkipped   int
	ChaptersFailed    int
	CharactersFound   int
	NewCharacters     int
}

// Service implements the roster-extraction flow.
type Service struct {
	log        *slog.Logger
	chapters   chapterRepo
	characters characterRegistrar
	client     classifierClient
	prompts    promptBuilder
	resolver   characterResolver
	usage      usageLog
}

// NewService creates a new roster service.
func NewService(
	logger *slog.Logger,
	chapters chapterRepo,
	characters characterRegistrar,
	client classifierClient,
	prompts promptBuilder,
	resolver characterResolver,
	usage usageLog,
) *Service {
	return &Service{
		log:        logger.With("service", "roster"),
		chapters:   chapters,
		characters: characters,
		client:     client,
		prompts:    prompts,
		resolver:   resolver,
		usage:      usage,
	}
}

// ExtractChapter extracts and stores the roster of one chapter. Unlike
// ExtractRange it always runs, so a single chapter can be redone after
// its text changes.
func (s *Service) ExtractChapter(ctx context.Context, chapterID int64) (Report, error) {
	ch, err := s.chapters.GetByID(ctx, chapterID)
	if err != nil {
		return Report{}, fmt.Errorf("load chapter: %w", err)
	}
	return s.extract(ctx, ch)
}

// ExtractRange extracts rosters for every chapter in [from, to] that
// has not been extracted yet. A failing chapter is logged and skipped.
func (s *Service) ExtractRange(ctx context.Context, from, to int) (Report, error) {
	chapters, err := s.chapters.ListRange(ctx, from, to)
	if err != nil {
		return Report{}, fmt.Errorf("list chapters: %w", err)
	}

	var total Report
	for _, ch := range chapters {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if ch.RosterUpdatedAt != nil {
			total.ChaptersSkipped++
			continue
		}

		report, err := s.extract(ctx, ch)
		total.ChaptersProcessed += report.ChaptersProcessed
		total.ChaptersFailed += report.ChaptersFailed
		total.CharactersFound += report.CharactersFound
		total.NewCharacters += report.NewCharacters
		if err != nil {
			s.log.Error("roster extraction failed",
				slog.Int64("chapter_id", ch.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return total, nil
}

func (s *Service) extract(ctx context.Context, ch domain.Chapter) (Report, error) {
	user, err := s.prompts.RosterMessage(ctx, ch.ChapterNumber, ch.Content)
	if err != nil {
		return Report{ChaptersFailed: 1}, fmt.Errorf("build roster prompt: %w", err)
	}

	completion, err := s.client.Complete(ctx, s.prompts.RosterSystemPrompt(), user)
	s.recordUsage(ctx, ai.UsageRecord(completion, ch.ID, domain.AIPurposeRoster, err))
	if err != nil {
		return Report{ChaptersFailed: 1}, fmt.Errorf("roster request: %w", err)
	}

	ext, err := ai.ParseRoster(completion.Content)
	if err != nil {
		return Report{ChaptersFailed: 1}, fmt.Errorf("roster response: %w", err)
	}

	report := Report{ChaptersProcessed: 1}
	roster := newRosterSet()

	for _, m := range ext.Mentioned {
		name := m.Name
		// Aliases collapse onto the canonical registry name; an unknown
		// mention keeps whatever the model reported.
		if known, ok := s.resolver.FindCharacter(ctx, name); ok {
			name = known.Name
		}
		roster.add(name)
	}

	for _, nc := range ext.New {
		if known, ok := s.resolver.FindCharacter(ctx, nc.Name); ok {
			// The model flagged a character we already know; no row to add.
			roster.add(known.Name)
			continue
		}

		reg := domain.Character{Name: nc.Name}
		if sp := nc.Species; sp != "" && !strings.EqualFold(sp, "Unknown") {
			reg.Species = &sp
		}
		_, inserted, err := s.characters.InsertCharacter(ctx, reg)
		if err != nil {
			s.log.Error("character registration failed",
				slog.Int64("chapter_id", ch.ID),
				slog.String("name", nc.Name),
				slog.String("error", err.Error()),
			)
		} else if inserted {
			report.NewCharacters++
		}
		roster.add(nc.Name)
	}

	report.CharactersFound = len(roster.names)
	if err := s.chapters.UpdateRoster(ctx, ch.ID, roster.names); err != nil {
		return Report{ChaptersFailed: 1}, fmt.Errorf("store roster: %w", err)
	}

	s.log.Info("roster extracted",
		slog.Int64("chapter_id", ch.ID),
		slog.Int("characters", report.CharactersFound),
		slog.Int("new_characters", report.NewCharacters),
	)

	return report, nil
}

// recordUsage appends one accounting record. Accounting never fails the
// extraction pass.
func (s *Service) recordUsage(ctx context.Context, rec domain.AIRequest) {
	if _, err := s.usage.Create(ctx, rec); err != nil {
		s.log.Warn("usage accounting failed",
			slog.Int64("chapter_id", rec.ChapterID),
			slog.String("error", err.Error()),
		)
	}
}

// rosterSet deduplicates case-insensitively while keeping first-seen
// order, so stored rosters are stable across runs.
type rosterSet struct {
	seen  map[string]bool
	names []string
}

func newRosterSet() *rosterSet {
	return &rosterSet{seen: make(map[string]bool), names: []string{}}
}

func (r *rosterSet) add(name string) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || r.seen[key] {
		return
	}
	r.seen[key] = true
	r.names = append(r.names, name)
}
