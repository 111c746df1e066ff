// Package event implements the raw event repository using PostgreSQL.
// Parse-stage writes and attribution-stage updates both live here; the
// attribution columns are only ever touched through ApplyAttribution.
package event

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/hearthkeep/chronicle/internal/adapter/postgres"
	"github.com/hearthkeep/chronicle/internal/domain"
)

const table = "raw_events"

var columns = []string{
	"id", "chapter_id", "event_type", "raw_text", "context", "parsed_data",
	"event_index", "is_incomplete", "character_id", "ai_confidence",
	"ai_reasoning", "is_assigned", "needs_review", "created_at",
}

// row mirrors the raw_events table for scany.
type row struct {
	ID           int64          `db:"id"`
	ChapterID    int64          `db:"chapter_id"`
	EventType    string         `db:"event_type"`
	RawText      string         `db:"raw_text"`
	Context      string         `db:"context"`
	ParsedData   map[string]any `db:"parsed_data"`
	EventIndex   int            `db:"event_index"`
	IsIncomplete bool           `db:"is_incomplete"`
	CharacterID  *int64         `db:"character_id"`
	AIConfidence *float64       `db:"ai_confidence"`
	AIReasoning  *string        `db:"ai_reasoning"`
	IsAssigned   bool           `db:"is_assigned"`
	NeedsReview  bool           `db:"needs_review"`
	CreatedAt    time.Time      `db:"created_at"`
}

// Repo provides raw event persistence backed by PostgreSQL.
type Repo struct {
	db postgres.Querier
}

// New creates a new event repository.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db}
}

// ---------------------------------------------------------------------------
// Parse-stage writes
// ---------------------------------------------------------------------------

// DeleteByChapter removes all events of a chapter. Used together with
// SaveBatch (inside one transaction) when a chapter is re-scanned.
func (r *Repo) DeleteByChapter(ctx context.Context, chapterID int64) error {
	q := postgres.QuerierFromCtx(ctx, r.db)

	sql, args, err := postgres.Builder().
		Delete(table).
		Where(squirrel.Eq{"chapter_id": chapterID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete events: %w", err)
	}

	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "raw_events of chapter", chapterID)
	}

	return nil
}

// SaveBatch inserts parse-stage events in one statement and returns them
// with generated IDs, in input order.
func (r *Repo) SaveBatch(ctx context.Context, events []domain.RawEvent) ([]domain.RawEvent, error) {
	if len(events) == 0 {
		return []domain.RawEvent{}, nil
	}

	q := postgres.QuerierFromCtx(ctx, r.db)

	b := postgres.Builder().
		Insert(table).
		Columns("chapter_id", "event_type", "raw_text", "context", "parsed_data", "event_index", "is_incomplete")
	for _, ev := range events {
		payload := ev.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		b = b.Values(ev.ChapterID, string(ev.EventType), ev.RawText, ev.Context, payload, ev.EventIndex, ev.IsIncomplete)
	}

	sql, args, err := b.Suffix("RETURNING " + strings.Join(columns, ", ")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert events: %w", err)
	}

	var out []row
	if err := pgxscan.Select(ctx, q, &out, sql, args...); err != nil {
		return nil, postgres.MapError(err, "raw_events of chapter", events[0].ChapterID)
	}

	saved := make([]domain.RawEvent, 0, len(out))
	for _, er := range out {
		saved = append(saved, toDomain(er))
	}

	return saved, nil
}

// ---------------------------------------------------------------------------
// Attribution-stage reads
// ---------------------------------------------------------------------------

// ListNeedingAttribution returns a chapter's events that have neither
// been assigned nor flagged for review, in document order.
func (r *Repo) ListNeedingAttribution(ctx context.Context, chapterID int64) ([]domain.RawEvent, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	sql, args, err := postgres.Builder().
		Select(columns...).
		From(table).
		Where(squirrel.Eq{"chapter_id": chapterID, "is_assigned": false, "needs_review": false}).
		OrderBy("event_index ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list pending events: %w", err)
	}

	var out []row
	if err := pgxscan.Select(ctx, q, &out, sql, args...); err != nil {
		return nil, postgres.MapError(err, "raw_events of chapter", chapterID)
	}

	events := make([]domain.RawEvent, 0, len(out))
	for _, er := range out {
		events = append(events, toDomain(er))
	}

	return events, nil
}

// ListByIDs returns events by primary key, ordered by event_index. Used
// when demultiplexing batch results back onto their source events.
func (r *Repo) ListByIDs(ctx context.Context, ids []int64) ([]domain.RawEvent, error) {
	if len(ids) == 0 {
		return []domain.RawEvent{}, nil
	}

	q := postgres.QuerierFromCtx(ctx, r.db)

	sql, args, err := postgres.Builder().
		Select(columns...).
		From(table).
		Where(squirrel.Eq{"id": ids}).
		OrderBy("event_index ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list events by ids: %w", err)
	}

	var out []row
	if err := pgxscan.Select(ctx, q, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list events by ids: %w", err)
	}

	events := make([]domain.RawEvent, 0, len(out))
	for _, er := range out {
		events = append(events, toDomain(er))
	}

	return events, nil
}

// ---------------------------------------------------------------------------
// Attribution-stage writes
// ---------------------------------------------------------------------------

// ApplyAttribution writes one attribution decision onto its event.
// The update is idempotent: re-applying the same decision is a no-op
// with the same end state. Returns domain.ErrNotFound for unknown events.
func (r *Repo) ApplyAttribution(ctx context.Context, a domain.Attribution) error {
	q := postgres.QuerierFromCtx(ctx, r.db)

	payload := a.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	sql, args, err := postgres.Builder().
		Update(table).
		Set("event_type", string(a.EventType)).
		Set("character_id", a.CharacterID).
		Set("parsed_data", payload).
		Set("ai_confidence", a.Confidence).
		Set("ai_reasoning", a.Reasoning).
		Set("is_assigned", a.AutoAccepted).
		Set("needs_review", a.NeedsReview).
		Where(squirrel.Eq{"id": a.EventID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build apply attribution: %w", err)
	}

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "raw_event", a.EventID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("raw_event %d: %w", a.EventID, domain.ErrNotFound)
	}

	return nil
}

// UpsertChapterState records the outcome of an attribution pass for a
// chapter, replacing any previous record.
func (r *Repo) UpsertChapterState(ctx context.Context, st domain.ChapterState) error {
	q := postgres.QuerierFromCtx(ctx, r.db)

	sql, args, err := postgres.Builder().
		Insert("ai_chapter_state").
		Columns("chapter_id", "events_processed", "auto_accepted", "flagged_review", "attributed_at").
		Values(st.ChapterID, st.EventsProcessed, st.AutoAccepted, st.FlaggedReview, st.AttributedAt).
		Suffix(`ON CONFLICT (chapter_id) DO UPDATE SET
			events_processed = EXCLUDED.events_processed,
			auto_accepted = EXCLUDED.auto_accepted,
			flagged_review = EXCLUDED.flagged_review,
			attributed_at = EXCLUDED.attributed_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert chapter state: %w", err)
	}

	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "chapter_state", st.ChapterID)
	}

	return nil
}

func toDomain(r row) domain.RawEvent {
	return domain.RawEvent{
		ID:           r.ID,
		ChapterID:    r.ChapterID,
		EventType:    domain.EventType(r.EventType),
		RawText:      r.RawText,
		Context:      r.Context,
		Payload:      r.ParsedData,
		EventIndex:   r.EventIndex,
		IsIncomplete: r.IsIncomplete,
		CharacterID:  r.CharacterID,
		Confidence:   r.AIConfidence,
		Reasoning:    r.AIReasoning,
		IsAssigned:   r.IsAssigned,
		NeedsReview:  r.NeedsReview,
		CreatedAt:    r.CreatedAt,
	}
}
