// Package chapter implements the chapter repository using PostgreSQL.
package chapter

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

const table = "chapters"

var columns = []string{"id", "order_index", "chapter_number", "title", "content", "word_count", "roster", "roster_updated_at"}

// row mirrors the chapters table for scany.
type row struct {
	ID              int64      `db:"id"`
	OrderIndex      int        `db:"order_index"`
	ChapterNumber   string     `db:"chapter_number"`
	Title           *string    `db:"title"`
	Content         string     `db:"content"`
	WordCount       int        `db:"word_count"`
	Roster          []string   `db:"roster"`
	RosterUpdatedAt *time.Time `db:"roster_updated_at"`
}

// Repo provides chapter persistence backed by PostgreSQL.
type Repo struct {
	db postgres.Querier
}

// New creates a new chapter repository.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db}
}

// Upsert inserts a chapter or refreshes its stored text when the chapter
// number already exists. Re-imports keep the original ID so raw events
// stay linked, and clear the roster stamp since the new text invalidates
// any extracted roster.
func (r *Repo) Upsert(ctx context.Context, ch domain.Chapter) (domain.Chapter, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	roster := ch.Roster
	if roster == nil {
		roster = []string{}
	}

	sql, args, err := postgres.Builder().
		Insert(table).
		Columns("order_index", "chapter_number", "title", "content", "word_count", "roster").
		Values(ch.OrderIndex, ch.ChapterNumber, ch.Title, ch.Content, ch.WordCount, roster).
		Suffix(`ON CONFLICT (chapter_number) DO UPDATE SET
			order_index = EXCLUDED.order_index,
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			word_count = EXCLUDED.word_count,
			roster = EXCLUDED.roster,
			roster_updated_at = NULL`).
		Suffix("RETURNING " + strings.Join(columns, ", ")).
		ToSql()
	if err != nil {
		return domain.Chapter{}, fmt.Errorf("build upsert chapter: %w", err)
	}

	var out row
	if err := pgxscan.Get(ctx, q, &out, sql, args...); err != nil {
		return domain.Chapter{}, postgres.MapError(err, "chapter", ch.ID)
	}

	return toDomain(out), nil
}

// GetByID returns a chapter by primary key.
func (r *Repo) GetByID(ctx context.Context, id int64) (domain.Chapter, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	sql, args, err := postgres.Builder().
		Select(columns...).
		From(table).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Chapter{}, fmt.Errorf("build get chapter: %w", err)
	}

	var out row
	if err := pgxscan.Get(ctx, q, &out, sql, args...); err != nil {
		return domain.Chapter{}, postgres.MapError(err, "chapter", id)
	}

	return toDomain(out), nil
}

// GetByNumber returns a chapter by its chapter number.
func (r *Repo) GetByNumber(ctx context.Context, number string) (domain.Chapter, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	sql, args, err := postgres.Builder().
		Select(columns...).
		From(table).
		Where(squirrel.Eq{"chapter_number": number}).
		ToSql()
	if err != nil {
		return domain.Chapter{}, fmt.Errorf("build get chapter by number: %w", err)
	}

	var out row
	if err := pgxscan.Get(ctx, q, &out, sql, args...); err != nil {
		return domain.Chapter{}, fmt.Errorf("chapter %q: %w", number, postgres.MapError(err, "chapter", 0))
	}

	return toDomain(out), nil
}

// ListRange returns chapters whose order index falls within [from, to],
// ordered by reading order. A zero to means no upper bound.
func (r *Repo) ListRange(ctx context.Context, from, to int) ([]domain.Chapter, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	b := postgres.Builder().
		Select(columns...).
		From(table).
		Where(squirrel.GtOrEq{"order_index": from}).
		OrderBy("order_index ASC")
	if to > 0 {
		b = b.Where(squirrel.LtOrEq{"order_index": to})
	}

	sql, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list chapters: %w", err)
	}

	var out []row
	if err := pgxscan.Select(ctx, q, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}

	chapters := make([]domain.Chapter, 0, len(out))
	for _, cr := range out {
		chapters = append(chapters, toDomain(cr))
	}

	return chapters, nil
}

// UpdateRoster replaces a chapter's roster and stamps the update time.
// Returns domain.ErrNotFound for unknown chapters.
func (r *Repo) UpdateRoster(ctx context.Context, id int64, roster []string) error {
	q := postgres.QuerierFromCtx(ctx, r.db)

	if roster == nil {
		roster = []string{}
	}

	sql, args, err := postgres.Builder().
		Update(table).
		Set("roster", roster).
		Set("roster_updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update roster: %w", err)
	}

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "chapter", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chapter %d: %w", id, domain.ErrNotFound)
	}

	return nil
}

func toDomain(r row) domain.Chapter {
	return domain.Chapter{
		ID:              r.ID,
		OrderIndex:      r.OrderIndex,
		ChapterNumber:   r.ChapterNumber,
		Title:           r.Title,
		Content:         r.Content,
		WordCount:       r.WordCount,
		Roster:          r.Roster,
		RosterUpdatedAt: r.RosterUpdatedAt,
	}
}
