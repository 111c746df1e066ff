// Package airequest implements the classification request accounting
// log using PostgreSQL. Every call to the classification service gets
// one row here, successful or not.
package airequest

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/hearthkeep/chronicle/internal/adapter/postgres"
	"github.com/hearthkeep/chronicle/internal/domain"
)

const table = "ai_requests"

type insertedRow struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
}

// Repo provides append access to the request accounting log.
type Repo struct {
	db postgres.Querier
}

// New creates a new AI request repository.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db}
}

// Create appends one accounting record and returns it with the id and
// timestamp filled in.
func (r *Repo) Create(ctx context.Context, req domain.AIRequest) (domain.AIRequest, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	sql, args, err := postgres.Builder().
		Insert(table).
		Columns("chapter_id", "purpose", "model", "input_tokens", "output_tokens", "cost_estimate", "success", "error_message").
		Values(req.ChapterID, req.Purpose, req.Model, req.InputTokens, req.OutputTokens, req.CostUSD, req.Success, req.ErrorMessage).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return domain.AIRequest{}, fmt.Errorf("build insert ai request: %w", err)
	}

	var out insertedRow
	if err := pgxscan.Get(ctx, q, &out, sql, args...); err != nil {
		return domain.AIRequest{}, postgres.MapError(err, "ai_request", req.ChapterID)
	}

	req.ID = out.ID
	req.CreatedAt = out.CreatedAt
	return req, nil
}
