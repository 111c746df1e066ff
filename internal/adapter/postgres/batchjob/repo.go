// Package batchjob implements persistence for async batch jobs and
// their per-request metadata. The job row mirrors the provider's view
// of the batch; the request rows are the caller-held demultiplexing
// table keyed by custom_id.
package batchjob

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

const (
	jobsTable     = "ai_batch_jobs"
	requestsTable = "ai_batch_requests"
)

var jobColumns = []string{
	"id", "batch_id", "status", "total_requests",
	"processing_count", "succeeded_count", "errored_count", "canceled_count", "expired_count",
	"submitted_at", "expires_at", "ended_at", "processed_at",
}

// jobRow mirrors the ai_batch_jobs table for scany.
type jobRow struct {
	ID              int64      `db:"id"`
	BatchID         string     `db:"batch_id"`
	Status          string     `db:"status"`
	TotalRequests   int        `db:"total_requests"`
	ProcessingCount int        `db:"processing_count"`
	SucceededCount  int        `db:"succeeded_count"`
	ErroredCount    int        `db:"errored_count"`
	CanceledCount   int        `db:"canceled_count"`
	ExpiredCount    int        `db:"expired_count"`
	SubmittedAt     time.Time  `db:"submitted_at"`
	ExpiresAt       time.Time  `db:"expires_at"`
	EndedAt         *time.Time `db:"ended_at"`
	ProcessedAt     *time.Time `db:"processed_at"`
}

// requestRow mirrors the ai_batch_requests table for scany.
type requestRow struct {
	CustomID      string  `db:"custom_id"`
	ChapterID     int64   `db:"chapter_id"`
	ChapterNumber string  `db:"chapter_number"`
	EventIDs      []int64 `db:"event_ids"`
}

// Repo provides batch job persistence backed by PostgreSQL.
type Repo struct {
	db postgres.Querier
}

// New creates a new batch job repository.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db}
}

// ---------------------------------------------------------------------------
// Submission
// ---------------------------------------------------------------------------

// Create persists a freshly submitted job together with its request
// metadata. Callers run it inside a transaction so a half-recorded
// submission can never be observed.
func (r *Repo) Create(ctx context.Context, job domain.BatchJob, requests []domain.BatchRequestMeta) (domain.BatchJob, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	sql, args, err := postgres.Builder().
		Insert(jobsTable).
		Columns("batch_id", "status", "total_requests",
			"processing_count", "succeeded_count", "errored_count", "canceled_count", "expired_count",
			"submitted_at", "expires_at", "ended_at").
		Values(job.BatchID, string(job.Status), job.TotalRequests,
			job.Counts.Processing, job.Counts.Succeeded, job.Counts.Errored, job.Counts.Canceled, job.Counts.Expired,
			job.SubmittedAt, job.ExpiresAt, job.EndedAt).
		Suffix("RETURNING " + strings.Join(jobColumns, ", ")).
		ToSql()
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("build insert batch job: %w", err)
	}

	var out jobRow
	if err := pgxscan.Get(ctx, q, &out, sql, args...); err != nil {
		return domain.BatchJob{}, postgres.MapError(err, "batch_job", job.ID)
	}

	if len(requests) > 0 {
		b := postgres.Builder().
			Insert(requestsTable).
			Columns("job_id", "custom_id", "chapter_id", "chapter_number", "event_ids")
		for _, req := range requests {
			b = b.Values(out.ID, req.CustomID, req.ChapterID, req.ChapterNumber, req.EventIDs)
		}

		sql, args, err := b.ToSql()
		if err != nil {
			return domain.BatchJob{}, fmt.Errorf("build insert batch requests: %w", err)
		}
		if _, err := q.Exec(ctx, sql, args...); err != nil {
			return domain.BatchJob{}, postgres.MapError(err, "batch_requests of job", out.ID)
		}
	}

	return toDomainJob(out), nil
}

// ---------------------------------------------------------------------------
// Polling
// ---------------------------------------------------------------------------

// UpdateFromPoll overwrites a job's provider-owned fields (status,
// request counts, ended_at) after a poll.
func (r *Repo) UpdateFromPoll(ctx context.Context, job domain.BatchJob) error {
	q := postgres.QuerierFromCtx(ctx, r.db)

	sql, args, err := postgres.Builder().
		Update(jobsTable).
		Set("status", string(job.Status)).
		Set("processing_count", job.Counts.Processing).
		Set("succeeded_count", job.Counts.Succeeded).
		Set("errored_count", job.Counts.Errored).
		Set("canceled_count", job.Counts.Canceled).
		Set("expired_count", job.Counts.Expired).
		Set("ended_at", job.EndedAt).
		Where(squirrel.Eq{"id": job.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update batch job: %w", err)
	}

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "batch_job", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch_job %d: %w", job.ID, domain.ErrNotFound)
	}

	return nil
}

// MarkProcessed stamps a job whose results have been applied. Only
// unprocessed jobs match, so a concurrent second processor is a no-op
// that reports domain.ErrConflict.
func (r *Repo) MarkProcessed(ctx context.Context, jobID int64, at time.Time) error {
	q := postgres.QuerierFromCtx(ctx, r.db)

	sql, args, err := postgres.Builder().
		Update(jobsTable).
		Set("processed_at", at).
		Where(squirrel.Eq{"id": jobID}).
		Where("processed_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark processed: %w", err)
	}

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "batch_job", jobID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch_job %d already processed: %w", jobID, domain.ErrConflict)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// GetByID returns a job by primary key.
func (r *Repo) GetByID(ctx context.Context, id int64) (domain.BatchJob, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	sql, args, err := postgres.Builder().
		Select(jobColumns...).
		From(jobsTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("build get batch job: %w", err)
	}

	var out jobRow
	if err := pgxscan.Get(ctx, q, &out, sql, args...); err != nil {
		return domain.BatchJob{}, postgres.MapError(err, "batch_job", id)
	}

	return toDomainJob(out), nil
}

// GetByBatchID returns a job by the provider-assigned batch identifier.
func (r *Repo) GetByBatchID(ctx context.Context, batchID string) (domain.BatchJob, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	sql, args, err := postgres.Builder().
		Select(jobColumns...).
		From(jobsTable).
		Where(squirrel.Eq{"batch_id": batchID}).
		ToSql()
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("build get batch job by batch_id: %w", err)
	}

	var out jobRow
	if err := pgxscan.Get(ctx, q, &out, sql, args...); err != nil {
		return domain.BatchJob{}, fmt.Errorf("batch %q: %w", batchID, postgres.MapError(err, "batch_job", 0))
	}

	return toDomainJob(out), nil
}

// ListUnfinished returns jobs still owned by the provider (in_progress
// or canceling), oldest first. These are the jobs a poll pass visits.
func (r *Repo) ListUnfinished(ctx context.Context) ([]domain.BatchJob, error) {
	return r.listWhere(ctx, squirrel.Eq{
		"status": []string{string(domain.BatchStatusInProgress), string(domain.BatchStatusCanceling)},
	})
}

// ListAwaitingProcessing returns ended jobs whose results have not been
// applied yet, oldest first.
func (r *Repo) ListAwaitingProcessing(ctx context.Context) ([]domain.BatchJob, error) {
	return r.listWhere(ctx, squirrel.And{
		squirrel.Eq{"status": string(domain.BatchStatusEnded)},
		squirrel.Expr("processed_at IS NULL"),
	})
}

func (r *Repo) listWhere(ctx context.Context, pred any) ([]domain.BatchJob, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	sql, args, err := postgres.Builder().
		Select(jobColumns...).
		From(jobsTable).
		Where(pred).
		OrderBy("submitted_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list batch jobs: %w", err)
	}

	var out []jobRow
	if err := pgxscan.Select(ctx, q, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list batch jobs: %w", err)
	}

	jobs := make([]domain.BatchJob, 0, len(out))
	for _, jr := range out {
		jobs = append(jobs, toDomainJob(jr))
	}

	return jobs, nil
}

// Requests returns the request metadata of a job keyed by custom_id.
func (r *Repo) Requests(ctx context.Context, jobID int64) (map[string]domain.BatchRequestMeta, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	sql, args, err := postgres.Builder().
		Select("custom_id", "chapter_id", "chapter_number", "event_ids").
		From(requestsTable).
		Where(squirrel.Eq{"job_id": jobID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list batch requests: %w", err)
	}

	var out []requestRow
	if err := pgxscan.Select(ctx, q, &out, sql, args...); err != nil {
		return nil, postgres.MapError(err, "batch_requests of job", jobID)
	}

	requests := make(map[string]domain.BatchRequestMeta, len(out))
	for _, rr := range out {
		requests[rr.CustomID] = domain.BatchRequestMeta{
			CustomID:      rr.CustomID,
			ChapterID:     rr.ChapterID,
			ChapterNumber: rr.ChapterNumber,
			EventIDs:      rr.EventIDs,
		}
	}

	return requests, nil
}

func toDomainJob(r jobRow) domain.BatchJob {
	return domain.BatchJob{
		ID:            r.ID,
		BatchID:       r.BatchID,
		Status:        domain.BatchStatus(r.Status),
		TotalRequests: r.TotalRequests,
		Counts: domain.RequestCounts{
			Processing: r.ProcessingCount,
			Succeeded:  r.SucceededCount,
			Errored:    r.ErroredCount,
			Canceled:   r.CanceledCount,
			Expired:    r.ExpiredCount,
		},
		SubmittedAt: r.SubmittedAt,
		ExpiresAt:   r.ExpiresAt,
		EndedAt:     r.EndedAt,
		ProcessedAt: r.ProcessedAt,
	}
}
