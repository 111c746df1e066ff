package batchjob

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/hearthkeep/chronicle/internal/domain"
)

func newMockRepo(t *testing.T) (*Repo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return New(mock), mock
}

// anyArgs returns n wildcard matchers; pgxmock requires a placeholder
// for every bound argument even when the test does not assert on them.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func jobRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "batch_id", "status", "total_requests",
		"processing_count", "succeeded_count", "errored_count", "canceled_count", "expired_count",
		"submitted_at", "expires_at", "ended_at", "processed_at",
	})
}

func addJobRow(rows *pgxmock.Rows, id int64, batchID, status string, total int) *pgxmock.Rows {
	now := time.Now().UTC()
	return rows.AddRow(
		id, batchID, status, total,
		total, 0, 0, 0, 0,
		now, now.Add(24*time.Hour), (*time.Time)(nil), (*time.Time)(nil),
	)
}

func TestRepo_Create(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO ai_batch_jobs`).
		WithArgs(anyArgs(11)...).
		WillReturnRows(addJobRow(jobRows(), 1, "msgbatch_01", "in_progress", 2))
	mock.ExpectExec(`INSERT INTO ai_batch_requests`).
		WithArgs(anyArgs(10)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	job := domain.BatchJob{
		BatchID:       "msgbatch_01",
		Status:        domain.BatchStatusInProgress,
		TotalRequests: 2,
		Counts:        domain.RequestCounts{Processing: 2},
		SubmittedAt:   now,
		ExpiresAt:     now.Add(24 * time.Hour),
	}
	requests := []domain.BatchRequestMeta{
		{CustomID: "event_attr_10", ChapterID: 10, ChapterNumber: "1.00", EventIDs: []int64{1, 2}},
		{CustomID: "event_attr_11", ChapterID: 11, ChapterNumber: "1.01", EventIDs: []int64{3}},
	}

	created, err := repo.Create(context.Background(), job, requests)
	if err != nil {
		t.Fatalf("Create: unexpected error: %v", err)
	}
	if created.ID != 1 {
		t.Errorf("ID mismatch: got %d, want 1", created.ID)
	}
	if created.Status != domain.BatchStatusInProgress {
		t.Errorf("Status mismatch: got %s", created.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_UpdateFromPoll(t *testing.T) {
	repo, mock := newMockRepo(t)

	ended := time.Now().UTC()
	mock.ExpectExec(`UPDATE ai_batch_jobs SET`).
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.UpdateFromPoll(context.Background(), domain.BatchJob{
		ID:     1,
		Status: domain.BatchStatusEnded,
		Counts:  domain.RequestCounts{Succeeded: 97, Errored: 3},
		EndedAt: &ended,
	})
	if err != nil {
		t.Fatalf("UpdateFromPoll: unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_UpdateFromPoll_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE ai_batch_jobs SET`).
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateFromPoll(context.Background(), domain.BatchJob{ID: 404, Status: domain.BatchStatusEnded})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("UpdateFromPoll: expected domain.ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_MarkProcessed(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE ai_batch_jobs SET processed_at = \$1 WHERE id = \$2 AND processed_at IS NULL`).
		WithArgs(anyArgs(2)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.MarkProcessed(context.Background(), 1, time.Now().UTC()); err != nil {
		t.Fatalf("MarkProcessed: unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_MarkProcessed_AlreadyProcessed(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE ai_batch_jobs SET processed_at`).
		WithArgs(anyArgs(2)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.MarkProcessed(context.Background(), 1, time.Now().UTC())
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("MarkProcessed: expected domain.ErrConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_ListUnfinished(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM ai_batch_jobs WHERE status IN .+ ORDER BY submitted_at ASC`).
		WithArgs(anyArgs(2)...).
		WillReturnRows(addJobRow(addJobRow(jobRows(), 1, "msgbatch_01", "in_progress", 5), 2, "msgbatch_02", "canceling", 3))

	jobs, err := repo.ListUnfinished(context.Background())
	if err != nil {
		t.Fatalf("ListUnfinished: unexpected error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].BatchID != "msgbatch_01" || jobs[1].Status != domain.BatchStatusCanceling {
		t.Errorf("unexpected jobs: %+v", jobs)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_ListAwaitingProcessing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM ai_batch_jobs WHERE \(status = \$1 AND processed_at IS NULL\)`).
		WithArgs("ended").
		WillReturnRows(addJobRow(jobRows(), 3, "msgbatch_03", "ended", 4))

	jobs, err := repo.ListAwaitingProcessing(context.Background())
	if err != nil {
		t.Fatalf("ListAwaitingProcessing: unexpected error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != domain.BatchStatusEnded {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_Requests(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT custom_id, chapter_id, chapter_number, event_ids FROM ai_batch_requests`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"custom_id", "chapter_id", "chapter_number", "event_ids"}).
			AddRow("event_attr_10", int64(10), "1.00", []int64{1, 2}).
			AddRow("event_attr_11", int64(11), "1.01", []int64{3}))

	requests, err := repo.Requests(context.Background(), 1)
	if err != nil {
		t.Fatalf("Requests: unexpected error: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("got %d requests, want 2", len(requests))
	}

	meta, ok := requests["event_attr_10"]
	if !ok {
		t.Fatal("missing custom_id event_attr_10")
	}
	if meta.ChapterID != 10 || len(meta.EventIDs) != 2 {
		t.Errorf("unexpected meta: %+v", meta)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
