package airequest

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

func TestRepo_Create(t *testing.T) {
	repo, mock := newMockRepo(t)

	created := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO ai_requests`).
		WithArgs(int64(7), domain.AIPurposeAttribution, "claude-3-5-haiku-20241022",
			int64(2000), int64(500), 0.0045, true, (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), created))

	got, err := repo.Create(context.Background(), domain.AIRequest{
		ChapterID:    7,
		Purpose:      domain.AIPurposeAttribution,
		Model:        "claude-3-5-haiku-20241022",
		InputTokens:  2000,
		OutputTokens: 500,
		CostUSD:      0.0045,
		Success:      true,
	})
	if err != nil {
		t.Fatalf("Create: unexpected error: %v", err)
	}

	if got.ID != 42 {
		t.Errorf("ID mismatch: got %d, want 42", got.ID)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, created)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_Create_FailureRecord(t *testing.T) {
	repo, mock := newMockRepo(t)

	msg := "overloaded"
	mock.ExpectQuery(`INSERT INTO ai_requests`).
		WithArgs(int64(7), domain.AIPurposeRoster, "claude-3-5-haiku-20241022",
			int64(0), int64(0), 0.0, false, &msg).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).
			AddRow(int64(43), time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)))

	_, err := repo.Create(context.Background(), domain.AIRequest{
		ChapterID:    7,
		Purpose:      domain.AIPurposeRoster,
		Model:        "claude-3-5-haiku-20241022",
		ErrorMessage: &msg,
	})
	if err != nil {
		t.Fatalf("Create: unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_Create_QueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	boom := errors.New("connection refused")
	mock.ExpectQuery(`INSERT INTO ai_requests`).WithArgs(anyArgs(8)...).WillReturnError(boom)

	_, err := repo.Create(context.Background(), domain.AIRequest{ChapterID: 7})
	if !errors.Is(err, boom) {
		t.Fatalf("Create: expected wrapped query error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
