package event

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

func eventRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "chapter_id", "event_type", "raw_text", "context", "parsed_data",
		"event_index", "is_incomplete", "character_id", "ai_confidence",
		"ai_reasoning", "is_assigned", "needs_review", "created_at",
	})
}

func addEventRow(rows *pgxmock.Rows, id, chapterID int64, eventType string, index int) *pgxmock.Rows {
	return rows.AddRow(
		id, chapterID, eventType, "[Raw]", "ctx", map[string]any{},
		index, false, (*int64)(nil), (*float64)(nil),
		(*string)(nil), false, false, time.Now(),
	)
}

func TestRepo_SaveBatch(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`INSERT INTO raw_events`).
		WithArgs(anyArgs(14)...).
		WillReturnRows(addEventRow(addEventRow(eventRows(), 1, 10, "skill_obtained", 0), 2, 10, "level_up", 1))

	events := []domain.RawEvent{
		{ChapterID: 10, EventType: domain.EventTypeSkillObtained, RawText: "[Raw]", EventIndex: 0},
		{ChapterID: 10, EventType: domain.EventTypeLevelUp, RawText: "[Raw]", EventIndex: 1},
	}

	saved, err := repo.SaveBatch(context.Background(), events)
	if err != nil {
		t.Fatalf("SaveBatch: unexpected error: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("SaveBatch: got %d events, want 2", len(saved))
	}
	if saved[0].ID != 1 || saved[1].ID != 2 {
		t.Errorf("SaveBatch: generated IDs not returned: %+v", saved)
	}
	if saved[1].EventType != domain.EventTypeLevelUp {
		t.Errorf("EventType mismatch: got %s", saved[1].EventType)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_SaveBatch_Empty(t *testing.T) {
	repo, mock := newMockRepo(t)

	saved, err := repo.SaveBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("SaveBatch(nil): unexpected error: %v", err)
	}
	if len(saved) != 0 {
		t.Errorf("SaveBatch(nil): got %d events, want 0", len(saved))
	}

	// No query should have been issued.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_DeleteByChapter(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`DELETE FROM raw_events WHERE chapter_id = \$1`).
		WithArgs(int64(10)).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	if err := repo.DeleteByChapter(context.Background(), 10); err != nil {
		t.Fatalf("DeleteByChapter: unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_ListNeedingAttribution(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM raw_events WHERE .+ ORDER BY event_index ASC`).
		WithArgs(anyArgs(3)...).
		WillReturnRows(addEventRow(addEventRow(eventRows(), 5, 10, "skill_obtained", 2), 6, 10, "other", 4))

	events, err := repo.ListNeedingAttribution(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListNeedingAttribution: unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].EventIndex != 2 || events[1].EventIndex != 4 {
		t.Errorf("events out of document order: %+v", events)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_ListByIDs_Empty(t *testing.T) {
	repo, mock := newMockRepo(t)

	events, err := repo.ListByIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListByIDs(nil): unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("ListByIDs(nil): got %d events, want 0", len(events))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_ApplyAttribution(t *testing.T) {
	repo, mock := newMockRepo(t)

	charID := int64(3)
	mock.ExpectExec(`UPDATE raw_events SET`).
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.ApplyAttribution(context.Background(), domain.Attribution{
		EventID:      5,
		EventType:    domain.EventTypeSkillObtained,
		CharacterID:  &charID,
		Payload:      map[string]any{"skill_name": "Basic Cooking"},
		Confidence:   0.96,
		Reasoning:    "clear attribution",
		AutoAccepted: true,
	})
	if err != nil {
		t.Fatalf("ApplyAttribution: unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_ApplyAttribution_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE raw_events SET`).
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.ApplyAttribution(context.Background(), domain.Attribution{
		EventID:     404,
		EventType:   domain.EventTypeOther,
		NeedsReview: true,
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ApplyAttribution: expected domain.ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_UpsertChapterState(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	mock.ExpectExec(`INSERT INTO ai_chapter_state`).
		WithArgs(int64(10), 15, 12, 3, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.UpsertChapterState(context.Background(), domain.ChapterState{
		ChapterID:       10,
		EventsProcessed: 15,
		AutoAccepted:    12,
		FlaggedReview:   3,
		AttributedAt:    now,
	})
	if err != nil {
		t.Fatalf("UpsertChapterState: unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
