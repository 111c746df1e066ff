package testhelper

import (
	"context"
	"testing"
)

func TestSetupTestDB_Smoke(t *testing.T) {
	pool := SetupTestDB(t)

	ch := SeedChapter(t, pool, "Some chapter text with a [Test Skill Obtained!] inside.")

	// Verify chapter exists in DB via SELECT.
	var number string
	err := pool.QueryRow(
		context.Background(),
		`SELECT chapter_number FROM chapters WHERE id = $1`,
		ch.ID,
	).Scan(&number)
	if err != nil {
		t.Fatalf("expected chapter in DB, got error: %v", err)
	}

	if number != ch.ChapterNumber {
		t.Fatalf("expected chapter_number %q, got %q", ch.ChapterNumber, number)
	}
}
