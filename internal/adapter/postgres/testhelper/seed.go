package testhelper

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hearthkeep/chronicle/internal/domain"
)

// orderSeq hands out non-conflicting chapter order indexes across parallel tests.
var orderSeq atomic.Int64

// uniqueSuffix returns a short unique string for generating non-conflicting test data.
func uniqueSuffix() string {
	return uuid.New().String()[:8]
}

// SeedChapter creates a chapter with the given content and a unique
// chapter number. Returns the persisted domain.Chapter.
func SeedChapter(t *testing.T, pool *pgxpool.Pool, content string) domain.Chapter {
	t.Helper()
	ctx := context.Background()

	order := int(orderSeq.Add(1)) + 100000
	ch := domain.Chapter{
		OrderIndex:    order,
		ChapterNumber: fmt.Sprintf("t-%d-%s", order, uniqueSuffix()),
		Content:       content,
		WordCount:     len(content) / 5,
		Roster:        []string{},
	}

	err := pool.QueryRow(ctx,
		`INSERT INTO chapters (order_index, chapter_number, title, content, word_count, roster)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		ch.OrderIndex, ch.ChapterNumber, ch.Title, ch.Content, ch.WordCount, ch.Roster,
	).Scan(&ch.ID)
	if err != nil {
		t.Fatalf("testhelper: SeedChapter insert chapter: %v", err)
	}

	return ch
}

// SeedCharacter creates a wiki character with a unique name and the
// given aliases. Returns the persisted domain.Character.
func SeedCharacter(t *testing.T, pool *pgxpool.Pool, aliases ...string) domain.Character {
	t.Helper()
	ctx := context.Background()

	if aliases == nil {
		aliases = []string{}
	}
	c := domain.Character{
		Name:    "Character " + uniqueSuffix(),
		Aliases: aliases,
	}

	err := pool.QueryRow(ctx,
		`INSERT INTO wiki_characters (name, aliases, species, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		c.Name, c.Aliases, c.Species, c.Status,
	).Scan(&c.ID)
	if err != nil {
		t.Fatalf("testhelper: SeedCharacter insert: %v", err)
	}

	return c
}

// SeedSkill creates a wiki skill. Returns the persisted domain.Skill.
func SeedSkill(t *testing.T, pool *pgxpool.Pool, name string, isFake bool) domain.Skill {
	t.Helper()
	ctx := context.Background()

	s := domain.Skill{Name: name, IsFake: isFake}

	err := pool.QueryRow(ctx,
		`INSERT INTO wiki_skills (name, is_fake) VALUES ($1, $2) RETURNING id`,
		s.Name, s.IsFake,
	).Scan(&s.ID)
	if err != nil {
		t.Fatalf("testhelper: SeedSkill insert: %v", err)
	}

	return s
}

// SeedRawEvent inserts one parse-stage raw event for the chapter and
// returns it with its generated ID.
func SeedRawEvent(t *testing.T, pool *pgxpool.Pool, chapterID int64, index int, eventType domain.EventType) domain.RawEvent {
	t.Helper()
	ctx := context.Background()

	ev := domain.RawEvent{
		ChapterID:  chapterID,
		EventType:  eventType,
		RawText:    fmt.Sprintf("[Seeded Event %d]", index),
		Context:    "seeded context",
		Payload:    map[string]any{},
		EventIndex: index,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	err := pool.QueryRow(ctx,
		`INSERT INTO raw_events (chapter_id, event_type, raw_text, context, parsed_data, event_index, is_incomplete, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		ev.ChapterID, string(ev.EventType), ev.RawText, ev.Context, ev.Payload, ev.EventIndex, ev.IsIncomplete, ev.CreatedAt,
	).Scan(&ev.ID)
	if err != nil {
		t.Fatalf("testhelper: SeedRawEvent insert: %v", err)
	}

	return ev
}
