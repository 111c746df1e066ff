package roster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthkeep/chronicle/internal/ai"
	"github.com/hearthkeep/chronicle/internal/domain"
)

// ---------------------------------------------------------------------------
// Test mocks (minimal, inline)
// ---------------------------------------------------------------------------

type mockChapterRepo struct {
	rosters       map[int64][]string
	getByIDFunc   func(ctx context.Context, id int64) (domain.Chapter, error)
	listRangeFunc func(ctx context.Context, from, to int) ([]domain.Chapter, error)
	updateErr     error
}

func (m *mockChapterRepo) GetByID(ctx context.Context, id int64) (domain.Chapter, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return domain.Chapter{ID: id, ChapterNumber: "1.00", Content: "Erin stirred the pot."}, nil
}

func (m *mockChapterRepo) ListRange(ctx context.Context, from, to int) ([]domain.Chapter, error) {
	if m.listRangeFunc != nil {
		return m.listRangeFunc(ctx, from, to)
	}
	return nil, nil
}

func (m *mockChapterRepo) UpdateRoster(ctx context.Context, id int64, roster []string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if m.rosters == nil {
		m.rosters = make(map[int64][]string)
	}
	m.rosters[id] = roster
	return nil
}

type mockRegistrar struct {
	inserted  []domain.Character
	insertErr error
}

func (m *mockRegistrar) InsertCharacter(ctx context.Context, ch domain.Character) (domain.Character, bool, error) {
	if m.insertErr != nil {
		return domain.Character{}, false, m.insertErr
	}
	m.inserted = append(m.inserted, ch)
	ch.ID = int64(100 + len(m.inserted))
	return ch, true, nil
}

type mockClient struct {
	calls        int
	completeFunc func(ctx context.Context, system, user string) (ai.Completion, error)
}

func (m *mockClient) Complete(ctx context.Context, system, user string) (ai.Completion, error) {
	m.calls++
	if m.completeFunc != nil {
		return m.completeFunc(ctx, system, user)
	}
	return ai.Completion{
		Content:      `{"characters_mentioned": [], "new_characters": []}`,
		Model:        "claude-3-5-haiku-20241022",
		InputTokens:  5000,
		OutputTokens: 300,
	}, nil
}

type mockPrompts struct{}

func (mockPrompts) RosterSystemPrompt() string { return "system" }

func (mockPrompts) RosterMessage(ctx context.Context, chapterNumber, text string) (string, error) {
	return "chapter " + chapterNumber, nil
}

// mockResolver knows Erin Solstice under her alias.
type mockResolver struct{}

func (mockResolver) FindCharacter(ctx context.Context, name string) (domain.Character, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "erin solstice", "erin":
		return domain.Character{ID: 1, Name: "Erin Solstice"}, true
	case "rags":
		return domain.Character{ID: 2, Name: "Rags"}, true
	}
	return domain.Character{}, false
}

type mockUsage struct {
	records []domain.AIRequest
	err     error
}

func (m *mockUsage) Create(ctx context.Context, req domain.AIRequest) (domain.AIRequest, error) {
	m.records = append(m.records, req)
	return req, m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	chapters   *mockChapterRepo
	characters *mockRegistrar
	client     *mockClient
	usage      *mockUsage
}

func newService(t *testing.T, f *fixture) *Service {
	t.Helper()
	if f.chapters == nil {
		f.chapters = &mockChapterRepo{}
	}
	if f.characters == nil {
		f.characters = &mockRegistrar{}
	}
	if f.client == nil {
		f.client = &mockClient{}
	}
	if f.usage == nil {
		f.usage = &mockUsage{}
	}
	return NewService(testLogger(), f.chapters, f.characters, f.client, mockPrompts{}, mockResolver{}, f.usage)
}

func rosterContent(t *testing.T) ai.Completion {
	t.Helper()
	return ai.Completion{
		Content: `{
			"characters_mentioned": [
				{"name": "Erin", "confidence": 0.95, "alias_used": "Erin"},
				{"name": "Rags", "confidence": 0.9},
				{"name": "Mysterious Stranger", "confidence": 0.4}
			],
			"new_characters": [
				{"name": "Lyonette", "species": "Human", "description": "A thief"},
				{"name": "Erin Solstice", "species": "Unknown"}
			]
		}`,
		Model:        "claude-3-5-haiku-20241022",
		InputTokens:  5000,
		OutputTokens: 300,
	}
}

// ---------------------------------------------------------------------------
// ExtractChapter
// ---------------------------------------------------------------------------

func TestExtractChapter_BuildsRosterAndRegistersNew(t *testing.T) {
	t.Parallel()

	f := &fixture{
		client: &mockClient{
			completeFunc: func(ctx context.Context, system, user string) (ai.Completion, error) {
				return rosterContent(t), nil
			},
		},
	}
	svc := newService(t, f)

	report, err := svc.ExtractChapter(context.Background(), 10)
	require.NoError(t, err)

	// Alias collapses to the canonical name, the unknown mention is
	// kept as reported, and the "new" duplicate of a known character
	// does not appear twice.
	want := []string{"Erin Solstice", "Rags", "Mysterious Stranger", "Lyonette"}
	assert.Equal(t, want, f.chapters.rosters[10])

	assert.Equal(t, 1, report.ChaptersProcessed)
	assert.Equal(t, 4, report.CharactersFound)
	assert.Equal(t, 1, report.NewCharacters)

	require.Len(t, f.characters.inserted, 1)
	reg := f.characters.inserted[0]
	assert.Equal(t, "Lyonette", reg.Name)
	require.NotNil(t, reg.Species)
	assert.Equal(t, "Human", *reg.Species)
}

func TestExtractChapter_EmptyRosterStillStamped(t *testing.T) {
	t.Parallel()

	f := &fixture{}
	svc := newService(t, f)

	report, err := svc.ExtractChapter(context.Background(), 10)
	require.NoError(t, err)

	// The chapter is marked extracted even when nobody was found, so
	// range runs do not retry it forever.
	roster, ok := f.chapters.rosters[10]
	require.True(t, ok)
	assert.Empty(t, roster)
	assert.Zero(t, report.CharactersFound)
}

func TestExtractChapter_RequestFailureAccounted(t *testing.T) {
	t.Parallel()

	f := &fixture{
		client: &mockClient{
			completeFunc: func(ctx context.Context, system, user string) (ai.Completion, error) {
				return ai.Completion{Model: "claude-3-5-haiku-20241022"}, errors.New("overloaded")
			},
		},
	}
	svc := newService(t, f)

	report, err := svc.ExtractChapter(context.Background(), 10)
	require.Error(t, err)
	assert.Equal(t, 1, report.ChaptersFailed)

	// The failed attempt still lands in the accounting log, and no
	// roster is stored.
	require.Len(t, f.usage.records, 1)
	rec := f.usage.records[0]
	assert.Equal(t, domain.AIPurposeRoster, rec.Purpose)
	assert.False(t, rec.Success)
	require.NotNil(t, rec.ErrorMessage)
	assert.Empty(t, f.chapters.rosters)
}

func TestExtractChapter_UnparseableResponse(t *testing.T) {
	t.Parallel()

	f := &fixture{
		client: &mockClient{
			completeFunc: func(ctx context.Context, system, user string) (ai.Completion, error) {
				return ai.Completion{Content: "no json here"}, nil
			},
		},
	}
	svc := newService(t, f)

	report, err := svc.ExtractChapter(context.Background(), 10)
	require.Error(t, err)
	assert.Equal(t, 1, report.ChaptersFailed)
	assert.Empty(t, f.chapters.rosters)

	// The request itself succeeded and is accounted as such.
	require.Len(t, f.usage.records, 1)
	assert.True(t, f.usage.records[0].Success)
}

func TestExtractChapter_RegistrationFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	f := &fixture{
		characters: &mockRegistrar{insertErr: errors.New("connection reset")},
		client: &mockClient{
			completeFunc: func(ctx context.Context, system, user string) (ai.Completion, error) {
				return rosterContent(t), nil
			},
		},
	}
	svc := newService(t, f)

	report, err := svc.ExtractChapter(context.Background(), 10)
	require.NoError(t, err)

	// The unregistered name still makes the roster.
	assert.Contains(t, f.chapters.rosters[10], "Lyonette")
	assert.Zero(t, report.NewCharacters)
}

func TestExtractChapter_StoreFailureSurfaces(t *testing.T) {
	t.Parallel()

	f := &fixture{
		chapters: &mockChapterRepo{updateErr: errors.New("db down")},
	}
	svc := newService(t, f)

	_, err := svc.ExtractChapter(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store roster")
}

// ---------------------------------------------------------------------------
// ExtractRange
// ---------------------------------------------------------------------------

func TestExtractRange_SkipsExtractedChapters(t *testing.T) {
	t.Parallel()

	stamped := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	f := &fixture{
		chapters: &mockChapterRepo{
			listRangeFunc: func(ctx context.Context, from, to int) ([]domain.Chapter, error) {
				return []domain.Chapter{
					{ID: 1, ChapterNumber: "1.00"},
					{ID: 2, ChapterNumber: "1.01", RosterUpdatedAt: &stamped},
					{ID: 3, ChapterNumber: "1.02"},
				}, nil
			},
		},
	}
	svc := newService(t, f)

	report, err := svc.ExtractRange(context.Background(), 1, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, report.ChaptersProcessed)
	assert.Equal(t, 1, report.ChaptersSkipped)
	assert.Equal(t, 2, f.client.calls)
	assert.NotContains(t, f.chapters.rosters, int64(2))
}

func TestExtractRange_FailedChapterDoesNotAbortRest(t *testing.T) {
	t.Parallel()

	f := &fixture{
		chapters: &mockChapterRepo{
			listRangeFunc: func(ctx context.Context, from, to int) ([]domain.Chapter, error) {
				return []domain.Chapter{
					{ID: 1, ChapterNumber: "1.00"},
					{ID: 2, ChapterNumber: "1.01"},
				}, nil
			},
		},
		client: &mockClient{},
	}
	f.client.completeFunc = func(ctx context.Context, system, user string) (ai.Completion, error) {
		if f.client.calls == 1 {
			return ai.Completion{}, errors.New("overloaded")
		}
		return ai.Completion{Content: `{"characters_mentioned": [{"name": "Rags"}]}`}, nil
	}
	svc := newService(t, f)

	report, err := svc.ExtractRange(context.Background(), 1, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, report.ChaptersProcessed)
	assert.Equal(t, 1, report.ChaptersFailed)
	assert.Equal(t, []string{"Rags"}, f.chapters.rosters[2])
}

func TestExtractRange_ContextCancellationStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fixture{
		chapters: &mockChapterRepo{
			listRangeFunc: func(ctx context.Context, from, to int) ([]domain.Chapter, error) {
				return []domain.Chapter{{ID: 1, ChapterNumber: "1.00"}}, nil
			},
		},
	}
	svc := newService(t, f)

	_, err := svc.ExtractRange(ctx, 1, 0)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.client.calls)
}
