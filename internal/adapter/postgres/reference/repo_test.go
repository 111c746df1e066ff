package reference

import (
	"context"
	"errors"
	"testing"

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

func TestRepo_LoadRegistry(t *testing.T) {
	repo, mock := newMockRepo(t)

	species := "Human"
	mock.ExpectQuery(`SELECT .+ FROM wiki_characters`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "aliases", "species", "status"}).
			AddRow(int64(1), "Erin Solstice", []string{"Erin"}, &species, (*string)(nil)).
			AddRow(int64(2), "Rags", []string{}, (*string)(nil), (*string)(nil)))
	mock.ExpectQuery(`SELECT .+ FROM wiki_skills`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "is_fake", "effect"}).
			AddRow(int64(10), "Basic Cooking", false, (*string)(nil)).
			AddRow(int64(11), "Basic Bite", true, (*string)(nil)))
	mock.ExpectQuery(`SELECT .+ FROM wiki_spells`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "tier", "effect"}).
			AddRow(int64(20), "Firefly", (*int)(nil), (*string)(nil)))
	mock.ExpectQuery(`SELECT .+ FROM wiki_classes`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "is_fake", "description"}).
			AddRow(int64(30), "Innkeeper", false, (*string)(nil)))

	reg, err := repo.LoadRegistry(context.Background())
	if err != nil {
		t.Fatalf("LoadRegistry: unexpected error: %v", err)
	}

	if len(reg.Characters) != 2 {
		t.Errorf("got %d characters, want 2", len(reg.Characters))
	}
	if len(reg.Skills) != 2 {
		t.Errorf("got %d skills, want 2", len(reg.Skills))
	}
	if len(reg.Spells) != 1 {
		t.Errorf("got %d spells, want 1", len(reg.Spells))
	}
	if len(reg.Classes) != 1 {
		t.Errorf("got %d classes, want 1", len(reg.Classes))
	}

	if reg.Characters[0].Name != "Erin Solstice" || len(reg.Characters[0].Aliases) != 1 {
		t.Errorf("unexpected first character: %+v", reg.Characters[0])
	}
	if !reg.Skills[1].IsFake {
		t.Errorf("expected second skill to be fake: %+v", reg.Skills[1])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_LoadRegistry_Empty(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM wiki_characters`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "aliases", "species", "status"}))
	mock.ExpectQuery(`SELECT .+ FROM wiki_skills`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "is_fake", "effect"}))
	mock.ExpectQuery(`SELECT .+ FROM wiki_spells`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "tier", "effect"}))
	mock.ExpectQuery(`SELECT .+ FROM wiki_classes`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "is_fake", "description"}))

	reg, err := repo.LoadRegistry(context.Background())
	if err != nil {
		t.Fatalf("LoadRegistry: unexpected error: %v", err)
	}
	if len(reg.Characters)+len(reg.Skills)+len(reg.Spells)+len(reg.Classes) != 0 {
		t.Errorf("expected empty registry, got %+v", reg)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_InsertCharacter(t *testing.T) {
	repo, mock := newMockRepo(t)

	species := "Human"
	mock.ExpectQuery(`INSERT INTO wiki_characters .+ ON CONFLICT \(name\) DO NOTHING RETURNING id`).
		WithArgs("Lyonette", []string{}, &species, (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(51)))

	got, inserted, err := repo.InsertCharacter(context.Background(), domain.Character{
		Name:    "Lyonette",
		Species: &species,
	})
	if err != nil {
		t.Fatalf("InsertCharacter: unexpected error: %v", err)
	}
	if !inserted {
		t.Fatal("InsertCharacter: expected inserted=true")
	}
	if got.ID != 51 {
		t.Errorf("ID mismatch: got %d, want 51", got.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_InsertCharacter_NameTaken(t *testing.T) {
	repo, mock := newMockRepo(t)

	// ON CONFLICT DO NOTHING yields no row on a duplicate name.
	mock.ExpectQuery(`INSERT INTO wiki_characters`).
		WithArgs("Erin Solstice", []string{}, (*string)(nil), (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, inserted, err := repo.InsertCharacter(context.Background(), domain.Character{Name: "Erin Solstice"})
	if err != nil {
		t.Fatalf("InsertCharacter: unexpected error: %v", err)
	}
	if inserted {
		t.Fatal("InsertCharacter: expected inserted=false on conflict")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_LoadRegistry_QueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	boom := errors.New("connection refused")
	mock.ExpectQuery(`SELECT .+ FROM wiki_characters`).WillReturnError(boom)

	_, err := repo.LoadRegistry(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("LoadRegistry: expected wrapped query error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
