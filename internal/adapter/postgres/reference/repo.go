// Package reference implements the wiki reference repository using
// PostgreSQL. It serves one purpose: loading the full registry of
// characters, skills, spells, and classes for the validator.
package reference

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/hearthkeep/chronicle/internal/adapter/postgres"
	"github.com/hearthkeep/chronicle/internal/domain"
)

type characterRow struct {
	ID      int64    `db:"id"`
	Name    string   `db:"name"`
	Aliases []string `db:"aliases"`
	Species *string  `db:"species"`
	Status  *string  `db:"status"`
}

type skillRow struct {
	ID     int64   `db:"id"`
	Name   string  `db:"name"`
	IsFake bool    `db:"is_fake"`
	Effect *string `db:"effect"`
}

type spellRow struct {
	ID     int64   `db:"id"`
	Name   string  `db:"name"`
	Tier   *int    `db:"tier"`
	Effect *string `db:"effect"`
}

type classRow struct {
	ID          int64   `db:"id"`
	Name        string  `db:"name"`
	IsFake      bool    `db:"is_fake"`
	Description *string `db:"description"`
}

// Repo provides read access to the wiki reference tables.
type Repo struct {
	db postgres.Querier
}

// New creates a new reference repository.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db}
}

// LoadRegistry loads the complete reference dataset. The validator calls
// this once per process and indexes the result in memory.
func (r *Repo) LoadRegistry(ctx context.Context) (domain.Registry, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	var characters []characterRow
	if err := selectAll(ctx, q, &characters, "wiki_characters", "id", "name", "aliases", "species", "status"); err != nil {
		return domain.Registry{}, fmt.Errorf("load characters: %w", err)
	}

	var skills []skillRow
	if err := selectAll(ctx, q, &skills, "wiki_skills", "id", "name", "is_fake", "effect"); err != nil {
		return domain.Registry{}, fmt.Errorf("load skills: %w", err)
	}

	var spells []spellRow
	if err := selectAll(ctx, q, &spells, "wiki_spells", "id", "name", "tier", "effect"); err != nil {
		return domain.Registry{}, fmt.Errorf("load spells: %w", err)
	}

	var classes []classRow
	if err := selectAll(ctx, q, &classes, "wiki_classes", "id", "name", "is_fake", "description"); err != nil {
		return domain.Registry{}, fmt.Errorf("load classes: %w", err)
	}

	reg := domain.Registry{
		Characters: make([]domain.Character, 0, len(characters)),
		Skills:     make([]domain.Skill, 0, len(skills)),
		Spells:     make([]domain.Spell, 0, len(spells)),
		Classes:    make([]domain.Class, 0, len(classes)),
	}
	for _, c := range characters {
		reg.Characters = append(reg.Characters, domain.Character{
			ID: c.ID, Name: c.Name, Aliases: c.Aliases, Species: c.Species, Status: c.Status,
		})
	}
	for _, s := range skills {
		reg.Skills = append(reg.Skills, domain.Skill{
			ID: s.ID, Name: s.Name, IsFake: s.IsFake, Effect: s.Effect,
		})
	}
	for _, s := range spells {
		reg.Spells = append(reg.Spells, domain.Spell{
			ID: s.ID, Name: s.Name, Tier: s.Tier, Effect: s.Effect,
		})
	}
	for _, c := range classes {
		reg.Classes = append(reg.Classes, domain.Class{
			ID: c.ID, Name: c.Name, IsFake: c.IsFake, Description: c.Description,
		})
	}

	return reg, nil
}

// InsertCharacter registers a character discovered during roster
// extraction. The inserted flag is false when the name is already
// taken; the existing row is left untouched.
func (r *Repo) InsertCharacter(ctx context.Context, ch domain.Character) (domain.Character, bool, error) {
	q := postgres.QuerierFromCtx(ctx, r.db)

	aliases := ch.Aliases
	if aliases == nil {
		aliases = []string{}
	}

	sql, args, err := postgres.Builder().
		Insert("wiki_characters").
		Columns("name", "aliases", "species", "status").
		Values(ch.Name, aliases, ch.Species, ch.Status).
		Suffix("ON CONFLICT (name) DO NOTHING").
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Character{}, false, fmt.Errorf("build insert character: %w", err)
	}

	var out struct {
		ID int64 `db:"id"`
	}
	if err := pgxscan.Get(ctx, q, &out, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return ch, false, nil
		}
		return domain.Character{}, false, postgres.MapError(err, "character", 0)
	}

	ch.ID = out.ID
	return ch, true, nil
}

// selectAll loads every row of one reference table in id order.
func selectAll(ctx context.Context, q postgres.Querier, dest any, table string, columns ...string) error {
	sql, args, err := postgres.Builder().
		Select(columns...).
		From(table).
		OrderBy("id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s query: %w", table, err)
	}
	return pgxscan.Select(ctx, q, dest, sql, args...)
}
