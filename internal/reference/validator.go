package reference

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/hearthkeep/chronicle/internal/domain"
)

// RegistryLoader supplies the canonical reference registry. In
// production this is the postgres reference repository; tests inject a
// static registry.
type RegistryLoader interface {
	LoadRegistry(ctx context.Context) (domain.Registry, error)
}

// registry is the published in-memory index. Built once, read-only
// afterwards; lookups never see a partially built index.
type registry struct {
	characters map[string]domain.Character // lower-cased canonical name
	aliases    map[string]string           // lower-cased alias -> lower-cased canonical name
	skills     map[string]domain.Skill     // normalized ability name
	spells     map[string]domain.Spell
	classes    map[string]domain.Class // normalized name
}

// Validator resolves names against the reference registry. It is safe
// for concurrent use; the registry is loaded lazily on first lookup and
// cached for the validator's lifetime.
type Validator struct {
	loader RegistryLoader
	log    *slog.Logger

	once sync.Once
	reg  *registry
}

func NewValidator(log *slog.Logger, loader RegistryLoader) *Validator {
	return &Validator{
		loader: loader,
		log:    log.With("component", "reference"),
	}
}

// load populates the index exactly once. A load failure publishes an
// empty registry: every lookup then resolves to "unknown", which
// downstream treats as "needs review" rather than an error.
func (v *Validator) load(ctx context.Context) *registry {
	v.once.Do(func() {
		reg := &registry{
			characters: make(map[string]domain.Character),
			aliases:    make(map[string]string),
			skills:     make(map[string]domain.Skill),
			spells:     make(map[string]domain.Spell),
			classes:    make(map[string]domain.Class),
		}

		data, err := v.loader.LoadRegistry(ctx)
		if err != nil {
			v.log.Error("load reference registry", slog.String("error", err.Error()))
			v.reg = reg
			return
		}

		for _, ch := range data.Characters {
			key := strings.ToLower(ch.Name)
			reg.characters[key] = ch
			for _, alias := range ch.Aliases {
				reg.aliases[strings.ToLower(alias)] = key
			}
		}
		for _, sk := range data.Skills {
			reg.skills[domain.NormalizeAbilityName(sk.Name)] = sk
		}
		for _, sp := range data.Spells {
			reg.spells[domain.NormalizeAbilityName(sp.Name)] = sp
		}
		for _, cl := range data.Classes {
			reg.classes[domain.NormalizeName(cl.Name)] = cl
		}

		v.log.Info("reference registry loaded",
			slog.Int("characters", len(reg.characters)),
			slog.Int("skills", len(reg.skills)),
			slog.Int("spells", len(reg.spells)),
			slog.Int("classes", len(reg.classes)),
		)
		v.reg = reg
	})
	return v.reg
}

// FindCharacter resolves a character by canonical name or alias,
// case-insensitively. A miss is not an error.
func (v *Validator) FindCharacter(ctx context.Context, name string) (domain.Character, bool) {
	reg := v.load(ctx)

	key := strings.ToLower(strings.TrimSpace(name))
	if ch, ok := reg.characters[key]; ok {
		return ch, true
	}
	if canonical, ok := reg.aliases[key]; ok {
		ch, ok := reg.characters[canonical]
		return ch, ok
	}
	return domain.Character{}, false
}

// CharacterNames returns all canonical character names, sorted. Callers
// truncate this list for prompts, so the order has to be stable across
// processes.
func (v *Validator) CharacterNames(ctx context.Context) []string {
	reg := v.load(ctx)
	names := make([]string, 0, len(reg.characters))
	for _, ch := range reg.characters {
		names = append(names, ch.Name)
	}
	sort.Strings(names)
	return names
}

func (v *Validator) FindSkill(ctx context.Context, name string) (domain.Skill, bool) {
	reg := v.load(ctx)
	sk, ok := reg.skills[domain.NormalizeAbilityName(name)]
	return sk, ok
}

func (v *Validator) FindSpell(ctx context.Context, name string) (domain.Spell, bool) {
	reg := v.load(ctx)
	sp, ok := reg.spells[domain.NormalizeAbilityName(name)]
	return sp, ok
}

func (v *Validator) FindClass(ctx context.Context, name string) (domain.Class, bool) {
	reg := v.load(ctx)
	cl, ok := reg.classes[domain.NormalizeName(name)]
	return cl, ok
}

func (v *Validator) IsFakeSkill(ctx context.Context, name string) bool {
	sk, ok := v.FindSkill(ctx, name)
	return ok && sk.IsFake
}

func (v *Validator) IsFakeClass(ctx context.Context, name string) bool {
	cl, ok := v.FindClass(ctx, name)
	return ok && cl.IsFake
}
