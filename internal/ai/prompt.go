package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hearthkeep/chronicle/internal/config"
	"github.com/hearthkeep/chronicle/internal/domain"
	"github.com/hearthkeep/chronicle/internal/reference"
)

// attributionSystemPromptFmt is the system prompt for event attribution.
// The confidence guidelines are formatted from the configured
// auto-accept and review thresholds so the model's bands match what the
// decision engine actually enforces.
const attributionSystemPromptFmt = `You are an expert at analyzing LitRPG progression events from a web serial.

Your task is to:
1. Classify bracket events by type (class obtained, level up, skill obtained, etc.)
2. Attribute events to specific characters based on surrounding context
3. Extract structured data from each event
4. Validate events against the reference data when provided

Event Types:
- class_obtained: "[Innkeeper class obtained!]", "[Warrior Level 1!]" (first level = class obtained)
- class_evolution: "[Warrior class evolved into Blademaster!]"
- class_consolidation: "[Classes consolidated: Warrior + Mage = Spellblade!]"
- class_removed: "[Class: Warrior lost.]"
- level_up: "[Innkeeper Level 5!]", "[Warrior Level 10!]"
- skill_obtained: "[Skill - Boon of the Guest obtained!]", "[Skill: Quick Movement obtained!]"
- skill_removed: "[Skill - Old Skill lost.]"
- skill_change: "[Skill Change - Old Skill → New Skill!]"
- skill_consolidation: "[Skills consolidated...]"
- spell_obtained: "[Spell - Fireball obtained!]"
- spell_removed: "[Spell - Old Spell lost.]"
- condition: "[Condition - Blessing of X obtained!]"
- aspect: "[Aspect - X obtained!]"
- title: "[Title - The Brave obtained!]"
- rank: "[Guardsman Rank 2!]"
- other: Class/skill mentions that aren't progression events (e.g., "[Guardsman]" as a title)
- false_positive: Not a progression event at all, including:
  - Dialogue or author notes
  - Joke/fake events where a character mockingly uses bracket notation
  - Sarcastic or humorous bracket text that mimics the System but isn't real
  - References to abilities or classes that don't exist in the story's System
  - Characters roleplaying or pretending to get skills/classes
  - IMPORTANT: Skills/classes marked as FAKE in the reference data are imaginary/joke abilities

REFERENCE VALIDATION:
You will be provided with reference data containing known characters (with species
and aliases), known skills and classes (including which ones are FAKE), and known
spells (with tier information). Use it to:
1. Validate that skills/spells/classes exist in the story's System
2. Identify fake/imaginary abilities that should be marked as false_positive
3. Match character names to their canonical names

If a skill/class is marked as FAKE in the reference data, classify the event as
"false_positive" with high confidence.

Attribution Guidelines:
- Look at pronouns in surrounding text (she/he/they)
- Check if someone is the POV character (most events happen to POV)
- Look for dialogue attribution before events
- Consider which characters are currently in the scene
- Watch for humorous/sarcastic tone that indicates a fake event
- Real System events are typically serious moments; joke brackets often have comedic context

You MUST respond with valid JSON in this exact format:
{
    "attributions": [
        {
            "event_id": 123,
            "event_type": "skill_obtained",
            "character_name": "Character Name or null if cannot determine",
            "parsed_data": {"skill_name": "Skill Name"},
            "confidence": 0.95,
            "reasoning": "Brief explanation of why this attribution was made"
        }
    ]
}

Confidence Guidelines:
- %.2f or higher: Very confident, clear attribution (auto-accept)
- %.2f up to %.2f: Somewhat confident, may need review
- Below %.2f: Uncertain, needs manual review

For parsed_data, extract relevant fields based on event_type:
- class_obtained/level_up: {"class_name": "...", "level": N}
- skill_obtained: {"skill_name": "..."}
- spell_obtained: {"spell_name": "..."}
- class_evolution: {"from_class": "...", "to_class": "..."}
- condition: {"condition_name": "..."}
- title: {"title_name": "..."}`

// PromptBuilder assembles attribution requests. Roster size and per-event
// context are capped to keep prompts bounded on event-heavy chapters.
type PromptBuilder struct {
	validator    *reference.Validator
	rosterLimit  int
	contextLimit int
	autoAccept   float64
	system       string
}

func NewPromptBuilder(validator *reference.Validator, cfg config.PipelineConfig) *PromptBuilder {
	return &PromptBuilder{
		validator:    validator,
		rosterLimit:  cfg.RosterLimit,
		contextLimit: cfg.PromptContextLimit,
		autoAccept:   cfg.AutoAcceptThreshold,
		system: fmt.Sprintf(attributionSystemPromptFmt,
			cfg.AutoAcceptThreshold,
			cfg.ReviewThreshold, cfg.AutoAcceptThreshold,
			cfg.ReviewThreshold,
		),
	}
}

// SystemPrompt returns the system prompt shared by synchronous and batch
// attribution requests.
func (b *PromptBuilder) SystemPrompt() string {
	return b.system
}

type promptEvent struct {
	ID              int64  `json:"id"`
	RawText         string `json:"raw_text"`
	SurroundingText string `json:"surrounding_text"`
}

type promptCharacter struct {
	Species string   `json:"species"`
	Aliases []string `json:"aliases"`
}

type abilityInfo struct {
	Name   string  `json:"name"`
	Effect *string `json:"effect,omitempty"`
	Tier   *int    `json:"tier,omitempty"`
	IsFake bool    `json:"is_fake"`
}

type wikiReference struct {
	Skills         map[string]abilityInfo `json:"skills"`
	Spells         map[string]abilityInfo `json:"spells"`
	Classes        map[string]abilityInfo `json:"classes"`
	FakeSkills     []string               `json:"fake_skills"`
	FakeClasses    []string               `json:"fake_classes"`
	UnknownSkills  []string               `json:"unknown_skills"`
	UnknownSpells  []string               `json:"unknown_spells"`
	UnknownClasses []string               `json:"unknown_classes"`
}

// AttributionMessage builds the user message for one chapter's events.
func (b *PromptBuilder) AttributionMessage(ctx context.Context, chapterNumber string, events []domain.RawEvent, roster []string) (string, error) {
	if len(roster) > b.rosterLimit {
		roster = roster[:b.rosterLimit]
	}

	charContext := make(map[string]promptCharacter, len(roster))
	for _, name := range roster {
		ch, ok := b.validator.FindCharacter(ctx, name)
		if !ok {
			continue
		}
		species := "Unknown"
		if ch.Species != nil {
			species = *ch.Species
		}
		aliases := ch.Aliases
		if len(aliases) > 5 {
			aliases = aliases[:5]
		}
		charContext[name] = promptCharacter{Species: species, Aliases: aliases}
	}

	promptEvents := make([]promptEvent, 0, len(events))
	for _, ev := range events {
		promptEvents = append(promptEvents, promptEvent{
			ID:              ev.ID,
			RawText:         ev.RawText,
			SurroundingText: truncate(ev.Context, b.contextLimit),
		})
	}

	wikiRef := b.buildWikiReference(ctx, events)

	rosterJSON, err := json.MarshalIndent(roster, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal roster: %w", err)
	}
	contextJSON, err := json.MarshalIndent(charContext, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal character context: %w", err)
	}
	wikiJSON, err := json.MarshalIndent(wikiRef, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal reference data: %w", err)
	}
	eventsJSON, err := json.MarshalIndent(promptEvents, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal events: %w", err)
	}

	return fmt.Sprintf(`Attribute these progression events to characters.

Chapter: %s

=== CHARACTERS IN THIS CHAPTER ===
%s

=== CHARACTER CONTEXT (known information) ===
%s

=== REFERENCE DATA ===
Use this data to validate skills/spells/classes. Items marked as FAKE are imaginary/joke abilities.
%s

=== EVENTS TO PROCESS ===
%s

=== INSTRUCTIONS ===
For each event:
1. Determine the event_type (class_obtained, level_up, skill_obtained, etc.)
2. Identify which character the event belongs to (use canonical character names)
3. Extract structured data (class name, level, skill name, etc.)
4. Provide confidence score and reasoning
5. Check validation status:
   - If skill/class is in "fake_skills" or "fake_classes" -> classify as "false_positive" with confidence 0.95
   - If skill/class is in "unknown_skills", "unknown_spells", or "unknown_classes" -> flag for review (confidence < %.2f)
   - If skill/class is found in the reference data -> can be auto-accepted if attribution is clear`,
		chapterNumber, rosterJSON, contextJSON, wikiJSON, eventsJSON, b.autoAccept), nil
}

// buildWikiReference collects registry entries for the names the events
// mention, split into known, fake, and unknown buckets.
func (b *PromptBuilder) buildWikiReference(ctx context.Context, events []domain.RawEvent) wikiReference {
	ref := wikiReference{
		Skills:         map[string]abilityInfo{},
		Spells:         map[string]abilityInfo{},
		Classes:        map[string]abilityInfo{},
		FakeSkills:     []string{},
		FakeClasses:    []string{},
		UnknownSkills:  []string{},
		UnknownSpells:  []string{},
		UnknownClasses: []string{},
	}

	seen := map[string]bool{}
	for _, ev := range events {
		name, kind := reference.EventSubject(ev)
		if name == "" || seen[kind+"/"+name] {
			continue
		}
		seen[kind+"/"+name] = true

		switch kind {
		case "skill":
			if sk, ok := b.validator.FindSkill(ctx, name); ok {
				ref.Skills[name] = abilityInfo{Name: sk.Name, Effect: sk.Effect, IsFake: sk.IsFake}
				if sk.IsFake {
					ref.FakeSkills = append(ref.FakeSkills, name)
				}
			} else {
				ref.UnknownSkills = append(ref.UnknownSkills, name)
			}
		case "spell":
			if sp, ok := b.validator.FindSpell(ctx, name); ok {
				ref.Spells[name] = abilityInfo{Name: sp.Name, Effect: sp.Effect, Tier: sp.Tier}
			} else {
				ref.UnknownSpells = append(ref.UnknownSpells, name)
			}
		case "class":
			if cl, ok := b.validator.FindClass(ctx, name); ok {
				ref.Classes[name] = abilityInfo{Name: cl.Name, Effect: cl.Description, IsFake: cl.IsFake}
				if cl.IsFake {
					ref.FakeClasses = append(ref.FakeClasses, name)
				}
			} else {
				ref.UnknownClasses = append(ref.UnknownClasses, name)
			}
		}
	}

	return ref
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit]
}
