package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// rosterSystemPrompt is the system prompt for per-chapter roster
// extraction. Unlike attribution, the confidence bands here are
// descriptive only; roster entries are never auto-rejected on score.
const rosterSystemPrompt = `You are an expert at analyzing fantasy fiction text and identifying characters.

Your task is to analyze chapter text from a LitRPG web serial and identify:
1. Characters who are mentioned or appear in the chapter
2. New characters who haven't been seen before

Context about the setting:
- It's a LitRPG fantasy world with a "System" that grants classes, levels, and skills
- Classes are shown in brackets like [Innkeeper], [Warrior], [Mage]
- Characters can have multiple classes and gain skills/spells when leveling up

IMPORTANT: You will be provided with a list of KNOWN CHARACTERS. When identifying characters:
- ALWAYS match to known characters when possible (use the exact name from the list)
- Known characters include their aliases - use the canonical name, not the alias
- Only mark a character as "new" if they are NOT in the provided list
- Focus on named characters (proper nouns)
- Include full names when known (e.g., "Erin Solstice" not just "Erin")
- Note any aliases or nicknames used in the text
- For new characters, extract species if mentioned and any distinguishing traits
- Ignore generic references like "the guard" unless it's clearly a named character

When matching to known characters:
- Check if the name matches any known character name OR their aliases
- Known-character data includes species info - use it to verify identification
- If you're unsure if a name matches a known character, include it with lower confidence

You MUST respond with valid JSON in this exact format:
{
    "characters_mentioned": [
        {
            "name": "Full Character Name (use the canonical name)",
            "confidence": 0.95,
            "alias_used": "nickname if different from name, or null"
        }
    ],
    "new_characters": [
        {
            "name": "Full Character Name",
            "species": "species name or Unknown",
            "description": "Brief description based on text",
            "first_seen_as": "How they were first referenced in text"
        }
    ]
}

Confidence scores:
- 0.90-1.00: Definitely this character, name explicitly used
- 0.70-0.89: Likely this character, context suggests it
- Below 0.70: Uncertain, could be someone else`

// Caps on the roster-extraction message. Chapter text beyond the cap is
// cut off rather than split into multiple requests; the opening of a
// chapter names nearly everyone who appears in it.
const (
	rosterTextLimit        = 100000
	rosterKnownNameLimit   = 300
	rosterCharContextLimit = 100
)

// RosterMention is one known or uncertain character sighting reported
// by the model.
type RosterMention struct {
	Name       string
	Confidence float64
	AliasUsed  *string
}

// NewCharacter is a character the model did not find in the known list.
// Only the name and species are registry-backed; the description and
// first reference are informational.
type NewCharacter struct {
	Name        string
	Species     string
	Description string
	FirstSeenAs string
}

// RosterExtraction is the parsed outcome of one roster request.
type RosterExtraction struct {
	Mentioned []RosterMention
	New       []NewCharacter
}

type rosterResponse struct {
	CharactersMentioned []struct {
		Name       string   `json:"name"`
		Confidence *float64 `json:"confidence"`
		AliasUsed  *string  `json:"alias_used"`
	} `json:"characters_mentioned"`
	NewCharacters []struct {
		Name        string `json:"name"`
		Species     string `json:"species"`
		Description string `json:"description"`
		FirstSeenAs string `json:"first_seen_as"`
	} `json:"new_characters"`
}

// ParseRoster extracts the roster from a raw model response. Entries
// with a blank name are dropped; a missing confidence defaults to 0.5.
func ParseRoster(content string) (RosterExtraction, error) {
	jsonStr, err := extractJSON(content)
	if err != nil {
		return RosterExtraction{}, err
	}

	var resp rosterResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return RosterExtraction{}, fmt.Errorf("unmarshal roster response: %w", err)
	}

	var out RosterExtraction
	for _, m := range resp.CharactersMentioned {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		confidence := 0.5
		if m.Confidence != nil {
			confidence = *m.Confidence
		}
		out.Mentioned = append(out.Mentioned, RosterMention{
			Name:       name,
			Confidence: confidence,
			AliasUsed:  m.AliasUsed,
		})
	}
	for _, n := range resp.NewCharacters {
		name := strings.TrimSpace(n.Name)
		if name == "" {
			continue
		}
		out.New = append(out.New, NewCharacter{
			Name:        name,
			Species:     strings.TrimSpace(n.Species),
			Description: n.Description,
			FirstSeenAs: n.FirstSeenAs,
		})
	}
	return out, nil
}

// RosterSystemPrompt returns the system prompt for roster extraction.
func (b *PromptBuilder) RosterSystemPrompt() string {
	return rosterSystemPrompt
}

// RosterMessage builds the user message for one chapter's roster
// extraction: the known-name list, species and alias context for a
// leading slice of it, and the chapter text.
func (b *PromptBuilder) RosterMessage(ctx context.Context, chapterNumber, text string) (string, error) {
	names := b.validator.CharacterNames(ctx)
	if len(names) > rosterKnownNameLimit {
		names = names[:rosterKnownNameLimit]
	}

	contextNames := names
	if len(contextNames) > rosterCharContextLimit {
		contextNames = contextNames[:rosterCharContextLimit]
	}
	charContext := make(map[string]promptCharacter, len(contextNames))
	for _, name := range contextNames {
		ch, ok := b.validator.FindCharacter(ctx, name)
		if !ok {
			continue
		}
		species := "Unknown"
		if ch.Species != nil {
			species = *ch.Species
		}
		charContext[name] = promptCharacter{Species: species, Aliases: ch.Aliases}
	}

	namesJSON, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal known names: %w", err)
	}
	contextJSON, err := json.MarshalIndent(charContext, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal character context: %w", err)
	}

	return fmt.Sprintf(`Identify the characters appearing in this chapter.

Chapter: %s

=== KNOWN CHARACTERS ===
%s

=== KNOWN CHARACTER CONTEXT ===
%s

=== CHAPTER TEXT ===
%s`,
		chapterNumber, namesJSON, contextJSON, truncate(text, rosterTextLimit)), nil
}
