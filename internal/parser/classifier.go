package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hearthkeep/chronicle/internal/domain"
)

const (
	minNameLength = 3
	maxNameLength = 200
)

// rule pairs a compiled pattern with the event type it produces and an
// extractor that builds the payload from capture groups. Rules are tried
// in declaration order and the first match wins, so the slice below is
// the single source of truth for classification priority.
type rule struct {
	eventType domain.EventType
	re        *regexp.Regexp
	extract   func(m []string) (map[string]any, error)
}

// incompleteRule matches an annotation the narrative cut off before the
// closing bracket (an interrupted or retracted System message). These
// are tagged, not dropped: the partial payload still signals that
// something happened.
type incompleteRule struct {
	eventType domain.EventType
	re        *regexp.Regexp
	nameField string
}

// Classifier turns filtered candidates into typed events.
type Classifier struct {
	rules      []rule
	incomplete []incompleteRule
}

func NewClassifier() *Classifier {
	return &Classifier{
		rules:      classifyRules,
		incomplete: incompleteRules,
	}
}

// Classify matches the candidate against the prioritized rule table.
// A failed field extraction (empty name, out-of-bound length, bad
// number) returns an error so the caller can drop the candidate and
// tally it; classification itself never fails, "other" is the
// catch-all for anything no pattern recognizes.
func (c *Classifier) Classify(cand Candidate) (domain.RawEvent, error) {
	if !cand.Closed {
		return c.classifyIncomplete(cand), nil
	}

	for _, r := range c.rules {
		m := r.re.FindStringSubmatch(cand.Raw)
		if m == nil {
			continue
		}
		payload, err := r.extract(m)
		if err != nil {
			return domain.RawEvent{}, fmt.Errorf("%s: %w", r.eventType, err)
		}
		return newEvent(cand, r.eventType, payload, false), nil
	}

	return newEvent(cand, domain.EventTypeOther, map[string]any{}, false), nil
}

// classifyIncomplete assigns a best-effort type to an unclosed bracket.
// Field extraction here is lenient: an invalid or missing name leaves
// the payload partial instead of dropping the event.
func (c *Classifier) classifyIncomplete(cand Candidate) domain.RawEvent {
	for _, r := range c.incomplete {
		m := r.re.FindStringSubmatch(cand.Raw)
		if m == nil {
			continue
		}
		payload := map[string]any{}
		if len(m) > 1 {
			if name, err := validName(m[1]); err == nil {
				payload[r.nameField] = name
			}
		}
		return newEvent(cand, r.eventType, payload, true)
	}
	return newEvent(cand, domain.EventTypeOther, map[string]any{}, true)
}

func newEvent(cand Candidate, t domain.EventType, payload map[string]any, incomplete bool) domain.RawEvent {
	return domain.RawEvent{
		EventType:    t,
		RawText:      cand.Raw,
		Context:      cand.Context,
		Payload:      payload,
		EventIndex:   cand.Index,
		IsIncomplete: incomplete,
	}
}

// validName trims the extracted name and enforces a sane length bound.
func validName(s string) (string, error) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n < minNameLength || n > maxNameLength {
		return "", fmt.Errorf("name %q: length %d out of bounds", s, n)
	}
	return s, nil
}

func validLevel(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("level %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("level %d: negative", n)
	}
	return n, nil
}

// nameExtractor builds a single-field payload from capture group 1.
func nameExtractor(field string) func(m []string) (map[string]any, error) {
	return func(m []string) (map[string]any, error) {
		name, err := validName(m[1])
		if err != nil {
			return nil, err
		}
		return map[string]any{field: name}, nil
	}
}

// pairExtractor builds a two-field payload from capture groups 1 and 2.
func pairExtractor(first, second string) func(m []string) (map[string]any, error) {
	return func(m []string) (map[string]any, error) {
		a, err := validName(m[1])
		if err != nil {
			return nil, err
		}
		b, err := validName(m[2])
		if err != nil {
			return nil, err
		}
		return map[string]any{first: a, second: b}, nil
	}
}

// nameLevelExtractor builds {field: name, "level": N} from groups 1 and 2.
func nameLevelExtractor(field string) func(m []string) (map[string]any, error) {
	return func(m []string) (map[string]any, error) {
		name, err := validName(m[1])
		if err != nil {
			return nil, err
		}
		level, err := validLevel(m[2])
		if err != nil {
			return nil, err
		}
		return map[string]any{field: name, "level": level}, nil
	}
}

// Pattern notes: separators between a type prefix and the name vary
// across chapters ("-", ":", "–"); trailing punctuation is any run of
// "!" and ".". All patterns are anchored to the full bracket span.
var classifyRules = []rule{
	{
		eventType: domain.EventTypeClassObtained,
		re:        regexp.MustCompile(`(?i)^\[\s*(.+?)\s+class\s+obtained[!.]*\s*\]$`),
		extract:   nameExtractor("class_name"),
	},
	{
		// First level is a class acquisition, not a level-up.
		eventType: domain.EventTypeClassObtained,
		re:        regexp.MustCompile(`(?i)^\[\s*(.+?)\s+level\s+1[!.]*\s*\]$`),
		extract: func(m []string) (map[string]any, error) {
			name, err := validName(m[1])
			if err != nil {
				return nil, err
			}
			return map[string]any{"class_name": name, "level": 1}, nil
		},
	},
	{
		eventType: domain.EventTypeClassEvolution,
		re:        regexp.MustCompile(`(?i)^\[\s*(.+?)\s+class\s+evolved\s+into\s+(.+?)[!.]*\s*\]$`),
		extract:   pairExtractor("from_class", "to_class"),
	},
	{
		eventType: domain.EventTypeClassEvolution,
		re:        regexp.MustCompile(`(?i)^\[\s*class\s+evolution\s*[-:–]\s*(.+?)\s*(?:→|->)\s*(.+?)[!.]*\s*\]$`),
		extract:   pairExtractor("from_class", "to_class"),
	},
	{
		eventType: domain.EventTypeClassConsolidation,
		re:        regexp.MustCompile(`(?i)^\[\s*classes\s+consolidated\s*[-:–]?\s*(.+?)\s*=\s*(.+?)[!.]*\s*\]$`),
		extract:   pairExtractor("merged_classes", "to_class"),
	},
	{
		eventType: domain.EventTypeClassConsolidation,
		re:        regexp.MustCompile(`(?i)^\[\s*classes\s+consolidated\s*[-:–]?\s*(.+?)[!.]*\s*\]$`),
		extract:   nameExtractor("merged_classes"),
	},
	{
		eventType: domain.EventTypeClassRemoved,
		re:        regexp.MustCompile(`(?i)^\[\s*class\s*[-:–]\s*(.+?)\s+(?:lost|removed)[!.]*\s*\]$`),
		extract:   nameExtractor("class_name"),
	},
	{
		eventType: domain.EventTypeClassRemoved,
		re:        regexp.MustCompile(`(?i)^\[\s*(.+?)\s+class\s+(?:lost|removed)[!.]*\s*\]$`),
		extract:   nameExtractor("class_name"),
	},
	{
		eventType: domain.EventTypeLevelUp,
		re:        regexp.MustCompile(`(?i)^\[\s*(.+?)\s+level\s+(\d+)[!.]*\s*\]$`),
		extract:   nameLevelExtractor("class_name"),
	},
	{
		eventType: domain.EventTypeSkillObtained,
		re:        regexp.MustCompile(`(?i)^\[\s*skill\s*[-:–]\s*(.+?)\s+(?:obtained|gained|learned|earned|acquired)[!.]*\s*\]$`),
		extract:   nameExtractor("skill_name"),
	},
	{
		eventType: domain.EventTypeSkillRemoved,
		re:        regexp.MustCompile(`(?i)^\[\s*skill\s*[-:–]\s*(.+?)\s+(?:lost|removed)[!.]*\s*\]$`),
		extract:   nameExtractor("skill_name"),
	},
	{
		eventType: domain.EventTypeSkillChange,
		re:        regexp.MustCompile(`(?i)^\[\s*skill\s+change\s*[-:–]?\s*(.+?)\s*(?:→|->)\s*(.+?)[!.]*\s*\]$`),
		extract:   pairExtractor("old_skill", "new_skill"),
	},
	{
		eventType: domain.EventTypeSkillConsolidation,
		re:        regexp.MustCompile(`(?i)^\[\s*skills\s+consolidated\s*[-:–]?\s*(.+?)\s*=\s*(.+?)[!.]*\s*\]$`),
		extract:   pairExtractor("merged_skills", "to_skill"),
	},
	{
		eventType: domain.EventTypeSkillConsolidation,
		re:        regexp.MustCompile(`(?i)^\[\s*skills\s+consolidated\b[^\]]*\]$`),
		extract: func(_ []string) (map[string]any, error) {
			return map[string]any{}, nil
		},
	},
	{
		eventType: domain.EventTypeSpellObtained,
		re:        regexp.MustCompile(`(?i)^\[\s*spell\s*[-:–]\s*(.+?)\s+(?:obtained|gained|learned|earned|acquired)[!.]*\s*\]$`),
		extract:   nameExtractor("spell_name"),
	},
	{
		eventType: domain.EventTypeSpellRemoved,
		re:        regexp.MustCompile(`(?i)^\[\s*spell\s*[-:–]\s*(.+?)\s+(?:lost|removed)[!.]*\s*\]$`),
		extract:   nameExtractor("spell_name"),
	},
	{
		eventType: domain.EventTypeCondition,
		re:        regexp.MustCompile(`(?i)^\[\s*condition\s*[-:–]\s*(.+?)(?:\s+(?:obtained|gained|acquired))?[!.]*\s*\]$`),
		extract:   nameExtractor("condition_name"),
	},
	{
		eventType: domain.EventTypeAspect,
		re:        regexp.MustCompile(`(?i)^\[\s*aspect\s*[-:–]\s*(.+?)(?:\s+(?:obtained|gained|acquired))?[!.]*\s*\]$`),
		extract:   nameExtractor("aspect_name"),
	},
	{
		eventType: domain.EventTypeAspect,
		re:        regexp.MustCompile(`(?i)^\[\s*aspect\s+of\s+(.+?)(?:\s+(?:obtained|gained|acquired))?[!.]*\s*\]$`),
		extract:   nameExtractor("aspect_name"),
	},
	{
		eventType: domain.EventTypeTitle,
		re:        regexp.MustCompile(`(?i)^\[\s*title\s*[-:–]\s*(.+?)(?:\s+(?:obtained|gained|earned|acquired))?[!.]*\s*\]$`),
		extract:   nameExtractor("title_name"),
	},
	{
		eventType: domain.EventTypeRank,
		re:        regexp.MustCompile(`(?i)^\[\s*(.+?)\s+rank\s+(\d+)[!.]*\s*\]$`),
		extract: func(m []string) (map[string]any, error) {
			name, err := validName(m[1])
			if err != nil {
				return nil, err
			}
			rank, err := validLevel(m[2])
			if err != nil {
				return nil, err
			}
			return map[string]any{"rank_name": name, "rank": rank}, nil
		},
	},
}

var incompleteRules = []incompleteRule{
	{domain.EventTypeSkillObtained, regexp.MustCompile(`(?i)^\[\s*skill\s*[-:–]\s*(.*)$`), "skill_name"},
	{domain.EventTypeSpellObtained, regexp.MustCompile(`(?i)^\[\s*spell\s*[-:–]\s*(.*)$`), "spell_name"},
	{domain.EventTypeCondition, regexp.MustCompile(`(?i)^\[\s*condition\s*[-:–]\s*(.*)$`), "condition_name"},
	{domain.EventTypeAspect, regexp.MustCompile(`(?i)^\[\s*aspect\s*[-:–]\s*(.*)$`), "aspect_name"},
	{domain.EventTypeTitle, regexp.MustCompile(`(?i)^\[\s*title\s*[-:–]\s*(.*)$`), "title_name"},
	{domain.EventTypeClassObtained, regexp.MustCompile(`(?i)^\[\s*(.*?)\s+class\b.*$`), "class_name"},
	{domain.EventTypeLevelUp, regexp.MustCompile(`(?i)^\[\s*(.*?)\s+level\b.*$`), "class_name"},
}
