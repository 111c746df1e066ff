package parser

import (
	"regexp"
	"strings"
)

// defaultIndicatorWords is the vocabulary that lets a two-word bracket
// through the filter. A two-word bracket with none of these is treated
// as a casual mention (e.g. a class name dropped in dialogue).
var defaultIndicatorWords = []string{
	// acquisition / loss verbs
	"obtained", "obtain",
	"gained", "gain",
	"learned", "learn",
	"earned", "earn",
	"acquired", "acquire",
	"lost", "lose",
	"removed", "remove",
	// progression nouns
	"level", "levels",
	"skill", "skills",
	"spell", "spells",
	"class", "classes",
	"title", "titles",
	"condition", "conditions",
	"aspect", "aspects",
	"rank", "ranks",
	// transformation terms
	"change", "changed",
	"evolved", "evolution",
	"consolidated", "consolidation",
}

var wordRe = regexp.MustCompile(`[a-zA-Z]+`)

// FilterConfig tunes the candidate filter. An empty IndicatorWords
// keeps the default vocabulary.
type FilterConfig struct {
	IndicatorWords []string
}

// Filter decides which bracket candidates are worth classifying.
type Filter struct {
	indicators map[string]struct{}
}

func NewFilter(cfg FilterConfig) *Filter {
	words := cfg.IndicatorWords
	if len(words) == 0 {
		words = defaultIndicatorWords
	}

	indicators := make(map[string]struct{}, len(words))
	for _, w := range words {
		indicators[strings.ToLower(w)] = struct{}{}
	}

	return &Filter{indicators: indicators}
}

// Include reports whether the candidate should proceed to classification.
//
// The bracket interior is tokenized into alphabetic words:
//   - 0 or 1 words: excluded (bare mention).
//   - 2 words: included only if at least one word is an indicator term.
//   - 3+ words: included unconditionally.
//
// An unclosed bracket is always included. Ambiguity there favors manual
// review over silent loss.
func (f *Filter) Include(c Candidate) bool {
	if !c.Closed {
		return true
	}

	interior := strings.TrimSuffix(strings.TrimPrefix(c.Raw, "["), "]")
	words := wordRe.FindAllString(interior, -1)

	switch {
	case len(words) <= 1:
		return false
	case len(words) == 2:
		for _, w := range words {
			if _, ok := f.indicators[strings.ToLower(w)]; ok {
				return true
			}
		}
		return false
	default:
		return true
	}
}
