package domain

import (
	"regexp"
	"strings"
)

var abilityPrefixRe = regexp.MustCompile(`^(skill|spell)\s*[-:–]\s*`)

// NormalizeName prepares a reference name for lookup:
//   - strips bracket punctuation
//   - trims leading/trailing whitespace
//   - converts to lowercase
//   - compresses internal whitespace runs into single spaces
func NormalizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '[' || r == ']' {
			return -1
		}
		return r
	}, name)
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	return strings.Join(strings.Fields(name), " ")
}

// NormalizeAbilityName is NormalizeName plus stripping of a leading
// "Skill -" / "Spell:" type prefix. Annotation text embeds that prefix
// but the reference registry stores bare ability names.
func NormalizeAbilityName(name string) string {
	normalized := NormalizeName(name)
	return strings.TrimSpace(abilityPrefixRe.ReplaceAllString(normalized, ""))
}
