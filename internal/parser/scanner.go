package parser

import (
	"iter"
	"strings"
)

// Candidate is a single bracket occurrence found in chapter text. It is
// unclassified: the scanner records every '[' it sees and leaves the
// decision of whether it is a progression event to later stages.
type Candidate struct {
	// Raw is the text from '[' to ']' inclusive. If no closing bracket
	// was found within the search window, Raw is truncated at the next
	// newline or the window limit and Closed is false.
	Raw string

	// Context is a whitespace-normalized window of text around the
	// bracket, with "..." markers where it was cut at document edges.
	Context string

	// Position is the byte offset of '[' in the source text.
	Position int

	// Index is the 0-based ordinal of this candidate within the document.
	Index int

	// Closed reports whether a closing ']' was found.
	Closed bool
}

// ScannerConfig bounds the bracket search and the context window.
type ScannerConfig struct {
	ContextBefore    int
	ContextAfter     int
	MaxBracketLength int
}

// Scanner finds every bracket-delimited span in a document.
type Scanner struct {
	cfg ScannerConfig
}

func NewScanner(cfg ScannerConfig) *Scanner {
	return &Scanner{cfg: cfg}
}

// Scan returns a lazy sequence of candidates, one per '[' occurrence,
// in document order. The sequence is restartable and never fails:
// empty input yields an empty sequence.
func (s *Scanner) Scan(text string) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		pos := 0
		index := 0
		for pos < len(text) {
			start := strings.Index(text[pos:], "[")
			if start == -1 {
				return
			}
			start += pos

			raw, closed := s.bracketText(text, start)
			c := Candidate{
				Raw:      raw,
				Context:  s.surroundingText(text, start),
				Position: start,
				Index:    index,
				Closed:   closed,
			}
			if !yield(c) {
				return
			}

			pos = start + 1
			index++
		}
	}
}

// bracketText extracts the span from the opening bracket to the closing
// bracket, or to a reasonable cutoff when the bracket is never closed.
func (s *Scanner) bracketText(text string, start int) (string, bool) {
	searchEnd := min(len(text), start+s.cfg.MaxBracketLength)

	if rel := strings.Index(text[start:searchEnd], "]"); rel != -1 {
		return text[start : start+rel+1], true
	}

	// No closing bracket within range: cut at the next newline if one
	// appears before the window limit.
	end := searchEnd
	if nl := strings.Index(text[start:searchEnd], "\n"); nl != -1 {
		end = start + nl
	}
	return text[start:end], false
}

func (s *Scanner) surroundingText(text string, start int) string {
	ctxStart := max(0, start-s.cfg.ContextBefore)
	ctxEnd := min(len(text), start+s.cfg.MaxBracketLength+s.cfg.ContextAfter)

	surrounding := strings.Join(strings.Fields(text[ctxStart:ctxEnd]), " ")

	if ctxStart > 0 {
		surrounding = "..." + surrounding
	}
	if ctxEnd < len(text) {
		surrounding += "..."
	}
	return surrounding
}
