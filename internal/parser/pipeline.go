package parser

import (
	"log/slog"
	"sort"

	"github.com/hearthkeep/chronicle/internal/domain"
)

// Stats tallies one document's pass through the pipeline. Drops are
// counted here instead of surfacing as errors; a malformed field
// extraction never aborts the rest of the document.
type Stats struct {
	Candidates int
	Excluded   int
	Events     int
	Dropped    int
	Incomplete int
	ByType     map[domain.EventType]int
}

// Pipeline runs scan → filter → classify over a single document. It is
// a pure transform with no shared mutable state, so one Pipeline value
// may be used from multiple goroutines.
type Pipeline struct {
	scanner    *Scanner
	filter     *Filter
	classifier *Classifier
	log        *slog.Logger
}

func NewPipeline(log *slog.Logger, scan ScannerConfig, filter FilterConfig) *Pipeline {
	return &Pipeline{
		scanner:    NewScanner(scan),
		filter:     NewFilter(filter),
		classifier: NewClassifier(),
		log:        log.With("component", "parser"),
	}
}

// Parse extracts classified events from chapter text, sorted by document
// position. Malformed input yields zero events and an empty tally, never
// an error.
func (p *Pipeline) Parse(text string) ([]domain.RawEvent, Stats) {
	stats := Stats{ByType: make(map[domain.EventType]int)}
	var events []domain.RawEvent

	for cand := range p.scanner.Scan(text) {
		stats.Candidates++

		if !p.filter.Include(cand) {
			stats.Excluded++
			continue
		}

		ev, err := p.classifier.Classify(cand)
		if err != nil {
			stats.Dropped++
			p.log.Debug("dropped candidate",
				slog.String("raw", cand.Raw),
				slog.String("error", err.Error()),
			)
			continue
		}

		if ev.IsIncomplete {
			stats.Incomplete++
		}
		stats.Events++
		stats.ByType[ev.EventType]++
		events = append(events, ev)
	}

	// The scanner already yields in document order, but later stages
	// depend on position order for context disambiguation, so it is
	// enforced here rather than assumed.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].EventIndex < events[j].EventIndex
	})

	return events, stats
}
