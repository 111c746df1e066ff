package attribution

import (
	"context"
	"log/slog"

	"github.com/hearthkeep/chronicle/internal/ai"
	"github.com/hearthkeep/chronicle/internal/domain"
	"github.com/hearthkeep/chronicle/internal/reference"
)

// Engine turns classifier judgments into accept/review decisions. The
// same engine serves synchronous and bulk processing, so both modes get
// identical semantics.
type Engine struct {
	validator *reference.Validator
	threshold float64
	log       *slog.Logger
}

// NewEngine creates an engine with the given auto-accept confidence
// threshold.
func NewEngine(log *slog.Logger, validator *reference.Validator, threshold float64) *Engine {
	return &Engine{
		validator: validator,
		threshold: threshold,
		log:       log.With("component", "attribution"),
	}
}

// Decide produces exactly one Attribution per input event, in input
// order. Events absent from the judgment set are synthesized as
// zero-confidence review entries; nothing is silently dropped.
//
// Decision precedence:
//  1. A false_positive judgment, or a registry veto of a fake
//     skill/class, always routes to review.
//  2. Auto-accept requires confidence at or above the threshold AND a
//     resolved character.
//  3. Everything else is flagged for review with confidence preserved.
func (e *Engine) Decide(ctx context.Context, events []domain.RawEvent, judgments []ai.Judgment) []domain.Attribution {
	byID := make(map[int64]ai.Judgment, len(judgments))
	for _, j := range judgments {
		byID[j.EventID] = j
	}

	out := make([]domain.Attribution, 0, len(events))
	for _, ev := range events {
		j, ok := byID[ev.ID]
		if !ok {
			out = append(out, notProcessed(ev.ID))
			continue
		}
		out = append(out, e.decideOne(ctx, ev, j))
	}
	return out
}

func (e *Engine) decideOne(ctx context.Context, ev domain.RawEvent, j ai.Judgment) domain.Attribution {
	attr := domain.Attribution{
		EventID:       ev.ID,
		EventType:     j.EventType,
		CharacterName: j.CharacterName,
		Payload:       j.Fields,
		Confidence:    j.Confidence,
		Reasoning:     j.Reasoning,
	}

	if j.CharacterName != nil {
		if ch, ok := e.validator.FindCharacter(ctx, *j.CharacterName); ok {
			id := ch.ID
			attr.CharacterID = &id
		}
	}

	val := e.validate(ctx, ev, j)
	switch {
	case val.Fake:
		// Registry veto: the named item exists only as a joke inside
		// the fiction. Overrides whatever the model judged.
		attr.EventType = domain.EventTypeFalsePositive
		attr.AutoAccepted = false
		attr.NeedsReview = true
		if val.Note != "" {
			attr.Reasoning = joinReasoning(attr.Reasoning, val.Note)
		}
		e.log.Debug("fake item vetoed",
			slog.Int64("event_id", ev.ID),
			slog.String("note", val.Note),
		)

	case attr.EventType == domain.EventTypeFalsePositive:
		// High model confidence in a false-positive call is not enough
		// to silently discard a potential real event.
		attr.AutoAccepted = false
		attr.NeedsReview = true

	case val.Checked && !val.Known:
		attr.AutoAccepted = false
		attr.NeedsReview = true
		if val.Note != "" {
			attr.Reasoning = joinReasoning(attr.Reasoning, val.Note)
		}

	default:
		attr.AutoAccepted = attr.Confidence >= e.threshold && attr.CharacterID != nil
		attr.NeedsReview = !attr.AutoAccepted
	}

	return attr
}

// validate cross-checks the judged event against the registry, using
// the model's extracted fields when present and the deterministic
// payload otherwise.
func (e *Engine) validate(ctx context.Context, ev domain.RawEvent, j ai.Judgment) reference.Validation {
	checked := domain.RawEvent{EventType: j.EventType, Payload: j.Fields}
	if name, _ := reference.EventSubject(checked); name == "" {
		checked = domain.RawEvent{EventType: j.EventType, Payload: ev.Payload}
	}

	val := e.validator.ValidateEvent(ctx, checked)
	if val.Checked {
		return val
	}

	// The model may have re-typed the event (e.g. to other); the
	// deterministic classification still gets a registry check so a
	// fake item cannot slip through on a re-type.
	return e.validator.ValidateEvent(ctx, ev)
}

func notProcessed(eventID int64) domain.Attribution {
	return domain.Attribution{
		EventID:     eventID,
		EventType:   domain.EventTypeOther,
		Payload:     map[string]any{},
		Confidence:  0,
		Reasoning:   "Event not processed by AI",
		NeedsReview: true,
	}
}

// Failed builds review-flagged attributions for a set of events whose
// classification request failed outright, with the failure reason
// preserved for the reviewer.
func Failed(eventIDs []int64, reason string) []domain.Attribution {
	out := make([]domain.Attribution, 0, len(eventIDs))
	for _, id := range eventIDs {
		out = append(out, domain.Attribution{
			EventID:     id,
			EventType:   domain.EventTypeOther,
			Payload:     map[string]any{},
			Confidence:  0,
			Reasoning:   reason,
			NeedsReview: true,
		})
	}
	return out
}

func joinReasoning(reasoning, note string) string {
	if reasoning == "" {
		return note
	}
	return reasoning + " | " + note
}
