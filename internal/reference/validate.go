package reference

import (
	"context"
	"fmt"

	"github.com/hearthkeep/chronicle/internal/domain"
)

// Validation is the outcome of checking one event against the registry.
// Checked distinguishes "looked up and missed" from "this event type is
// not registry-backed at all"; only checked outcomes influence the
// accept/review decision.
type Validation struct {
	Checked       bool
	Known         bool
	Fake          bool
	CanonicalName string
	Note          string
}

// ValidateEvent cross-checks a classified event's primary name against
// the registry. Unknown names and fake items are distinct outcomes:
// unknown forces review, fake vetoes the event entirely.
func (v *Validator) ValidateEvent(ctx context.Context, ev domain.RawEvent) Validation {
	name, kind := EventSubject(ev)
	if name == "" {
		return Validation{}
	}

	switch kind {
	case "skill":
		sk, ok := v.FindSkill(ctx, name)
		if !ok {
			return Validation{
				Checked: true,
				Note:    fmt.Sprintf("skill %q not found in reference registry", name),
			}
		}
		val := Validation{Checked: true, Known: true, CanonicalName: sk.Name}
		if sk.IsFake {
			val.Fake = true
			val.Note = fmt.Sprintf("reference registry lists %q as a fake skill", sk.Name)
		}
		return val

	case "spell":
		sp, ok := v.FindSpell(ctx, name)
		if !ok {
			return Validation{
				Checked: true,
				Note:    fmt.Sprintf("spell %q not found in reference registry", name),
			}
		}
		return Validation{Checked: true, Known: true, CanonicalName: sp.Name}

	case "class":
		cl, ok := v.FindClass(ctx, name)
		if !ok {
			return Validation{
				Checked: true,
				Note:    fmt.Sprintf("class %q not found in reference registry", name),
			}
		}
		val := Validation{Checked: true, Known: true, CanonicalName: cl.Name}
		if cl.IsFake {
			val.Fake = true
			val.Note = fmt.Sprintf("reference registry lists %q as a fake class", cl.Name)
		}
		return val
	}

	return Validation{}
}

// EventSubject picks the payload field naming the registry entity a
// given event type concerns, and the entity kind ("skill", "spell" or
// "class"). Consolidations carry compound name lists and yield nothing;
// so do types with no registry backing.
func EventSubject(ev domain.RawEvent) (name, kind string) {
	get := func(field string) string {
		s, _ := ev.Payload[field].(string)
		return s
	}

	switch ev.EventType {
	case domain.EventTypeSkillObtained, domain.EventTypeSkillRemoved:
		return get("skill_name"), "skill"
	case domain.EventTypeSkillChange:
		return get("new_skill"), "skill"
	case domain.EventTypeSpellObtained, domain.EventTypeSpellRemoved:
		return get("spell_name"), "spell"
	case domain.EventTypeClassObtained, domain.EventTypeLevelUp, domain.EventTypeClassRemoved:
		return get("class_name"), "class"
	case domain.EventTypeClassEvolution:
		return get("to_class"), "class"
	}
	return "", ""
}
