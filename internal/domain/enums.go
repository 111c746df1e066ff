package domain

// EventType classifies a progression event found in chapter text.
// The order of the constants is the priority order in which the
// deterministic classifier tries its patterns; Other is always last.
type EventType string

const (
	EventTypeClassObtained      EventType = "class_obtained"
	EventTypeClassEvolution     EventType = "class_evolution"
	EventTypeClassConsolidation EventType = "class_consolidation"
	EventTypeClassRemoved       EventType = "class_removed"
	EventTypeLevelUp            EventType = "level_up"
	EventTypeSkillObtained      EventType = "skill_obtained"
	EventTypeSkillRemoved       EventType = "skill_removed"
	EventTypeSkillChange        EventType = "skill_change"
	EventTypeSkillConsolidation EventType = "skill_consolidation"
	EventTypeSpellObtained      EventType = "spell_obtained"
	EventTypeSpellRemoved       EventType = "spell_removed"
	EventTypeCondition          EventType = "condition"
	EventTypeAspect             EventType = "aspect"
	EventTypeTitle              EventType = "title"
	EventTypeRank               EventType = "rank"
	EventTypeOther              EventType = "other"

	// EventTypeFalsePositive is never produced by the deterministic
	// classifier; it is a resolved type assigned during attribution when a
	// bracket turns out not to be a real System notification.
	EventTypeFalsePositive EventType = "false_positive"
)

func (t EventType) String() string { return string(t) }

func (t EventType) IsValid() bool {
	switch t {
	case EventTypeClassObtained, EventTypeClassEvolution, EventTypeClassConsolidation,
		EventTypeClassRemoved, EventTypeLevelUp, EventTypeSkillObtained,
		EventTypeSkillRemoved, EventTypeSkillChange, EventTypeSkillConsolidation,
		EventTypeSpellObtained, EventTypeSpellRemoved, EventTypeCondition,
		EventTypeAspect, EventTypeTitle, EventTypeRank, EventTypeOther,
		EventTypeFalsePositive:
		return true
	}
	return false
}

// IsSkill reports whether the event concerns a skill name that can be
// checked against the reference registry.
func (t EventType) IsSkill() bool {
	switch t {
	case EventTypeSkillObtained, EventTypeSkillRemoved, EventTypeSkillChange, EventTypeSkillConsolidation:
		return true
	}
	return false
}

// IsSpell reports whether the event concerns a spell name.
func (t EventType) IsSpell() bool {
	return t == EventTypeSpellObtained || t == EventTypeSpellRemoved
}

// IsClass reports whether the event concerns a class name.
func (t EventType) IsClass() bool {
	switch t {
	case EventTypeClassObtained, EventTypeClassEvolution, EventTypeClassConsolidation,
		EventTypeClassRemoved, EventTypeLevelUp:
		return true
	}
	return false
}

// BatchStatus is the lifecycle state of an external batch job.
type BatchStatus string

const (
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCanceling  BatchStatus = "canceling"
	BatchStatusEnded      BatchStatus = "ended"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusInProgress, BatchStatusCanceling, BatchStatusEnded:
		return true
	}
	return false
}

// Terminal reports whether results for the job can be fetched.
func (s BatchStatus) Terminal() bool { return s == BatchStatusEnded }

// BatchResultType is the outcome of a single request inside a batch job.
type BatchResultType string

const (
	BatchResultSucceeded BatchResultType = "succeeded"
	BatchResultErrored   BatchResultType = "errored"
	BatchResultCanceled  BatchResultType = "canceled"
	BatchResultExpired   BatchResultType = "expired"
)

func (r BatchResultType) String() string { return string(r) }

func (r BatchResultType) IsValid() bool {
	switch r {
	case BatchResultSucceeded, BatchResultErrored, BatchResultCanceled, BatchResultExpired:
		return true
	}
	return false
}
