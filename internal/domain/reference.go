package domain

// Character is a canonical character from the reference registry.
type Character struct {
	ID      int64
	Name    string
	Aliases []string
	Species *string
	Status  *string
}

// Skill is a canonical skill. Fake skills are abilities that exist only
// as jokes or imagination inside the fiction; events naming them must
// never be auto-accepted.
type Skill struct {
	ID     int64
	Name   string
	IsFake bool
	Effect *string
}

// Spell is a canonical spell. The registry carries no fake spells.
type Spell struct {
	ID     int64
	Name   string
	Tier   *int
	Effect *string
}

// Class is a canonical class; IsFake marks hypothetical classes.
type Class struct {
	ID          int64
	Name        string
	IsFake      bool
	Description *string
}

// Registry is the full reference dataset loaded from the store.
// It is a plain value: the validator indexes it once and treats the
// result as read-only.
type Registry struct {
	Characters []Character
	Skills     []Skill
	Spells     []Spell
	Classes    []Class
}
