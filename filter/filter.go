// Package filter builds the view of tasks a caller may list and narrows it
// with include/exclude lookups taken from request parameters.
//
// A Query is evaluated in-process with Match by the memory and bolt stores
// and translated to SQL with Where by the sqlite store. Both paths compare
// fields by their canonical string form.
package filter

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/vasilii314/taskbroker/account"
	"github.com/vasilii314/taskbroker/task"
)

// Field is a task attribute a lookup may compare against. Its value is
// also the sqlite column name.
type Field string

const (
	FieldState      Field = "state"
	FieldCharity    Field = "charity_id"
	FieldBenefactor Field = "assigned_benefactor"
	FieldTitle      Field = "title"
	FieldGender     Field = "gender_limit"
	FieldAgeFrom    Field = "age_limit_from"
	FieldAgeTo      Field = "age_limit_to"
)

// Value returns the canonical string form of f on t. Unset optional fields
// are the empty string.
func (f Field) Value(t task.Task) string {
	switch f {
	case FieldState:
		return t.State.Code()
	case FieldCharity:
		return uuidString(t.CharityID)
	case FieldBenefactor:
		return uuidString(t.AssignedBenefactor)
	case FieldTitle:
		return t.Title
	case FieldGender:
		return string(t.GenderLimit)
	case FieldAgeFrom:
		return intString(t.AgeLimitFrom)
	case FieldAgeTo:
		return intString(t.AgeLimitTo)
	default:
		return ""
	}
}

func uuidString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func intString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// Lookup binds a field to the query parameter that carries its value.
type Lookup struct {
	Field Field
	Param string
}

// FilteringLookups are applied as equality matches.
var FilteringLookups = []Lookup{
	{Field: FieldState, Param: "state"},
	{Field: FieldCharity, Param: "charity"},
	{Field: FieldBenefactor, Param: "benefactor"},
	{Field: FieldTitle, Param: "title"},
	{Field: FieldGender, Param: "gender"},
}

// ExcludingLookups remove every matching task from the result.
var ExcludingLookups = []Lookup{
	{Field: FieldState, Param: "exclude_state"},
	{Field: FieldCharity, Param: "exclude_charity"},
	{Field: FieldGender, Param: "exclude_gender"},
	{Field: FieldAgeFrom, Param: "exclude_age_from"},
	{Field: FieldAgeTo, Param: "exclude_age_to"},
}

// Condition is one resolved lookup.
type Condition struct {
	Field Field
	Value string
}

func (c Condition) matches(t task.Task) bool {
	return c.Field.Value(t) == c.Value
}

// Scope is the set of tasks visible to a caller before any lookup applies.
// A zero id means the caller does not hold that role; the zero Scope sees
// nothing.
type Scope struct {
	CharityID    uuid.UUID
	BenefactorID uuid.UUID
}

// ScopeFor derives the visibility scope of id. Charity owners see their
// charity's tasks; benefactors see open tasks plus the ones assigned to them.
func ScopeFor(id account.Identity) Scope {
	var s Scope
	if id.IsCharityOwner() {
		s.CharityID = id.Charity.ID
	}
	if id.IsBenefactor() {
		s.BenefactorID = id.Benefactor.ID
	}
	return s
}

// Empty reports whether the scope can see no task at all.
func (s Scope) Empty() bool {
	return s.CharityID == uuid.Nil && s.BenefactorID == uuid.Nil
}

// Contains reports whether t is visible within s.
func (s Scope) Contains(t task.Task) bool {
	if s.CharityID != uuid.Nil && t.CharityID == s.CharityID {
		return true
	}
	if s.BenefactorID != uuid.Nil {
		return t.State == task.Pending || t.AssignedBenefactor == s.BenefactorID
	}
	return false
}

// Query is a scope narrowed by include and exclude conditions.
type Query struct {
	Scope   Scope
	Include []Condition
	Exclude []Condition
}

// FromValues builds a query from request parameters. Parameters that are
// not part of a lookup, or are present but empty, are ignored.
func FromValues(scope Scope, values url.Values) Query {
	return Query{
		Scope:   scope,
		Include: resolve(FilteringLookups, values),
		Exclude: resolve(ExcludingLookups, values),
	}
}

func resolve(lookups []Lookup, values url.Values) []Condition {
	var conds []Condition
	for _, l := range lookups {
		v := strings.TrimSpace(values.Get(l.Param))
		if v == "" {
			continue
		}
		conds = append(conds, Condition{Field: l.Field, Value: v})
	}
	return conds
}

// Match reports whether t is in scope, satisfies every include condition
// and none of the exclude conditions.
func (q Query) Match(t task.Task) bool {
	if !q.Scope.Contains(t) {
		return false
	}
	for _, c := range q.Include {
		if !c.matches(t) {
			return false
		}
	}
	for _, c := range q.Exclude {
		if c.matches(t) {
			return false
		}
	}
	return true
}

// Apply returns the tasks of ts that match q, keeping their order.
func (q Query) Apply(ts []task.Task) []task.Task {
	out := make([]task.Task, 0, len(ts))
	for _, t := range ts {
		if q.Match(t) {
			out = append(out, t)
		}
	}
	return out
}
