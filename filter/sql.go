package filter

import (
	"strings"

	"github.com/google/uuid"
	"github.com/vasilii314/taskbroker/task"
)

// expr returns the SQL expression yielding the canonical string form of f.
// Optional integer columns are NULL when unset.
func (f Field) expr() string {
	switch f {
	case FieldAgeFrom, FieldAgeTo:
		return "COALESCE(CAST(" + string(f) + " AS TEXT), '')"
	default:
		return string(f)
	}
}

// Where renders q as a parameterised SQL boolean expression over the tasks
// table. It never returns an empty string.
func (q Query) Where() (string, []any) {
	var (
		clauses []string
		args    []any
	)

	scope, scopeArgs := q.Scope.where()
	clauses = append(clauses, scope)
	args = append(args, scopeArgs...)

	for _, c := range q.Include {
		clauses = append(clauses, c.Field.expr()+" = ?")
		args = append(args, c.Value)
	}
	for _, c := range q.Exclude {
		clauses = append(clauses, c.Field.expr()+" <> ?")
		args = append(args, c.Value)
	}
	return strings.Join(clauses, " AND "), args
}

func (s Scope) where() (string, []any) {
	var (
		parts []string
		args  []any
	)
	if s.CharityID != uuid.Nil {
		parts = append(parts, "charity_id = ?")
		args = append(args, s.CharityID.String())
	}
	if s.BenefactorID != uuid.Nil {
		parts = append(parts, "state = ?", "assigned_benefactor = ?")
		args = append(args, task.Pending.Code(), s.BenefactorID.String())
	}
	if len(parts) == 0 {
		return "1 = 0", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}
