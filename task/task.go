package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is a task lifecycle state. Its wire form is a one-letter code.
type State int

const (
	Pending State = iota
	Waiting
	Assigned
	Done
)

var stateCodes = [...]string{
	Pending:  "P",
	Waiting:  "W",
	Assigned: "A",
	Done:     "D",
}

var stateNames = [...]string{
	Pending:  "Pending",
	Waiting:  "Waiting",
	Assigned: "Assigned",
	Done:     "Done",
}

// ParseState converts a wire code into a State. Unknown codes are rejected.
func ParseState(code string) (State, error) {
	for s, c := range stateCodes {
		if c == code {
			return State(s), nil
		}
	}
	return Pending, fmt.Errorf("unknown task state %q", code)
}

// Valid reports whether s is one of the four lifecycle states.
func (s State) Valid() bool {
	return s >= Pending && s <= Done
}

// Code returns the one-letter wire code.
func (s State) Code() string {
	if !s.Valid() {
		return "?"
	}
	return stateCodes[s]
}

func (s State) String() string {
	if !s.Valid() {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid task state %d", int(s))
	}
	return json.Marshal(s.Code())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return err
	}
	parsed, err := ParseState(code)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Gender limits who a task is meant for.
type Gender string

const (
	GenderAny    Gender = ""
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// Valid reports whether g is unset or one of the known values.
func (g Gender) Valid() bool {
	return g == GenderAny || g == GenderMale || g == GenderFemale
}

// Task is a unit of work owned by a charity.
//
// Task values are treated as immutable by the lifecycle engine: every
// transition returns a modified copy.
type Task struct {
	ID    uuid.UUID `json:"id"`
	State State     `json:"state"`
	// CharityID is set once at creation.
	CharityID uuid.UUID `json:"charity_id"`
	// AssignedBenefactor is uuid.Nil when nobody holds the task and
	// renders as null.
	AssignedBenefactor uuid.UUID `json:"assigned_benefactor"`

	Title        string `json:"title"`
	Description  string `json:"description"`
	Deadline     string `json:"deadline,omitempty"`
	AgeLimitFrom *int   `json:"age_limit_from,omitempty"`
	AgeLimitTo   *int   `json:"age_limit_to,omitempty"`
	GenderLimit  Gender `json:"gender_limit,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// Version is bumped on every write. The sqlite store uses it for
	// optimistic concurrency.
	Version int64 `json:"version"`
}

// taskFields is Task without its JSON methods.
type taskFields Task

// MarshalJSON renders an unassigned task with "assigned_benefactor": null.
func (t Task) MarshalJSON() ([]byte, error) {
	var assignee *uuid.UUID
	if t.HasAssignee() {
		assignee = &t.AssignedBenefactor
	}
	return json.Marshal(struct {
		taskFields
		AssignedBenefactor *uuid.UUID `json:"assigned_benefactor"`
	}{taskFields(t), assignee})
}

// UnmarshalJSON accepts null or a missing "assigned_benefactor" as unassigned.
func (t *Task) UnmarshalJSON(data []byte) error {
	aux := struct {
		*taskFields
		AssignedBenefactor *uuid.UUID `json:"assigned_benefactor"`
	}{taskFields: (*taskFields)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.AssignedBenefactor = uuid.Nil
	if aux.AssignedBenefactor != nil {
		t.AssignedBenefactor = *aux.AssignedBenefactor
	}
	return nil
}

// HasAssignee reports whether a benefactor currently holds the task.
func (t Task) HasAssignee() bool {
	return t.AssignedBenefactor != uuid.Nil
}

// NewTask builds a Pending task owned by charityID from the descriptive
// fields of draft. Identity, state and assignment fields of draft are ignored.
func NewTask(charityID uuid.UUID, draft Task, now time.Time) Task {
	return Task{
		ID:           uuid.New(),
		State:        Pending,
		CharityID:    charityID,
		Title:        draft.Title,
		Description:  draft.Description,
		Deadline:     draft.Deadline,
		AgeLimitFrom: draft.AgeLimitFrom,
		AgeLimitTo:   draft.AgeLimitTo,
		GenderLimit:  draft.GenderLimit,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
}
