package task

import (
	"time"

	"github.com/google/uuid"
	apperrors "github.com/vasilii314/taskbroker/errors"
)

// Details returned to callers when a transition is refused.
const (
	MsgNotPending     = "This task is not pending."
	MsgNotWaiting     = "This task is not waiting."
	MsgNotAssigned    = "Task is not assigned yet."
	MsgResponseNeeded = `Required field ("A" for accepted / "R" for rejected)`
)

// Action names a lifecycle operation. It is recorded on every Event.
type Action string

const (
	ActionCreate   Action = "create"
	ActionRequest  Action = "request"
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionComplete Action = "complete"
)

// Response is a charity's answer to a benefactor's request.
type Response string

const (
	ResponseAccept Response = "A"
	ResponseReject Response = "R"
)

// ParseResponse validates the raw response marker.
func ParseResponse(raw string) (Response, error) {
	switch r := Response(raw); r {
	case ResponseAccept, ResponseReject:
		return r, nil
	default:
		return "", apperrors.Validation(MsgResponseNeeded)
	}
}

// Action returns the lifecycle action the response triggers.
func (r Response) Action() Action {
	if r == ResponseAccept {
		return ActionAccept
	}
	return ActionReject
}

// Request hands a Pending task to benefactor and moves it to Waiting.
func (t Task) Request(benefactor uuid.UUID, now time.Time) (Task, error) {
	if t.State != Pending {
		return t, apperrors.InvalidState(MsgNotPending)
	}
	next := t
	next.State = Waiting
	next.AssignedBenefactor = benefactor
	next.UpdatedAt = now.UTC()
	return next, nil
}

// Respond applies a charity's response to a Waiting task. Accept moves it
// to Assigned; Reject returns it to Pending and releases the benefactor.
//
// The response is validated before the state is looked at.
func (t Task) Respond(r Response, now time.Time) (Task, error) {
	if _, err := ParseResponse(string(r)); err != nil {
		return t, err
	}
	if t.State != Waiting {
		return t, apperrors.InvalidState(MsgNotWaiting)
	}
	next := t
	switch r {
	case ResponseAccept:
		next.State = Assigned
	case ResponseReject:
		next.State = Pending
		next.AssignedBenefactor = uuid.Nil
	}
	next.UpdatedAt = now.UTC()
	return next, nil
}

// Complete marks an Assigned task as Done. The assignee is kept so the
// record shows who did the work.
func (t Task) Complete(now time.Time) (Task, error) {
	if t.State != Assigned {
		return t, apperrors.InvalidState(MsgNotAssigned)
	}
	next := t
	next.State = Done
	next.UpdatedAt = now.UTC()
	return next, nil
}

// Transitions lists every edge of the lifecycle graph.
var Transitions = map[State][]State{
	Pending:  {Waiting},
	Waiting:  {Assigned, Pending},
	Assigned: {Done},
	Done:     {},
}

// IsValidStateTransition reports whether src -> dst is an edge of the graph.
func IsValidStateTransition(src, dst State) bool {
	for _, s := range Transitions[src] {
		if s == dst {
			return true
		}
	}
	return false
}
