// Package policy provides authorization decisions for task actions.
//
// Checks are evaluated before the lifecycle engine runs; they never look at
// the task state except to decide visibility.
package policy

import (
	"github.com/vasilii314/taskbroker/account"
	apperrors "github.com/vasilii314/taskbroker/errors"
	"github.com/vasilii314/taskbroker/task"
)

// MsgForbidden is the generic detail returned for any refused action.
const MsgForbidden = "You do not have permission to perform this action."

// Action represents a policy decision for a caller action.
type Action int

const (
	ActionListTasks Action = iota + 1
	ActionViewTask
	ActionCreateTask
	ActionRequestTask
	ActionRespondTask
	ActionCompleteTask
	ActionViewHistory
)

var actionNames = map[Action]string{
	ActionListTasks:    "list tasks",
	ActionViewTask:     "view task",
	ActionCreateTask:   "create task",
	ActionRequestTask:  "request task",
	ActionRespondTask:  "respond to task",
	ActionCompleteTask: "complete task",
	ActionViewHistory:  "view task history",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown action"
}

// NeedsTask reports whether the decision depends on the target task.
func (a Action) NeedsTask() bool {
	switch a {
	case ActionViewTask, ActionRespondTask, ActionCompleteTask, ActionViewHistory:
		return true
	default:
		return false
	}
}

// Can reports whether id may perform action, on t when the action needs a task.
func Can(id account.Identity, action Action, t *task.Task) bool {
	if !id.IsAuthenticated() {
		return false
	}
	if action.NeedsTask() && t == nil {
		return false
	}
	switch action {
	case ActionListTasks:
		return true
	case ActionCreateTask, ActionRequestTask:
		return HasRole(id, action)
	case ActionViewTask:
		return IsCharityOwner(id, *t) || CanSee(id, *t)
	case ActionRespondTask, ActionCompleteTask, ActionViewHistory:
		return IsCharityOwner(id, *t)
	default:
		return false
	}
}

// HasRole reports whether id holds the role action requires, ignoring
// ownership. It lets callers refuse a request before loading the task.
func HasRole(id account.Identity, action Action) bool {
	switch action {
	case ActionListTasks, ActionViewTask:
		return id.IsAuthenticated()
	case ActionRequestTask:
		return IsBenefactor(id)
	case ActionCreateTask, ActionRespondTask, ActionCompleteTask, ActionViewHistory:
		return id.IsCharityOwner()
	default:
		return false
	}
}

// Check is Can expressed as an error for the API layer.
func Check(id account.Identity, action Action, t *task.Task) error {
	if !id.IsAuthenticated() {
		return apperrors.Unauthenticated("Authentication credentials were not provided.")
	}
	if !Can(id, action, t) {
		return apperrors.Forbidden(MsgForbidden)
	}
	return nil
}

// CheckRole is HasRole expressed as an error for the API layer.
func CheckRole(id account.Identity, action Action) error {
	if !id.IsAuthenticated() {
		return apperrors.Unauthenticated("Authentication credentials were not provided.")
	}
	if !HasRole(id, action) {
		return apperrors.Forbidden(MsgForbidden)
	}
	return nil
}

// IsCharityOwner reports whether id owns the charity that posted t.
func IsCharityOwner(id account.Identity, t task.Task) bool {
	return id.OwnsCharity(t.CharityID)
}

// IsBenefactor reports whether id may request tasks.
func IsBenefactor(id account.Identity) bool {
	return id.IsBenefactor()
}

// CanSee reports whether t shows up for id as a benefactor: open tasks and
// tasks currently or previously held by them.
func CanSee(id account.Identity, t task.Task) bool {
	if !IsBenefactor(id) {
		return false
	}
	return t.State == task.Pending || t.AssignedBenefactor == id.Benefactor.ID
}
