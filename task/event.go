package task

import (
	"time"

	"github.com/google/uuid"
)

// Event records a single lifecycle transition of a task.
//
//	Event.From/To - states on either side of the transition. Create events
//	carry From == To == Pending.
type Event struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	Action    Action    `json:"action"`
	From      State     `json:"from"`
	To        State     `json:"to"`
	ActorID   uuid.UUID `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds the event describing the move from prev to next.
func NewEvent(action Action, prev, next Task, actor uuid.UUID, now time.Time) Event {
	return Event{
		ID:        uuid.New(),
		TaskID:    next.ID,
		Action:    action,
		From:      prev.State,
		To:        next.State,
		ActorID:   actor,
		Timestamp: now.UTC(),
	}
}
