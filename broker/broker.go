// Package broker runs the task lifecycle for API callers: it checks the
// caller's capabilities, applies the lifecycle engine through a single
// store update and records the resulting transition.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vasilii314/taskbroker/account"
	apperrors "github.com/vasilii314/taskbroker/errors"
	"github.com/vasilii314/taskbroker/filter"
	"github.com/vasilii314/taskbroker/policy"
	"github.com/vasilii314/taskbroker/store"
	"github.com/vasilii314/taskbroker/task"
)

const tracerName = "github.com/vasilii314/taskbroker/broker"

// Details returned on success.
const (
	MsgRequestSent   = "Request sent."
	MsgResponseSent  = "Response sent."
	MsgTaskDone      = "Task has been done successfully."
	MsgUserAdded     = "User added successfully!"
	MsgNotFound      = "Not found."
	msgUsernameTaken = "A user with that username already exists."
)

type Broker struct {
	// Tasks is the sole shared mutable state; every transition is one
	// Tasks.Update call.
	Tasks    store.TaskStore
	Events   store.EventStore
	Accounts store.AccountStore
	// PasswordCost is the bcrypt cost for new users. Zero means the
	// bcrypt default.
	PasswordCost int
	Now          func() time.Time

	tracer trace.Tracer
}

// New returns a Broker over the stores of b.
func New(b *store.Backend) *Broker {
	return &Broker{
		Tasks:    b.Tasks,
		Events:   b.Events,
		Accounts: b.Accounts,
		Now:      time.Now,
		tracer:   otel.Tracer(tracerName),
	}
}

func (b *Broker) now() time.Time {
	if b.Now == nil {
		return time.Now().UTC()
	}
	return b.Now().UTC()
}

func (b *Broker) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := b.tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return tracer.Start(ctx, "broker."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// storeErr maps storage errors onto the API taxonomy.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NotFound(MsgNotFound)
	case errors.Is(err, store.ErrConflict):
		return apperrors.Wrap(apperrors.CodeConflict, "The task was modified concurrently, try again.", err)
	default:
		return err
	}
}

// ListTasks returns the tasks visible to id, narrowed by the lookups in values.
func (b *Broker) ListTasks(ctx context.Context, id account.Identity, values url.Values) (tasks []task.Task, err error) {
	ctx, span := b.startSpan(ctx, "ListTasks")
	defer func() { endSpan(span, err) }()

	if err := policy.CheckRole(id, policy.ActionListTasks); err != nil {
		return nil, err
	}
	q := filter.FromValues(filter.ScopeFor(id), values)
	span.SetAttributes(
		attribute.Int("filter.include", len(q.Include)),
		attribute.Int("filter.exclude", len(q.Exclude)),
	)
	tasks, err = b.Tasks.List(ctx, q)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask stores a new Pending task for the caller's charity. Any
// charity, state or assignee in draft is ignored.
func (b *Broker) CreateTask(ctx context.Context, id account.Identity, draft task.Task) (t task.Task, err error) {
	ctx, span := b.startSpan(ctx, "CreateTask")
	defer func() { endSpan(span, err) }()

	if err := policy.CheckRole(id, policy.ActionCreateTask); err != nil {
		return task.Task{}, err
	}
	now := b.now()
	t = task.NewTask(id.Charity.ID, draft, now)
	if fields := t.Validate(); fields != nil {
		return task.Task{}, apperrors.ValidationFields(fields)
	}
	if err := b.Tasks.Create(ctx, t); err != nil {
		return task.Task{}, err
	}
	span.SetAttributes(attribute.String("task.id", t.ID.String()))
	log.Printf("[broker.Broker] [CreateTask] charity %s created task %s", t.CharityID, t.ID)
	b.record(ctx, task.NewEvent(task.ActionCreate, t, t, id.User.ID, now))
	return t, nil
}

// GetTask returns a single task the caller is allowed to see.
func (b *Broker) GetTask(ctx context.Context, id account.Identity, taskID uuid.UUID) (t task.Task, err error) {
	ctx, span := b.startSpan(ctx, "GetTask", attribute.String("task.id", taskID.String()))
	defer func() { endSpan(span, err) }()
	return b.load(ctx, id, policy.ActionViewTask, taskID)
}

// load runs the role check, fetches the task and then the ownership check.
func (b *Broker) load(ctx context.Context, id account.Identity, action policy.Action, taskID uuid.UUID) (task.Task, error) {
	if err := policy.CheckRole(id, action); err != nil {
		return task.Task{}, err
	}
	t, err := b.Tasks.Get(ctx, taskID)
	if err != nil {
		return task.Task{}, storeErr(err)
	}
	if err := policy.Check(id, action, &t); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

// RequestTask lets a benefactor ask for a Pending task. Of several
// concurrent requests exactly one succeeds; the others see the task as no
// longer pending.
func (b *Broker) RequestTask(ctx context.Context, id account.Identity, taskID uuid.UUID) (t task.Task, err error) {
	ctx, span := b.startSpan(ctx, "RequestTask", attribute.String("task.id", taskID.String()))
	defer func() { endSpan(span, err) }()

	if err := policy.CheckRole(id, policy.ActionRequestTask); err != nil {
		return task.Task{}, err
	}
	return b.transition(ctx, "RequestTask", id, policy.ActionRequestTask, task.ActionRequest, taskID, func(current task.Task, now time.Time) (task.Task, error) {
		return current.Request(id.Benefactor.ID, now)
	})
}

// RespondTask applies the owning charity's answer to a Waiting task. The
// response is validated before the state is checked.
func (b *Broker) RespondTask(ctx context.Context, id account.Identity, taskID uuid.UUID, response string) (t task.Task, err error) {
	ctx, span := b.startSpan(ctx, "RespondTask",
		attribute.String("task.id", taskID.String()),
		attribute.String("task.response", response),
	)
	defer func() { endSpan(span, err) }()

	if err := policy.CheckRole(id, policy.ActionRespondTask); err != nil {
		return task.Task{}, err
	}
	var action task.Action
	if r, err := task.ParseResponse(response); err == nil {
		action = r.Action()
	}
	return b.transition(ctx, "RespondTask", id, policy.ActionRespondTask, action, taskID, func(current task.Task, now time.Time) (task.Task, error) {
		return current.Respond(task.Response(response), now)
	})
}

// CompleteTask marks an Assigned task of the caller's charity as Done.
func (b *Broker) CompleteTask(ctx context.Context, id account.Identity, taskID uuid.UUID) (t task.Task, err error) {
	ctx, span := b.startSpan(ctx, "CompleteTask", attribute.String("task.id", taskID.String()))
	defer func() { endSpan(span, err) }()

	if err := policy.CheckRole(id, policy.ActionCompleteTask); err != nil {
		return task.Task{}, err
	}
	return b.transition(ctx, "CompleteTask", id, policy.ActionCompleteTask, task.ActionComplete, taskID, func(current task.Task, now time.Time) (task.Task, error) {
		return current.Complete(now)
	})
}

var errIllegalTransition = errors.New("illegal task state transition")

type transitionFunc func(current task.Task, now time.Time) (task.Task, error)

// transition runs the ownership check and fn inside one store update so
// the decision and the write see the same task value.
func (b *Broker) transition(ctx context.Context, method string, id account.Identity, check policy.Action, action task.Action, taskID uuid.UUID, fn transitionFunc) (task.Task, error) {
	var (
		prev task.Task
		now  time.Time
	)
	next, err := b.Tasks.Update(ctx, taskID, func(current task.Task) (task.Task, error) {
		if err := policy.Check(id, check, &current); err != nil {
			return current, err
		}
		prev, now = current, b.now()
		next, err := fn(current, now)
		if err != nil {
			return current, err
		}
		if !task.IsValidStateTransition(current.State, next.State) {
			return current, fmt.Errorf("%w: %s -> %s", errIllegalTransition, current.State, next.State)
		}
		return next, nil
	})
	if err != nil {
		log.Printf("[broker.Broker] [%s] task %s: %v", method, taskID, err)
		return task.Task{}, storeErr(err)
	}
	log.Printf("[broker.Broker] [%s] task %s moved %s -> %s", method, taskID, prev.State, next.State)
	b.record(ctx, task.NewEvent(action, prev, next, id.User.ID, now))
	return next, nil
}

// record appends e to the history. The transition has already been
// committed, so a failure here is only logged.
func (b *Broker) record(ctx context.Context, e task.Event) {
	if b.Events == nil {
		return
	}
	if err := b.Events.Append(ctx, e); err != nil {
		log.Printf("[broker.Broker] [record] unable to append event %s for task %s: %v", e.ID, e.TaskID, err)
	}
}

// TaskHistory returns the recorded transitions of a task of the caller's
// charity, oldest first.
func (b *Broker) TaskHistory(ctx context.Context, id account.Identity, taskID uuid.UUID) (events []task.Event, err error) {
	ctx, span := b.startSpan(ctx, "TaskHistory", attribute.String("task.id", taskID.String()))
	defer func() { endSpan(span, err) }()

	if _, err := b.load(ctx, id, policy.ActionViewHistory, taskID); err != nil {
		return nil, err
	}
	return b.Events.ListByTask(ctx, taskID)
}
