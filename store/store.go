package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/vasilii314/taskbroker/account"
	"github.com/vasilii314/taskbroker/filter"
	"github.com/vasilii314/taskbroker/task"
)

type StoreType string

const (
	InMemoryStore   StoreType = "memory"
	PersistentStore StoreType = "persistent"
	SQLiteStore     StoreType = "sqlite"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict is returned when an optimistic update keeps losing races.
	ErrConflict = errors.New("concurrent update conflict")
)

// Store is the key/value contract the in-memory backend is built on.
type Store[K comparable, V any] interface {
	Put(key K, value V) error
	Get(key K) (V, error)
	List() ([]V, error)
	Count() (int, error)
}

// UpdateFunc computes the next value of a task from its current value.
// Returning an error aborts the update and nothing is written.
type UpdateFunc func(current task.Task) (task.Task, error)

// TaskStore is the durable collection of tasks.
//
// Update is a single read-modify-write: concurrent updates of the same task
// are serialized, and fn always sees the latest committed value.
type TaskStore interface {
	Create(ctx context.Context, t task.Task) error
	Get(ctx context.Context, id uuid.UUID) (task.Task, error)
	List(ctx context.Context, q filter.Query) ([]task.Task, error)
	Update(ctx context.Context, id uuid.UUID, fn UpdateFunc) (task.Task, error)
}

// EventStore keeps the transition history of tasks.
type EventStore interface {
	Append(ctx context.Context, e task.Event) error
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]task.Event, error)
}

// AccountStore keeps users and the role records they own. Each user owns at
// most one charity and one benefactor record.
type AccountStore interface {
	CreateUser(ctx context.Context, u account.User) error
	GetUser(ctx context.Context, id uuid.UUID) (account.User, error)
	GetUserByUsername(ctx context.Context, username string) (account.User, error)
	CreateCharity(ctx context.Context, c account.Charity) error
	CharityByUser(ctx context.Context, userID uuid.UUID) (account.Charity, error)
	CreateBenefactor(ctx context.Context, b account.Benefactor) error
	BenefactorByUser(ctx context.Context, userID uuid.UUID) (account.Benefactor, error)
}

// Backend groups the stores of one storage engine.
type Backend struct {
	Tasks    TaskStore
	Events   EventStore
	Accounts AccountStore
	close    func() error
}

// Close releases the underlying storage.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// Open opens the backend of the given type. path is ignored for the
// in-memory store.
func Open(kind StoreType, path string, mode os.FileMode) (*Backend, error) {
	switch kind {
	case InMemoryStore, "":
		return NewInMemoryBackend(), nil
	case PersistentStore:
		return NewPersistentBackend(path, mode)
	case SQLiteStore:
		return NewSQLiteBackend(path)
	default:
		return nil, fmt.Errorf("unknown store type %q", kind)
	}
}

// sealUpdate copies the fields an update may never change from prev onto
// next and bumps the version.
func sealUpdate(prev, next task.Task) task.Task {
	next.ID = prev.ID
	next.CharityID = prev.CharityID
	next.CreatedAt = prev.CreatedAt
	next.Version = prev.Version + 1
	return next
}
