package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vasilii314/taskbroker/account"
	"github.com/vasilii314/taskbroker/filter"
	"github.com/vasilii314/taskbroker/task"
)

// InMemory is a mutex-guarded map implementing Store.
type InMemory[K comparable, V any] struct {
	mu sync.RWMutex
	Db map[K]V
}

func NewInMemory[K comparable, V any]() *InMemory[K, V] {
	return &InMemory[K, V]{
		Db: make(map[K]V),
	}
}

func (i *InMemory[K, V]) Put(key K, value V) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Db[key] = value
	return nil
}

func (i *InMemory[K, V]) Get(key K) (V, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.Db[key]
	if !ok {
		var zero V
		return zero, fmt.Errorf("key %v: %w", key, ErrNotFound)
	}
	return v, nil
}

func (i *InMemory[K, V]) List() ([]V, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	values := make([]V, 0, len(i.Db))
	for _, v := range i.Db {
		values = append(values, v)
	}
	return values, nil
}

func (i *InMemory[K, V]) Count() (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.Db), nil
}

// Modify runs fn on the current value of key under the write lock and
// stores its result. exists is false when key is absent. An error from fn
// leaves the map untouched.
func (i *InMemory[K, V]) Modify(key K, fn func(current V, exists bool) (V, error)) (V, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	current, ok := i.Db[key]
	next, err := fn(current, ok)
	if err != nil {
		return current, err
	}
	i.Db[key] = next
	return next, nil
}

// NewInMemoryBackend returns stores that keep everything in process memory.
func NewInMemoryBackend() *Backend {
	return &Backend{
		Tasks:    NewInMemoryTaskStore(),
		Events:   NewInMemoryTaskEventStore(),
		Accounts: NewInMemoryAccountStore(),
	}
}

var _ Store[uuid.UUID, task.Task] = (*InMemory[uuid.UUID, task.Task])(nil)

type InMemoryTaskStore struct {
	db *InMemory[uuid.UUID, task.Task]
}

func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{db: NewInMemory[uuid.UUID, task.Task]()}
}

func (s *InMemoryTaskStore) Create(ctx context.Context, t task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.Modify(t.ID, func(_ task.Task, exists bool) (task.Task, error) {
		if exists {
			return t, fmt.Errorf("task %s: %w", t.ID, ErrAlreadyExists)
		}
		return t, nil
	})
	return err
}

func (s *InMemoryTaskStore) Get(ctx context.Context, id uuid.UUID) (task.Task, error) {
	if err := ctx.Err(); err != nil {
		return task.Task{}, err
	}
	t, err := s.db.Get(id)
	if err != nil {
		return task.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (s *InMemoryTaskStore) List(ctx context.Context, q filter.Query) ([]task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := s.db.List()
	if err != nil {
		return nil, err
	}
	tasks := q.Apply(all)
	sortTasks(tasks)
	return tasks, nil
}

func (s *InMemoryTaskStore) Update(ctx context.Context, id uuid.UUID, fn UpdateFunc) (task.Task, error) {
	if err := ctx.Err(); err != nil {
		return task.Task{}, err
	}
	return s.db.Modify(id, func(current task.Task, exists bool) (task.Task, error) {
		if !exists {
			return current, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		next, err := fn(current)
		if err != nil {
			return current, err
		}
		return sealUpdate(current, next), nil
	})
}

// sortTasks orders tasks oldest first, ties broken by id.
func sortTasks(tasks []task.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID.String() < tasks[j].ID.String()
	})
}

type InMemoryTaskEventStore struct {
	db *InMemory[uuid.UUID, []task.Event]
}

func NewInMemoryTaskEventStore() *InMemoryTaskEventStore {
	return &InMemoryTaskEventStore{db: NewInMemory[uuid.UUID, []task.Event]()}
}

func (s *InMemoryTaskEventStore) Append(ctx context.Context, e task.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.Modify(e.TaskID, func(events []task.Event, _ bool) ([]task.Event, error) {
		return append(events, e), nil
	})
	return err
}

func (s *InMemoryTaskEventStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]task.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	events, err := s.db.Get(taskID)
	if err != nil {
		return []task.Event{}, nil
	}
	out := make([]task.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// InMemoryAccountStore guards all account maps with one lock so uniqueness
// checks and inserts happen together.
type InMemoryAccountStore struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]account.User
	usernames   map[string]uuid.UUID
	charities   map[uuid.UUID]account.Charity
	benefactors map[uuid.UUID]account.Benefactor
}

func NewInMemoryAccountStore() *InMemoryAccountStore {
	return &InMemoryAccountStore{
		users:       make(map[uuid.UUID]account.User),
		usernames:   make(map[string]uuid.UUID),
		charities:   make(map[uuid.UUID]account.Charity),
		benefactors: make(map[uuid.UUID]account.Benefactor),
	}
}

func (s *InMemoryAccountStore) CreateUser(ctx context.Context, u account.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usernames[u.Username]; ok {
		return fmt.Errorf("username %q: %w", u.Username, ErrAlreadyExists)
	}
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, ErrAlreadyExists)
	}
	s.users[u.ID] = u
	s.usernames[u.Username] = u.ID
	return nil
}

func (s *InMemoryAccountStore) GetUser(ctx context.Context, id uuid.UUID) (account.User, error) {
	if err := ctx.Err(); err != nil {
		return account.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return account.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

func (s *InMemoryAccountStore) GetUserByUsername(ctx context.Context, username string) (account.User, error) {
	if err := ctx.Err(); err != nil {
		return account.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usernames[username]
	if !ok {
		return account.User{}, fmt.Errorf("username %q: %w", username, ErrNotFound)
	}
	return s.users[id], nil
}

func (s *InMemoryAccountStore) CreateCharity(ctx context.Context, c account.Charity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[c.UserID]; !ok {
		return fmt.Errorf("user %s: %w", c.UserID, ErrNotFound)
	}
	if _, ok := s.charities[c.UserID]; ok {
		return fmt.Errorf("charity for user %s: %w", c.UserID, ErrAlreadyExists)
	}
	s.charities[c.UserID] = c
	return nil
}

func (s *InMemoryAccountStore) CharityByUser(ctx context.Context, userID uuid.UUID) (account.Charity, error) {
	if err := ctx.Err(); err != nil {
		return account.Charity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.charities[userID]
	if !ok {
		return account.Charity{}, fmt.Errorf("charity for user %s: %w", userID, ErrNotFound)
	}
	return c, nil
}

func (s *InMemoryAccountStore) CreateBenefactor(ctx context.Context, b account.Benefactor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[b.UserID]; !ok {
		return fmt.Errorf("user %s: %w", b.UserID, ErrNotFound)
	}
	if _, ok := s.benefactors[b.UserID]; ok {
		return fmt.Errorf("benefactor for user %s: %w", b.UserID, ErrAlreadyExists)
	}
	s.benefactors[b.UserID] = b
	return nil
}

func (s *InMemoryAccountStore) BenefactorByUser(ctx context.Context, userID uuid.UUID) (account.Benefactor, error) {
	if err := ctx.Err(); err != nil {
		return account.Benefactor{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.benefactors[userID]
	if !ok {
		return account.Benefactor{}, fmt.Errorf("benefactor for user %s: %w", userID, ErrNotFound)
	}
	return b, nil
}
