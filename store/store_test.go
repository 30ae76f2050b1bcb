package store

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vasilii314/taskbroker/account"
	apperrors "github.com/vasilii314/taskbroker/errors"
	"github.com/vasilii314/taskbroker/filter"
	"github.com/vasilii314/taskbroker/task"
)

type backendFactory func(t *testing.T) *Backend

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"memory": func(t *testing.T) *Backend {
			return NewInMemoryBackend()
		},
		"persistent": func(t *testing.T) *Backend {
			b, err := NewPersistentBackend(filepath.Join(t.TempDir(), "tasks.db"), 0600)
			if err != nil {
				t.Fatalf("open bolt backend: %v", err)
			}
			t.Cleanup(func() { b.Close() })
			return b
		},
		"sqlite": func(t *testing.T) *Backend {
			b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "tasks.sqlite"))
			if err != nil {
				t.Fatalf("open sqlite backend: %v", err)
			}
			t.Cleanup(func() { b.Close() })
			return b
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b *Backend)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTask(charity uuid.UUID, offset int, title string) task.Task {
	return task.NewTask(charity, task.Task{Title: title}, base.Add(time.Duration(offset)*time.Second))
}

func TestTaskCreateGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b *Backend) {
		ctx := context.Background()
		age := 12
		tk := newTask(uuid.New(), 0, "Paint a fence")
		tk.AgeLimitFrom = &age
		tk.GenderLimit = task.GenderFemale
		tk.Deadline = "2024-04-01"

		if err := b.Tasks.Create(ctx, tk); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := b.Tasks.Create(ctx, tk); !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected duplicate create to fail with ErrAlreadyExists, got %v", err)
		}

		got, err := b.Tasks.Get(ctx, tk.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.ID != tk.ID || got.CharityID != tk.CharityID || got.State != task.Pending {
			t.Fatalf("unexpected task %+v", got)
		}
		if got.Title != tk.Title || got.Deadline != tk.Deadline || got.GenderLimit != tk.GenderLimit {
			t.Fatalf("descriptive fields lost: %+v", got)
		}
		if got.AgeLimitFrom == nil || *got.AgeLimitFrom != 12 || got.AgeLimitTo != nil {
			t.Fatalf("age limits lost: %+v", got)
		}
		if !got.CreatedAt.Equal(tk.CreatedAt) {
			t.Fatalf("expected created_at %v, got %v", tk.CreatedAt, got.CreatedAt)
		}

		if _, err := b.Tasks.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestTaskUpdate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b *Backend) {
		ctx := context.Background()
		tk := newTask(uuid.New(), 0, "Deliver food")
		if err := b.Tasks.Create(ctx, tk); err != nil {
			t.Fatalf("create: %v", err)
		}
		benefactor := uuid.New()

		updated, err := b.Tasks.Update(ctx, tk.ID, func(current task.Task) (task.Task, error) {
			next, err := current.Request(benefactor, base)
			next.CharityID = uuid.New()
			return next, err
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.State != task.Waiting || updated.AssignedBenefactor != benefactor {
			t.Fatalf("unexpected task %+v", updated)
		}
		if updated.CharityID != tk.CharityID {
			t.Fatal("expected charity id to be immutable")
		}
		if updated.Version != tk.Version+1 {
			t.Fatalf("expected version %d, got %d", tk.Version+1, updated.Version)
		}

		_, err = b.Tasks.Update(ctx, tk.ID, func(current task.Task) (task.Task, error) {
			return current.Request(uuid.New(), base)
		})
		if !errors.Is(err, apperrors.ErrInvalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}

		stored, err := b.Tasks.Get(ctx, tk.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if stored.State != task.Waiting || stored.AssignedBenefactor != benefactor || stored.Version != updated.Version {
			t.Fatalf("failed update must not persist anything, got %+v", stored)
		}

		_, err = b.Tasks.Update(ctx, uuid.New(), func(current task.Task) (task.Task, error) {
			t.Fatal("fn must not run for a missing task")
			return current, nil
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestTaskUpdateSingleWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b *Backend) {
		ctx := context.Background()
		tk := newTask(uuid.New(), 0, "Only one helper")
		if err := b.Tasks.Create(ctx, tk); err != nil {
			t.Fatalf("create: %v", err)
		}

		const contenders = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []uuid.UUID
			losers  int
		)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				benefactor := uuid.New()
				_, err := b.Tasks.Update(ctx, tk.ID, func(current task.Task) (task.Task, error) {
					return current.Request(benefactor, time.Now())
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					winners = append(winners, benefactor)
				case errors.Is(err, apperrors.ErrInvalidState):
					losers++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if len(winners) != 1 || losers != contenders-1 {
			t.Fatalf("expected one winner and %d losers, got %d winners and %d losers", contenders-1, len(winners), losers)
		}
		stored, err := b.Tasks.Get(ctx, tk.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if stored.AssignedBenefactor != winners[0] {
			t.Fatalf("expected assignee %s, got %s", winners[0], stored.AssignedBenefactor)
		}
	})
}

func TestTaskList(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b *Backend) {
		ctx := context.Background()
		charity := uuid.New()
		other := uuid.New()
		benefactor := uuid.New()

		open := newTask(charity, 0, "open")
		done := newTask(charity, 1, "done")
		done.State = task.Done
		done.AssignedBenefactor = benefactor
		foreignOpen := newTask(other, 2, "foreign open")
		foreignTaken := newTask(other, 3, "foreign taken")
		foreignTaken.State = task.Assigned
		foreignTaken.AssignedBenefactor = uuid.New()
		for _, tk := range []task.Task{foreignTaken, done, open, foreignOpen} {
			if err := b.Tasks.Create(ctx, tk); err != nil {
				t.Fatalf("create %s: %v", tk.Title, err)
			}
		}

		tests := []struct {
			name   string
			scope  filter.Scope
			values url.Values
			want   []string
		}{
			{"charity sees own", filter.Scope{CharityID: charity}, nil, []string{"open", "done"}},
			{"exclude done", filter.Scope{CharityID: charity}, url.Values{"exclude_state": {"D"}}, []string{"open"}},
			{"benefactor", filter.Scope{BenefactorID: benefactor}, nil, []string{"open", "done", "foreign open"}},
			{"benefactor pending only", filter.Scope{BenefactorID: benefactor}, url.Values{"state": {"P"}, "exclude_charity": {charity.String()}}, []string{"foreign open"}},
			{"by title", filter.Scope{CharityID: charity, BenefactorID: benefactor}, url.Values{"title": {"done"}}, []string{"done"}},
			{"nobody", filter.Scope{}, nil, []string{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := b.Tasks.List(ctx, filter.FromValues(tt.scope, tt.values))
				if err != nil {
					t.Fatalf("list: %v", err)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("expected %v, got %d tasks", tt.want, len(got))
				}
				for i, title := range tt.want {
					if got[i].Title != title {
						t.Fatalf("position %d: expected %q, got %q", i, title, got[i].Title)
					}
				}
			})
		}
	})
}

func TestEvents(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b *Backend) {
		ctx := context.Background()
		actor := uuid.New()
		prev := newTask(uuid.New(), 0, "history")
		next, err := prev.Request(uuid.New(), base)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		first := task.NewEvent(task.ActionCreate, prev, prev, actor, base)
		second := task.NewEvent(task.ActionRequest, prev, next, actor, base.Add(time.Second))

		for _, e := range []task.Event{second, first} {
			if err := b.Events.Append(ctx, e); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		if err := b.Events.Append(ctx, task.NewEvent(task.ActionCreate, task.Task{ID: uuid.New()}, task.Task{ID: uuid.New()}, actor, base)); err != nil {
			t.Fatalf("append unrelated: %v", err)
		}

		events, err := b.Events.ListByTask(ctx, prev.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected two events, got %+v", events)
		}
		if events[0].ID != first.ID || events[1].ID != second.ID {
			t.Fatalf("expected chronological order, got %+v", events)
		}
		if events[1].From != task.Pending || events[1].To != task.Waiting || events[1].Action != task.ActionRequest {
			t.Fatalf("unexpected event %+v", events[1])
		}

		empty, err := b.Events.ListByTask(ctx, uuid.New())
		if err != nil {
			t.Fatalf("list empty: %v", err)
		}
		if len(empty) != 0 {
			t.Fatalf("expected no events, got %+v", empty)
		}
	})
}

func TestAccounts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b *Backend) {
		ctx := context.Background()
		age := 40
		u := account.User{ID: uuid.New(), Username: "carol", PasswordHash: "hash", Age: &age, DateJoined: base}
		if err := b.Accounts.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
		dup := account.User{ID: uuid.New(), Username: "carol", PasswordHash: "x", DateJoined: base}
		if err := b.Accounts.CreateUser(ctx, dup); !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected duplicate username to fail, got %v", err)
		}

		got, err := b.Accounts.GetUserByUsername(ctx, "carol")
		if err != nil {
			t.Fatalf("get by username: %v", err)
		}
		if got.ID != u.ID || got.PasswordHash != "hash" || got.Age == nil || *got.Age != 40 {
			t.Fatalf("unexpected user %+v", got)
		}
		if _, err := b.Accounts.GetUser(ctx, u.ID); err != nil {
			t.Fatalf("get user: %v", err)
		}
		if _, err := b.Accounts.GetUser(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := b.Accounts.GetUserByUsername(ctx, "dave"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		if _, err := b.Accounts.CharityByUser(ctx, u.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected no charity yet, got %v", err)
		}
		c := account.Charity{ID: uuid.New(), UserID: u.ID, Name: "Mahak", RegNumber: "1234567890"}
		if err := b.Accounts.CreateCharity(ctx, c); err != nil {
			t.Fatalf("create charity: %v", err)
		}
		if err := b.Accounts.CreateCharity(ctx, account.Charity{ID: uuid.New(), UserID: u.ID, Name: "Again"}); !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected second charity to fail, got %v", err)
		}
		gotCharity, err := b.Accounts.CharityByUser(ctx, u.ID)
		if err != nil {
			t.Fatalf("charity by user: %v", err)
		}
		if gotCharity != c {
			t.Fatalf("expected %+v, got %+v", c, gotCharity)
		}

		ben := account.Benefactor{ID: uuid.New(), UserID: u.ID, Experience: account.ExperienceExpert, FreeTimePerWeek: 6}
		if err := b.Accounts.CreateBenefactor(ctx, ben); err != nil {
			t.Fatalf("create benefactor: %v", err)
		}
		if err := b.Accounts.CreateBenefactor(ctx, ben); !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected second benefactor to fail, got %v", err)
		}
		gotBen, err := b.Accounts.BenefactorByUser(ctx, u.ID)
		if err != nil {
			t.Fatalf("benefactor by user: %v", err)
		}
		if gotBen != ben {
			t.Fatalf("expected %+v, got %+v", ben, gotBen)
		}

		orphan := account.Benefactor{ID: uuid.New(), UserID: uuid.New()}
		if err := b.Accounts.CreateBenefactor(ctx, orphan); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected unknown user to fail, got %v", err)
		}
	})
}

func TestOpenUnknownType(t *testing.T) {
	if _, err := Open(StoreType("etcd"), "", 0); err == nil {
		t.Fatal("expected unknown store type to fail")
	}
	b, err := Open(InMemoryStore, "", 0)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close memory: %v", err)
	}
}
