package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
	"github.com/vasilii314/taskbroker/account"
	"github.com/vasilii314/taskbroker/filter"
	"github.com/vasilii314/taskbroker/task"
)

const (
	tasksBucket       = "tasks"
	eventsBucket      = "events"
	usersBucket       = "users"
	usernamesBucket   = "usernames"
	charitiesBucket   = "charities"
	benefactorsBucket = "benefactors"
)

var allBuckets = []string{tasksBucket, eventsBucket, usersBucket, usernamesBucket, charitiesBucket, benefactorsBucket}

// NewPersistentBackend opens (or creates) a bolt file holding every bucket.
// Bolt runs one writer at a time, which serializes task updates.
func NewPersistentBackend(file string, mode os.FileMode) (*Backend, error) {
	if mode == 0 {
		mode = 0600
	}
	db, err := bolt.Open(file, mode, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to open %v: %w", file, err)
	}
	if err := CreateBuckets(db, allBuckets...); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("[store.PersistentBackend] [NewPersistentBackend] using bolt file %s", file)
	return &Backend{
		Tasks:    &PersistentTaskStore{Db: db, Bucket: tasksBucket},
		Events:   &PersistentTaskEventStore{Db: db, Bucket: eventsBucket},
		Accounts: &PersistentAccountStore{Db: db},
		close:    db.Close,
	}, nil
}

// CreateBuckets creates the named buckets unless they already exist.
func CreateBuckets(db *bolt.DB, names ...string) error {
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range names {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("error creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func getJSON(b *bolt.Bucket, key []byte, v any) error {
	raw := b.Get(key)
	if raw == nil {
		return ErrNotFound
	}
	return json.Unmarshal(raw, v)
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, buf)
}

type PersistentTaskStore struct {
	Db     *bolt.DB
	Bucket string
}

func (s *PersistentTaskStore) Create(ctx context.Context, t task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.Bucket))
		key := []byte(t.ID.String())
		if b.Get(key) != nil {
			return fmt.Errorf("task %s: %w", t.ID, ErrAlreadyExists)
		}
		return putJSON(b, key, t)
	})
}

func (s *PersistentTaskStore) Get(ctx context.Context, id uuid.UUID) (task.Task, error) {
	if err := ctx.Err(); err != nil {
		return task.Task{}, err
	}
	var t task.Task
	err := s.Db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket([]byte(s.Bucket)), []byte(id.String()), &t)
	})
	if err != nil {
		return task.Task{}, fmt.Errorf("task %s: %w", id, err)
	}
	return t, nil
}

func (s *PersistentTaskStore) List(ctx context.Context, q filter.Query) ([]task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tasks := []task.Task{}
	err := s.Db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(s.Bucket)).ForEach(func(k, v []byte) error {
			var t task.Task
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("decode task %s: %w", k, err)
			}
			if q.Match(t) {
				tasks = append(tasks, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortTasks(tasks)
	return tasks, nil
}

func (s *PersistentTaskStore) Update(ctx context.Context, id uuid.UUID, fn UpdateFunc) (task.Task, error) {
	if err := ctx.Err(); err != nil {
		return task.Task{}, err
	}
	var next task.Task
	err := s.Db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.Bucket))
		key := []byte(id.String())
		var current task.Task
		if err := getJSON(b, key, &current); err != nil {
			return fmt.Errorf("task %s: %w", id, err)
		}
		updated, err := fn(current)
		if err != nil {
			return err
		}
		next = sealUpdate(current, updated)
		return putJSON(b, key, next)
	})
	if err != nil {
		return task.Task{}, err
	}
	return next, nil
}

// PersistentTaskEventStore keys events as "<task id>/<unix nanos>/<event id>"
// so a prefix scan returns one task's history in order.
type PersistentTaskEventStore struct {
	Db     *bolt.DB
	Bucket string
}

func eventKey(e task.Event) []byte {
	return []byte(fmt.Sprintf("%s/%020d/%s", e.TaskID, e.Timestamp.UnixNano(), e.ID))
}

func (s *PersistentTaskEventStore) Append(ctx context.Context, e task.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket([]byte(s.Bucket)), eventKey(e), e)
	})
}

func (s *PersistentTaskEventStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]task.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	events := []task.Event{}
	prefix := []byte(taskID.String() + "/")
	err := s.Db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(s.Bucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e task.Event
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode event %s: %w", k, err)
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// PersistentAccountStore keeps users by id, a username index, and the role
// records keyed by the owning user's id.
type PersistentAccountStore struct {
	Db *bolt.DB
}

func (s *PersistentAccountStore) CreateUser(ctx context.Context, u account.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket([]byte(usernamesBucket))
		if names.Get([]byte(u.Username)) != nil {
			return fmt.Errorf("username %q: %w", u.Username, ErrAlreadyExists)
		}
		users := tx.Bucket([]byte(usersBucket))
		key := []byte(u.ID.String())
		if users.Get(key) != nil {
			return fmt.Errorf("user %s: %w", u.ID, ErrAlreadyExists)
		}
		buf, err := account.MarshalUser(u)
		if err != nil {
			return err
		}
		if err := users.Put(key, buf); err != nil {
			return err
		}
		return names.Put([]byte(u.Username), key)
	})
}

func (s *PersistentAccountStore) GetUser(ctx context.Context, id uuid.UUID) (account.User, error) {
	if err := ctx.Err(); err != nil {
		return account.User{}, err
	}
	var u account.User
	err := s.Db.View(func(tx *bolt.Tx) error {
		var err error
		u, err = readUser(tx, []byte(id.String()))
		return err
	})
	if err != nil {
		return account.User{}, fmt.Errorf("user %s: %w", id, err)
	}
	return u, nil
}

func (s *PersistentAccountStore) GetUserByUsername(ctx context.Context, username string) (account.User, error) {
	if err := ctx.Err(); err != nil {
		return account.User{}, err
	}
	var u account.User
	err := s.Db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket([]byte(usernamesBucket)).Get([]byte(username))
		if id == nil {
			return ErrNotFound
		}
		var err error
		u, err = readUser(tx, id)
		return err
	})
	if err != nil {
		return account.User{}, fmt.Errorf("username %q: %w", username, err)
	}
	return u, nil
}

func readUser(tx *bolt.Tx, key []byte) (account.User, error) {
	raw := tx.Bucket([]byte(usersBucket)).Get(key)
	if raw == nil {
		return account.User{}, ErrNotFound
	}
	return account.UnmarshalUser(raw)
}

func (s *PersistentAccountStore) createRole(ctx context.Context, bucket string, userID uuid.UUID, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(usersBucket)).Get([]byte(userID.String())) == nil {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		b := tx.Bucket([]byte(bucket))
		key := []byte(userID.String())
		if b.Get(key) != nil {
			return fmt.Errorf("%s for user %s: %w", bucket, userID, ErrAlreadyExists)
		}
		return putJSON(b, key, v)
	})
}

func (s *PersistentAccountStore) roleByUser(ctx context.Context, bucket string, userID uuid.UUID, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.Db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket([]byte(bucket)), []byte(userID.String()), v)
	})
	if err != nil {
		return fmt.Errorf("%s for user %s: %w", bucket, userID, err)
	}
	return nil
}

func (s *PersistentAccountStore) CreateCharity(ctx context.Context, c account.Charity) error {
	return s.createRole(ctx, charitiesBucket, c.UserID, c)
}

func (s *PersistentAccountStore) CharityByUser(ctx context.Context, userID uuid.UUID) (account.Charity, error) {
	var c account.Charity
	if err := s.roleByUser(ctx, charitiesBucket, userID, &c); err != nil {
		return account.Charity{}, err
	}
	return c, nil
}

func (s *PersistentAccountStore) CreateBenefactor(ctx context.Context, b account.Benefactor) error {
	return s.createRole(ctx, benefactorsBucket, b.UserID, b)
}

func (s *PersistentAccountStore) BenefactorByUser(ctx context.Context, userID uuid.UUID) (account.Benefactor, error) {
	var b account.Benefactor
	if err := s.roleByUser(ctx, benefactorsBucket, userID, &b); err != nil {
		return account.Benefactor{}, err
	}
	return b, nil
}
