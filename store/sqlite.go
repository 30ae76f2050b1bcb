package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vasilii314/taskbroker/account"
	"github.com/vasilii314/taskbroker/filter"
	"github.com/vasilii314/taskbroker/store/migrations"
	"github.com/vasilii314/taskbroker/task"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// maxUpdateAttempts bounds the optimistic retry loop of SQLiteTaskStore.Update.
const maxUpdateAttempts = 16

// SQLite is the database handle shared by the sqlite task, event and
// account stores.
type SQLite struct {
	sqlDB *sql.DB
}

// NewSQLiteBackend opens a SQLite database at path and applies the embedded
// migrations.
func NewSQLiteBackend(path string) (*Backend, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Tasks:    &SQLiteTaskStore{db: db},
		Events:   &SQLiteTaskEventStore{db: db},
		Accounts: &SQLiteAccountStore{db: db},
		close:    db.Close,
	}, nil
}

// OpenSQLite opens the database and brings its schema up to date.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps writers from tripping over SQLITE_BUSY; the
	// version check in Update still decides which concurrent write wins.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Printf("[store.SQLite] [OpenSQLite] using sqlite file %s", path)
	return &SQLite{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const migrationTable = "schema_migrations"

// applyMigrations executes each embedded migration at most once.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var found int
		err := sqlDB.QueryRow("SELECT 1 FROM "+migrationTable+" WHERE name = ?", file).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(upMigration(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec("INSERT INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)", file, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// upMigration returns the SQL between the Up and Down markers.
func upMigration(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	if i := strings.Index(content, up); i >= 0 {
		content = content[i+len(up):]
	}
	if i := strings.Index(content, down); i >= 0 {
		content = content[:i]
	}
	return content
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(v int64) time.Time {
	return time.Unix(0, v).UTC()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func uuidText(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func parseUUIDText(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

type SQLiteTaskStore struct {
	db *SQLite
}

const taskColumns = `id, state, charity_id, assigned_benefactor, title, description, deadline,
       age_limit_from, age_limit_to, gender_limit, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (task.Task, error) {
	var (
		t                            task.Task
		id, state, charity, assignee string
		gender                       string
		ageFrom, ageTo               sql.NullInt64
		createdAt, updatedAt         int64
	)
	err := row.Scan(&id, &state, &charity, &assignee, &t.Title, &t.Description, &t.Deadline,
		&ageFrom, &ageTo, &gender, &createdAt, &updatedAt, &t.Version)
	if err != nil {
		return task.Task{}, err
	}
	if t.ID, err = uuid.Parse(id); err != nil {
		return task.Task{}, fmt.Errorf("parse task id: %w", err)
	}
	if t.State, err = task.ParseState(state); err != nil {
		return task.Task{}, err
	}
	if t.CharityID, err = uuid.Parse(charity); err != nil {
		return task.Task{}, fmt.Errorf("parse charity id: %w", err)
	}
	if t.AssignedBenefactor, err = parseUUIDText(assignee); err != nil {
		return task.Task{}, fmt.Errorf("parse benefactor id: %w", err)
	}
	t.AgeLimitFrom = intPtr(ageFrom)
	t.AgeLimitTo = intPtr(ageTo)
	t.GenderLimit = task.Gender(gender)
	t.CreatedAt = fromNanos(createdAt)
	t.UpdatedAt = fromNanos(updatedAt)
	return t, nil
}

func (s *SQLiteTaskStore) Create(ctx context.Context, t task.Task) error {
	_, err := s.db.sqlDB.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.State.Code(), t.CharityID.String(), uuidText(t.AssignedBenefactor),
		t.Title, t.Description, t.Deadline, nullInt(t.AgeLimitFrom), nullInt(t.AgeLimitTo),
		string(t.GenderLimit), toNanos(t.CreatedAt), toNanos(t.UpdatedAt), t.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("task %s: %w", t.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *SQLiteTaskStore) Get(ctx context.Context, id uuid.UUID) (task.Task, error) {
	row := s.db.sqlDB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id.String())
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return task.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return task.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *SQLiteTaskStore) List(ctx context.Context, q filter.Query) ([]task.Task, error) {
	where, args := q.Where()
	rows, err := s.db.sqlDB.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Update applies fn with optimistic concurrency: the write only lands if
// the row still carries the version fn saw, otherwise fn runs again on the
// fresh row.
func (s *SQLiteTaskStore) Update(ctx context.Context, id uuid.UUID, fn UpdateFunc) (task.Task, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return task.Task{}, err
		}
		updated, err := fn(current)
		if err != nil {
			return task.Task{}, err
		}
		next := sealUpdate(current, updated)
		res, err := s.db.sqlDB.ExecContext(ctx,
			`UPDATE tasks
			    SET state = ?, assigned_benefactor = ?, title = ?, description = ?, deadline = ?,
			        age_limit_from = ?, age_limit_to = ?, gender_limit = ?, updated_at = ?, version = ?
			  WHERE id = ? AND version = ?`,
			next.State.Code(), uuidText(next.AssignedBenefactor), next.Title, next.Description, next.Deadline,
			nullInt(next.AgeLimitFrom), nullInt(next.AgeLimitTo), string(next.GenderLimit),
			toNanos(next.UpdatedAt), next.Version,
			id.String(), current.Version,
		)
		if err != nil {
			return task.Task{}, fmt.Errorf("update task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return task.Task{}, fmt.Errorf("update task: %w", err)
		}
		if n == 1 {
			return next, nil
		}
		log.Printf("[store.SQLiteTaskStore] [Update] version conflict on task %s, attempt %d", id, attempt+1)
	}
	return task.Task{}, fmt.Errorf("task %s: %w", id, ErrConflict)
}

type SQLiteTaskEventStore struct {
	db *SQLite
}

func (s *SQLiteTaskEventStore) Append(ctx context.Context, e task.Event) error {
	_, err := s.db.sqlDB.ExecContext(ctx,
		`INSERT INTO task_events (id, task_id, action, from_state, to_state, actor_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.TaskID.String(), string(e.Action), e.From.Code(), e.To.Code(),
		uuidText(e.ActorID), toNanos(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append task event: %w", err)
	}
	return nil
}

func (s *SQLiteTaskEventStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]task.Event, error) {
	rows, err := s.db.sqlDB.QueryContext(ctx,
		`SELECT id, task_id, action, from_state, to_state, actor_id, created_at
		   FROM task_events
		  WHERE task_id = ?
		  ORDER BY created_at, id`, taskID.String())
	if err != nil {
		return nil, fmt.Errorf("list task events: %w", err)
	}
	defer rows.Close()

	events := []task.Event{}
	for rows.Next() {
		var (
			e                         task.Event
			id, tid, action, from, to string
			actor                     string
			ts                        int64
		)
		if err := rows.Scan(&id, &tid, &action, &from, &to, &actor, &ts); err != nil {
			return nil, fmt.Errorf("scan task event: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		if e.TaskID, err = uuid.Parse(tid); err != nil {
			return nil, fmt.Errorf("parse task id: %w", err)
		}
		if e.From, err = task.ParseState(from); err != nil {
			return nil, err
		}
		if e.To, err = task.ParseState(to); err != nil {
			return nil, err
		}
		if e.ActorID, err = parseUUIDText(actor); err != nil {
			return nil, fmt.Errorf("parse actor id: %w", err)
		}
		e.Action = task.Action(action)
		e.Timestamp = fromNanos(ts)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list task events: %w", err)
	}
	return events, nil
}

type SQLiteAccountStore struct {
	db *SQLite
}

const userColumns = `id, username, password_hash, email, first_name, last_name, phone, address,
       gender, age, description, date_joined`

func (s *SQLiteAccountStore) CreateUser(ctx context.Context, u account.User) error {
	_, err := s.db.sqlDB.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.Username, u.PasswordHash, u.Email, u.FirstName, u.LastName, u.Phone,
		u.Address, u.Gender, nullInt(u.Age), u.Description, toNanos(u.DateJoined),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %q: %w", u.Username, ErrAlreadyExists)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLiteAccountStore) scanUser(row *sql.Row) (account.User, error) {
	var (
		u      account.User
		id     string
		age    sql.NullInt64
		joined int64
	)
	err := row.Scan(&id, &u.Username, &u.PasswordHash, &u.Email, &u.FirstName, &u.LastName,
		&u.Phone, &u.Address, &u.Gender, &age, &u.Description, &joined)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.User{}, ErrNotFound
		}
		return account.User{}, err
	}
	if u.ID, err = uuid.Parse(id); err != nil {
		return account.User{}, fmt.Errorf("parse user id: %w", err)
	}
	u.Age = intPtr(age)
	u.DateJoined = fromNanos(joined)
	return u, nil
}

func (s *SQLiteAccountStore) GetUser(ctx context.Context, id uuid.UUID) (account.User, error) {
	u, err := s.scanUser(s.db.sqlDB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id.String()))
	if err != nil {
		return account.User{}, fmt.Errorf("user %s: %w", id, err)
	}
	return u, nil
}

func (s *SQLiteAccountStore) GetUserByUsername(ctx context.Context, username string) (account.User, error) {
	u, err := s.scanUser(s.db.sqlDB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil {
		return account.User{}, fmt.Errorf("username %q: %w", username, err)
	}
	return u, nil
}

func (s *SQLiteAccountStore) userExists(ctx context.Context, id uuid.UUID) error {
	var found int
	err := s.db.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id.String()).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return err
}

func (s *SQLiteAccountStore) CreateCharity(ctx context.Context, c account.Charity) error {
	if err := s.userExists(ctx, c.UserID); err != nil {
		return err
	}
	_, err := s.db.sqlDB.ExecContext(ctx,
		`INSERT INTO charities (id, user_id, name, reg_number) VALUES (?, ?, ?, ?)`,
		c.ID.String(), c.UserID.String(), c.Name, c.RegNumber)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("charity for user %s: %w", c.UserID, ErrAlreadyExists)
		}
		return fmt.Errorf("create charity: %w", err)
	}
	return nil
}

func (s *SQLiteAccountStore) CharityByUser(ctx context.Context, userID uuid.UUID) (account.Charity, error) {
	var c account.Charity
	var id string
	err := s.db.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, reg_number FROM charities WHERE user_id = ?`, userID.String(),
	).Scan(&id, &c.Name, &c.RegNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Charity{}, fmt.Errorf("charity for user %s: %w", userID, ErrNotFound)
		}
		return account.Charity{}, fmt.Errorf("get charity: %w", err)
	}
	if c.ID, err = uuid.Parse(id); err != nil {
		return account.Charity{}, fmt.Errorf("parse charity id: %w", err)
	}
	c.UserID = userID
	return c, nil
}

func (s *SQLiteAccountStore) CreateBenefactor(ctx context.Context, b account.Benefactor) error {
	if err := s.userExists(ctx, b.UserID); err != nil {
		return err
	}
	_, err := s.db.sqlDB.ExecContext(ctx,
		`INSERT INTO benefactors (id, user_id, experience, free_time_per_week) VALUES (?, ?, ?, ?)`,
		b.ID.String(), b.UserID.String(), b.Experience, b.FreeTimePerWeek)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("benefactor for user %s: %w", b.UserID, ErrAlreadyExists)
		}
		return fmt.Errorf("create benefactor: %w", err)
	}
	return nil
}

func (s *SQLiteAccountStore) BenefactorByUser(ctx context.Context, userID uuid.UUID) (account.Benefactor, error) {
	var b account.Benefactor
	var id string
	err := s.db.sqlDB.QueryRowContext(ctx,
		`SELECT id, experience, free_time_per_week FROM benefactors WHERE user_id = ?`, userID.String(),
	).Scan(&id, &b.Experience, &b.FreeTimePerWeek)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Benefactor{}, fmt.Errorf("benefactor for user %s: %w", userID, ErrNotFound)
		}
		return account.Benefactor{}, fmt.Errorf("get benefactor: %w", err)
	}
	if b.ID, err = uuid.Parse(id); err != nil {
		return account.Benefactor{}, fmt.Errorf("parse benefactor id: %w", err)
	}
	b.UserID = userID
	return b, nil
}
