package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vasilii314/taskbroker/auth"
	"github.com/vasilii314/taskbroker/config"
	"github.com/vasilii314/taskbroker/filter"
	"github.com/vasilii314/taskbroker/store"
	"github.com/vasilii314/taskbroker/task"
)

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{"state=P", "exclude_gender=F", "title="})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Get("state") != "P" || got.Get("exclude_gender") != "F" || !got.Has("title") {
		t.Fatalf("unexpected filters %v", got)
	}
	for _, bad := range []string{"state", "=P"} {
		if _, err := parseFilters([]string{bad}); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestPrintTasks(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tasks := []task.Task{
		{ID: uuid.New(), Title: "Bake bread", State: task.Pending, CharityID: uuid.New(), CreatedAt: now.Add(-2 * time.Hour)},
		{ID: uuid.New(), Title: "Fix roof", State: task.Assigned, CharityID: uuid.New(), AssignedBenefactor: uuid.New()},
	}
	var buf bytes.Buffer
	printTasks(&buf, tasks, now)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected a header and 2 rows, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "Bake bread") || !strings.Contains(lines[1], "2 hours ago") {
		t.Fatalf("unexpected row %q", lines[1])
	}
	if !strings.Contains(lines[2], tasks[1].AssignedBenefactor.String()) {
		t.Fatalf("expected the benefactor in %q", lines[2])
	}
}

func TestServerConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("TASKBROKER_PORT", "6000")
	t.Setenv("TASKBROKER_STORE", "sqlite")

	cmd := &cobra.Command{}
	cmd.Flags().IntP("port", "p", 5554, "")
	cmd.Flags().StringP("store", "s", "memory", "")
	if err := cmd.Flags().Parse([]string{"--port", "7000"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := serverConfig(cmd)
	if err != nil {
		t.Fatalf("server config: %v", err)
	}
	if cfg.Port != 7000 {
		t.Fatalf("expected the flag port, got %d", cfg.Port)
	}
	if cfg.Store != "sqlite" {
		t.Fatalf("expected the env store, got %q", cfg.Store)
	}
}

func TestAuthenticator(t *testing.T) {
	accounts := store.NewInMemoryAccountStore()
	a, err := authenticator(config.Server{}, accounts)
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	if chain, ok := a.(auth.Chain); !ok || len(chain) != 1 {
		t.Fatalf("expected basic auth only, got %#v", a)
	}
	a, err = authenticator(config.Server{JWTSecret: "secret", TokenTTL: time.Hour}, accounts)
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	chain := a.(auth.Chain)
	if len(chain) != 2 {
		t.Fatalf("expected bearer and basic, got %d", len(chain))
	}
	if bearer := chain[0].(auth.Bearer); bearer.Tokens.TTL != time.Hour {
		t.Fatalf("expected the configured ttl, got %v", bearer.Tokens.TTL)
	}
}

func TestTaskListCommand(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": "` + uuid.NewString() + `", "title": "Bake bread", "state": "P"}]`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"task", "list",
		"--config", filepath.Join(t.TempDir(), "config.toml"),
		"--server", srv.URL,
		"--token", "abc",
		"--filter", "state=P",
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotQuery != "state=P" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotAuth != "Bearer abc" {
		t.Fatalf("unexpected authorization %q", gotAuth)
	}
	if !strings.Contains(out.String(), "Bake bread") {
		t.Fatalf("expected the task in the output, got %q", out.String())
	}
}

func TestTaskListHelpUsesKnownFilters(t *testing.T) {
	known := map[string]bool{}
	for _, l := range append(append([]filter.Lookup{}, filter.FilteringLookups...), filter.ExcludingLookups...) {
		known[l.Param] = true
	}
	matches := regexp.MustCompile(`--filter (\w+)=`).FindAllStringSubmatch(taskListCmd.Long, -1)
	if len(matches) == 0 {
		t.Fatal("expected filter examples in the help text")
	}
	for _, m := range matches {
		if !known[m[1]] {
			t.Fatalf("help text advertises unknown filter %q", m[1])
		}
	}
}
