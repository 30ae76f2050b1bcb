package utils

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func response(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}
}

func TestRetryDo(t *testing.T) {
	r := Retry{Attempts: 4, Delay: time.Millisecond}
	boom := errors.New("connection refused")

	tests := []struct {
		name      string
		results   []any
		wantCalls int
		wantCode  int
		wantErr   bool
	}{
		{"first try", []any{200}, 1, 200, false},
		{"after errors", []any{boom, 503, 200}, 3, 200, false},
		{"client errors are final", []any{404}, 1, 404, false},
		{"gives up", []any{boom, boom, boom, boom}, 4, 0, true},
		{"last gateway error returned", []any{502, 502, 502, 504}, 4, 504, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			f := func(url string) (*http.Response, error) {
				res := tt.results[calls]
				calls++
				if err, ok := res.(error); ok {
					return nil, err
				}
				return response(res.(int)), nil
			}
			resp, err := r.Do(context.Background(), f, "http://broker/tasks")
			if calls != tt.wantCalls {
				t.Fatalf("expected %d calls, got %d", tt.wantCalls, calls)
			}
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, resp.StatusCode)
			}
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := Retry{Attempts: 5, Delay: time.Hour}
	calls := 0
	f := func(string) (*http.Response, error) {
		calls++
		cancel()
		return nil, errors.New("down")
	}
	if _, err := r.Do(ctx, f, "http://broker"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}
