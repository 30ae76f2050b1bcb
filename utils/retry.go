package utils

import (
	"context"
	"log"
	"net/http"
	"time"
)

// Retry describes how often and how far apart an idempotent call is retried.
type Retry struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetry keeps a CLI call under a few seconds when the broker is down.
var DefaultRetry = Retry{Attempts: 3, Delay: time.Second}

// Do calls f until it returns a response that is not a gateway error, the
// attempts run out or ctx is done. Only use it for idempotent requests.
func (r Retry) Do(ctx context.Context, f func(string) (*http.Response, error), url string) (*http.Response, error) {
	count := r.Attempts
	if count < 1 {
		count = 1
	}
	var (
		resp *http.Response
		err  error
	)
	for i := 0; i < count; i++ {
		resp, err = f(url)
		if err == nil && !retryable(resp.StatusCode) {
			return resp, nil
		}
		if i == count-1 {
			break
		}
		if err != nil {
			log.Printf("[utils.Retry] [Do] Error calling url %v: %v", url, err)
		} else {
			log.Printf("[utils.Retry] [Do] %v answered %d", url, resp.StatusCode)
			resp.Body.Close()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.Delay):
		}
	}
	return resp, err
}

func retryable(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
