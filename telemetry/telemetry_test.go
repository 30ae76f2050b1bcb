package telemetry

import (
	"context"
	"testing"
)

func TestSetupDisabled(t *testing.T) {
	for _, endpoint := range []string{"", "   "} {
		shutdown, err := Setup(context.Background(), endpoint)
		if err != nil {
			t.Fatalf("setup %q: %v", endpoint, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	}
}

func TestSetupEnabled(t *testing.T) {
	// The exporter connects lazily, so an unreachable endpoint is fine here.
	shutdown, err := Setup(context.Background(), "http://127.0.0.1:1/v1/traces")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
