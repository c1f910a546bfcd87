package telemetry

import (
	"context"
	"testing"

	"github.com/dshills/modhost/internal/config"
)

func TestSetup_NoopWhenDisabled(t *testing.T) {
	cfg := config.Default().Tracing
	cfg.Enabled = false

	shutdown, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	cfg := config.Default().Tracing
	cfg.Enabled = true
	cfg.Endpoint = ""

	shutdown, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_CreatesProvider(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		// Non-routable addresses so no actual export happens.
		{"host and port", "192.0.2.1:4318"},
		{"url", "http://192.0.2.1:4318"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default().Tracing
			cfg.Enabled = true
			cfg.Endpoint = tt.endpoint

			shutdown, err := Setup(context.Background(), cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Fatalf("shutdown error: %v", err)
			}
		})
	}
}
