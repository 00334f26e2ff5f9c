package bootstrap

import (
	"log/slog"
	"testing"

	"github.com/NeijiApp/meditation-engine/internal/config"
)

func TestNewDependenciesAndClose(t *testing.T) {
	cfg := &config.Config{
		TextAPIKey:            "text-key",
		TTSAPIKey:             "tts-key",
		Similarity:            config.Thresholds{Medium: 0.85, High: 0.90, Exact: 0.98},
		WordsPerMinute:        130,
		MaxConcurrentSegments: 3,
		ProviderTimeoutSec:    5,
		AssemblyTimeoutSec:    30,
		TempDir:               t.TempDir(),
	}

	deps, err := NewDependencies(cfg, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if deps.Planner == nil {
		t.Error("Planner not wired")
	}
	if deps.Agent == nil {
		t.Error("Agent not wired")
	}
	if deps.Assembler == nil {
		t.Error("Assembler not wired")
	}
	if deps.Cache == nil {
		t.Error("Cache not wired")
	}

	// Close stops the cache's backfill workers; with no NATS configured
	// there is no connection to release.
	deps.Close()
}
