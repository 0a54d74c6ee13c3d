package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MurkesM/ARPG/internal/lifecycle"
	"github.com/MurkesM/ARPG/internal/telemetry"
	"github.com/MurkesM/ARPG/logging"
	logginglifecycle "github.com/MurkesM/ARPG/logging/lifecycle"
)

func TestApplyEnvOverridesAndIgnoresInvalidValues(t *testing.T) {
	env := map[string]string{
		"LOG_LEVEL":          "debug",
		"LOG_SINKS":          "console, memory",
		"ARPG_ADDR":          ":9090",
		"ARPG_TICK_RATE":     "not-a-number",
		"ARPG_ROLE":          "Observer",
		"ARPG_AUTHORITY_URL": "ws://authority:8080/ws",
		"ARPG_ENEMY_COUNT":   "3",
	}
	var warnings []string
	logger := telemetry.LoggerFunc(func(format string, args ...any) { warnings = append(warnings, format) })

	cfg := DefaultConfig().ApplyEnv(func(key string) string { return env[key] }, logger)

	if cfg.Addr != ":9090" || cfg.Role != RoleObserver || cfg.AuthorityURL != "ws://authority:8080/ws" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.TickRate != DefaultConfig().TickRate {
		t.Fatalf("invalid tick rate must be ignored, got %d", cfg.TickRate)
	}
	if cfg.EnemyCount != 3 {
		t.Fatalf("expected 3 enemies, got %d", cfg.EnemyCount)
	}
	if cfg.Logging.MinimumSeverity != logging.SeverityDebug {
		t.Fatalf("expected debug severity, got %v", cfg.Logging.MinimumSeverity)
	}
	if len(cfg.Logging.EnabledSinks) != 2 || !cfg.Logging.HasSink("memory") {
		t.Fatalf("unexpected sinks %v", cfg.Logging.EnabledSinks)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", warnings)
	}
}

type entityID string

func (e entityID) EntityID() string { return string(e) }

func TestCloseReleasesSharedRegistry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logger = telemetry.Nop()
	cfg.Logging.EnabledSinks = []string{"memory"}
	cfg.EnemyCount = 0
	registry := lifecycle.NewRegistry(nil)

	srv, err := Build(context.Background(), cfg, registry)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	registry.Spawn(entityID("npc-open"))
	if h, _ := registry.Handle("npc-open"); h == nil {
		t.Fatalf("expected a handle while the server is open")
	} else if _, ok := h.(*lifecycle.StatusIndicator); !ok {
		t.Fatalf("expected status indicator handles while open, got %T", h)
	}

	srv.Close()
	registry.Spawn(entityID("npc-closed"))
	h, _ := registry.Handle("npc-closed")
	if _, ok := h.(*lifecycle.StatusIndicator); ok {
		t.Fatalf("expected the previous factory to be restored on close")
	}
}

func TestAuthorityServesJoinAndSpawnsEnemies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logger = telemetry.Nop()
	cfg.Logging.EnabledSinks = []string{"memory", "bogus"}
	cfg.Logging.MinimumSeverity = logging.SeverityDebug
	cfg.TickRate = 60
	cfg.EnemyCount = 2

	srv, err := Build(context.Background(), cfg, lifecycle.NewRegistry(nil))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(srv.Close)
	if srv.Memory() == nil {
		t.Fatalf("expected memory sink to be enabled")
	}
	srv.Start()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/join", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("join failed: %d %s", rec.Code, rec.Body.String())
	}
	var joined struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &joined); err != nil || joined.ID == "" {
		t.Fatalf("expected player id, got %q (%v)", rec.Body.String(), err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		spawned := srv.Memory().EventsOfType(logginglifecycle.EventSpawned)
		if len(spawned) >= 3 {
			for _, event := range spawned {
				if event.Actor.ID == joined.ID {
					return
				}
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected the player and both enemies to spawn, got %d events", len(srv.Memory().EventsOfType(logginglifecycle.EventSpawned)))
}
