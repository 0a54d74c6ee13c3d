package net

import (
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MurkesM/ARPG/internal/sim"
	"github.com/MurkesM/ARPG/logging"
)

type recordingSink struct {
	cmds   []sim.Command
	reject string
}

func (s *recordingSink) Enqueue(cmd sim.Command) (bool, string) {
	if s.reject != "" {
		return false, s.reject
	}
	s.cmds = append(s.cmds, cmd)
	return true, ""
}

func (s *recordingSink) Pending() int { return len(s.cmds) }

func serve(t *testing.T, handler nethttp.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHTTPHandler(HTTPHandlerConfig{})
	rec := serve(t, handler, nethttp.MethodGet, "/health", "")
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestJoinEnqueuesJoinCommand(t *testing.T) {
	sink := &recordingSink{}
	handler := NewHTTPHandler(HTTPHandlerConfig{Commands: sink})
	rec := serve(t, handler, nethttp.MethodPost, "/join", "")
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(sink.cmds) != 1 || sink.cmds[0].Type != sim.CommandJoin || sink.cmds[0].ActorID != body.ID {
		t.Fatalf("expected a join for %q, got %+v", body.ID, sink.cmds)
	}
	if !strings.HasPrefix(body.ID, "player-") {
		t.Fatalf("unexpected player id %q", body.ID)
	}
}

func TestCommandEndpoint(t *testing.T) {
	sink := &recordingSink{}
	handler := NewHTTPHandler(HTTPHandlerConfig{Commands: sink})

	rec := serve(t, handler, nethttp.MethodPost, "/command", `{"actorId":"player-1","type":"Move","x":3,"y":4}`)
	if rec.Code != nethttp.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(sink.cmds) != 1 || sink.cmds[0].Move == nil || sink.cmds[0].Move.X != 3 || sink.cmds[0].Move.Y != 4 {
		t.Fatalf("expected move command, got %+v", sink.cmds)
	}

	rec = serve(t, handler, nethttp.MethodPost, "/command", `{"actorId":"player-1","type":"Dance"}`)
	if rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("expected 400 for unknown command, got %d", rec.Code)
	}

	sink.reject = sim.CommandRejectQueueLimit
	rec = serve(t, handler, nethttp.MethodPost, "/command", `{"actorId":"player-1","type":"Attack"}`)
	if rec.Code != nethttp.StatusTooManyRequests {
		t.Fatalf("expected 429 when throttled, got %d", rec.Code)
	}
}

func TestDiagnosticsIncludesTelemetry(t *testing.T) {
	metrics := &logging.Metrics{}
	metrics.TelemetryAdd("replication_applied_total", 3)
	handler := NewHTTPHandler(HTTPHandlerConfig{Role: "authority", TickRate: 30, Metrics: metrics, Commands: &recordingSink{}})

	rec := serve(t, handler, nethttp.MethodGet, "/diagnostics", "")
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Role      string            `json:"role"`
		TickRate  int               `json:"tickRate"`
		Telemetry map[string]uint64 `json:"telemetry"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode diagnostics: %v", err)
	}
	if body.Role != "authority" || body.TickRate != 30 {
		t.Fatalf("unexpected diagnostics %+v", body)
	}
	if body.Telemetry["replication_applied_total"] != 3 {
		t.Fatalf("expected telemetry counter 3, got %+v", body.Telemetry)
	}
}

func TestWebsocketRouteOnlyWhenServingObservers(t *testing.T) {
	handler := NewHTTPHandler(HTTPHandlerConfig{})
	rec := serve(t, handler, nethttp.MethodGet, "/ws", "")
	if rec.Code != nethttp.StatusNotFound {
		t.Fatalf("expected 404 without observers, got %d", rec.Code)
	}

	called := false
	handler = NewHTTPHandler(HTTPHandlerConfig{Observers: func(w nethttp.ResponseWriter, r *nethttp.Request) {
		called = true
		w.WriteHeader(nethttp.StatusTeapot)
	}})
	rec = serve(t, handler, nethttp.MethodGet, "/ws", "")
	if !called || rec.Code != nethttp.StatusTeapot {
		t.Fatalf("expected websocket handler to run, got %d", rec.Code)
	}
}
