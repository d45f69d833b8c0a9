package net

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tilewalk/server/internal/game"
	"tilewalk/server/internal/net/proto"
	"tilewalk/server/internal/sim"
	"tilewalk/server/internal/world"
	"tilewalk/server/logging"
)

func newTestHub(t *testing.T) *game.Hub {
	t.Helper()
	def := &world.Definition{
		Name:     "arena",
		Width:    6,
		Height:   6,
		TileSize: 32,
		Legend:   map[string]string{".": "grass"},
		Rows: []string{
			"......",
			"......",
			"......",
			"......",
			"......",
			"......",
		},
	}
	w, err := game.NewWorld(def, game.WorldConfig{}, sim.Deps{Publisher: logging.NopPublisher()})
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	return game.NewHub(w, game.DefaultHubConfig())
}

func TestHTTPJoinReturnsWalkerAndMap(t *testing.T) {
	hub := newTestHub(t)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/join", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	if contentType := resp.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", contentType)
	}

	var join proto.JoinResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &join); err != nil {
		t.Fatalf("failed to decode join payload: %v", err)
	}
	if join.ID == "" {
		t.Fatalf("join payload missing walker id: %s", resp.Body.String())
	}
	if join.Map.Name != "arena" || len(join.Map.Rows) != 6 {
		t.Fatalf("join payload missing map: %+v", join.Map)
	}
	if !hub.World().WalkerExists(join.ID) {
		t.Fatalf("join did not register walker %q", join.ID)
	}
}

func TestHTTPJoinRejectsGet(t *testing.T) {
	hub := newTestHub(t)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/join", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", resp.Code)
	}
}

func TestHTTPHealth(t *testing.T) {
	hub := newTestHub(t)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode health payload: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("unexpected health payload: %s", resp.Body.String())
	}
}

func TestHTTPDiagnostics(t *testing.T) {
	hub := newTestHub(t)
	hub.Join()
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{Metrics: logging.NewMetrics()})

	req := httptest.NewRequest(http.MethodGet, "/diagnostics", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	var diag game.DiagnosticsSnapshot
	if err := json.Unmarshal(resp.Body.Bytes(), &diag); err != nil {
		t.Fatalf("failed to decode diagnostics payload: %v", err)
	}
	if diag.Walkers != 1 {
		t.Fatalf("expected one walker in diagnostics, got %+v", diag)
	}
	if diag.Map != "arena" {
		t.Fatalf("diagnostics missing map name: %+v", diag)
	}
}

func TestHTTPMapReturnsDefinition(t *testing.T) {
	hub := newTestHub(t)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/map", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	var def world.Definition
	if err := json.Unmarshal(resp.Body.Bytes(), &def); err != nil {
		t.Fatalf("failed to decode map payload: %v", err)
	}
	if def.Name != "arena" || def.Width != 6 || def.Height != 6 {
		t.Fatalf("unexpected map definition: %+v", def)
	}
}

func TestWebsocketPathCommandAcked(t *testing.T) {
	hub := newTestHub(t)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	join := hub.Join()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?id=" + join.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	seq := uint64(1)
	msg := proto.ClientMessage{
		Ver:  proto.ProtocolVersion,
		Type: proto.TypePath,
		Seq:  &seq,
		X:    150,
		Y:    150,
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write path command: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack proto.AckMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Type != proto.TypeCommandAck || ack.Cmd != proto.TypePath {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if ack.Seq == nil || *ack.Seq != seq {
		t.Fatalf("ack did not echo sequence: %+v", ack)
	}

	// The command is staged, not yet applied.
	if snapshot := hub.World().Snapshot(); snapshot.Walkers[0].Moving {
		t.Fatalf("command applied before tick boundary")
	}
	result := hub.Advance(sim.LoopTickContext{Tick: 1, Now: time.Now(), Delta: 1.0 / 15})
	if !result.Snapshot.Walkers[0].Moving {
		t.Fatalf("walker idle after tick: %+v", result.Snapshot.Walkers[0])
	}
}

func TestWebsocketRejectsUnknownWalker(t *testing.T) {
	hub := newTestHub(t)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?id=walker-nope"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close for unknown walker")
	}
}
