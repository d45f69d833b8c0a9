package game

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tilewalk/server/internal/net/proto"
	"tilewalk/server/internal/sim"
	"tilewalk/server/internal/world"
	"tilewalk/server/logging"
)

const (
	// HeartbeatInterval is how often clients are expected to ping.
	HeartbeatInterval = 2 * time.Second
	// DisconnectAfter is the silence threshold before a walker is pruned.
	DisconnectAfter = 3 * HeartbeatInterval

	writeTimeout = 5 * time.Second
)

// HubConfig tunes session handling and the simulation loop.
type HubConfig struct {
	Loop              sim.LoopConfig
	HeartbeatInterval time.Duration
	DisconnectAfter   time.Duration
}

// DefaultHubConfig returns the production session settings.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Loop:              sim.DefaultLoopConfig(),
		HeartbeatInterval: HeartbeatInterval,
		DisconnectAfter:   DisconnectAfter,
	}
}

// Hub owns the simulation loop and the set of websocket subscribers, fanning
// each tick snapshot out to every connected client.
type Hub struct {
	world  *World
	loop   *sim.Loop
	config HubConfig

	mu          sync.Mutex
	subscribers map[string]*Subscriber
}

// Subscriber is one websocket session receiving state broadcasts. Writes are
// serialized through its mutex because broadcasts and acks come from
// different goroutines.
type Subscriber struct {
	ID   string
	conn *websocket.Conn

	mu       sync.Mutex
	lastSeq  uint64
	seqSeen  bool
	joinedAt time.Time
}

// NewHub wires the world into a command loop and prepares broadcasting.
func NewHub(w *World, cfg HubConfig) *Hub {
	if cfg.Loop.TickRate <= 0 {
		cfg.Loop = sim.DefaultLoopConfig()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = HeartbeatInterval
	}
	if cfg.DisconnectAfter <= 0 {
		cfg.DisconnectAfter = DisconnectAfter
	}
	h := &Hub{
		world:       w,
		config:      cfg,
		subscribers: make(map[string]*Subscriber),
	}
	h.loop = sim.NewLoop(w, cfg.Loop, sim.LoopHooks{
		AfterStep: h.afterStep,
		OnCommandDrop: func(reason string, cmd sim.Command) {
			if logger := w.Deps().Logger; logger != nil {
				logger.Printf("[hub] dropped %s from %s: %s", cmd.Type, cmd.ActorID, reason)
			}
		},
	})
	return h
}

// World exposes the simulation state for handlers that need read access.
func (h *Hub) World() *World { return h.world }

// TickRate reports the simulation frequency in ticks per second.
func (h *Hub) TickRate() int { return h.config.Loop.TickRate }

// RunSimulation drives the fixed-timestep loop until stop closes.
func (h *Hub) RunSimulation(stop <-chan struct{}) {
	h.loop.Run(stop)
}

// Advance runs exactly one simulation step with whatever commands have been
// staged. It is the synchronous alternative to RunSimulation used by tooling
// and tests.
func (h *Hub) Advance(ctx sim.LoopTickContext) sim.LoopStepResult {
	return h.loop.Advance(ctx)
}

// Join registers a new walker and returns the payload a client needs to
// start rendering.
func (h *Hub) Join() proto.JoinResponse {
	id := "walker-" + uuid.NewString()
	h.world.AddWalker(id)
	snapshot := h.world.Snapshot()
	return proto.JoinResponse{
		Ver:      proto.ProtocolVersion,
		ID:       id,
		Tick:     snapshot.Tick,
		Map:      proto.MapInfoFromDefinition(h.world.Definition()),
		Walkers:  snapshot.Walkers,
		TickRate: h.TickRate(),
	}
}

// Subscribe attaches a websocket connection to an already joined walker.
func (h *Hub) Subscribe(id string, conn *websocket.Conn) (*Subscriber, bool) {
	if !h.world.WalkerExists(id) {
		return nil, false
	}
	sub := &Subscriber{ID: id, conn: conn, joinedAt: time.Now()}
	h.mu.Lock()
	if prev, ok := h.subscribers[id]; ok && prev.conn != nil {
		prev.close("superseded")
	}
	h.subscribers[id] = sub
	h.mu.Unlock()
	return sub, true
}

// Disconnect removes the walker and closes its session if one is attached.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()
	if ok {
		sub.close("disconnect")
	}
	h.world.RemoveWalker(id)
}

// SetWalkerPath stages a navigation command for the next tick.
func (h *Hub) SetWalkerPath(id string, x, y float64) (bool, string) {
	if !h.world.WalkerExists(id) {
		return false, RejectUnknownWalker
	}
	return h.loop.Enqueue(sim.Command{
		ActorID:  id,
		Type:     sim.CommandSetPath,
		IssuedAt: time.Now(),
		Path:     &sim.PathCommand{TargetX: x, TargetY: y},
	})
}

// ClearWalkerPath stages a cancellation for the next tick.
func (h *Hub) ClearWalkerPath(id string) (bool, string) {
	if !h.world.WalkerExists(id) {
		return false, RejectUnknownWalker
	}
	return h.loop.Enqueue(sim.Command{
		ActorID:  id,
		Type:     sim.CommandClearPath,
		IssuedAt: time.Now(),
	})
}

// UpdateHeartbeat stages a liveness update and returns the measured RTT.
func (h *Hub) UpdateHeartbeat(id string, clientSent int64) (time.Duration, bool) {
	if !h.world.WalkerExists(id) {
		return 0, false
	}
	now := time.Now()
	rtt := time.Duration(0)
	if clientSent > 0 {
		rtt = now.Sub(time.UnixMilli(clientSent))
		if rtt < 0 {
			rtt = 0
		}
	}
	ok, _ := h.loop.Enqueue(sim.Command{
		ActorID:  id,
		Type:     sim.CommandHeartbeat,
		IssuedAt: now,
		Heartbeat: &sim.HeartbeatCommand{
			ReceivedAt: now,
			ClientSent: clientSent,
			RTT:        rtt,
		},
	})
	return rtt, ok
}

// QueueMapReload forwards a validated definition swap to the world.
func (h *Hub) QueueMapReload(def *world.Definition) {
	h.world.QueueMapReload(def)
}

// afterStep prunes stale walkers and broadcasts the tick snapshot.
func (h *Hub) afterStep(result sim.LoopStepResult) {
	for _, id := range h.world.PruneStale(result.Now, h.config.DisconnectAfter) {
		h.mu.Lock()
		sub, ok := h.subscribers[id]
		delete(h.subscribers, id)
		h.mu.Unlock()
		if ok {
			sub.close("heartbeat_timeout")
		}
	}
	h.BroadcastState(result.Snapshot, result.Now)
}

// MarshalState encodes a snapshot as the state broadcast frame.
func MarshalState(snapshot sim.Snapshot, now time.Time) ([]byte, error) {
	return json.Marshal(proto.StateMessage{
		Ver:        proto.ProtocolVersion,
		Type:       proto.TypeState,
		Tick:       snapshot.Tick,
		Walkers:    snapshot.Walkers,
		ServerTime: now.UnixMilli(),
	})
}

// BroadcastState sends the snapshot to every subscriber, dropping sessions
// whose writes fail.
func (h *Hub) BroadcastState(snapshot sim.Snapshot, now time.Time) {
	payload, err := MarshalState(snapshot, now)
	if err != nil {
		if logger := h.world.Deps().Logger; logger != nil {
			logger.Printf("[hub] marshal state: %v", err)
		}
		return
	}

	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if err := sub.send(websocket.TextMessage, payload); err != nil {
			if logger := h.world.Deps().Logger; logger != nil {
				logger.Printf("[hub] broadcast to %s failed: %v", sub.ID, err)
			}
			h.Disconnect(sub.ID)
		}
	}
}

// DiagnosticsSnapshot summarizes runtime state for the diagnostics endpoint.
type DiagnosticsSnapshot struct {
	Tick        uint64            `json:"tick"`
	Walkers     int               `json:"walkers"`
	Subscribers int               `json:"subscribers"`
	Pending     int               `json:"pendingCommands"`
	Map         string            `json:"map"`
	Telemetry   map[string]uint64 `json:"telemetry,omitempty"`
}

// Diagnostics reports loop and session health plus counter values.
func (h *Hub) Diagnostics(metrics *logging.Metrics) DiagnosticsSnapshot {
	h.mu.Lock()
	subscriberCount := len(h.subscribers)
	h.mu.Unlock()

	snapshot := h.world.Snapshot()
	diag := DiagnosticsSnapshot{
		Tick:        snapshot.Tick,
		Walkers:     len(snapshot.Walkers),
		Subscribers: subscriberCount,
		Pending:     h.loop.Pending(),
		Map:         h.world.Definition().Name,
	}
	if metrics != nil {
		diag.Telemetry = metrics.TelemetrySnapshot()
	}
	return diag
}

// ObserveSeq reports whether seq is new for this session and records it.
// Duplicate or stale sequence numbers indicate a client retry and are
// acknowledged without re-staging the command.
func (s *Subscriber) ObserveSeq(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seqSeen && seq <= s.lastSeq {
		return false
	}
	s.lastSeq = seq
	s.seqSeen = true
	return true
}

// Send writes a JSON frame to the session.
func (s *Subscriber) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.send(websocket.TextMessage, payload)
}

func (s *Subscriber) send(messageType int, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return websocket.ErrCloseSent
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(messageType, payload)
}

func (s *Subscriber) close(reason string) {
	payload, err := json.Marshal(proto.DisconnectMessage{
		Ver:    proto.ProtocolVersion,
		Type:   proto.TypeDisconnect,
		Reason: reason,
	})
	if err == nil {
		_ = s.send(websocket.TextMessage, payload)
	}
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
