package game

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tilewalk/server/internal/sim"
	"tilewalk/server/internal/telemetry"
	"tilewalk/server/internal/world"
	"tilewalk/server/logging"
)

const (
	metricWalkersActive       = "game_walkers_active"
	metricPathsAssignedTotal  = "game_paths_assigned_total"
	metricPathsRejectedTotal  = "game_paths_rejected_total"
	metricPathsCompletedTotal = "game_paths_completed_total"
	metricMapReloadsTotal     = "game_map_reloads_total"
)

// Path rejection reasons surfaced to clients and logs.
const (
	RejectUnknownWalker    = "unknown_walker"
	RejectUnwalkableGoal   = "unwalkable_goal"
	RejectNoRoute          = "no_route"
	RejectMalformedCommand = "malformed_command"
)

// WorldConfig tunes the simulation kernel.
type WorldConfig struct {
	SearchBudget int
	WalkerSpeed  float64
	Tracer       trace.Tracer
}

type walkerState struct {
	world.Walker
	ID            string
	Facing        string
	LastHeartbeat time.Time
	LastRTT       time.Duration
	JoinedAt      time.Time
}

// World is the authoritative game state: the tile map, every connected
// walker, and the navigation systems that move them. All mutation happens
// through the sim loop contract (Apply then Step) plus the explicitly
// synchronized join/leave entry points.
type World struct {
	deps   sim.Deps
	config WorldConfig
	tracer trace.Tracer

	mu         sync.Mutex
	definition *world.Definition
	terrain    *world.Map
	finder     *world.Pathfinder
	movement   *world.MovementSystem
	spawn      world.Cell
	walkers    map[string]*walkerState
	tick       uint64
	pendingDef *world.Definition
}

// NewWorld builds the simulation state from a validated map definition.
func NewWorld(def *world.Definition, cfg WorldConfig, deps sim.Deps) (*World, error) {
	if def == nil {
		return nil, fmt.Errorf("game: map definition required")
	}
	terrain, err := def.BuildMap()
	if err != nil {
		return nil, fmt.Errorf("game: build map: %w", err)
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.NoopTracer()
	}
	finder := world.NewPathfinder(terrain, cfg.SearchBudget)
	w := &World{
		deps:       deps,
		config:     cfg,
		tracer:     tracer,
		definition: def,
		terrain:    terrain,
		finder:     finder,
		movement:   world.NewMovementSystem(terrain, finder),
		spawn:      def.SpawnCell(terrain),
		walkers:    make(map[string]*walkerState),
	}
	return w, nil
}

// Deps exposes shared infrastructure to the loop.
func (w *World) Deps() sim.Deps { return w.deps }

// CurrentTick reports the last completed simulation tick.
func (w *World) CurrentTick() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tick
}

// Definition returns the map definition currently driving the terrain.
func (w *World) Definition() *world.Definition {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.definition
}

// AddWalker spawns a walker at the map's spawn cell and returns its snapshot.
func (w *World) AddWalker(id string) sim.WalkerSnapshot {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	pos := w.terrain.GridToWorld(w.spawn)
	if rng := w.deps.RNG; rng != nil {
		// Scatter joins around the spawn tile's center so walkers do not
		// stack on the exact same point. A quarter tile each way keeps the
		// position inside the spawn cell.
		jitter := w.terrain.TileSize / 4
		pos.X += (rng.Float64()*2 - 1) * jitter
		pos.Y += (rng.Float64()*2 - 1) * jitter
	}
	speed := w.config.WalkerSpeed
	if speed <= 0 {
		speed = world.DefaultWalkerSpeed
	}
	state := &walkerState{
		ID:            id,
		Facing:        "down",
		LastHeartbeat: now,
		JoinedAt:      now,
	}
	state.Pos = pos
	state.Target = pos
	state.Speed = speed
	w.walkers[id] = state
	w.storeWalkerCountLocked()

	w.publish(logging.Event{
		Type:     logging.EventWalkerJoined,
		Tick:     w.tick,
		Actor:    logging.EntityRef{ID: id, Kind: logging.EntityKindWalker},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
	})
	return snapshotWalker(state)
}

// RemoveWalker drops the walker from the simulation.
func (w *World) RemoveWalker(id string) {
	w.mu.Lock()
	_, ok := w.walkers[id]
	if ok {
		delete(w.walkers, id)
		w.storeWalkerCountLocked()
	}
	tick := w.tick
	w.mu.Unlock()
	if !ok {
		return
	}
	w.publish(logging.Event{
		Type:     logging.EventWalkerLeft,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: id, Kind: logging.EntityKindWalker},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
	})
}

// WalkerExists reports whether the walker is part of the simulation.
func (w *World) WalkerExists(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.walkers[id]
	return ok
}

// PruneStale removes walkers whose heartbeat is older than maxAge and
// returns their ids so the transport layer can drop their sessions.
func (w *World) PruneStale(now time.Time, maxAge time.Duration) []string {
	if maxAge <= 0 {
		return nil
	}
	w.mu.Lock()
	var stale []string
	for id, state := range w.walkers {
		if now.Sub(state.LastHeartbeat) > maxAge {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(w.walkers, id)
	}
	if len(stale) > 0 {
		w.storeWalkerCountLocked()
	}
	tick := w.tick
	w.mu.Unlock()

	sort.Strings(stale)
	for _, id := range stale {
		w.publish(logging.Event{
			Type:     logging.EventWalkerLeft,
			Tick:     tick,
			Actor:    logging.EntityRef{ID: id, Kind: logging.EntityKindWalker},
			Severity: logging.SeverityWarn,
			Category: logging.CategorySession,
			Extra:    map[string]any{"reason": "heartbeat_timeout"},
		})
	}
	return stale
}

// QueueMapReload stages a new map definition. The swap happens at the start
// of the next tick so in-flight movement never straddles two terrains.
func (w *World) QueueMapReload(def *world.Definition) {
	if def == nil {
		return
	}
	w.mu.Lock()
	w.pendingDef = def
	w.mu.Unlock()
}

// Apply consumes the commands staged for this tick.
func (w *World) Apply(cmds []sim.Command) error {
	if len(cmds) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, cmd := range cmds {
		switch cmd.Type {
		case sim.CommandSetPath:
			w.applyPathLocked(cmd)
		case sim.CommandClearPath:
			w.applyClearPathLocked(cmd)
		case sim.CommandHeartbeat:
			w.applyHeartbeatLocked(cmd)
		}
	}
	return nil
}

func (w *World) applyPathLocked(cmd sim.Command) {
	state, ok := w.walkers[cmd.ActorID]
	if !ok {
		w.rejectPathLocked(cmd.ActorID, RejectUnknownWalker, world.Cell{})
		return
	}
	if cmd.Path == nil {
		w.rejectPathLocked(cmd.ActorID, RejectMalformedCommand, world.Cell{})
		return
	}

	x, y := w.terrain.ClampWorld(cmd.Path.TargetX, cmd.Path.TargetY)
	goal := w.terrain.WorldToGrid(x, y)

	_, span := w.tracer.Start(context.Background(), "world.compute_path",
		trace.WithAttributes(
			attribute.String("walker.id", cmd.ActorID),
			attribute.Int("goal.gx", goal.GX),
			attribute.Int("goal.gy", goal.GY),
		))
	ok = w.movement.MoveToTile(&state.Walker, goal)
	span.SetAttributes(attribute.Bool("path.found", ok))
	span.End()

	if !ok {
		reason := RejectNoRoute
		tile := w.terrain.TileInfo(goal)
		if !tile.Walkable || tile.WalkSpeed <= 0 {
			reason = RejectUnwalkableGoal
		}
		w.rejectPathLocked(cmd.ActorID, reason, goal)
		return
	}

	if w.deps.Metrics != nil {
		w.deps.Metrics.Add(metricPathsAssignedTotal, 1)
	}
	w.publish(logging.Event{
		Type:     logging.EventPathAssigned,
		Tick:     w.tick,
		Actor:    logging.EntityRef{ID: cmd.ActorID, Kind: logging.EntityKindWalker},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNavigation,
		Payload: map[string]any{
			"goal":  goal,
			"steps": len(state.Path),
		},
	})
}

func (w *World) rejectPathLocked(actorID, reason string, goal world.Cell) {
	if w.deps.Metrics != nil {
		w.deps.Metrics.Add(metricPathsRejectedTotal, 1)
	}
	w.publish(logging.Event{
		Type:     logging.EventPathRejected,
		Tick:     w.tick,
		Actor:    logging.EntityRef{ID: actorID, Kind: logging.EntityKindWalker},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNavigation,
		Payload:  map[string]any{"reason": reason, "goal": goal},
	})
}

func (w *World) applyClearPathLocked(cmd sim.Command) {
	state, ok := w.walkers[cmd.ActorID]
	if !ok || !state.Moving {
		return
	}
	w.movement.Stop(&state.Walker)
	w.publish(logging.Event{
		Type:     logging.EventPathCancelled,
		Tick:     w.tick,
		Actor:    logging.EntityRef{ID: cmd.ActorID, Kind: logging.EntityKindWalker},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNavigation,
	})
}

func (w *World) applyHeartbeatLocked(cmd sim.Command) {
	state, ok := w.walkers[cmd.ActorID]
	if !ok || cmd.Heartbeat == nil {
		return
	}
	state.LastHeartbeat = cmd.Heartbeat.ReceivedAt
	state.LastRTT = cmd.Heartbeat.RTT
}

// Step advances every walker by one fixed tick.
func (w *World) Step() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.tick++
	if w.pendingDef != nil {
		w.swapMapLocked(w.pendingDef)
		w.pendingDef = nil
	}

	for _, state := range w.walkers {
		if !state.Moving {
			continue
		}
		before := state.Pos
		w.movement.Update(&state.Walker)
		state.Facing = world.DeriveFacing(state.Pos.X-before.X, state.Pos.Y-before.Y, state.Facing)
		if !state.Moving {
			if w.deps.Metrics != nil {
				w.deps.Metrics.Add(metricPathsCompletedTotal, 1)
			}
			w.publish(logging.Event{
				Type:     logging.EventPathCompleted,
				Tick:     w.tick,
				Actor:    logging.EntityRef{ID: state.ID, Kind: logging.EntityKindWalker},
				Severity: logging.SeverityInfo,
				Category: logging.CategoryNavigation,
			})
		}
	}
}

// swapMapLocked rebuilds the terrain from a new definition. Active paths are
// cancelled because their cells may no longer exist or be walkable, and any
// walker stranded on an unwalkable cell is moved back to spawn.
func (w *World) swapMapLocked(def *world.Definition) {
	terrain, err := def.BuildMap()
	if err != nil {
		w.publish(logging.Event{
			Type:     logging.EventMapReloadFailed,
			Tick:     w.tick,
			Actor:    logging.EntityRef{ID: "world", Kind: logging.EntityKindWorld},
			Severity: logging.SeverityError,
			Category: logging.CategorySystem,
			Payload:  map[string]any{"error": err.Error()},
		})
		return
	}

	w.definition = def
	w.terrain = terrain
	w.finder = world.NewPathfinder(terrain, w.config.SearchBudget)
	w.movement = world.NewMovementSystem(terrain, w.finder)
	w.spawn = def.SpawnCell(terrain)

	spawnPos := terrain.GridToWorld(w.spawn)
	for _, state := range w.walkers {
		w.movement.Stop(&state.Walker)
		x, y := terrain.ClampWorld(state.Pos.X, state.Pos.Y)
		cell := terrain.WorldToGrid(x, y)
		tile := terrain.TileInfo(cell)
		if !tile.Walkable || tile.WalkSpeed <= 0 {
			state.Pos = spawnPos
		} else {
			state.Pos = world.Vec2{X: x, Y: y}
		}
		state.Target = state.Pos
	}

	if w.deps.Metrics != nil {
		w.deps.Metrics.Add(metricMapReloadsTotal, 1)
	}
	w.publish(logging.Event{
		Type:     logging.EventMapReloaded,
		Tick:     w.tick,
		Actor:    logging.EntityRef{ID: "world", Kind: logging.EntityKindWorld},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
		Payload:  map[string]any{"name": def.Name, "width": def.Width, "height": def.Height},
	})
}

// Snapshot captures the broadcastable state, walkers sorted by id so
// consecutive snapshots diff cleanly.
func (w *World) Snapshot() sim.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	walkers := make([]sim.WalkerSnapshot, 0, len(w.walkers))
	for _, state := range w.walkers {
		walkers = append(walkers, snapshotWalker(state))
	}
	sort.Slice(walkers, func(i, j int) bool { return walkers[i].ID < walkers[j].ID })
	return sim.Snapshot{Tick: w.tick, Walkers: walkers}
}

func snapshotWalker(state *walkerState) sim.WalkerSnapshot {
	return sim.WalkerSnapshot{
		ID:     state.ID,
		X:      state.Pos.X,
		Y:      state.Pos.Y,
		Facing: state.Facing,
		Moving: state.Moving,
	}
}

func (w *World) storeWalkerCountLocked() {
	if w.deps.Metrics == nil {
		return
	}
	w.deps.Metrics.Store(metricWalkersActive, uint64(len(w.walkers)))
}

func (w *World) publish(event logging.Event) {
	if event.Time.IsZero() {
		event.Time = w.now()
	}
	w.deps.Publisher.Publish(context.Background(), event)
}

func (w *World) now() time.Time {
	if w.deps.Clock != nil {
		return w.deps.Clock.Now()
	}
	return time.Now()
}
