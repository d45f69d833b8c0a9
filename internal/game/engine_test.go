package game

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"tilewalk/server/internal/sim"
	"tilewalk/server/internal/telemetry"
	"tilewalk/server/internal/world"
	"tilewalk/server/logging"
)

type eventRecorder struct {
	events []logging.Event
}

func (r *eventRecorder) Publish(_ context.Context, event logging.Event) {
	r.events = append(r.events, event)
}

func (r *eventRecorder) byType(eventType logging.EventType) []logging.Event {
	var matched []logging.Event
	for _, event := range r.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func testDefinition(rows []string) *world.Definition {
	return &world.Definition{
		Name:     "test",
		Width:    len(rows[0]),
		Height:   len(rows),
		TileSize: 32,
		Legend:   map[string]string{".": "grass", "~": "water", "#": "path"},
		Rows:     rows,
	}
}

func newTestWorld(t *testing.T, rows []string) (*World, *eventRecorder) {
	t.Helper()
	recorder := &eventRecorder{}
	metrics := logging.NewMetrics()
	w, err := NewWorld(testDefinition(rows), WorldConfig{}, sim.Deps{
		Metrics:   telemetry.WrapMetrics(metrics),
		Clock:     logging.SystemClock{},
		Publisher: recorder,
	})
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	return w, recorder
}

func pathCommand(id string, target world.Vec2) sim.Command {
	return sim.Command{
		ActorID: id,
		Type:    sim.CommandSetPath,
		Path:    &sim.PathCommand{TargetX: target.X, TargetY: target.Y},
	}
}

func TestWorldWalkerTravelsToClickedTile(t *testing.T) {
	rows := []string{
		"......",
		"......",
		"......",
		"......",
		"......",
		"......",
	}
	w, recorder := newTestWorld(t, rows)
	w.AddWalker("walker-a")

	goal := world.Cell{GX: 4, GY: 4}
	target := w.terrain.GridToWorld(goal)
	if err := w.Apply([]sim.Command{pathCommand("walker-a", target)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if assigned := recorder.byType(logging.EventPathAssigned); len(assigned) != 1 {
		t.Fatalf("expected one path_assigned event, got %d", len(assigned))
	}
	snapshot := w.Snapshot()
	if len(snapshot.Walkers) != 1 || !snapshot.Walkers[0].Moving {
		t.Fatalf("walker should be moving after path assignment: %+v", snapshot.Walkers)
	}

	arrived := false
	for tick := 0; tick < 100; tick++ {
		w.Step()
		snapshot = w.Snapshot()
		if !snapshot.Walkers[0].Moving {
			arrived = true
			break
		}
	}
	if !arrived {
		t.Fatalf("walker did not arrive within 100 ticks: %+v", snapshot.Walkers[0])
	}

	final := snapshot.Walkers[0]
	if math.Hypot(final.X-target.X, final.Y-target.Y) > 1.0 {
		t.Fatalf("walker stopped at (%.2f, %.2f), want near (%.2f, %.2f)", final.X, final.Y, target.X, target.Y)
	}
	if completed := recorder.byType(logging.EventPathCompleted); len(completed) != 1 {
		t.Fatalf("expected one path_completed event, got %d", len(completed))
	}
}

func TestWorldRejectsUnwalkableGoal(t *testing.T) {
	rows := []string{
		"....",
		".~~.",
		".~~.",
		"....",
	}
	w, recorder := newTestWorld(t, rows)
	w.AddWalker("walker-a")

	target := w.terrain.GridToWorld(world.Cell{GX: 1, GY: 1})
	if err := w.Apply([]sim.Command{pathCommand("walker-a", target)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rejected := recorder.byType(logging.EventPathRejected)
	if len(rejected) != 1 {
		t.Fatalf("expected one path_rejected event, got %d", len(rejected))
	}
	payload, ok := rejected[0].Payload.(map[string]any)
	if !ok || payload["reason"] != RejectUnwalkableGoal {
		t.Fatalf("unexpected reject payload: %+v", rejected[0].Payload)
	}
	if snapshot := w.Snapshot(); snapshot.Walkers[0].Moving {
		t.Fatalf("walker must stay idle after rejection")
	}
}

func TestWorldRejectsUnknownWalker(t *testing.T) {
	w, recorder := newTestWorld(t, []string{"..", ".."})

	if err := w.Apply([]sim.Command{pathCommand("ghost", world.Vec2{X: 16, Y: 16})}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rejected := recorder.byType(logging.EventPathRejected)
	if len(rejected) != 1 {
		t.Fatalf("expected one path_rejected event, got %d", len(rejected))
	}
}

func TestWorldRejectsPathCommandWithoutTarget(t *testing.T) {
	w, recorder := newTestWorld(t, []string{"...", "...", "..."})
	w.AddWalker("walker-a")

	if err := w.Apply([]sim.Command{{ActorID: "walker-a", Type: sim.CommandSetPath}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rejected := recorder.byType(logging.EventPathRejected)
	if len(rejected) != 1 {
		t.Fatalf("expected one path_rejected event, got %d", len(rejected))
	}
	payload, ok := rejected[0].Payload.(map[string]any)
	if !ok || payload["reason"] != RejectMalformedCommand {
		t.Fatalf("missing payload should reject as malformed, got %+v", rejected[0].Payload)
	}
	if snapshot := w.Snapshot(); snapshot.Walkers[0].Moving {
		t.Fatalf("walker must stay idle after a malformed command")
	}
}

func TestWorldSpawnJitterStaysOnSpawnCell(t *testing.T) {
	recorder := &eventRecorder{}
	w, err := NewWorld(testDefinition([]string{"....", "....", "...."}), WorldConfig{}, sim.Deps{
		RNG:       rand.New(rand.NewSource(7)),
		Publisher: recorder,
	})
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}

	positions := make(map[world.Vec2]struct{})
	for i := 0; i < 8; i++ {
		snapshot := w.AddWalker(fmt.Sprintf("walker-%d", i))
		pos := world.Vec2{X: snapshot.X, Y: snapshot.Y}
		if cell := w.terrain.WorldToGrid(pos.X, pos.Y); cell != w.spawn {
			t.Fatalf("jittered spawn %+v landed on cell %+v, want %+v", pos, cell, w.spawn)
		}
		positions[pos] = struct{}{}
	}
	if len(positions) < 2 {
		t.Fatalf("spawn jitter produced identical positions: %v", positions)
	}
}

func TestWorldClearPathStopsWalker(t *testing.T) {
	rows := []string{
		".....",
		".....",
		".....",
	}
	w, recorder := newTestWorld(t, rows)
	w.AddWalker("walker-a")

	target := w.terrain.GridToWorld(world.Cell{GX: 4, GY: 2})
	_ = w.Apply([]sim.Command{pathCommand("walker-a", target)})
	w.Step()

	_ = w.Apply([]sim.Command{{ActorID: "walker-a", Type: sim.CommandClearPath}})
	snapshot := w.Snapshot()
	if snapshot.Walkers[0].Moving {
		t.Fatalf("walker still moving after cancel: %+v", snapshot.Walkers[0])
	}
	if cancelled := recorder.byType(logging.EventPathCancelled); len(cancelled) != 1 {
		t.Fatalf("expected one path_cancelled event, got %d", len(cancelled))
	}

	// Cancelling an idle walker is a no-op rather than a second event.
	_ = w.Apply([]sim.Command{{ActorID: "walker-a", Type: sim.CommandClearPath}})
	if cancelled := recorder.byType(logging.EventPathCancelled); len(cancelled) != 1 {
		t.Fatalf("idle cancel should not publish, got %d events", len(cancelled))
	}
}

func TestWorldOutOfBoundsTargetIsClamped(t *testing.T) {
	rows := []string{
		"...",
		"...",
		"...",
	}
	w, _ := newTestWorld(t, rows)
	w.AddWalker("walker-a")

	// Far outside the 96x96 world; must clamp to the nearest edge cell
	// instead of panicking the pathfinder.
	if err := w.Apply([]sim.Command{pathCommand("walker-a", world.Vec2{X: 1e6, Y: -50})}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if snapshot := w.Snapshot(); !snapshot.Walkers[0].Moving {
		t.Fatalf("clamped target should still produce a route")
	}
}

func TestWorldMapReloadSwapsTerrainAtTickStart(t *testing.T) {
	w, recorder := newTestWorld(t, []string{"....", "....", "....", "...."})
	w.AddWalker("walker-a")

	target := w.terrain.GridToWorld(world.Cell{GX: 3, GY: 3})
	_ = w.Apply([]sim.Command{pathCommand("walker-a", target)})

	next := testDefinition([]string{"..", ".."})
	next.Name = "swapped"
	w.QueueMapReload(next)

	if w.Definition().Name != "test" {
		t.Fatalf("reload must not apply before the next tick")
	}

	w.Step()

	if w.Definition().Name != "swapped" {
		t.Fatalf("reload not applied on tick, still %q", w.Definition().Name)
	}
	snapshot := w.Snapshot()
	if snapshot.Walkers[0].Moving {
		t.Fatalf("active path must be cancelled on map swap")
	}
	cell := w.terrain.WorldToGrid(snapshot.Walkers[0].X, snapshot.Walkers[0].Y)
	if tile := w.terrain.TileInfo(cell); !tile.Walkable {
		t.Fatalf("walker stranded on unwalkable cell %+v", cell)
	}
	if reloaded := recorder.byType(logging.EventMapReloaded); len(reloaded) != 1 {
		t.Fatalf("expected one map_reloaded event, got %d", len(reloaded))
	}
}

func TestWorldPruneStale(t *testing.T) {
	base := time.Unix(1000, 0)
	clock := logging.ClockFunc(func() time.Time { return base })
	recorder := &eventRecorder{}
	w, err := NewWorld(testDefinition([]string{"..", ".."}), WorldConfig{}, sim.Deps{
		Clock:     clock,
		Publisher: recorder,
	})
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}

	w.AddWalker("walker-a")
	w.AddWalker("walker-b")

	// Keep walker-b fresh, let walker-a go silent.
	_ = w.Apply([]sim.Command{{
		ActorID:   "walker-b",
		Type:      sim.CommandHeartbeat,
		Heartbeat: &sim.HeartbeatCommand{ReceivedAt: base.Add(10 * time.Second)},
	}})

	stale := w.PruneStale(base.Add(11*time.Second), 6*time.Second)
	if len(stale) != 1 || stale[0] != "walker-a" {
		t.Fatalf("expected walker-a pruned, got %v", stale)
	}
	if w.WalkerExists("walker-a") {
		t.Fatalf("pruned walker still present")
	}
	if !w.WalkerExists("walker-b") {
		t.Fatalf("fresh walker was pruned")
	}
}
