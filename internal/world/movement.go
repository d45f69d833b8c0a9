package world

import "math"

const (
	// SnapEpsilon is the fixed arrival tolerance, deliberately independent of
	// and much smaller than any sane per-tick speed.
	SnapEpsilon = 0.1

	// DefaultWalkerSpeed is the baseline step length in world units per tick.
	DefaultWalkerSpeed = 3.0
)

// Walker is an entity that moves continuously along a computed cell path.
// While Moving is true, PathStep indexes the waypoint currently targeted;
// when Moving is false the path is nil and PathStep is zero.
type Walker struct {
	Pos      Vec2
	Target   Vec2
	Speed    float64
	Path     []Cell
	PathStep int
	Moving   bool
}

// MovementSystem advances walkers along pathfinder routes one tick at a time.
type MovementSystem struct {
	terrain Terrain
	finder  *Pathfinder
}

func NewMovementSystem(terrain Terrain, finder *Pathfinder) *MovementSystem {
	return &MovementSystem{terrain: terrain, finder: finder}
}

// MoveToTile routes the walker to the given cell. A request for the walker's
// current cell resets it to idle. When no route exists the walker's motion
// state is left untouched: an in-flight path keeps running and an idle walker
// stays idle. On success any previous path is discarded and the walker starts
// toward the first step past its current cell.
func (s *MovementSystem) MoveToTile(w *Walker, goal Cell) bool {
	current := s.terrain.WorldToGrid(w.Pos.X, w.Pos.Y)
	if current == goal {
		stopWalker(w)
		return true
	}

	tile := s.terrain.TileInfo(goal)
	if !tile.Walkable || tile.WalkSpeed <= 0 {
		return false
	}

	path := s.finder.FindPath(current, goal)
	if path == nil {
		return false
	}
	if len(path) < 2 {
		stopWalker(w)
		return true
	}

	w.Path = path
	w.PathStep = 1
	w.Target = s.terrain.GridToWorld(path[1])
	w.Moving = true
	return true
}

// Stop discards the walker's route and returns it to idle.
func (s *MovementSystem) Stop(w *Walker) {
	stopWalker(w)
}

// Update advances the walker by one tick. Calling it on an idle walker is a
// no-op. Each tick exactly one of three actions applies for any positive
// distance to the target: snap, clamp onto the target, or a proportional step.
func (s *MovementSystem) Update(w *Walker) {
	if w == nil || !w.Moving {
		return
	}
	if w.Path == nil {
		stopWalker(w)
		return
	}

	if ReachedTarget(w.Pos, w.Target) {
		// Snap exactly onto the waypoint before advancing so floating point
		// error never accumulates across segments.
		w.Pos = w.Target
		if !s.advanceStep(w) {
			stopWalker(w)
			return
		}
	}

	w.Pos = StepToward(w.Pos, w.Target, s.terrainAdjustedSpeed(w))
}

func (s *MovementSystem) advanceStep(w *Walker) bool {
	next := w.PathStep + 1
	if next >= len(w.Path) {
		return false
	}
	w.PathStep = next
	w.Target = s.terrain.GridToWorld(w.Path[next])
	return true
}

func (s *MovementSystem) terrainAdjustedSpeed(w *Walker) float64 {
	cell := s.terrain.WorldToGrid(w.Pos.X, w.Pos.Y)
	tile := s.terrain.TileInfo(cell)
	speed := w.Speed
	if speed <= 0 {
		speed = DefaultWalkerSpeed
	}
	if tile.WalkSpeed > 0 {
		speed *= tile.WalkSpeed
	}
	return speed
}

func stopWalker(w *Walker) {
	w.Path = nil
	w.PathStep = 0
	w.Moving = false
}

// ReachedTarget reports whether the position is within the snap tolerance of
// the target.
func ReachedTarget(pos, target Vec2) bool {
	return math.Hypot(target.X-pos.X, target.Y-pos.Y) <= SnapEpsilon
}

// StepToward moves pos toward target by at most speed units, landing exactly
// on the target whenever a full step would meet or pass it. Together with the
// snap branch this covers every positive distance, so there is no band where
// neither snapping nor stepping applies.
func StepToward(pos, target Vec2, speed float64) Vec2 {
	dx := target.X - pos.X
	dy := target.Y - pos.Y
	distance := math.Hypot(dx, dy)

	if distance <= SnapEpsilon {
		return target
	}
	if distance < speed {
		return target
	}
	return Vec2{
		X: pos.X + dx/distance*speed,
		Y: pos.Y + dy/distance*speed,
	}
}

// DeriveFacing maps a movement vector onto the four broadcast facings.
func DeriveFacing(dx, dy float64, fallback string) string {
	if dx == 0 && dy == 0 {
		return fallback
	}
	if math.Abs(dx) >= math.Abs(dy) {
		if dx > 0 {
			return "right"
		}
		return "left"
	}
	if dy > 0 {
		return "down"
	}
	return "up"
}
