package sim

import "time"

// WalkerSnapshot is the per-walker view carried in tick snapshots.
type WalkerSnapshot struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Facing string  `json:"facing"`
	Moving bool    `json:"moving"`
}

// Snapshot captures the broadcastable world state after a step.
type Snapshot struct {
	Tick    uint64           `json:"tick"`
	Walkers []WalkerSnapshot `json:"walkers"`
}

// EngineCore is the deterministic simulation kernel driven by the Loop: it
// applies staged commands, advances one fixed step, and reports state.
type EngineCore interface {
	Deps() Deps
	Apply(cmds []Command) error
	Step()
	Snapshot() Snapshot
}

// LoopTickContext describes the tick being processed.
type LoopTickContext struct {
	Tick  uint64
	Now   time.Time
	Delta float64
}

// LoopStepResult summarizes a completed tick for the AfterStep hook.
type LoopStepResult struct {
	Tick         uint64
	Now          time.Time
	Delta        float64
	Snapshot     Snapshot
	Commands     []Command
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
	MaxDelta     float64
}

// LoopHooks lets the embedding server observe and steer the loop.
type LoopHooks struct {
	Prepare        func(LoopTickContext)
	AfterStep      func(LoopStepResult)
	NextTick       func() uint64
	OnCommandDrop  func(reason string, cmd Command)
	OnQueueWarning func(length int)
}
