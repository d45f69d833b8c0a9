package sim

import (
	"testing"
	"time"
)

type stubCore struct {
	applied [][]Command
	steps   int
	tick    uint64
}

func (c *stubCore) Deps() Deps { return Deps{} }

func (c *stubCore) Apply(cmds []Command) error {
	c.applied = append(c.applied, cmds)
	return nil
}

func (c *stubCore) Step() {
	c.steps++
	c.tick++
}

func (c *stubCore) Snapshot() Snapshot {
	return Snapshot{Tick: c.tick}
}

func TestLoopAdvanceAppliesStagedCommands(t *testing.T) {
	core := &stubCore{}
	loop := NewLoop(core, LoopConfig{CommandCapacity: 8}, LoopHooks{})

	if ok, reason := loop.Enqueue(Command{ActorID: "w1", Type: CommandSetPath}); !ok {
		t.Fatalf("enqueue rejected: %s", reason)
	}
	if ok, _ := loop.Enqueue(Command{ActorID: "w2", Type: CommandClearPath}); !ok {
		t.Fatalf("second enqueue rejected")
	}

	result := loop.Advance(LoopTickContext{Tick: 1, Now: time.Now(), Delta: 1.0 / 15})

	if len(core.applied) != 1 || len(core.applied[0]) != 2 {
		t.Fatalf("expected one apply batch of 2 commands, got %+v", core.applied)
	}
	if core.steps != 1 {
		t.Fatalf("expected one step, got %d", core.steps)
	}
	if result.Snapshot.Tick != 1 {
		t.Fatalf("snapshot not taken after step: %+v", result.Snapshot)
	}
	if loop.Pending() != 0 {
		t.Fatalf("commands left staged after advance")
	}
}

func TestLoopPerActorThrottle(t *testing.T) {
	core := &stubCore{}
	var dropped []Command
	loop := NewLoop(core, LoopConfig{CommandCapacity: 16, PerActorLimit: 2}, LoopHooks{
		OnCommandDrop: func(reason string, cmd Command) {
			if reason != CommandRejectQueueLimit {
				t.Fatalf("unexpected drop reason %q", reason)
			}
			dropped = append(dropped, cmd)
		},
	})

	for i := 0; i < 3; i++ {
		loop.Enqueue(Command{ActorID: "spammer", Type: CommandSetPath})
	}
	if ok, reason := loop.Enqueue(Command{ActorID: "other", Type: CommandSetPath}); !ok {
		t.Fatalf("unrelated actor throttled: %s", reason)
	}

	if len(dropped) != 1 {
		t.Fatalf("expected 1 dropped command, got %d", len(dropped))
	}
	if loop.Pending() != 3 {
		t.Fatalf("expected 3 staged commands, got %d", loop.Pending())
	}

	// Draining resets the per-actor counters.
	loop.Advance(LoopTickContext{Tick: 1, Now: time.Now(), Delta: 1.0 / 15})
	if ok, _ := loop.Enqueue(Command{ActorID: "spammer", Type: CommandSetPath}); !ok {
		t.Fatalf("throttle should reset after drain")
	}
}

func TestLoopPrepareHookRunsBeforeApply(t *testing.T) {
	core := &stubCore{}
	prepared := false
	loop := NewLoop(core, LoopConfig{CommandCapacity: 4}, LoopHooks{
		Prepare: func(ctx LoopTickContext) {
			prepared = true
			if len(core.applied) != 0 {
				t.Fatalf("Prepare must run before Apply")
			}
		},
	})

	loop.Enqueue(Command{ActorID: "w", Type: CommandHeartbeat})
	loop.Advance(LoopTickContext{Tick: 1, Now: time.Now(), Delta: 1.0 / 15})

	if !prepared {
		t.Fatalf("Prepare hook not invoked")
	}
}
