package sim

import (
	"sync"

	"tilewalk/server/internal/telemetry"
)

const (
	queueOccupancyMetricKey = "walker_command_queue_occupancy"
	queueOverflowMetricKey  = "walker_command_queue_overflow_total"
)

// commandQueue holds walker commands staged between ticks in a fixed-size
// ring. Session handlers push concurrently; the loop's drain is the sole
// consumer. Occupancy and overflow are reported through the metrics store so
// queue pressure shows up on the diagnostics endpoint.
type commandQueue struct {
	mu      sync.Mutex
	ring    []Command
	head    int
	count   int
	metrics telemetry.Metrics
}

func newCommandQueue(capacity int, metrics telemetry.Metrics) *commandQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &commandQueue{
		ring:    make([]Command, capacity),
		metrics: metrics,
	}
}

// Push stages a command, returning false when the ring is full.
func (q *commandQueue) Push(cmd Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == len(q.ring) {
		if q.metrics != nil {
			q.metrics.Add(queueOverflowMetricKey, 1)
		}
		return false
	}
	q.ring[(q.head+q.count)%len(q.ring)] = cmd
	q.count++
	q.recordOccupancyLocked()
	return true
}

// Drain returns every staged command in arrival order and empties the ring.
func (q *commandQueue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil
	}
	drained := make([]Command, q.count)
	for i := range drained {
		drained[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.head = 0
	q.count = 0
	q.recordOccupancyLocked()
	return drained
}

// Len reports how many commands are currently staged.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *commandQueue) recordOccupancyLocked() {
	if q.metrics == nil {
		return
	}
	q.metrics.Store(queueOccupancyMetricKey, uint64(q.count))
}
