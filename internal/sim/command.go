package sim

import "time"

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	CommandSetPath   CommandType = "SetPath"
	CommandClearPath CommandType = "ClearPath"
	CommandHeartbeat CommandType = "Heartbeat"
)

// PathCommand identifies a navigation target in world coordinates.
type PathCommand struct {
	TargetX float64 `json:"targetX"`
	TargetY float64 `json:"targetY"`
}

// HeartbeatCommand updates connectivity metadata for an actor.
type HeartbeatCommand struct {
	ReceivedAt time.Time     `json:"receivedAt"`
	ClientSent int64         `json:"clientSent"`
	RTT        time.Duration `json:"rtt"`
}

// Command represents an intent captured for processing on the next tick.
type Command struct {
	OriginTick uint64            `json:"originTick"`
	ActorID    string            `json:"actorId"`
	Type       CommandType       `json:"type"`
	IssuedAt   time.Time         `json:"issuedAt"`
	Path       *PathCommand      `json:"path,omitempty"`
	Heartbeat  *HeartbeatCommand `json:"heartbeat,omitempty"`
}
