// Package proto defines the JSON messages exchanged with browser clients.
package proto

import (
	"tilewalk/server/internal/sim"
	"tilewalk/server/internal/world"
)

// ProtocolVersion gates client/server message compatibility. Clients must
// echo it on every message; mismatches are rejected before dispatch.
const ProtocolVersion = 1

// Client message types.
const (
	TypePath       = "path"
	TypeCancelPath = "cancelPath"
	TypeHeartbeat  = "heartbeat"
)

// Server message types.
const (
	TypeState         = "state"
	TypeCommandAck    = "commandAck"
	TypeCommandReject = "commandReject"
	TypeHeartbeatAck  = "heartbeatAck"
	TypeDisconnect    = "disconnect"
)

// MapInfo carries the terrain a freshly joined client must render.
type MapInfo struct {
	Name     string            `json:"name"`
	Width    int               `json:"width"`
	Height   int               `json:"height"`
	TileSize float64           `json:"tileSize"`
	Legend   map[string]string `json:"legend"`
	Rows     []string          `json:"rows"`
}

// JoinResponse is returned from the HTTP join endpoint.
type JoinResponse struct {
	Ver      int                  `json:"v"`
	ID       string               `json:"id"`
	Tick     uint64               `json:"tick"`
	Map      MapInfo              `json:"map"`
	Walkers  []sim.WalkerSnapshot `json:"walkers"`
	TickRate int                  `json:"tickRate"`
}

// ClientMessage is the envelope for every websocket frame sent by a client.
type ClientMessage struct {
	Ver    int     `json:"v"`
	Type   string  `json:"type"`
	Seq    *uint64 `json:"seq,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	SentAt int64   `json:"sentAt,omitempty"`
}

// StateMessage is broadcast to every subscriber after each tick.
type StateMessage struct {
	Ver        int                  `json:"v"`
	Type       string               `json:"type"`
	Tick       uint64               `json:"tick"`
	Walkers    []sim.WalkerSnapshot `json:"walkers"`
	ServerTime int64                `json:"serverTime"`
}

// AckMessage confirms a sequenced command was staged for the next tick.
type AckMessage struct {
	Ver  int     `json:"v"`
	Type string  `json:"type"`
	Seq  *uint64 `json:"seq,omitempty"`
	Cmd  string  `json:"cmd"`
}

// RejectMessage reports why a command was not staged.
type RejectMessage struct {
	Ver    int     `json:"v"`
	Type   string  `json:"type"`
	Seq    *uint64 `json:"seq,omitempty"`
	Cmd    string  `json:"cmd"`
	Reason string  `json:"reason"`
}

// HeartbeatAckMessage echoes timing back so clients can display latency.
type HeartbeatAckMessage struct {
	Ver        int    `json:"v"`
	Type       string `json:"type"`
	ClientSent int64  `json:"clientSent"`
	ServerTime int64  `json:"serverTime"`
	RTTMillis  int64  `json:"rttMillis"`
}

// DisconnectMessage is the final frame before the server closes a session.
type DisconnectMessage struct {
	Ver    int    `json:"v"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// MapInfoFromDefinition converts the authoritative map definition into its
// wire form.
func MapInfoFromDefinition(def *world.Definition) MapInfo {
	if def == nil {
		return MapInfo{}
	}
	legend := make(map[string]string, len(def.Legend))
	for symbol, tile := range def.Legend {
		legend[symbol] = tile
	}
	rows := make([]string, len(def.Rows))
	copy(rows, def.Rows)
	return MapInfo{
		Name:     def.Name,
		Width:    def.Width,
		Height:   def.Height,
		TileSize: def.TileSize,
		Legend:   legend,
		Rows:     rows,
	}
}
