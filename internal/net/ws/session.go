// Package ws runs one read loop per connected client, translating websocket
// frames into hub commands.
package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tilewalk/server/internal/game"
	"tilewalk/server/internal/net/proto"
	"tilewalk/server/internal/telemetry"
)

const (
	readLimit    = 4 * 1024
	pongTimeout  = 3 * game.HeartbeatInterval
	closeTimeout = time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The demo client is served from arbitrary local origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler upgrades /ws requests and pumps client messages into the hub.
type Handler struct {
	hub    *game.Hub
	logger telemetry.Logger
}

func NewHandler(hub *game.Hub, logger telemetry.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

// ServeHTTP upgrades the connection and runs the session read loop. Clients
// identify themselves with the id returned from the join endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("[ws] upgrade failed for %s: %v", id, err)
		return
	}

	sub, ok := h.hub.Subscribe(id, conn)
	if !ok {
		h.logf("[ws] rejected unknown walker %s", id)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown walker"),
			time.Now().Add(closeTimeout),
		)
		_ = conn.Close()
		return
	}

	conn.SetReadLimit(readLimit)
	h.resetReadDeadline(conn)
	conn.SetPongHandler(func(string) error {
		h.resetReadDeadline(conn)
		return nil
	})

	go h.readLoop(id, sub, conn)
}

func (h *Handler) readLoop(id string, sub *game.Subscriber, conn *websocket.Conn) {
	defer h.hub.Disconnect(id)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logf("[ws] read error for %s: %v", id, err)
			}
			return
		}
		h.resetReadDeadline(conn)

		var msg proto.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.logf("[ws] malformed frame from %s: %v", id, err)
			continue
		}
		if msg.Ver != proto.ProtocolVersion {
			h.reject(sub, msg, "protocol_version")
			continue
		}

		switch msg.Type {
		case proto.TypePath:
			h.handlePath(id, sub, msg)
		case proto.TypeCancelPath:
			h.handleCancel(id, sub, msg)
		case proto.TypeHeartbeat:
			h.handleHeartbeat(id, sub, msg)
		default:
			h.reject(sub, msg, "unknown_type")
		}
	}
}

func (h *Handler) handlePath(id string, sub *game.Subscriber, msg proto.ClientMessage) {
	if msg.Seq != nil && !sub.ObserveSeq(*msg.Seq) {
		h.ack(sub, msg)
		return
	}
	if ok, reason := h.hub.SetWalkerPath(id, msg.X, msg.Y); !ok {
		h.reject(sub, msg, reason)
		return
	}
	h.ack(sub, msg)
}

func (h *Handler) handleCancel(id string, sub *game.Subscriber, msg proto.ClientMessage) {
	if msg.Seq != nil && !sub.ObserveSeq(*msg.Seq) {
		h.ack(sub, msg)
		return
	}
	if ok, reason := h.hub.ClearWalkerPath(id); !ok {
		h.reject(sub, msg, reason)
		return
	}
	h.ack(sub, msg)
}

func (h *Handler) handleHeartbeat(id string, sub *game.Subscriber, msg proto.ClientMessage) {
	rtt, ok := h.hub.UpdateHeartbeat(id, msg.SentAt)
	if !ok {
		h.reject(sub, msg, game.RejectUnknownWalker)
		return
	}
	_ = sub.Send(proto.HeartbeatAckMessage{
		Ver:        proto.ProtocolVersion,
		Type:       proto.TypeHeartbeatAck,
		ClientSent: msg.SentAt,
		ServerTime: time.Now().UnixMilli(),
		RTTMillis:  rtt.Milliseconds(),
	})
}

func (h *Handler) ack(sub *game.Subscriber, msg proto.ClientMessage) {
	_ = sub.Send(proto.AckMessage{
		Ver:  proto.ProtocolVersion,
		Type: proto.TypeCommandAck,
		Seq:  msg.Seq,
		Cmd:  msg.Type,
	})
}

func (h *Handler) reject(sub *game.Subscriber, msg proto.ClientMessage, reason string) {
	_ = sub.Send(proto.RejectMessage{
		Ver:    proto.ProtocolVersion,
		Type:   proto.TypeCommandReject,
		Seq:    msg.Seq,
		Cmd:    msg.Type,
		Reason: reason,
	})
}

func (h *Handler) resetReadDeadline(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
}

func (h *Handler) logf(format string, args ...any) {
	if h.logger == nil {
		return
	}
	h.logger.Printf(format, args...)
}
