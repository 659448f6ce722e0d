package controller

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/groovesync/server/internal/bus"
	"github.com/groovesync/server/internal/service/room"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (c controller) writeToConn(ctx context.Context, conn *websocket.Conn, out *Output) {
	if conn == nil {
		return
	}
	if err := conn.WriteJSON(out); err != nil {
		c.logger.DebugContext(ctx, "failed to write to conn", "type", out.Type, "error", err)
	}
}

// broadcast writes fire-and-forget: a failed write is logged and
// skipped, never retried.
func (c controller) broadcast(ctx context.Context, conns []*websocket.Conn, out *Output) {
	for _, conn := range conns {
		c.writeToConn(ctx, conn, out)
	}
}

// broadcastRoom fans an event out to the given local connections and
// mirrors it on the bus for other relay instances. exclude lists the
// session ids that must not receive the event anywhere.
func (c controller) broadcastRoom(ctx context.Context, roomID string, exclude []string, conns []*websocket.Conn, out *Output) {
	c.broadcast(ctx, conns, out)

	raw, err := json.Marshal(out.Payload)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to marshal bus payload", "type", out.Type, "error", err)
		return
	}
	if err := c.bus.Publish(ctx, bus.Message{
		Origin:  c.instanceID,
		RoomID:  roomID,
		Exclude: exclude,
		Type:    out.Type,
		Payload: raw,
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to publish to bus", "type", out.Type, "error", err)
	}
}

// DeliverRemote applies a bus-mirrored event to this instance's local
// connections for the room.
func (c controller) DeliverRemote(m bus.Message) {
	if m.Origin == c.instanceID {
		return
	}

	conns := c.roomService.RoomConns(m.RoomID, m.Exclude)
	c.broadcast(context.Background(), conns, &Output{Type: m.Type, Payload: m.Payload})
}

// notifyRoomUpdate pushes the membership fallout of a departure or an
// implicit room switch: member counts for the remaining members and the
// host-assigned notice for a re-elected host.
func (c controller) notifyRoomUpdate(ctx context.Context, update *room.RoomUpdate) {
	if update == nil || update.RoomDeleted {
		return
	}

	c.broadcastRoom(ctx, update.RoomID, nil, update.Conns, &Output{
		Type:    "member-count",
		Payload: map[string]any{"count": update.MemberCount},
	})

	if update.NewHost != nil {
		c.writeToConn(ctx, update.NewHost.Conn, &Output{
			Type:    "host-assigned",
			Payload: map[string]any{},
		})
	}
}

func (c controller) unmarshalAndValidate(ctx context.Context, payload json.RawMessage, dst any) bool {
	if err := json.Unmarshal(payload, dst); err != nil {
		c.logger.WarnContext(ctx, "failed to unmarshal payload", "error", err)
		return false
	}

	if validationErrors, ok := c.validate.Validate(dst); !ok {
		c.logger.WarnContext(ctx, "payload validation failed", "errors", validationErrors)
		return false
	}

	return true
}
