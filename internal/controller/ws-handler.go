package controller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/groovesync/server/internal/service/room"
	"github.com/groovesync/server/pkg/ctxlogger"
	"github.com/groovesync/server/pkg/metrics"
	omitnilpointers "github.com/groovesync/server/pkg/omit-nil-pointers"
	"github.com/groovesync/server/pkg/wsrouter"
)

func (c *controller) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}

	sessionID, err := c.roomService.Connect(conn)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to register session", "error", err)
		conn.Close()
		return
	}

	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	ctx := withSessionID(r.Context(), sessionID)
	ctx = ctxlogger.AppendCtx(ctx, slog.String("session_id", sessionID))

	c.logger.InfoContext(ctx, "session connected")

	if err := c.getWSRouter().ServeConn(ctx, conn); err != nil {
		c.logger.DebugContext(ctx, "read loop ended", "error", err)
	}

	// the request context may already be cancelled at this point
	cleanupCtx := context.WithoutCancel(ctx)
	resp, err := c.roomService.Disconnect(cleanupCtx, sessionID)
	if err != nil {
		c.logger.WarnContext(cleanupCtx, "failed to disconnect session", "error", err)
	}
	c.notifyRoomUpdate(cleanupCtx, resp.Update)
	metrics.ActiveRooms.Set(float64(c.roomService.RoomCount()))

	c.logger.InfoContext(cleanupCtx, "session disconnected")
}

func (c *controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()

	// membership
	mux.Handle("join-room", c.handleJoinRoom)
	mux.Handle("leave-room", c.handleLeaveRoom)

	// playback
	mux.Handle("play", c.handlePlay)
	mux.Handle("pause", c.handlePause)
	mux.Handle("seek", c.handleSeek)
	mux.Handle("change-media", c.handleChangeMedia)
	mux.Handle("sync-time", c.handleSyncTime)
	mux.Handle("update-current-item", c.handleUpdateCurrentItem)

	// queue
	mux.Handle("enqueue", c.handleEnqueue)
	mux.Handle("remove-from-queue", c.handleRemoveFromQueue)
	mux.Handle("clear-queue", c.handleClearQueue)
	mux.Handle("advance-queue", c.handleAdvanceQueue)
	mux.Handle("jump-to-queue-index", c.handleJumpToQueueIndex)

	// chat
	mux.Handle("send-message", c.handleSendMessage)

	return mux
}

// dropOrWarn implements the silent-drop policy: actions against a room
// that no longer exists are expected noise, everything else is logged.
func (c controller) dropOrWarn(ctx context.Context, err error) {
	if errors.Is(err, room.ErrRoomNotFound) {
		c.logger.DebugContext(ctx, "action for missing room dropped")
		return
	}
	c.logger.WarnContext(ctx, "failed to handle action", "error", err)
}

func (c controller) countEvent(ctx context.Context) {
	metrics.EventsRelayed.WithLabelValues(wsrouter.GetMessageTypeFromCtx(ctx)).Inc()
}

type joinRoomInput struct {
	RoomID   string `json:"roomId" validate:"required,max=64"`
	MediaRef string `json:"mediaRef" validate:"max=2048"`
}

func (c *controller) handleJoinRoom(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var input joinRoomInput
	if !c.unmarshalAndValidate(ctx, payload, &input) {
		return
	}
	c.countEvent(ctx)

	resp, err := c.roomService.Join(ctx, &room.JoinParams{
		SessionID: c.getSessionIDFromCtx(ctx),
		RoomID:    input.RoomID,
		MediaRef:  input.MediaRef,
	})
	if err != nil {
		c.dropOrWarn(ctx, err)
		return
	}

	if resp.PrevRoom != nil {
		c.notifyRoomUpdate(ctx, resp.PrevRoom)
	}

	c.writeToConn(ctx, conn, &Output{Type: "room-state", Payload: resp.Snapshot})

	c.broadcastRoom(ctx, input.RoomID, nil, resp.MemberCountConns, &Output{
		Type:    "member-count",
		Payload: map[string]any{"count": resp.MemberCount},
	})

	metrics.ActiveRooms.Set(float64(c.roomService.RoomCount()))
}

type leaveRoomInput struct {
	RoomID string `json:"roomId" validate:"required"`
}

func (c *controller) handleLeaveRoom(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var input leaveRoomInput
	if !c.unmarshalAndValidate(ctx, payload, &input) {
		return
	}
	c.countEvent(ctx)

	resp, err := c.roomService.Leave(ctx, &room.LeaveParams{
		SessionID: c.getSessionIDFromCtx(ctx),
		RoomID:    input.RoomID,
	})
	if err != nil {
		c.dropOrWarn(ctx, err)
		return
	}

	c.notifyRoomUpdate(ctx, resp.Update)
	metrics.ActiveRooms.Set(float64(c.roomService.RoomCount()))
}

type playInput struct {
	RoomID string  `json:"roomId" validate:"required"`
	Time   float64 `json:"time" validate:"gte=0"`
}

func (c *controller) handlePlay(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var input playInput
	if !c.unmarshalAndValidate(ctx, payload, &input) {
		return
	}
	c.countEvent(ctx)

	sessionID := c.getSessionIDFromCtx(ctx)
	resp, err := c.roomService.Play(ctx, &room.PlayParams{
		SessionID: sessionID,
		RoomID:    input.RoomID,
		Time:      input.Time,
	})
	if err != nil {
		c.dropOrWarn(ctx, err)
		return
	}

	c.broadcastRoom(ctx, input.RoomID, []string{sessionID}, resp.Conns, &Output{
		Type:    "play",
		Payload: map[string]any{"time": input.Time},
	})
}

func (c *controller) handlePause(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var input playInput
	if !c.unmarshalAndValidate(ctx, payload, &input) {
		return
	}
	c.countEvent(ctx)

	sessionID := c.getSessionIDFromCtx(ctx)
	resp, err := c.roomService.Pause(ctx, &room.PauseParams{
		SessionID: sessionID,
		RoomID:    input.RoomID,
		Time:      input.Time,
	})
	if err != nil {
		c.dropOrWarn(ctx, err)
		return
	}

	c.broadcastRoom(ctx, input.RoomID, []string{sessionID}, resp.Conns, &Output{
		Type:    "pause",
		Payload: map[string]any{"time": input.Time},
	})
}

type seekInput struct {
	RoomID    string  `json:"roomId" validate:"required"`
	Time      float64 `json:"time" validate:"gte=0"`
	IsPlaying *bool   `json:"isPlaying"`
}

func (c *controller) handleSeek(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var input seekInput
	if !c.unmarshalAndValidate(ctx, payload, &input) {
		return
	}
	c.countEvent(ctx)

	sessionID := c.getSessionIDFromCtx(ctx)
	resp, err := c.roomService.Seek(ctx, &room.SeekParams{
		SessionID: sessionID,
		RoomID:    input.RoomID,
		Time:      input.Time,
		IsPlaying: input.IsPlaying,
	})
	if err != nil {
		c.dropOrWarn(ctx, err)
		return
	}

	c.broadcastRoom(ctx, input.RoomID, []string{sessionID}, resp.Conns, &Output{
		Type:    "seek",
		Payload: map[string]any{"time": input.Time, "isPlaying": resp.IsPlaying},
	})
}

type changeMediaInput struct {
	RoomID   string          `json:"roomId" validate:"required"`
	MediaRef string          `json:"mediaRef" validate:"required,max=2048"`
	Item     *room.MediaItem `json:"item"`
}

func (c *controller) handleChangeMedia(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var input changeMediaInput
	if !c.unmarshalAndValidate(ctx, payload, &input) {
		return
	}
	c.countEvent(ctx)

	resp, err := c.roomService.ChangeMedia(ctx, &room.ChangeMediaParams{
		SessionID: c.getSessionIDFromCtx(ctx),
		RoomID:    input.RoomID,
		MediaRef:  input.MediaRef,
		Item:      input.Item,
	})
	if err != nil {
		c.dropOrWarn(ctx, err)
		return
	}

	// everyone gets this, sender included: the authoritative reset wins
	c.broadcastRoom(ctx, input.RoomID, nil, resp.Conns, &Output{
		Type:    "media-changed",
		Payload: omitnilpointers.OmitNilPointers(map[string]any{"mediaRef": resp.MediaRef, "item": resp.Item}),
	})
}

type syncTimeInput struct {
	RoomID    string  `json:"roomId" validate:"required"`
	Time      float64 `json:"time" validate:"gte=0"`
	IsPlaying bool    `json:"isPlaying"`
}

func (c *controller) handleSyncTime(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var input syncTimeInput
	if !c.unmarshalAndValidate(ctx, payload, &input) {
		return
	}
	c.countEvent(ctx)

	sessionID := c.getSessionIDFromCtx(ctx)
	resp, err := c.roomService.SyncTime(ctx, &room.SyncTimeParams{
		SessionID: sessionID,
		RoomID:    input.RoomID,
		Time:      input.Time,
		IsPlaying: input.IsPlaying,
	})
	if err != nil {
		if errors.Is(err, room.ErrPermissionDenied) {
			// only the host may sync time; ignore the rest
			return
		}
		c.dropOrWarn(ctx, err)
		return
	}

	c.broadcastRoom(ctx, input.RoomID, []string{sessionID}, resp.Conns, &Output{
		Type: "time-update",
		Payload: map[string]any{
			"time":      input.Time,
			"isPlaying": input.IsPlaying,
			"timestamp": resp.Timestamp,
		},
	})
}

type updateCurrentItemInput struct {
	RoomID string         `json:"roomId" validate:"required"`
	Item   room.MediaItem `json:"item"`
}

func (c *controller) handleUpdateCurrentItem(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var input updateCurrentItemInput
	if !c.unmarshalAndValidate(ctx, payload, &input) {
		return
	}
	c.countEvent(ctx)

	resp, err := c.roomService.UpdateCurrentItem(ctx, &room.UpdateCurrentItemParams{
		SessionID: c.getSessionIDFromCtx(ctx),
		RoomID:    input.RoomID,
		Item:      input.Item,
	})
	if err != nil {
		c.dropOrWarn(ctx, err)
		return
	}

	c.broadcastRoom(ctx, input.RoomID, nil, resp.Conns, &Output{
		Type:    "current-item-updated",
		Payload: map[string]any{"item": resp.Item},
	})
}

type enqueueInput struct {
	RoomID string         `json:"roomId" validate:"required"`
	Item   room.MediaItem `json:"item"`
}

func (c *controller) handleEnqueue(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var input enqueueInput
	if !c.unmarshalAndValidate(ctx, payload, &input) {
		return
	}
	c.countEvent(ctx)

	resp, err := c.roomService.Enqueue(ctx, &room.EnqueueParams{
		SessionID: c.getSessionIDFromCtx(ctx),
		RoomID:    input.RoomID,
		Item:      input.Item,
	})
	if err != nil {
		c.dropOrWarn(ctx, err)
		return
	}

	c.broadcastRoom(ctx, input.RoomID, nil, resp.Conns, &Output{
		Type:    "queue-updated",
		Payload: map[string]any{"queue": resp.Queue},
	})
}

type removeFromQueueInput struct {
	RoomID string `json:"roomId" validate:"required"`
	Index  int    `json:"index" validate:"gte=0"`
}

func (c *controller) handleRemoveFromQueue(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var input removeFromQueueInput
	if !c.unmarshalAndValidate(ctx, payload, &input) {
		return
	}
	c.countEvent(ctx)

	resp, err := c.roomService.RemoveFromQueue(ctx, &room.RemoveFromQueueParams{
		SessionID: c.getSessionIDFromCtx(ctx),
		RoomID:    input.RoomID,
		Index:     input.Index,
	})
	if err != nil {
		c.dropOrWarn(ctx, err)
		return
	}
	if !resp.Changed {
		// out-of-bounds index, nothing happened
		return
	}

	c.broadcastRoom(ctx, input.RoomID, nil, resp.Conns, &Output{
		Type:    "queue-updated",
		Payload: map[string]any{"queue": resp.Queue},
	})
}

type clearQueueInput struct {
	RoomID string `json:"roomId" validate:"required"`
}

func (c *controller) handleClearQueue(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var input clearQueueInput
	if !c.unmarshalAndValidate(ctx, payload, &input) {
		return
	}
	c.countEvent(ctx)

	resp, err := c.roomService.ClearQueue(ctx, &room.ClearQueueParams{
		SessionID: c.getSessionIDFromCtx(ctx),
		RoomID:    input.RoomID,
	})
	if err != nil {
		c.dropOrWarn(ctx, err)
		return
	}

	c.broadcastRoom(ctx, input.RoomID, nil, resp.Conns, &Output{
		Type:    "queue-updated",
		Payload: map[string]any{"queue": resp.Queue},
	})
}

type advanceQueueInput struct {
	RoomID string `json:"roomId" validate:"required"`
}

func (c *controller) handleAdvanceQueue(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var input advanceQueueInput
	if !c.unmarshalAndValidate(ctx, payload, &input) {
		return
	}
	c.countEvent(ctx)

	resp, err := c.roomService.AdvanceQueue(ctx, &room.AdvanceQueueParams{
		SessionID: c.getSessionIDFromCtx(ctx),
		RoomID:    input.RoomID,
	})
	if err != nil {
		c.dropOrWarn(ctx, err)
		return
	}
	if !resp.Advanced {
		// empty queue, state unchanged, no broadcast
		return
	}

	c.broadcastQueueJump(ctx, input.RoomID, resp.Conns, resp.MediaRef, resp.Item, resp.Queue)
}

type jumpToQueueIndexInput struct {
	RoomID string `json:"roomId" validate:"required"`
	Index  int    `json:"index" validate:"gte=0"`
}

func (c *controller) handleJumpToQueueIndex(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var input jumpToQueueIndexInput
	if !c.unmarshalAndValidate(ctx, payload, &input) {
		return
	}
	c.countEvent(ctx)

	resp, err := c.roomService.JumpToQueueIndex(ctx, &room.JumpToQueueIndexParams{
		SessionID: c.getSessionIDFromCtx(ctx),
		RoomID:    input.RoomID,
		Index:     input.Index,
	})
	if err != nil {
		c.dropOrWarn(ctx, err)
		return
	}
	if !resp.Jumped {
		return
	}

	c.broadcastQueueJump(ctx, input.RoomID, resp.Conns, resp.MediaRef, resp.Item, resp.Queue)
}

// broadcastQueueJump announces a queue-driven media switch: the
// change-media-equivalent event plus the resulting queue, to everyone.
func (c controller) broadcastQueueJump(ctx context.Context, roomID string, conns []*websocket.Conn, mediaRef string, item *room.MediaItem, queue []room.MediaItem) {
	c.broadcastRoom(ctx, roomID, nil, conns, &Output{
		Type:    "media-changed",
		Payload: omitnilpointers.OmitNilPointers(map[string]any{"mediaRef": mediaRef, "item": item}),
	})
	c.broadcastRoom(ctx, roomID, nil, conns, &Output{
		Type:    "current-item-updated",
		Payload: omitnilpointers.OmitNilPointers(map[string]any{"item": item}),
	})
	c.broadcastRoom(ctx, roomID, nil, conns, &Output{
		Type:    "queue-updated",
		Payload: map[string]any{"queue": queue},
	})
}

type sendMessageInput struct {
	RoomID      string `json:"roomId" validate:"required"`
	Text        string `json:"text" validate:"required,max=500"`
	DisplayName string `json:"displayName" validate:"max=32"`
}

func (c *controller) handleSendMessage(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var input sendMessageInput
	if !c.unmarshalAndValidate(ctx, payload, &input) {
		return
	}
	c.countEvent(ctx)

	displayName := input.DisplayName
	if displayName == "" {
		displayName = "Anonymous"
	}

	resp, err := c.roomService.SendMessage(ctx, &room.SendMessageParams{
		SessionID:   c.getSessionIDFromCtx(ctx),
		RoomID:      input.RoomID,
		DisplayName: displayName,
		Text:        input.Text,
	})
	if err != nil {
		c.dropOrWarn(ctx, err)
		return
	}

	metrics.ChatMessages.Inc()
	c.broadcastRoom(ctx, input.RoomID, nil, resp.Conns, &Output{
		Type:    "new-message",
		Payload: resp.Message,
	})
}
