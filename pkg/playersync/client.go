package playersync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Callbacks receives room events that are not playback state. All fields
// are optional.
type Callbacks struct {
	OnSnapshot     func(s *Snapshot)
	OnMemberCount  func(count int)
	OnHostAssigned func()
	OnMediaChanged func(mediaRef string, item *MediaItem)
	OnCurrentItem  func(item *MediaItem)
	OnQueueUpdated func(queue []MediaItem)
	OnChatMessage  func(msg *ChatMessage)
}

// Client connects a Player to a room over the relay's websocket endpoint.
// It feeds incoming events into a Reconciler and, acting as the
// reconciler's Emitter, sends locally originated actions back out.
type Client struct {
	conn   *websocket.Conn
	rec    *Reconciler
	cbs    Callbacks
	logger *slog.Logger

	mu     sync.Mutex // guards writes and roomID
	roomID string

	done chan struct{}
}

// Dial connects to the relay and starts the read loop. The reconciler's
// poll loop is started as well; Close stops both.
func Dial(ctx context.Context, url string, player Player, cfg Config, cbs Callbacks, logger *slog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}

	c := &Client{
		conn:   conn,
		cbs:    cbs,
		logger: logger,
		done:   make(chan struct{}),
	}
	c.rec = NewReconciler(player, c, cfg)
	c.rec.Start(ctx)

	go c.readLoop()

	return c, nil
}

// Reconciler exposes the underlying reconciler, mainly for state checks.
func (c *Client) Reconciler() *Reconciler {
	return c.rec
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Join enters a room, creating it if needed. mediaRef seeds a brand new
// room and is ignored for existing ones.
func (c *Client) Join(roomID, mediaRef string) error {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
	c.rec.OnJoin()
	return c.send("join-room", map[string]any{"roomId": roomID, "mediaRef": mediaRef})
}

// Leave exits the current room without closing the connection.
func (c *Client) Leave() error {
	c.mu.Lock()
	roomID := c.roomID
	c.roomID = ""
	c.mu.Unlock()
	if roomID == "" {
		return nil
	}
	c.rec.OnLeave()
	return c.send("leave-room", map[string]any{"roomId": roomID})
}

// ChangeMedia switches the room to a new media item.
func (c *Client) ChangeMedia(mediaRef string, item *MediaItem) error {
	return c.send("change-media", map[string]any{
		"roomId": c.currentRoom(), "mediaRef": mediaRef, "item": item,
	})
}

// Enqueue appends an item to the room queue.
func (c *Client) Enqueue(item MediaItem) error {
	return c.send("enqueue", map[string]any{"roomId": c.currentRoom(), "item": item})
}

// RemoveFromQueue removes the queue entry at index.
func (c *Client) RemoveFromQueue(index int) error {
	return c.send("remove-from-queue", map[string]any{"roomId": c.currentRoom(), "index": index})
}

// ClearQueue empties the room queue.
func (c *Client) ClearQueue() error {
	return c.send("clear-queue", map[string]any{"roomId": c.currentRoom()})
}

// JumpToQueueIndex switches playback to the queue entry at index.
func (c *Client) JumpToQueueIndex(index int) error {
	return c.send("jump-to-queue-index", map[string]any{"roomId": c.currentRoom(), "index": index})
}

// SendChat relays a chat message to the room.
func (c *Client) SendChat(displayName, text string) error {
	return c.send("send-message", map[string]any{
		"roomId": c.currentRoom(), "displayName": displayName, "text": text,
	})
}

// SyncTime publishes the host's current position. Non-hosts are ignored
// server side, so callers may send unconditionally.
func (c *Client) SyncTime(positionSeconds float64, isPlaying bool) error {
	return c.send("sync-time", map[string]any{
		"roomId": c.currentRoom(), "time": positionSeconds, "isPlaying": isPlaying,
	})
}

// EmitPlay implements Emitter.
func (c *Client) EmitPlay(positionSeconds float64) error {
	return c.send("play", map[string]any{"roomId": c.currentRoom(), "time": positionSeconds})
}

// EmitPause implements Emitter.
func (c *Client) EmitPause(positionSeconds float64) error {
	return c.send("pause", map[string]any{"roomId": c.currentRoom(), "time": positionSeconds})
}

// EmitSeek implements Emitter.
func (c *Client) EmitSeek(positionSeconds float64, isPlaying bool) error {
	return c.send("seek", map[string]any{
		"roomId": c.currentRoom(), "time": positionSeconds, "isPlaying": isPlaying,
	})
}

// EmitAdvanceQueue implements Emitter.
func (c *Client) EmitAdvanceQueue() error {
	return c.send("advance-queue", map[string]any{"roomId": c.currentRoom()})
}

// Close stops the reconciler and closes the connection.
func (c *Client) Close() error {
	c.rec.Stop()
	return c.conn.Close()
}

func (c *Client) currentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Client) send(msgType string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(map[string]any{"type": msgType, "payload": payload}); err != nil {
		return fmt.Errorf("failed to send %s: %w", msgType, err)
	}
	return nil
}

type event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var msg event
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.logger.Debug("read loop closed", "error", err)
			return
		}
		if err := c.dispatch(&msg); err != nil {
			c.logger.Warn("failed to handle event", "type", msg.Type, "error", err)
		}
	}
}

func (c *Client) dispatch(msg *event) error {
	switch msg.Type {
	case "room-state":
		var s Snapshot
		if err := json.Unmarshal(msg.Payload, &s); err != nil {
			return err
		}
		if err := c.rec.ApplySnapshot(&s); err != nil {
			return err
		}
		if c.cbs.OnSnapshot != nil {
			c.cbs.OnSnapshot(&s)
		}
	case "play":
		var p struct {
			Time float64 `json:"time"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return c.rec.ApplyPlay(p.Time)
	case "pause":
		var p struct {
			Time float64 `json:"time"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return c.rec.ApplyPause(p.Time)
	case "seek":
		var p struct {
			Time      float64 `json:"time"`
			IsPlaying bool    `json:"isPlaying"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return c.rec.ApplySeek(p.Time, p.IsPlaying)
	case "time-update":
		var p struct {
			Time      float64 `json:"time"`
			IsPlaying bool    `json:"isPlaying"`
			Timestamp int64   `json:"timestamp"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return c.rec.ApplyTimeUpdate(p.Time, p.IsPlaying, p.Timestamp)
	case "media-changed":
		var p struct {
			MediaRef string     `json:"mediaRef"`
			Item     *MediaItem `json:"item"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		c.rec.ApplyMediaChange()
		if c.cbs.OnMediaChanged != nil {
			c.cbs.OnMediaChanged(p.MediaRef, p.Item)
		}
	case "current-item-updated":
		var p struct {
			Item *MediaItem `json:"item"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		if c.cbs.OnCurrentItem != nil {
			c.cbs.OnCurrentItem(p.Item)
		}
	case "queue-updated":
		var p struct {
			Queue []MediaItem `json:"queue"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		c.rec.ApplyQueueUpdate(len(p.Queue))
		if c.cbs.OnQueueUpdated != nil {
			c.cbs.OnQueueUpdated(p.Queue)
		}
	case "member-count":
		var p struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		if c.cbs.OnMemberCount != nil {
			c.cbs.OnMemberCount(p.Count)
		}
	case "host-assigned":
		if c.cbs.OnHostAssigned != nil {
			c.cbs.OnHostAssigned()
		}
	case "new-message":
		var m ChatMessage
		if err := json.Unmarshal(msg.Payload, &m); err != nil {
			return err
		}
		if c.cbs.OnChatMessage != nil {
			c.cbs.OnChatMessage(&m)
		}
	default:
		c.logger.Debug("unknown event", "type", msg.Type)
	}
	return nil
}
