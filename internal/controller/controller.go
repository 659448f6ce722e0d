package controller

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/groovesync/server/internal/bus"
	"github.com/groovesync/server/internal/mediaproxy"
	"github.com/groovesync/server/internal/service/room"
	"github.com/groovesync/server/pkg/randstr"
	"github.com/groovesync/server/pkg/ratelimit"
	"github.com/groovesync/server/pkg/validator"
)

type iRoomService interface {
	Connect(conn *websocket.Conn) (string, error)
	Disconnect(ctx context.Context, sessionID string) (room.DisconnectResponse, error)
	Join(ctx context.Context, params *room.JoinParams) (room.JoinResponse, error)
	Leave(ctx context.Context, params *room.LeaveParams) (room.LeaveResponse, error)
	Play(ctx context.Context, params *room.PlayParams) (room.PlayResponse, error)
	Pause(ctx context.Context, params *room.PauseParams) (room.PauseResponse, error)
	Seek(ctx context.Context, params *room.SeekParams) (room.SeekResponse, error)
	ChangeMedia(ctx context.Context, params *room.ChangeMediaParams) (room.ChangeMediaResponse, error)
	SyncTime(ctx context.Context, params *room.SyncTimeParams) (room.SyncTimeResponse, error)
	UpdateCurrentItem(ctx context.Context, params *room.UpdateCurrentItemParams) (room.UpdateCurrentItemResponse, error)
	Enqueue(ctx context.Context, params *room.EnqueueParams) (room.EnqueueResponse, error)
	RemoveFromQueue(ctx context.Context, params *room.RemoveFromQueueParams) (room.RemoveFromQueueResponse, error)
	ClearQueue(ctx context.Context, params *room.ClearQueueParams) (room.ClearQueueResponse, error)
	AdvanceQueue(ctx context.Context, params *room.AdvanceQueueParams) (room.AdvanceQueueResponse, error)
	JumpToQueueIndex(ctx context.Context, params *room.JumpToQueueIndexParams) (room.JumpToQueueIndexResponse, error)
	SendMessage(ctx context.Context, params *room.SendMessageParams) (room.SendMessageResponse, error)
	RoomInfo(ctx context.Context, roomID string) (room.RoomInfo, error)
	RoomCount() int
	RoomConns(roomID string, exclude []string) []*websocket.Conn
	CloseAll()
}

type iMediaProxy interface {
	Search(ctx context.Context, query string, limit int, accessToken string) (json.RawMessage, error)
	Resolve(ctx context.Context, mediaURL string, accessToken string) (json.RawMessage, error)
	Charts(ctx context.Context, genre string, limit int, accessToken string) (json.RawMessage, error)
	ExchangeCode(ctx context.Context, params *mediaproxy.ExchangeCodeParams) (mediaproxy.TokenResponse, error)
}

type controller struct {
	roomService iRoomService
	mediaProxy  iMediaProxy
	bus         bus.Bus
	instanceID  string
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	generator   *randstr.Generator
	limiter     *ratelimit.Limiter
	logger      *slog.Logger
}

func NewController(roomService iRoomService, mediaProxy iMediaProxy, eventBus bus.Bus, instanceID string, logger *slog.Logger) *controller {
	letterBytes := []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

	return &controller{
		roomService: roomService,
		mediaProxy:  mediaProxy,
		bus:         eventBus,
		instanceID:  instanceID,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate:  validator.NewValidator(),
		generator: randstr.New(letterBytes),
		limiter:   ratelimit.New(120, time.Minute),
		logger:    logger,
	}
}

// Shutdown closes every websocket connection.
func (c *controller) Shutdown() {
	c.roomService.CloseAll()
}
