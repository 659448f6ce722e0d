package room

import (
	"errors"
	"slices"

	"time"

	"github.com/gorilla/websocket"

	roomRepo "github.com/groovesync/server/internal/repository/room"
)

var (
	// ErrRoomNotFound aliases the repository sentinel so callers can
	// match it through wrapped service errors.
	ErrRoomNotFound     = roomRepo.ErrRoomNotFound
	ErrPermissionDenied = errors.New("permission denied")
)

type iRoomRepo interface {
	Join(*roomRepo.JoinParams) (roomRepo.JoinResult, error)
	Leave(*roomRepo.LeaveParams) (roomRepo.LeaveResult, error)
	GetState(string) (roomRepo.Room, error)
	SetPlayback(*roomRepo.SetPlaybackParams) (roomRepo.Room, error)
	Seek(*roomRepo.SeekParams) (roomRepo.Room, error)
	ChangeMedia(*roomRepo.ChangeMediaParams) (roomRepo.Room, error)
	SetCurrentItem(string, *roomRepo.MediaItem) (roomRepo.Room, error)
	Enqueue(*roomRepo.EnqueueParams) (roomRepo.Room, error)
	RemoveFromQueue(*roomRepo.RemoveFromQueueParams) (roomRepo.Room, bool, error)
	ClearQueue(string) (roomRepo.Room, error)
	AdvanceQueue(*roomRepo.AdvanceQueueParams) (roomRepo.Room, bool, error)
	JumpToQueueIndex(*roomRepo.JumpToQueueIndexParams) (roomRepo.Room, bool, error)
	RoomCount() int
}

type iConnRepo interface {
	Add(*websocket.Conn, string) error
	Remove(string) error
	GetSessionID(*websocket.Conn) (string, error)
	GetConn(string) (*websocket.Conn, error)
	SetRoomID(string, string) error
	GetRoomID(string) (string, error)
	ClearRoomID(string)
	Conns() []*websocket.Conn
}

type service struct {
	roomRepo iRoomRepo
	connRepo iConnRepo
	now      func() time.Time
}

func NewService(roomRepo iRoomRepo, connRepo iConnRepo) *service {
	return &service{
		roomRepo: roomRepo,
		connRepo: connRepo,
		now:      time.Now,
	}
}

// connsFor resolves member session ids to live connections, skipping
// excluded senders and sessions whose connection is already gone.
func (s service) connsFor(members []string, exclude ...string) []*websocket.Conn {
	conns := make([]*websocket.Conn, 0, len(members))
	for _, sessionID := range members {
		if slices.Contains(exclude, sessionID) {
			continue
		}
		conn, err := s.connRepo.GetConn(sessionID)
		if err != nil {
			continue
		}
		conns = append(conns, conn)
	}

	return conns
}
