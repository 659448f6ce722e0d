package room

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	roomRepo "github.com/groovesync/server/internal/repository/room"
)

// RoomUpdate carries the membership notifications caused by a departure:
// who is left to tell about the new member count, and who (if anyone)
// just became host.
type RoomUpdate struct {
	RoomID      string
	MemberCount int
	Conns       []*websocket.Conn
	NewHost     *HostChange
	RoomDeleted bool
}

type HostChange struct {
	SessionID string
	Conn      *websocket.Conn
}

func (s *service) Connect(conn *websocket.Conn) (string, error) {
	sessionID := uuid.NewString()
	if err := s.connRepo.Add(conn, sessionID); err != nil {
		return "", fmt.Errorf("failed to register connection: %w", err)
	}

	return sessionID, nil
}

type JoinParams struct {
	SessionID string
	RoomID    string
	MediaRef  string
}

type JoinResponse struct {
	Snapshot    Snapshot
	MemberCount int
	// MemberCountConns includes the joiner; the member-count event goes
	// to everyone.
	MemberCountConns []*websocket.Conn
	// PrevRoom is non-nil when joining implicitly left another room.
	PrevRoom *RoomUpdate
}

// Join adds the session to the room, creating it on first join (the
// creator becomes host). A session occupies one room at a time, so any
// previous room is left first.
func (s service) Join(ctx context.Context, params *JoinParams) (JoinResponse, error) {
	var resp JoinResponse

	if prevRoomID, err := s.connRepo.GetRoomID(params.SessionID); err == nil && prevRoomID != params.RoomID {
		update, err := s.leaveRoom(prevRoomID, params.SessionID)
		if err != nil {
			return resp, fmt.Errorf("failed to leave previous room: %w", err)
		}
		resp.PrevRoom = update
	}

	now := s.now()
	result, err := s.roomRepo.Join(&roomRepo.JoinParams{
		RoomID:    params.RoomID,
		SessionID: params.SessionID,
		MediaRef:  params.MediaRef,
		At:        now,
	})
	if err != nil {
		return resp, fmt.Errorf("failed to join room: %w", err)
	}

	if err := s.connRepo.SetRoomID(params.SessionID, params.RoomID); err != nil {
		return resp, fmt.Errorf("failed to track session room: %w", err)
	}

	resp.Snapshot = s.snapshotFor(result.Room, params.SessionID, now)
	resp.MemberCount = len(result.Room.Members)
	resp.MemberCountConns = s.connsFor(result.Room.Members)

	return resp, nil
}

type LeaveParams struct {
	SessionID string
	RoomID    string
}

type LeaveResponse struct {
	Update *RoomUpdate
}

func (s service) Leave(ctx context.Context, params *LeaveParams) (LeaveResponse, error) {
	update, err := s.leaveRoom(params.RoomID, params.SessionID)
	if err != nil {
		return LeaveResponse{}, err
	}

	return LeaveResponse{Update: update}, nil
}

type DisconnectResponse struct {
	Update *RoomUpdate
}

// Disconnect removes the session from its room (if any) and forgets the
// connection. Further broadcasts never reach this session.
func (s service) Disconnect(ctx context.Context, sessionID string) (DisconnectResponse, error) {
	var resp DisconnectResponse

	if roomID, err := s.connRepo.GetRoomID(sessionID); err == nil {
		update, err := s.leaveRoom(roomID, sessionID)
		if err != nil {
			return resp, err
		}
		resp.Update = update
	}

	if err := s.connRepo.Remove(sessionID); err != nil {
		return resp, fmt.Errorf("failed to remove connection: %w", err)
	}

	return resp, nil
}

// leaveRoom removes the session and resolves the fallout: host
// re-election (earliest joined remaining member) and room deletion when
// empty. A nil update means the session was not actually a member.
func (s service) leaveRoom(roomID string, sessionID string) (*RoomUpdate, error) {
	result, err := s.roomRepo.Leave(&roomRepo.LeaveParams{
		RoomID:    roomID,
		SessionID: sessionID,
	})
	if err != nil {
		// the room may have just been cleaned up
		return nil, nil
	}
	if !result.Left {
		return nil, nil
	}

	s.connRepo.ClearRoomID(sessionID)

	update := RoomUpdate{
		RoomID:      roomID,
		MemberCount: len(result.Members),
		RoomDeleted: result.RoomDeleted,
		Conns:       s.connsFor(result.Members),
	}
	if result.NewHostID != "" {
		if conn, err := s.connRepo.GetConn(result.NewHostID); err == nil {
			update.NewHost = &HostChange{SessionID: result.NewHostID, Conn: conn}
		}
	}

	return &update, nil
}

func (s service) snapshotFor(state roomRepo.Room, sessionID string, now time.Time) Snapshot {
	position := state.PositionSeconds
	if state.IsPlaying {
		position += now.Sub(state.LastUpdateAt).Seconds()
	}

	queue := state.Queue
	if queue == nil {
		queue = []MediaItem{}
	}

	return Snapshot{
		RoomID:          state.ID,
		MediaRef:        state.MediaRef,
		IsPlaying:       state.IsPlaying,
		PositionSeconds: position,
		IsHost:          state.HostID == sessionID,
		MemberCount:     len(state.Members),
		ServerTimestamp: now.UnixMilli(),
		Queue:           queue,
		CurrentItem:     state.CurrentItem,
	}
}

// RoomInfo reports current room state for the REST surface, with the
// same playing-time extrapolation the join snapshot uses.
func (s service) RoomInfo(ctx context.Context, roomID string) (RoomInfo, error) {
	state, err := s.roomRepo.GetState(roomID)
	if err != nil {
		return RoomInfo{}, ErrRoomNotFound
	}

	position := state.PositionSeconds
	if state.IsPlaying {
		position += s.now().Sub(state.LastUpdateAt).Seconds()
	}

	return RoomInfo{
		RoomID:          state.ID,
		MediaRef:        state.MediaRef,
		IsPlaying:       state.IsPlaying,
		PositionSeconds: position,
		MemberCount:     len(state.Members),
	}, nil
}

func (s service) RoomCount() int {
	return s.roomRepo.RoomCount()
}

// RoomConns returns the live local connections of a room's members,
// excluding the given session ids. Used for bus-mirrored broadcasts.
func (s service) RoomConns(roomID string, exclude []string) []*websocket.Conn {
	state, err := s.roomRepo.GetState(roomID)
	if err != nil {
		return nil
	}

	return s.connsFor(state.Members, exclude...)
}

// CloseAll closes every live connection. Called on shutdown.
func (s service) CloseAll() {
	for _, conn := range s.connRepo.Conns() {
		conn.Close()
	}
}
