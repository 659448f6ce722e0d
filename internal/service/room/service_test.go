package room

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	connInmemory "github.com/groovesync/server/internal/repository/connection/inmemory"
	roomInmemory "github.com/groovesync/server/internal/repository/room/inmemory"
)

func newTestService(t *testing.T) *service {
	t.Helper()
	return NewService(roomInmemory.NewRepo(), connInmemory.NewRepo())
}

func connect(t *testing.T, s *service) (string, *websocket.Conn) {
	t.Helper()
	conn := &websocket.Conn{}
	sessionID, err := s.Connect(conn)
	require.NoError(t, err)
	return sessionID, conn
}

func TestJoinSnapshotCompensatesElapsedTime(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	sessionA, _ := connect(t, s)
	respA, err := s.Join(ctx, &JoinParams{SessionID: sessionA, RoomID: "r1", MediaRef: "track-x"})
	require.NoError(t, err)
	assert.True(t, respA.Snapshot.IsHost)
	assert.False(t, respA.Snapshot.IsPlaying)
	assert.Equal(t, 0.0, respA.Snapshot.PositionSeconds)
	assert.Equal(t, 1, respA.MemberCount)
	assert.NotNil(t, respA.Snapshot.Queue, "queue serializes as [], never null")

	// playback starts from 5s
	_, err = s.Play(ctx, &PlayParams{SessionID: sessionA, RoomID: "r1", Time: 5})
	require.NoError(t, err)

	// ten seconds later a second member joins
	s.now = func() time.Time { return base.Add(10 * time.Second) }
	sessionB, _ := connect(t, s)
	respB, err := s.Join(ctx, &JoinParams{SessionID: sessionB, RoomID: "r1", MediaRef: "ignored"})
	require.NoError(t, err)
	assert.False(t, respB.Snapshot.IsHost)
	assert.True(t, respB.Snapshot.IsPlaying)
	assert.InDelta(t, 15.0, respB.Snapshot.PositionSeconds, 0.001,
		"snapshot position extrapolates elapsed playing time")
	assert.Equal(t, "track-x", respB.Snapshot.MediaRef)
	assert.Equal(t, 2, respB.Snapshot.MemberCount)
	assert.Equal(t, base.Add(10*time.Second).UnixMilli(), respB.Snapshot.ServerTimestamp)
	assert.Len(t, respB.MemberCountConns, 2, "member-count goes to everyone")
}

func TestPausedRoomDoesNotExtrapolate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	s.now = func() time.Time { return base }

	sessionA, _ := connect(t, s)
	_, err := s.Join(ctx, &JoinParams{SessionID: sessionA, RoomID: "r1", MediaRef: "track-x"})
	require.NoError(t, err)
	_, err = s.Pause(ctx, &PauseParams{SessionID: sessionA, RoomID: "r1", Time: 7})
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(time.Hour) }
	sessionB, _ := connect(t, s)
	respB, err := s.Join(ctx, &JoinParams{SessionID: sessionB, RoomID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 7.0, respB.Snapshot.PositionSeconds)
}

func TestBroadcastExcludesSender(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	sessionA, connA := connect(t, s)
	sessionB, connB := connect(t, s)
	_, err := s.Join(ctx, &JoinParams{SessionID: sessionA, RoomID: "r1", MediaRef: "track-x"})
	require.NoError(t, err)
	_, err = s.Join(ctx, &JoinParams{SessionID: sessionB, RoomID: "r1"})
	require.NoError(t, err)

	resp, err := s.Pause(ctx, &PauseParams{SessionID: sessionB, RoomID: "r1", Time: 3})
	require.NoError(t, err)
	require.Len(t, resp.Conns, 1)
	assert.Same(t, connA, resp.Conns[0])

	// change-media goes to everyone, the sender included
	cmResp, err := s.ChangeMedia(ctx, &ChangeMediaParams{SessionID: sessionB, RoomID: "r1", MediaRef: "track-y"})
	require.NoError(t, err)
	assert.Len(t, cmResp.Conns, 2)
	assert.Contains(t, cmResp.Conns, connB)
}

func TestSyncTimeHostOnly(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	sessionA, _ := connect(t, s)
	sessionB, _ := connect(t, s)
	_, err := s.Join(ctx, &JoinParams{SessionID: sessionA, RoomID: "r1", MediaRef: "track-x"})
	require.NoError(t, err)
	_, err = s.Join(ctx, &JoinParams{SessionID: sessionB, RoomID: "r1"})
	require.NoError(t, err)

	_, err = s.SyncTime(ctx, &SyncTimeParams{SessionID: sessionB, RoomID: "r1", Time: 12, IsPlaying: true})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	resp, err := s.SyncTime(ctx, &SyncTimeParams{SessionID: sessionA, RoomID: "r1", Time: 12, IsPlaying: true})
	require.NoError(t, err)
	assert.Len(t, resp.Conns, 1)
	assert.NotZero(t, resp.Timestamp)
}

func TestLeaveReassignsHost(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	sessionA, _ := connect(t, s)
	sessionB, connB := connect(t, s)
	sessionC, _ := connect(t, s)
	for _, sid := range []string{sessionA, sessionB, sessionC} {
		_, err := s.Join(ctx, &JoinParams{SessionID: sid, RoomID: "r1", MediaRef: "track-x"})
		require.NoError(t, err)
	}

	resp, err := s.Leave(ctx, &LeaveParams{SessionID: sessionA, RoomID: "r1"})
	require.NoError(t, err)
	require.NotNil(t, resp.Update)
	assert.Equal(t, 2, resp.Update.MemberCount)
	assert.False(t, resp.Update.RoomDeleted)
	require.NotNil(t, resp.Update.NewHost, "earliest joined member takes over")
	assert.Equal(t, sessionB, resp.Update.NewHost.SessionID)
	assert.Same(t, connB, resp.Update.NewHost.Conn)

	// non-member leave yields no update
	resp, err = s.Leave(ctx, &LeaveParams{SessionID: sessionA, RoomID: "r1"})
	require.NoError(t, err)
	assert.Nil(t, resp.Update)
}

func TestDisconnectCleansUpRoom(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	sessionA, _ := connect(t, s)
	_, err := s.Join(ctx, &JoinParams{SessionID: sessionA, RoomID: "r1", MediaRef: "track-x"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.RoomCount())

	resp, err := s.Disconnect(ctx, sessionA)
	require.NoError(t, err)
	require.NotNil(t, resp.Update)
	assert.True(t, resp.Update.RoomDeleted)
	assert.Equal(t, 0, s.RoomCount())
}

func TestJoinSwitchesRooms(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	sessionA, _ := connect(t, s)
	sessionB, _ := connect(t, s)
	_, err := s.Join(ctx, &JoinParams{SessionID: sessionA, RoomID: "r1", MediaRef: "track-x"})
	require.NoError(t, err)
	_, err = s.Join(ctx, &JoinParams{SessionID: sessionB, RoomID: "r1"})
	require.NoError(t, err)

	// B hops to another room; r1 must learn about the departure
	resp, err := s.Join(ctx, &JoinParams{SessionID: sessionB, RoomID: "r2", MediaRef: "track-y"})
	require.NoError(t, err)
	require.NotNil(t, resp.PrevRoom)
	assert.Equal(t, "r1", resp.PrevRoom.RoomID)
	assert.Equal(t, 1, resp.PrevRoom.MemberCount)
	assert.True(t, resp.Snapshot.IsHost, "first member of the new room hosts it")
	assert.Equal(t, 2, s.RoomCount())
}

func TestAdvanceQueue(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	sessionA, _ := connect(t, s)
	_, err := s.Join(ctx, &JoinParams{SessionID: sessionA, RoomID: "r1", MediaRef: "track-x"})
	require.NoError(t, err)

	// empty queue: a silent no-op
	resp, err := s.AdvanceQueue(ctx, &AdvanceQueueParams{SessionID: sessionA, RoomID: "r1"})
	require.NoError(t, err)
	assert.False(t, resp.Advanced)

	_, err = s.Enqueue(ctx, &EnqueueParams{SessionID: sessionA, RoomID: "r1", Item: MediaItem{MediaRef: "q1", Title: "Next"}})
	require.NoError(t, err)

	resp, err = s.AdvanceQueue(ctx, &AdvanceQueueParams{SessionID: sessionA, RoomID: "r1"})
	require.NoError(t, err)
	assert.True(t, resp.Advanced)
	assert.Equal(t, "q1", resp.MediaRef)
	require.NotNil(t, resp.Item)
	assert.Equal(t, "Next", resp.Item.Title)
	assert.NotNil(t, resp.Queue)
	assert.Empty(t, resp.Queue)
}

func TestRoomInfoExtrapolates(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	s.now = func() time.Time { return base }

	sessionA, _ := connect(t, s)
	_, err := s.Join(ctx, &JoinParams{SessionID: sessionA, RoomID: "r1", MediaRef: "track-x"})
	require.NoError(t, err)
	_, err = s.Play(ctx, &PlayParams{SessionID: sessionA, RoomID: "r1", Time: 20})
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(4 * time.Second) }
	info, err := s.RoomInfo(ctx, "r1")
	require.NoError(t, err)
	assert.InDelta(t, 24.0, info.PositionSeconds, 0.001)
	assert.Equal(t, 1, info.MemberCount)

	_, err = s.RoomInfo(ctx, "missing")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestSendMessage(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	sessionA, _ := connect(t, s)
	sessionB, _ := connect(t, s)
	_, err := s.Join(ctx, &JoinParams{SessionID: sessionA, RoomID: "r1", MediaRef: "track-x"})
	require.NoError(t, err)
	_, err = s.Join(ctx, &JoinParams{SessionID: sessionB, RoomID: "r1"})
	require.NoError(t, err)

	resp, err := s.SendMessage(ctx, &SendMessageParams{
		SessionID:   sessionB,
		RoomID:      "r1",
		DisplayName: "bee",
		Text:        "hello",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Message.ID)
	assert.Equal(t, sessionB, resp.Message.SenderID)
	assert.Equal(t, "hello", resp.Message.Text)
	assert.Len(t, resp.Conns, 2, "chat echoes to the sender too")
}
