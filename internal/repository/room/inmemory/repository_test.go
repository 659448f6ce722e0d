package inmemory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groovesync/server/internal/repository/room"
)

func TestJoinCreatesRoom(t *testing.T) {
	repo := NewRepo()
	now := time.Now()

	result, err := repo.Join(&room.JoinParams{
		RoomID:    "r1",
		SessionID: "s1",
		MediaRef:  "track-1",
		At:        now,
	})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, "s1", result.Room.HostID, "creator becomes host")
	assert.Equal(t, []string{"s1"}, result.Room.Members)
	assert.Equal(t, "track-1", result.Room.MediaRef)
	assert.False(t, result.Room.IsPlaying)
	assert.Equal(t, 1, repo.RoomCount())

	// second join keeps the existing media, ignores the seed ref
	result2, err := repo.Join(&room.JoinParams{
		RoomID:    "r1",
		SessionID: "s2",
		MediaRef:  "track-other",
		At:        now.Add(time.Second),
	})
	require.NoError(t, err)
	assert.False(t, result2.Created)
	assert.Equal(t, "track-1", result2.Room.MediaRef)
	assert.Equal(t, []string{"s1", "s2"}, result2.Room.Members)
	assert.Equal(t, "s1", result2.Room.HostID)
}

func TestJoinIsIdempotentPerSession(t *testing.T) {
	repo := NewRepo()
	now := time.Now()

	_, err := repo.Join(&room.JoinParams{RoomID: "r1", SessionID: "s1", At: now})
	require.NoError(t, err)
	result, err := repo.Join(&room.JoinParams{RoomID: "r1", SessionID: "s1", At: now})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, result.Room.Members, "rejoin must not duplicate the member")
}

func TestLeaveReelectsHost(t *testing.T) {
	repo := NewRepo()
	now := time.Now()

	for _, s := range []string{"s1", "s2", "s3"} {
		_, err := repo.Join(&room.JoinParams{RoomID: "r1", SessionID: s, At: now})
		require.NoError(t, err)
	}

	// host leaves, earliest remaining member takes over
	result, err := repo.Leave(&room.LeaveParams{RoomID: "r1", SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, result.Left)
	assert.False(t, result.RoomDeleted)
	assert.Equal(t, "s2", result.NewHostID)
	assert.Equal(t, []string{"s2", "s3"}, result.Members)

	// non-host departure changes nothing about the host
	result, err = repo.Leave(&room.LeaveParams{RoomID: "r1", SessionID: "s3"})
	require.NoError(t, err)
	assert.True(t, result.Left)
	assert.Empty(t, result.NewHostID)

	state, err := repo.GetState("r1")
	require.NoError(t, err)
	assert.Equal(t, "s2", state.HostID)
}

func TestLastLeaveDeletesRoom(t *testing.T) {
	repo := NewRepo()
	now := time.Now()

	_, err := repo.Join(&room.JoinParams{RoomID: "r1", SessionID: "s1", MediaRef: "track-1", At: now})
	require.NoError(t, err)

	result, err := repo.Leave(&room.LeaveParams{RoomID: "r1", SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, result.RoomDeleted)
	assert.Equal(t, 0, repo.RoomCount())

	_, err = repo.GetState("r1")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)

	// a rejoin under the same id is a brand new room
	rejoined, err := repo.Join(&room.JoinParams{RoomID: "r1", SessionID: "s2", MediaRef: "track-2", At: now})
	require.NoError(t, err)
	assert.True(t, rejoined.Created)
	assert.Equal(t, "track-2", rejoined.Room.MediaRef)
	assert.Equal(t, "s2", rejoined.Room.HostID)
}

func TestLeaveUnknownMemberIsNoop(t *testing.T) {
	repo := NewRepo()
	_, err := repo.Join(&room.JoinParams{RoomID: "r1", SessionID: "s1", At: time.Now()})
	require.NoError(t, err)

	result, err := repo.Leave(&room.LeaveParams{RoomID: "r1", SessionID: "ghost"})
	require.NoError(t, err)
	assert.False(t, result.Left)
	assert.Equal(t, 1, repo.RoomCount())
}

func TestActionsOnMissingRoom(t *testing.T) {
	repo := NewRepo()
	now := time.Now()

	_, err := repo.SetPlayback(&room.SetPlaybackParams{RoomID: "gone", IsPlaying: true, At: now})
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	_, err = repo.Seek(&room.SeekParams{RoomID: "gone", At: now})
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	_, err = repo.Enqueue(&room.EnqueueParams{RoomID: "gone"})
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	_, err = repo.Leave(&room.LeaveParams{RoomID: "gone", SessionID: "s1"})
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestSeekKeepsPlayStateWithoutHint(t *testing.T) {
	repo := NewRepo()
	now := time.Now()

	_, err := repo.Join(&room.JoinParams{RoomID: "r1", SessionID: "s1", At: now})
	require.NoError(t, err)
	_, err = repo.SetPlayback(&room.SetPlaybackParams{RoomID: "r1", IsPlaying: true, PositionSeconds: 10, At: now})
	require.NoError(t, err)

	state, err := repo.Seek(&room.SeekParams{RoomID: "r1", PositionSeconds: 42, At: now})
	require.NoError(t, err)
	assert.True(t, state.IsPlaying)
	assert.Equal(t, 42.0, state.PositionSeconds)

	paused := false
	state, err = repo.Seek(&room.SeekParams{RoomID: "r1", PositionSeconds: 50, IsPlayingHint: &paused, At: now})
	require.NoError(t, err)
	assert.False(t, state.IsPlaying)
}

func TestChangeMediaResetsPlayback(t *testing.T) {
	repo := NewRepo()
	now := time.Now()

	_, err := repo.Join(&room.JoinParams{RoomID: "r1", SessionID: "s1", MediaRef: "track-1", At: now})
	require.NoError(t, err)
	_, err = repo.SetPlayback(&room.SetPlaybackParams{RoomID: "r1", IsPlaying: true, PositionSeconds: 30, At: now})
	require.NoError(t, err)

	state, err := repo.ChangeMedia(&room.ChangeMediaParams{
		RoomID:   "r1",
		MediaRef: "track-2",
		Item:     &room.MediaItem{MediaRef: "track-2", Title: "Second"},
		At:       now,
	})
	require.NoError(t, err)
	assert.Equal(t, "track-2", state.MediaRef)
	assert.False(t, state.IsPlaying)
	assert.Equal(t, 0.0, state.PositionSeconds)
	require.NotNil(t, state.CurrentItem)
	assert.Equal(t, "Second", state.CurrentItem.Title)
}

func TestQueueOperations(t *testing.T) {
	repo := NewRepo()
	now := time.Now()

	_, err := repo.Join(&room.JoinParams{RoomID: "r1", SessionID: "s1", MediaRef: "track-0", At: now})
	require.NoError(t, err)

	for _, ref := range []string{"q1", "q2", "q3"} {
		_, err := repo.Enqueue(&room.EnqueueParams{RoomID: "r1", Item: room.MediaItem{MediaRef: ref}})
		require.NoError(t, err)
	}

	// out of bounds removals are no-ops
	_, changed, err := repo.RemoveFromQueue(&room.RemoveFromQueueParams{RoomID: "r1", Index: 3})
	require.NoError(t, err)
	assert.False(t, changed)
	_, changed, err = repo.RemoveFromQueue(&room.RemoveFromQueueParams{RoomID: "r1", Index: -1})
	require.NoError(t, err)
	assert.False(t, changed)

	state, changed, err := repo.RemoveFromQueue(&room.RemoveFromQueueParams{RoomID: "r1", Index: 1})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []room.MediaItem{{MediaRef: "q1"}, {MediaRef: "q3"}}, state.Queue)

	state, advanced, err := repo.AdvanceQueue(&room.AdvanceQueueParams{RoomID: "r1", At: now})
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, "q1", state.MediaRef)
	assert.True(t, state.IsPlaying)
	assert.Equal(t, 0.0, state.PositionSeconds)
	assert.Equal(t, []room.MediaItem{{MediaRef: "q3"}}, state.Queue)

	state, err = repo.ClearQueue("r1")
	require.NoError(t, err)
	assert.Empty(t, state.Queue)

	// advancing an empty queue changes nothing
	state, advanced, err = repo.AdvanceQueue(&room.AdvanceQueueParams{RoomID: "r1", At: now})
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Equal(t, "q1", state.MediaRef)
}

func TestJumpToQueueIndexConsumesEntry(t *testing.T) {
	repo := NewRepo()
	now := time.Now()

	_, err := repo.Join(&room.JoinParams{RoomID: "r1", SessionID: "s1", MediaRef: "track-0", At: now})
	require.NoError(t, err)
	for _, ref := range []string{"q1", "q2", "q3"} {
		_, err := repo.Enqueue(&room.EnqueueParams{RoomID: "r1", Item: room.MediaItem{MediaRef: ref}})
		require.NoError(t, err)
	}

	state, jumped, err := repo.JumpToQueueIndex(&room.JumpToQueueIndexParams{RoomID: "r1", Index: 1, At: now})
	require.NoError(t, err)
	assert.True(t, jumped)
	assert.Equal(t, "q2", state.MediaRef)
	assert.True(t, state.IsPlaying)
	assert.Equal(t, []room.MediaItem{{MediaRef: "q1"}, {MediaRef: "q3"}}, state.Queue)

	// out of bounds: the unchanged state comes back
	state, jumped, err = repo.JumpToQueueIndex(&room.JumpToQueueIndexParams{RoomID: "r1", Index: 5, At: now})
	require.NoError(t, err)
	assert.False(t, jumped)
	assert.Equal(t, "q2", state.MediaRef)
	assert.Len(t, state.Queue, 2)
}
