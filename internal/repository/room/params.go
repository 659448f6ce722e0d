package room

import "time"

type JoinParams struct {
	RoomID    string
	SessionID string
	MediaRef  string
	At        time.Time
}

type JoinResult struct {
	Created bool
	Room    Room
}

type LeaveParams struct {
	RoomID    string
	SessionID string
}

type LeaveResult struct {
	Left        bool
	RoomDeleted bool
	NewHostID   string
	Members     []string
}

type SetPlaybackParams struct {
	RoomID          string
	IsPlaying       bool
	PositionSeconds float64
	At              time.Time
}

type SeekParams struct {
	RoomID          string
	PositionSeconds float64
	IsPlayingHint   *bool
	At              time.Time
}

type ChangeMediaParams struct {
	RoomID   string
	MediaRef string
	Item     *MediaItem
	At       time.Time
}

type EnqueueParams struct {
	RoomID string
	Item   MediaItem
}

type RemoveFromQueueParams struct {
	RoomID string
	Index  int
}

type JumpToQueueIndexParams struct {
	RoomID string
	Index  int
	At     time.Time
}

type AdvanceQueueParams struct {
	RoomID string
	At     time.Time
}
