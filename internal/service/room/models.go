package room

import (
	roomRepo "github.com/groovesync/server/internal/repository/room"
)

type MediaItem = roomRepo.MediaItem

// Snapshot is the full room state sent to a joining member. Position is
// extrapolated server-side for elapsed playing time; ServerTimestamp lets
// the client compensate a second time for transit latency.
type Snapshot struct {
	RoomID          string      `json:"roomId"`
	MediaRef        string      `json:"mediaRef"`
	IsPlaying       bool        `json:"isPlaying"`
	PositionSeconds float64     `json:"positionSeconds"`
	IsHost          bool        `json:"isHost"`
	MemberCount     int         `json:"memberCount"`
	ServerTimestamp int64       `json:"serverTimestamp"`
	Queue           []MediaItem `json:"queue"`
	CurrentItem     *MediaItem  `json:"currentItem,omitempty"`
}

type ChatMessage struct {
	ID          string `json:"id"`
	SenderID    string `json:"senderId"`
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
	SentAt      int64  `json:"sentAt"`
}

type RoomInfo struct {
	RoomID          string  `json:"roomId"`
	MediaRef        string  `json:"mediaRef"`
	IsPlaying       bool    `json:"isPlaying"`
	PositionSeconds float64 `json:"positionSeconds"`
	MemberCount     int     `json:"memberCount"`
}
