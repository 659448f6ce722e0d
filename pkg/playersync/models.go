package playersync

// MediaItem mirrors the server's queue entry shape.
type MediaItem struct {
	ID           int64  `json:"id,omitempty"`
	MediaRef     string `json:"mediaRef"`
	Title        string `json:"title,omitempty"`
	Artist       string `json:"artist,omitempty"`
	ArtworkURL   string `json:"artworkUrl,omitempty"`
	DurationMs   int64  `json:"durationMs,omitempty"`
	PermalinkURL string `json:"permalinkUrl,omitempty"`
}

// Snapshot is the authoritative room state delivered on join.
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

// ChatMessage is a relayed chat line.
type ChatMessage struct {
	ID          string `json:"id"`
	SenderID    string `json:"senderId"`
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
	SentAt      int64  `json:"sentAt"`
}
