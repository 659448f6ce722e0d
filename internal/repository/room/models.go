package room

import "time"

// MediaItem describes one playable media entry. Only MediaRef matters for
// sync; the rest is descriptive metadata shown in UIs.
type MediaItem struct {
	ID           int64  `json:"id,omitempty"`
	MediaRef     string `json:"mediaRef"`
	Title        string `json:"title,omitempty"`
	Artist       string `json:"artist,omitempty"`
	ArtworkURL   string `json:"artworkUrl,omitempty"`
	DurationMs   int64  `json:"durationMs,omitempty"`
	PermalinkURL string `json:"permalinkUrl,omitempty"`
}

// Room is a copy of the authoritative room record taken inside the
// store's critical section.
type Room struct {
	ID              string
	MediaRef        string
	CurrentItem     *MediaItem
	IsPlaying       bool
	PositionSeconds float64
	LastUpdateAt    time.Time
	HostID          string
	Members         []string
	Queue           []MediaItem
}
