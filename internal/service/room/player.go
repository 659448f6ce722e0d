package room

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	roomRepo "github.com/groovesync/server/internal/repository/room"
)

type PlayParams struct {
	SessionID string
	RoomID    string
	Time      float64
}

type PlayResponse struct {
	// Conns excludes the sender, who already applied the action locally.
	Conns []*websocket.Conn
}

func (s service) Play(ctx context.Context, params *PlayParams) (PlayResponse, error) {
	state, err := s.roomRepo.SetPlayback(&roomRepo.SetPlaybackParams{
		RoomID:          params.RoomID,
		IsPlaying:       true,
		PositionSeconds: params.Time,
		At:              s.now(),
	})
	if err != nil {
		return PlayResponse{}, fmt.Errorf("failed to set playback: %w", err)
	}

	return PlayResponse{Conns: s.connsFor(state.Members, params.SessionID)}, nil
}

type PauseParams struct {
	SessionID string
	RoomID    string
	Time      float64
}

type PauseResponse struct {
	Conns []*websocket.Conn
}

func (s service) Pause(ctx context.Context, params *PauseParams) (PauseResponse, error) {
	state, err := s.roomRepo.SetPlayback(&roomRepo.SetPlaybackParams{
		RoomID:          params.RoomID,
		IsPlaying:       false,
		PositionSeconds: params.Time,
		At:              s.now(),
	})
	if err != nil {
		return PauseResponse{}, fmt.Errorf("failed to set playback: %w", err)
	}

	return PauseResponse{Conns: s.connsFor(state.Members, params.SessionID)}, nil
}

type SeekParams struct {
	SessionID string
	RoomID    string
	Time      float64
	// IsPlaying optionally overrides the playing state; nil keeps it.
	IsPlaying *bool
}

type SeekResponse struct {
	Conns     []*websocket.Conn
	IsPlaying bool
}

func (s service) Seek(ctx context.Context, params *SeekParams) (SeekResponse, error) {
	state, err := s.roomRepo.Seek(&roomRepo.SeekParams{
		RoomID:          params.RoomID,
		PositionSeconds: params.Time,
		IsPlayingHint:   params.IsPlaying,
		At:              s.now(),
	})
	if err != nil {
		return SeekResponse{}, fmt.Errorf("failed to seek: %w", err)
	}

	return SeekResponse{
		Conns:     s.connsFor(state.Members, params.SessionID),
		IsPlaying: state.IsPlaying,
	}, nil
}

type ChangeMediaParams struct {
	SessionID string
	RoomID    string
	MediaRef  string
	Item      *MediaItem
}

type ChangeMediaResponse struct {
	// Conns includes the sender: the authoritative reset (position zero,
	// paused) is canonical and must override any optimistic local state.
	Conns    []*websocket.Conn
	MediaRef string
	Item     *MediaItem
}

func (s service) ChangeMedia(ctx context.Context, params *ChangeMediaParams) (ChangeMediaResponse, error) {
	state, err := s.roomRepo.ChangeMedia(&roomRepo.ChangeMediaParams{
		RoomID:   params.RoomID,
		MediaRef: params.MediaRef,
		Item:     params.Item,
		At:       s.now(),
	})
	if err != nil {
		return ChangeMediaResponse{}, fmt.Errorf("failed to change media: %w", err)
	}

	return ChangeMediaResponse{
		Conns:    s.connsFor(state.Members),
		MediaRef: state.MediaRef,
		Item:     state.CurrentItem,
	}, nil
}

type SyncTimeParams struct {
	SessionID string
	RoomID    string
	Time      float64
	IsPlaying bool
}

type SyncTimeResponse struct {
	Conns     []*websocket.Conn
	Timestamp int64
}

// SyncTime is the periodic authoritative drift broadcast. Only the host
// may emit it; anyone else gets ErrPermissionDenied, which callers drop
// silently.
func (s service) SyncTime(ctx context.Context, params *SyncTimeParams) (SyncTimeResponse, error) {
	state, err := s.roomRepo.GetState(params.RoomID)
	if err != nil {
		return SyncTimeResponse{}, fmt.Errorf("failed to get room state: %w", err)
	}
	if state.HostID != params.SessionID {
		return SyncTimeResponse{}, ErrPermissionDenied
	}

	now := s.now()
	state, err = s.roomRepo.SetPlayback(&roomRepo.SetPlaybackParams{
		RoomID:          params.RoomID,
		IsPlaying:       params.IsPlaying,
		PositionSeconds: params.Time,
		At:              now,
	})
	if err != nil {
		return SyncTimeResponse{}, fmt.Errorf("failed to set playback: %w", err)
	}

	return SyncTimeResponse{
		Conns:     s.connsFor(state.Members, params.SessionID),
		Timestamp: now.UnixMilli(),
	}, nil
}

type UpdateCurrentItemParams struct {
	SessionID string
	RoomID    string
	Item      MediaItem
}

type UpdateCurrentItemResponse struct {
	Conns []*websocket.Conn
	Item  *MediaItem
}

// UpdateCurrentItem replaces the descriptive metadata of the current
// item without touching playback state.
func (s service) UpdateCurrentItem(ctx context.Context, params *UpdateCurrentItemParams) (UpdateCurrentItemResponse, error) {
	item := params.Item
	state, err := s.roomRepo.SetCurrentItem(params.RoomID, &item)
	if err != nil {
		return UpdateCurrentItemResponse{}, fmt.Errorf("failed to set current item: %w", err)
	}

	return UpdateCurrentItemResponse{
		Conns: s.connsFor(state.Members),
		Item:  state.CurrentItem,
	}, nil
}
