package room

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	roomRepo "github.com/groovesync/server/internal/repository/room"
)

type EnqueueParams struct {
	SessionID string
	RoomID    string
	Item      MediaItem
}

type EnqueueResponse struct {
	Conns []*websocket.Conn
	Queue []MediaItem
}

func (s service) Enqueue(ctx context.Context, params *EnqueueParams) (EnqueueResponse, error) {
	state, err := s.roomRepo.Enqueue(&roomRepo.EnqueueParams{
		RoomID: params.RoomID,
		Item:   params.Item,
	})
	if err != nil {
		return EnqueueResponse{}, fmt.Errorf("failed to enqueue: %w", err)
	}

	return EnqueueResponse{
		Conns: s.connsFor(state.Members),
		Queue: queueOrEmpty(state.Queue),
	}, nil
}

type RemoveFromQueueParams struct {
	SessionID string
	RoomID    string
	Index     int
}

type RemoveFromQueueResponse struct {
	Conns []*websocket.Conn
	Queue []MediaItem
	// Changed is false on an out-of-bounds index; nothing is broadcast.
	Changed bool
}

func (s service) RemoveFromQueue(ctx context.Context, params *RemoveFromQueueParams) (RemoveFromQueueResponse, error) {
	state, changed, err := s.roomRepo.RemoveFromQueue(&roomRepo.RemoveFromQueueParams{
		RoomID: params.RoomID,
		Index:  params.Index,
	})
	if err != nil {
		return RemoveFromQueueResponse{}, fmt.Errorf("failed to remove from queue: %w", err)
	}

	resp := RemoveFromQueueResponse{Changed: changed, Queue: queueOrEmpty(state.Queue)}
	if changed {
		resp.Conns = s.connsFor(state.Members)
	}

	return resp, nil
}

type ClearQueueParams struct {
	SessionID string
	RoomID    string
}

type ClearQueueResponse struct {
	Conns []*websocket.Conn
	Queue []MediaItem
}

func (s service) ClearQueue(ctx context.Context, params *ClearQueueParams) (ClearQueueResponse, error) {
	state, err := s.roomRepo.ClearQueue(params.RoomID)
	if err != nil {
		return ClearQueueResponse{}, fmt.Errorf("failed to clear queue: %w", err)
	}

	return ClearQueueResponse{
		Conns: s.connsFor(state.Members),
		Queue: queueOrEmpty(state.Queue),
	}, nil
}

type AdvanceQueueParams struct {
	SessionID string
	RoomID    string
}

type AdvanceQueueResponse struct {
	// Advanced is false when the queue was empty; state is unchanged and
	// nothing is broadcast.
	Advanced bool
	Item     *MediaItem
	MediaRef string
	Queue    []MediaItem
	Conns    []*websocket.Conn
}

// AdvanceQueue pops the queue head and starts playing it from zero.
func (s service) AdvanceQueue(ctx context.Context, params *AdvanceQueueParams) (AdvanceQueueResponse, error) {
	state, advanced, err := s.roomRepo.AdvanceQueue(&roomRepo.AdvanceQueueParams{
		RoomID: params.RoomID,
		At:     s.now(),
	})
	if err != nil {
		return AdvanceQueueResponse{}, fmt.Errorf("failed to advance queue: %w", err)
	}
	if !advanced {
		return AdvanceQueueResponse{}, nil
	}

	return AdvanceQueueResponse{
		Advanced: true,
		Item:     state.CurrentItem,
		MediaRef: state.MediaRef,
		Queue:    queueOrEmpty(state.Queue),
		Conns:    s.connsFor(state.Members),
	}, nil
}

type JumpToQueueIndexParams struct {
	SessionID string
	RoomID    string
	Index     int
}

type JumpToQueueIndexResponse struct {
	Jumped   bool
	Item     *MediaItem
	MediaRef string
	Queue    []MediaItem
	Conns    []*websocket.Conn
}

// JumpToQueueIndex plays the queue entry at index immediately, consuming
// it and leaving the other entries in place.
func (s service) JumpToQueueIndex(ctx context.Context, params *JumpToQueueIndexParams) (JumpToQueueIndexResponse, error) {
	state, jumped, err := s.roomRepo.JumpToQueueIndex(&roomRepo.JumpToQueueIndexParams{
		RoomID: params.RoomID,
		Index:  params.Index,
		At:     s.now(),
	})
	if err != nil {
		return JumpToQueueIndexResponse{}, fmt.Errorf("failed to jump to queue index: %w", err)
	}
	if !jumped {
		return JumpToQueueIndexResponse{}, nil
	}

	return JumpToQueueIndexResponse{
		Jumped:   true,
		Item:     state.CurrentItem,
		MediaRef: state.MediaRef,
		Queue:    queueOrEmpty(state.Queue),
		Conns:    s.connsFor(state.Members),
	}, nil
}

func queueOrEmpty(queue []MediaItem) []MediaItem {
	if queue == nil {
		return []MediaItem{}
	}

	return queue
}
