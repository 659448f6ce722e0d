package inmemory

import (
	"slices"
	"sync"
	"time"

	"github.com/groovesync/server/internal/repository/room"
)

// record is one room's authoritative state. Every mutation happens under
// the record mutex, so a read-modify-write is atomic per room regardless
// of how many connections act on it concurrently.
type record struct {
	mu      sync.Mutex
	deleted bool

	id              string
	mediaRef        string
	currentItem     *room.MediaItem
	isPlaying       bool
	positionSeconds float64
	lastUpdateAt    time.Time
	hostID          string
	members         []string
	queue           []room.MediaItem
}

func (rec *record) snapshot() room.Room {
	var item *room.MediaItem
	if rec.currentItem != nil {
		itemCopy := *rec.currentItem
		item = &itemCopy
	}

	return room.Room{
		ID:              rec.id,
		MediaRef:        rec.mediaRef,
		CurrentItem:     item,
		IsPlaying:       rec.isPlaying,
		PositionSeconds: rec.positionSeconds,
		LastUpdateAt:    rec.lastUpdateAt,
		HostID:          rec.hostID,
		Members:         slices.Clone(rec.members),
		Queue:           slices.Clone(rec.queue),
	}
}

// repo owns the room map. Rooms are created on first join and deleted
// when the last member leaves; nothing survives the process.
type repo struct {
	mu    sync.RWMutex
	rooms map[string]*record
}

func NewRepo() *repo {
	return &repo{rooms: make(map[string]*record)}
}

func (r *repo) get(roomID string) (*record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.rooms[roomID]
	return rec, ok
}

// withRoom runs fn with the room's lock held. A room marked deleted is
// treated the same as a missing one.
func (r *repo) withRoom(roomID string, fn func(rec *record) error) error {
	rec, ok := r.get(roomID)
	if !ok {
		return room.ErrRoomNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.deleted {
		return room.ErrRoomNotFound
	}

	return fn(rec)
}

func (r *repo) Join(params *room.JoinParams) (room.JoinResult, error) {
	for {
		r.mu.Lock()
		rec, ok := r.rooms[params.RoomID]
		if !ok {
			rec = &record{
				id:           params.RoomID,
				mediaRef:     params.MediaRef,
				hostID:       params.SessionID,
				members:      []string{params.SessionID},
				lastUpdateAt: params.At,
			}
			r.rooms[params.RoomID] = rec
			result := room.JoinResult{Created: true, Room: rec.snapshot()}
			r.mu.Unlock()
			return result, nil
		}
		r.mu.Unlock()

		rec.mu.Lock()
		if rec.deleted {
			// lost the race against the last leave, retry against a fresh map
			rec.mu.Unlock()
			continue
		}
		if !slices.Contains(rec.members, params.SessionID) {
			rec.members = append(rec.members, params.SessionID)
		}
		result := room.JoinResult{Room: rec.snapshot()}
		rec.mu.Unlock()
		return result, nil
	}
}

func (r *repo) Leave(params *room.LeaveParams) (room.LeaveResult, error) {
	rec, ok := r.get(params.RoomID)
	if !ok {
		return room.LeaveResult{}, room.ErrRoomNotFound
	}

	rec.mu.Lock()
	idx := slices.Index(rec.members, params.SessionID)
	if rec.deleted || idx < 0 {
		rec.mu.Unlock()
		return room.LeaveResult{}, nil
	}

	rec.members = slices.Delete(rec.members, idx, idx+1)

	result := room.LeaveResult{Left: true, Members: slices.Clone(rec.members)}
	if len(rec.members) == 0 {
		rec.deleted = true
		result.RoomDeleted = true
	} else if rec.hostID == params.SessionID {
		// re-elect before releasing the lock so no later action sees a
		// host that is gone
		rec.hostID = rec.members[0]
		result.NewHostID = rec.hostID
	}
	rec.mu.Unlock()

	if result.RoomDeleted {
		r.mu.Lock()
		if cur, ok := r.rooms[params.RoomID]; ok && cur == rec {
			delete(r.rooms, params.RoomID)
		}
		r.mu.Unlock()
	}

	return result, nil
}

func (r *repo) GetState(roomID string) (room.Room, error) {
	var state room.Room
	err := r.withRoom(roomID, func(rec *record) error {
		state = rec.snapshot()
		return nil
	})

	return state, err
}

func (r *repo) SetPlayback(params *room.SetPlaybackParams) (room.Room, error) {
	var state room.Room
	err := r.withRoom(params.RoomID, func(rec *record) error {
		rec.isPlaying = params.IsPlaying
		rec.positionSeconds = params.PositionSeconds
		rec.lastUpdateAt = params.At
		state = rec.snapshot()
		return nil
	})

	return state, err
}

func (r *repo) Seek(params *room.SeekParams) (room.Room, error) {
	var state room.Room
	err := r.withRoom(params.RoomID, func(rec *record) error {
		rec.positionSeconds = params.PositionSeconds
		if params.IsPlayingHint != nil {
			rec.isPlaying = *params.IsPlayingHint
		}
		rec.lastUpdateAt = params.At
		state = rec.snapshot()
		return nil
	})

	return state, err
}

func (r *repo) ChangeMedia(params *room.ChangeMediaParams) (room.Room, error) {
	var state room.Room
	err := r.withRoom(params.RoomID, func(rec *record) error {
		rec.mediaRef = params.MediaRef
		rec.currentItem = params.Item
		rec.positionSeconds = 0
		rec.isPlaying = false
		rec.lastUpdateAt = params.At
		state = rec.snapshot()
		return nil
	})

	return state, err
}

func (r *repo) SetCurrentItem(roomID string, item *room.MediaItem) (room.Room, error) {
	var state room.Room
	err := r.withRoom(roomID, func(rec *record) error {
		rec.currentItem = item
		state = rec.snapshot()
		return nil
	})

	return state, err
}

func (r *repo) Enqueue(params *room.EnqueueParams) (room.Room, error) {
	var state room.Room
	err := r.withRoom(params.RoomID, func(rec *record) error {
		rec.queue = append(rec.queue, params.Item)
		state = rec.snapshot()
		return nil
	})

	return state, err
}

// RemoveFromQueue is a no-op when the index is out of bounds; changed
// reports whether the queue was actually touched.
func (r *repo) RemoveFromQueue(params *room.RemoveFromQueueParams) (room.Room, bool, error) {
	var (
		state   room.Room
		changed bool
	)
	err := r.withRoom(params.RoomID, func(rec *record) error {
		if params.Index >= 0 && params.Index < len(rec.queue) {
			rec.queue = slices.Delete(rec.queue, params.Index, params.Index+1)
			changed = true
		}
		state = rec.snapshot()
		return nil
	})

	return state, changed, err
}

func (r *repo) ClearQueue(roomID string) (room.Room, error) {
	var state room.Room
	err := r.withRoom(roomID, func(rec *record) error {
		rec.queue = nil
		state = rec.snapshot()
		return nil
	})

	return state, err
}

// AdvanceQueue pops the queue head and promotes it to the current item,
// starting playback from zero. An empty queue leaves the room untouched.
func (r *repo) AdvanceQueue(params *room.AdvanceQueueParams) (room.Room, bool, error) {
	var (
		state    room.Room
		advanced bool
	)
	err := r.withRoom(params.RoomID, func(rec *record) error {
		if len(rec.queue) == 0 {
			state = rec.snapshot()
			return nil
		}

		item := rec.queue[0]
		rec.queue = slices.Delete(rec.queue, 0, 1)
		rec.currentItem = &item
		rec.mediaRef = item.MediaRef
		rec.positionSeconds = 0
		rec.isPlaying = true
		rec.lastUpdateAt = params.At
		advanced = true
		state = rec.snapshot()
		return nil
	})

	return state, advanced, err
}

// JumpToQueueIndex promotes the item at index to the current item. The
// jumped entry is consumed; the rest of the queue is untouched.
func (r *repo) JumpToQueueIndex(params *room.JumpToQueueIndexParams) (room.Room, bool, error) {
	var (
		state  room.Room
		jumped bool
	)
	err := r.withRoom(params.RoomID, func(rec *record) error {
		if params.Index < 0 || params.Index >= len(rec.queue) {
			state = rec.snapshot()
			return nil
		}

		item := rec.queue[params.Index]
		rec.queue = slices.Delete(rec.queue, params.Index, params.Index+1)
		rec.currentItem = &item
		rec.mediaRef = item.MediaRef
		rec.positionSeconds = 0
		rec.isPlaying = true
		rec.lastUpdateAt = params.At
		jumped = true
		state = rec.snapshot()
		return nil
	})

	return state, jumped, err
}

func (r *repo) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}
