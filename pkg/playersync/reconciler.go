package playersync

import (
	"context"
	"math"
	"sync"
	"time"
)

// State is the reconciler's externally visible mode.
type State int

const (
	// StateIdle means the reconciler is not attached to a room.
	StateIdle State = iota
	// StateAwaitingSnapshot means a join was sent and the authoritative
	// snapshot has not arrived yet.
	StateAwaitingSnapshot
	// StateJoinGrace covers the settle window right after a snapshot,
	// while the local player is still ramping to the applied state.
	StateJoinGrace
	// StateSynced is steady state: local transitions are emitted.
	StateSynced
	// StateSuppressingEcho means remote state was just applied and the
	// resulting local player transitions must not be re-emitted.
	StateSuppressingEcho
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingSnapshot:
		return "awaiting-snapshot"
	case StateJoinGrace:
		return "join-grace"
	case StateSynced:
		return "synced"
	case StateSuppressingEcho:
		return "suppressing-echo"
	default:
		return "unknown"
	}
}

// Suppression windows per applied event kind.
const (
	suppressPlayPause   = 500 * time.Millisecond
	suppressSeek        = 300 * time.Millisecond
	suppressSnapshot    = 1500 * time.Millisecond
	suppressMediaChange = 2000 * time.Millisecond
	suppressSelfSeek    = 1000 * time.Millisecond
)

type Config struct {
	// PollInterval is how often the local player position is sampled for
	// manual seek detection.
	PollInterval time.Duration
	// DriftThreshold is the position delta, in seconds, beyond which a
	// sampled position counts as a manual seek.
	DriftThreshold float64
	// MinSyncGap is the minimum spacing between emitted seek syncs.
	MinSyncGap time.Duration
	// PlayPauseThrottle is the minimum spacing between emitted play or
	// pause actions.
	PlayPauseThrottle time.Duration
	// JoinGrace is how long after a snapshot local transitions are
	// treated as join noise.
	JoinGrace time.Duration
	// SnapshotTimeout bounds the wait for a snapshot after joining.
	SnapshotTimeout time.Duration
	// AutoAdvance emits advance-queue when the local player reports the
	// current item ended and the queue is non-empty.
	AutoAdvance bool
}

func (c *Config) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.DriftThreshold <= 0 {
		c.DriftThreshold = 1.5
	}
	if c.MinSyncGap <= 0 {
		c.MinSyncGap = 500 * time.Millisecond
	}
	if c.PlayPauseThrottle <= 0 {
		c.PlayPauseThrottle = time.Second
	}
	if c.JoinGrace <= 0 {
		c.JoinGrace = 2 * time.Second
	}
	if c.SnapshotTimeout <= 0 {
		c.SnapshotTimeout = 3 * time.Second
	}
}

// Reconciler keeps a local Player converged on the room's authoritative
// playback state while distinguishing genuine user actions from echoes of
// the remote state it applied itself.
type Reconciler struct {
	player  Player
	emitter Emitter
	cfg     Config

	mu               sync.Mutex
	base             State
	suppressUntil    time.Time
	graceUntil       time.Time
	snapshotDeadline time.Time

	// last position the reconciler trusts, and when it was trusted
	lastPos   float64
	lastPosAt time.Time
	playing   bool
	queueLen  int

	lastPlayPauseEmit time.Time
	lastSeekEmit      time.Time

	now  func() time.Time
	stop chan struct{}
	done chan struct{}
}

func NewReconciler(player Player, emitter Emitter, cfg Config) *Reconciler {
	cfg.withDefaults()
	return &Reconciler{
		player:  player,
		emitter: emitter,
		cfg:     cfg,
		base:    StateIdle,
		now:     time.Now,
	}
}

// State reports the effective mode, deriving the transient states from
// their deadlines.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked(r.now())
}

func (r *Reconciler) stateLocked(now time.Time) State {
	switch r.base {
	case StateIdle, StateAwaitingSnapshot:
		return r.base
	}
	if now.Before(r.suppressUntil) {
		return StateSuppressingEcho
	}
	if now.Before(r.graceUntil) {
		return StateJoinGrace
	}
	return StateSynced
}

// OnJoin arms the reconciler for an incoming snapshot. Call it right after
// sending join-room.
func (r *Reconciler) OnJoin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.base = StateAwaitingSnapshot
	r.snapshotDeadline = r.now().Add(r.cfg.SnapshotTimeout)
}

// OnLeave detaches the reconciler from the room.
func (r *Reconciler) OnLeave() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.base = StateIdle
	r.suppressUntil = time.Time{}
	r.graceUntil = time.Time{}
	r.queueLen = 0
}

// ApplySnapshot drives the player to the snapshot state, compensating for
// the time the snapshot spent in flight.
func (r *Reconciler) ApplySnapshot(s *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	pos := s.PositionSeconds
	if s.IsPlaying && s.ServerTimestamp > 0 {
		elapsed := now.Sub(time.UnixMilli(s.ServerTimestamp))
		if elapsed > 0 {
			pos += elapsed.Seconds()
		}
	}

	if err := r.player.Seek(pos); err != nil {
		return err
	}
	var err error
	if s.IsPlaying {
		err = r.player.Play()
	} else {
		err = r.player.Pause()
	}
	if err != nil {
		return err
	}

	r.base = StateSynced
	r.suppressUntil = now.Add(suppressSnapshot)
	// the grace period runs from the snapshot's arrival, not from the
	// join request, so a slow snapshot still gets the full settle window
	r.graceUntil = now.Add(r.cfg.JoinGrace)
	r.setKnownLocked(now, pos, s.IsPlaying)
	r.queueLen = len(s.Queue)
	return nil
}

// ApplyPlay applies a remote play action.
func (r *Reconciler) ApplyPlay(positionSeconds float64) error {
	return r.applyTransport(positionSeconds, true, suppressPlayPause)
}

// ApplyPause applies a remote pause action.
func (r *Reconciler) ApplyPause(positionSeconds float64) error {
	return r.applyTransport(positionSeconds, false, suppressPlayPause)
}

// ApplySeek applies a remote seek, preserving the sender's play state.
func (r *Reconciler) ApplySeek(positionSeconds float64, isPlaying bool) error {
	return r.applyTransport(positionSeconds, isPlaying, suppressSeek)
}

func (r *Reconciler) applyTransport(pos float64, isPlaying bool, window time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.player.Seek(pos); err != nil {
		return err
	}
	var err error
	if isPlaying {
		err = r.player.Play()
	} else {
		err = r.player.Pause()
	}
	if err != nil {
		return err
	}

	now := r.now()
	r.suppressUntil = laterOf(r.suppressUntil, now.Add(window))
	r.setKnownLocked(now, pos, isPlaying)
	return nil
}

// ApplyMediaChange resets tracking for a new media item. The server leaves
// a fresh item paused at zero; loading the media itself is the caller's
// concern.
func (r *Reconciler) ApplyMediaChange() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.suppressUntil = laterOf(r.suppressUntil, now.Add(suppressMediaChange))
	r.setKnownLocked(now, 0, false)
}

// ApplyTimeUpdate handles the host's periodic drift broadcast. Small drift
// is absorbed silently; beyond the threshold the player is snapped.
func (r *Reconciler) ApplyTimeUpdate(positionSeconds float64, isPlaying bool, serverTimestamp int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	pos := positionSeconds
	if isPlaying && serverTimestamp > 0 {
		elapsed := now.Sub(time.UnixMilli(serverTimestamp))
		if elapsed > 0 {
			pos += elapsed.Seconds()
		}
	}

	current, err := r.player.CurrentPosition()
	if err != nil {
		return err
	}
	if math.Abs(current-pos) > r.cfg.DriftThreshold {
		if err := r.player.Seek(pos); err != nil {
			return err
		}
		r.suppressUntil = laterOf(r.suppressUntil, now.Add(suppressSeek))
	}
	r.setKnownLocked(now, pos, isPlaying)
	return nil
}

// ApplyQueueUpdate records the queue length for auto advance decisions.
func (r *Reconciler) ApplyQueueUpdate(queueLen int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queueLen = queueLen
}

// OnPlayerEvent reacts to a local player transition. Only genuine user
// actions reach the emitter: anything inside a suppression window or the
// join grace period is dropped, and buffering never propagates.
func (r *Reconciler) OnPlayerEvent(ev PlayerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	switch ev {
	case EventPlaying, EventPaused:
		if r.stateLocked(now) != StateSynced {
			return nil
		}
		if now.Sub(r.lastPlayPauseEmit) < r.cfg.PlayPauseThrottle {
			return nil
		}
		pos, err := r.player.CurrentPosition()
		if err != nil {
			return err
		}
		playing := ev == EventPlaying
		if playing {
			err = r.emitter.EmitPlay(pos)
		} else {
			err = r.emitter.EmitPause(pos)
		}
		if err != nil {
			return err
		}
		r.lastPlayPauseEmit = now
		r.setKnownLocked(now, pos, playing)
	case EventEnded:
		if r.cfg.AutoAdvance && r.queueLen > 0 && r.base != StateIdle {
			return r.emitter.EmitAdvanceQueue()
		}
	}
	return nil
}

// Start runs the position poll until ctx is cancelled or Stop is called.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.stop != nil {
		r.mu.Unlock()
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stop, r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				r.Poll()
			}
		}
	}()
}

// Stop halts the poll loop and waits for it to exit.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Poll samples the player once. The background loop calls this on every
// tick; tests call it directly.
func (r *Reconciler) Poll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.base == StateAwaitingSnapshot {
		if now.After(r.snapshotDeadline) {
			// snapshot never came, stop holding the player hostage
			r.base = StateSynced
		}
		return
	}
	if r.stateLocked(now) != StateSynced {
		return
	}

	pos, err := r.player.CurrentPosition()
	if err != nil {
		return
	}

	expected := r.lastPos
	if r.playing {
		expected += now.Sub(r.lastPosAt).Seconds()
	}

	if math.Abs(pos-expected) > r.cfg.DriftThreshold &&
		now.Sub(r.lastSeekEmit) >= r.cfg.MinSyncGap {
		playing := r.playing
		if paused, err := r.player.IsPaused(); err == nil {
			playing = !paused
		}
		// the user scrubbed the local player: announce it once and
		// ignore the resulting transitions
		r.suppressUntil = laterOf(r.suppressUntil, now.Add(suppressSelfSeek))
		if err := r.emitter.EmitSeek(pos, playing); err == nil {
			r.lastSeekEmit = now
		}
		r.setKnownLocked(now, pos, playing)
		return
	}

	r.setKnownLocked(now, pos, r.playing)
}

func (r *Reconciler) setKnownLocked(now time.Time, pos float64, playing bool) {
	r.lastPos = pos
	r.lastPosAt = now
	r.playing = playing
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
