package playersync

// Player is the local media player the reconciler drives. Implementations
// wrap whatever widget actually renders audio or video; calls must be safe
// from the reconciler's goroutine.
type Player interface {
	Play() error
	Pause() error
	Seek(seconds float64) error
	CurrentPosition() (float64, error)
	IsPaused() (bool, error)
}

// PlayerEvent is a lifecycle notification from the local player.
type PlayerEvent int

const (
	EventReady PlayerEvent = iota
	EventPlaying
	EventPaused
	EventBuffering
	EventEnded
	EventError
)

func (e PlayerEvent) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventPlaying:
		return "playing"
	case EventPaused:
		return "paused"
	case EventBuffering:
		return "buffering"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Emitter sends user-intent actions to the room. The reconciler calls it
// only for actions that originate locally, never for applied remote state.
type Emitter interface {
	EmitPlay(positionSeconds float64) error
	EmitPause(positionSeconds float64) error
	EmitSeek(positionSeconds float64, isPlaying bool) error
	EmitAdvanceQueue() error
}
