package recorder

import "time"

// State is the recorder lifecycle state.
type State int

const (
	// StateIdle means no capture device is held.
	StateIdle State = iota
	// StateStarting means a capture device is being opened.
	StateStarting
	// StateRecording means blocks are being accumulated.
	StateRecording
	// StateStopping means the device is being released and audio drained.
	StateStopping
)

// String returns a human-readable state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session describes the active recording session.
type Session struct {
	// ID is a unique identifier for the session.
	ID string `json:"id"`

	// TargetRate is the caller-requested output rate in Hz.
	TargetRate int `json:"target_rate"`

	// NativeRate is the rate granted by the device in Hz.
	NativeRate int `json:"native_rate"`

	// StartedAt is when the device was opened.
	StartedAt time.Time `json:"started_at"`
}

// Stats holds recorder counters.
type Stats struct {
	Starts        int64 `json:"starts"`
	Stops         int64 `json:"stops"`
	EmptyStops    int64 `json:"empty_stops"`
	Restarts      int64 `json:"restarts"`
	Cleanups      int64 `json:"cleanups"`
	CloseFailures int64 `json:"close_failures"`
	DroppedChunks int64 `json:"dropped_chunks"`
}

// Status is a point-in-time snapshot of the recorder.
type Status struct {
	State   State    `json:"state"`
	Session *Session `json:"session,omitempty"`

	// BufferedSamples is the number of samples accumulated so far.
	BufferedSamples int `json:"buffered_samples"`

	Stats Stats `json:"stats"`
}
