package call

// Status is the lifecycle state of a call session. Keep values stable: they
// are the wire values reported by the backend.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusInitiated Status = "initiated"
	StatusRinging   Status = "ringing"
	StatusAnswered  Status = "answered"
	StatusOnHold    Status = "on_hold"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Active reports whether the call is eligible for mute/hold/end.
func (s Status) Active() bool {
	return s == StatusInitiated || s == StatusRinging || s == StatusAnswered
}

// Terminal reports whether the call has reached a final outcome.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Display returns a short human-readable label.
func (s Status) Display() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusInitiated:
		return "Connecting..."
	case StatusRinging:
		return "Ringing..."
	case StatusAnswered:
		return "In Progress"
	case StatusOnHold:
		return "On Hold"
	case StatusCompleted:
		return "Call Ended"
	case StatusFailed:
		return "Call Failed"
	default:
		return string(s)
	}
}
