package session

// Status is a session's lifecycle state. A session is Idle between turns,
// Streaming while exactly one turn is in flight, and Cancelled or Failed
// after a turn ended abnormally. Cancelled and Failed are resting states like
// Idle: the next SendTurn leaves them.
type Status int32

const (
	StatusIdle Status = iota
	StatusStreaming
	StatusCancelled
	StatusFailed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStreaming:
		return "streaming"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Busy reports whether the session currently holds an in-flight stream.
func (s Status) Busy() bool {
	return s == StatusStreaming
}
