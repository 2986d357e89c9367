package bulkload

// State is the lifecycle position of a Pipeline.
type State int

const (
	StateIdle State = iota
	StateConnected
	StatePreparing
	StateStreaming
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StatePreparing:
		return "preparing"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
