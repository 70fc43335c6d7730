package bridge

// State is where a deposit action currently is
type State int32

const (
	StateIdle State = iota
	StateSwitchingNetwork
	StateQuoting
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSwitchingNetwork:
		return "switching-network"
	case StateQuoting:
		return "quoting"
	case StateExecuting:
		return "executing"
	default:
		return "unknown"
	}
}
