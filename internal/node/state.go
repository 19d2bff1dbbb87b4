package node

// State is the lifecycle state of a single node process.
type State int

const (
	NotStarted State = iota
	Starting
	Live
	Reconfiguring
	Stopping
	Stopped
	// Failed means Start did not reach Live and the process was torn down.
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Starting:
		return "starting"
	case Live:
		return "live"
	case Reconfiguring:
		return "reconfiguring"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// startable reports whether Start may be called from s.
func (s State) startable() bool {
	return s == NotStarted || s == Stopped || s == Failed
}
