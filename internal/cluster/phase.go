package cluster

// Phase is the lifecycle phase of the whole cluster.
type Phase int

const (
	Unconfigured Phase = iota
	// Configured: matrix validated and node configs derived, nothing running.
	Configured
	Genesis
	// Ready: genesis completed, waiting for Launch.
	Ready
	Running
	Updating
	ShuttingDown
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case Genesis:
		return "genesis"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Updating:
		return "updating"
	case ShuttingDown:
		return "shutting-down"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
