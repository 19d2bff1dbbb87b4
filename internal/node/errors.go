package node

import "fmt"

// ReconfigurationRejectedError is returned by Apply when the node is not Live.
type ReconfigurationRejectedError struct {
	NodeID int
	State  State
}

func (e *ReconfigurationRejectedError) Error() string {
	return fmt.Sprintf("node %d: reconfiguration rejected in state %s", e.NodeID, e.State)
}

// StateError is returned when an operation is not legal in the node's
// current state.
type StateError struct {
	NodeID int
	Op     string
	State  State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("node %d: cannot %s in state %s", e.NodeID, e.Op, e.State)
}
