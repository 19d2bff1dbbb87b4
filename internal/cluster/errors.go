package cluster

import (
	"fmt"
	"strings"
)

// PhaseError is returned when an operation is not legal in the current phase.
type PhaseError struct {
	Op    string
	Phase Phase
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("cannot %s while cluster is %s", e.Op, e.Phase)
}

// GenesisTimeoutError is returned when the genesis nodes did not seed the
// ledger in time. Nodes lists the genesis nodes that did not complete.
type GenesisTimeoutError struct {
	Nodes []int
	Err   error
}

func (e *GenesisTimeoutError) Error() string {
	return fmt.Sprintf("genesis did not complete on nodes %v: %v", e.Nodes, e.Err)
}

func (e *GenesisTimeoutError) Unwrap() error {
	return e.Err
}

// LaunchFailureError names the first node that did not reach Live.
type LaunchFailureError struct {
	NodeID int
	Err    error
}

func (e *LaunchFailureError) Error() string {
	return fmt.Sprintf("launch failed: node %d did not become live: %v", e.NodeID, e.Err)
}

func (e *LaunchFailureError) Unwrap() error {
	return e.Err
}

// UpdatePartialFailureError lists the nodes that could not be reconfigured.
// The topology update was rolled back.
type UpdatePartialFailureError struct {
	FailedNodeIDs []int
	Errs          map[int]error
}

func (e *UpdatePartialFailureError) Error() string {
	parts := make([]string, 0, len(e.FailedNodeIDs))
	for _, id := range e.FailedNodeIDs {
		parts = append(parts, fmt.Sprintf("node %d: %v", id, e.Errs[id]))
	}

	return fmt.Sprintf("topology update failed on nodes %v: %s", e.FailedNodeIDs, strings.Join(parts, "; "))
}

// Unwrap exposes the per-node causes to errors.Is and errors.As.
func (e *UpdatePartialFailureError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errs))
	for _, id := range e.FailedNodeIDs {
		errs = append(errs, e.Errs[id])
	}

	return errs
}
