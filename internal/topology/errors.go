package topology

import "fmt"

// InvalidTopologyError reports a malformed adjacency matrix.
// Row and Col are -1 when the problem is not tied to a single entry.
type InvalidTopologyError struct {
	Row    int
	Col    int
	Reason string
}

func (e *InvalidTopologyError) Error() string {
	switch {
	case e.Row < 0:
		return fmt.Sprintf("invalid topology: %s", e.Reason)
	case e.Col < 0:
		return fmt.Sprintf("invalid topology: row %d: %s", e.Row, e.Reason)
	default:
		return fmt.Sprintf("invalid topology: entry (%d,%d): %s", e.Row, e.Col, e.Reason)
	}
}

// TopologySizeMismatchError is returned when two matrices of different
// sizes are compared.
type TopologySizeMismatchError struct {
	Want int
	Got  int
}

func (e *TopologySizeMismatchError) Error() string {
	return fmt.Sprintf("topology size mismatch: want %dx%d, got %dx%d", e.Want, e.Want, e.Got, e.Got)
}
