package netconfig

import (
	"context"

	"github.com/st3v3nmw/splitbrain/internal/topology"
)

// EdgeController enforces the physical links allowed by a matrix, e.g. by
// installing firewall rules between node endpoints.
type EdgeController interface {
	Apply(ctx context.Context, m *topology.Matrix) error
}

// NopEdgeController leaves link enforcement to the nodes' peer lists.
type NopEdgeController struct{}

func (NopEdgeController) Apply(context.Context, *topology.Matrix) error {
	return nil
}
