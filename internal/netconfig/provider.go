package netconfig

import (
	"fmt"
	"net"
	"slices"
	"strconv"

	"github.com/st3v3nmw/splitbrain/internal/topology"
)

// Provider derives per-node configs from a topology matrix.
// Node i listens on host:basePort+i.
type Provider struct {
	host     string
	basePort int
}

// NewProvider creates a provider for nodes listening on host from basePort.
func NewProvider(host string, basePort int) *Provider {
	return &Provider{host: host, basePort: basePort}
}

// Endpoint returns the listen endpoint of node id.
func (p *Provider) Endpoint(id int) string {
	return net.JoinHostPort(p.host, strconv.Itoa(p.basePort+id))
}

// DefaultConnectivity is the number of peers node id dials at startup:
// its neighbors with a lower index. Higher-indexed neighbors dial it.
func DefaultConnectivity(peers []int, id int) int {
	n := 0
	for _, peer := range peers {
		if peer < id {
			n++
		}
	}

	return n
}

// Derive builds one config per node. Peers are the matrix neighbors of a
// node minus its blacklist; overrides replace the default initial
// connectivity. The result is a pure function of the arguments.
func (p *Provider) Derive(m *topology.Matrix, blacklist map[int][]int, overrides map[int]int) ([]NodeConfig, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	n := m.Size()
	for id, value := range overrides {
		if id < 0 || id >= n {
			return nil, fmt.Errorf("connectivity override for unknown node %d", id)
		}
		if value < 0 {
			return nil, fmt.Errorf("connectivity override for node %d is negative: %d", id, value)
		}
	}

	for id := range blacklist {
		if id < 0 || id >= n {
			return nil, fmt.Errorf("blacklist for unknown node %d", id)
		}
	}

	configs := make([]NodeConfig, n)
	for id := range n {
		denied := slices.Clone(blacklist[id])
		slices.Sort(denied)
		denied = slices.Compact(denied)
		if denied == nil {
			denied = []int{}
		}

		peers := []int{}
		endpoints := []string{}
		for _, peer := range m.Neighbors(id) {
			if _, found := slices.BinarySearch(denied, peer); found {
				continue
			}
			peers = append(peers, peer)
			endpoints = append(endpoints, p.Endpoint(peer))
		}

		connectivity := DefaultConnectivity(peers, id)
		if value, ok := overrides[id]; ok {
			connectivity = value
		}

		configs[id] = NodeConfig{
			ID:                  id,
			Name:                NodeName(id),
			Endpoint:            p.Endpoint(id),
			Peers:               peers,
			PeerEndpoints:       endpoints,
			InitialConnectivity: connectivity,
			Blacklist:           denied,
		}
	}

	return configs, nil
}
