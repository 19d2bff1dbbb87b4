package netconfig

import (
	"fmt"
	"slices"
)

// NodeConfig is the per-process configuration of a single node.
type NodeConfig struct {
	ID                  int      `yaml:"id" json:"id"`
	Name                string   `yaml:"name" json:"name"`
	Endpoint            string   `yaml:"endpoint" json:"endpoint"`
	Peers               []int    `yaml:"peers" json:"peers"`
	PeerEndpoints       []string `yaml:"peer_endpoints" json:"peer_endpoints"`
	InitialConnectivity int      `yaml:"initial_connectivity" json:"initial_connectivity"`
	Blacklist           []int    `yaml:"blacklist" json:"blacklist"`
	Genesis             bool     `yaml:"genesis,omitempty" json:"genesis,omitempty"`
}

// NodeName returns the conventional name for node id.
func NodeName(id int) string {
	return fmt.Sprintf("node-%d", id)
}

// Clone returns a deep copy.
func (c NodeConfig) Clone() NodeConfig {
	c.Peers = slices.Clone(c.Peers)
	c.PeerEndpoints = slices.Clone(c.PeerEndpoints)
	c.Blacklist = slices.Clone(c.Blacklist)
	return c
}

// Equal reports whether both configs describe the same node setup.
func (c NodeConfig) Equal(other NodeConfig) bool {
	return c.ID == other.ID &&
		c.Name == other.Name &&
		c.Endpoint == other.Endpoint &&
		c.InitialConnectivity == other.InitialConnectivity &&
		c.Genesis == other.Genesis &&
		slices.Equal(c.Peers, other.Peers) &&
		slices.Equal(c.PeerEndpoints, other.PeerEndpoints) &&
		slices.Equal(c.Blacklist, other.Blacklist)
}

// HasPeer reports whether id is in the peer set.
func (c NodeConfig) HasPeer(id int) bool {
	_, found := slices.BinarySearch(c.Peers, id)
	return found
}
