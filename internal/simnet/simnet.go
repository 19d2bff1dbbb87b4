// Package simnet is an in-process stand-in for a cluster of ledger nodes.
//
// Links follow the node configs: nodes i and j are connected when both are
// live, list each other as peers, the edge rules allow the pair, and at
// least one of them dials the other (a node dials the first
// InitialConnectivity entries of its peer list). Connected nodes gossip
// instantly: every observation first settles each connected component on
// its longest chain, ties going to the greater head id.
package simnet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/st3v3nmw/splitbrain/internal/netconfig"
	"github.com/st3v3nmw/splitbrain/internal/node"
	"github.com/st3v3nmw/splitbrain/internal/oracle"
	"github.com/st3v3nmw/splitbrain/internal/topology"
	"github.com/st3v3nmw/splitbrain/internal/workload"
)

// ErrUnreachable is returned for nodes that are not live.
var ErrUnreachable = errors.New("node unreachable")

type simNode struct {
	id       int
	endpoint string
	live     bool
	config   netconfig.NodeConfig
	chain    []string
	events   []string
}

func (n *simNode) head() string {
	if len(n.chain) == 0 {
		return ""
	}

	return n.chain[len(n.chain)-1]
}

func (n *simNode) dials(peer int) bool {
	k := min(n.config.InitialConnectivity, len(n.config.Peers))
	return slices.Contains(n.config.Peers[:k], peer)
}

// Faults makes selected nodes misbehave.
type Faults struct {
	// StartFail nodes fail to spawn.
	StartFail map[int]bool
	// NeverLive nodes spawn but never answer probes.
	NeverLive map[int]bool
	// ApplyFail nodes reject live reconfiguration.
	ApplyFail map[int]bool
	// StopFail nodes report an error on teardown.
	StopFail map[int]bool
}

// Network is a simulated cluster. It implements the node driver factory,
// the edge controller, the node query interface and the workload client.
type Network struct {
	mu      sync.Mutex
	nodes   map[int]*simNode
	byAddr  map[string]*simNode
	edges   *topology.Matrix
	genesis string
	faults  Faults
	txns    int
}

// New creates an empty network. Nodes appear as the cluster starts them.
func New() *Network {
	return &Network{
		nodes:  make(map[int]*simNode),
		byAddr: make(map[string]*simNode),
	}
}

// SetFaults replaces the fault plan.
func (n *Network) SetFaults(f Faults) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.faults = f
}

func (n *Network) nodeLocked(id int) *simNode {
	sn, ok := n.nodes[id]
	if !ok {
		sn = &simNode{id: id}
		n.nodes[id] = sn
	}

	return sn
}

// Factory returns a driver factory whose drivers act on this network.
func (n *Network) Factory() node.DriverFactory {
	return func(id int, _ string) node.Driver {
		return &driver{net: n, id: id}
	}
}

// Apply records the edge rules; implements netconfig.EdgeController.
func (n *Network) Apply(_ context.Context, m *topology.Matrix) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.edges = m
	return nil
}

var _ netconfig.EdgeController = (*Network)(nil)

// Live reports whether node id is running.
func (n *Network) Live(id int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	sn, ok := n.nodes[id]
	return ok && sn.live
}

// Config returns the config node id is running with.
func (n *Network) Config(id int) netconfig.NodeConfig {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.nodeLocked(id).config.Clone()
}

func (n *Network) linked(a, b *simNode) bool {
	if !a.live || !b.live {
		return false
	}

	if n.edges != nil && n.edges.At(a.id, b.id) == 0 {
		return false
	}

	if !a.config.HasPeer(b.id) || !b.config.HasPeer(a.id) {
		return false
	}

	return a.dials(b.id) || b.dials(a.id)
}

// Components returns the connected components of live nodes, each sorted,
// ordered by their lowest node id.
func (n *Network) Components() [][]int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.componentsLocked()
}

func (n *Network) componentsLocked() [][]int {
	ids := make([]int, 0, len(n.nodes))
	for id, sn := range n.nodes {
		if sn.live {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	seen := make(map[int]bool)
	components := [][]int{}
	for _, start := range ids {
		if seen[start] {
			continue
		}

		component := []int{}
		queue := []int{start}
		seen[start] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			component = append(component, cur)

			for _, next := range ids {
				if !seen[next] && n.linked(n.nodes[cur], n.nodes[next]) {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}

		slices.Sort(component)
		components = append(components, component)
	}

	return components
}

// gossipLocked settles every component on its best chain.
func (n *Network) gossipLocked() {
	for _, component := range n.componentsLocked() {
		best := n.nodes[component[0]].chain
		for _, id := range component[1:] {
			chain := n.nodes[id].chain
			if len(chain) > len(best) || (len(chain) == len(best) && last(chain) > last(best)) {
				best = chain
			}
		}

		for _, id := range component {
			n.nodes[id].chain = slices.Clone(best)
		}
	}
}

func last(chain []string) string {
	if len(chain) == 0 {
		return ""
	}

	return chain[len(chain)-1]
}

func blockID(prev, payload string) string {
	sum := sha256.Sum256([]byte(prev + "|" + payload))
	return hex.EncodeToString(sum[:8])
}

func (n *Network) byEndpointLocked(endpoint string) (*simNode, error) {
	sn, ok := n.byAddr[endpoint]
	if !ok || !sn.live {
		return nil, fmt.Errorf("%s: %w", endpoint, ErrUnreachable)
	}

	return sn, nil
}

// Head implements oracle.Querier.
func (n *Network) Head(_ context.Context, endpoint string) (oracle.Head, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	sn, err := n.byEndpointLocked(endpoint)
	if err != nil {
		return oracle.Head{}, err
	}

	n.gossipLocked()
	if len(sn.chain) == 0 {
		return oracle.Head{}, fmt.Errorf("%s: no genesis block", endpoint)
	}

	return oracle.Head{ID: sn.head(), Length: len(sn.chain)}, nil
}

// Status implements oracle.Querier.
func (n *Network) Status(_ context.Context, endpoint string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	sn, err := n.byEndpointLocked(endpoint)
	if err != nil {
		return "", err
	}

	n.gossipLocked()
	connected := []int{}
	for _, peer := range sn.config.Peers {
		if other, ok := n.nodes[peer]; ok && n.linked(sn, other) {
			connected = append(connected, peer)
		}
	}

	status, err := json.Marshal(map[string]any{
		"name":                 sn.config.Name,
		"peers":                sn.config.Peers,
		"connected":            connected,
		"initial_connectivity": sn.config.InitialConnectivity,
		"blacklist":            sn.config.Blacklist,
		"length":               len(sn.chain),
	})
	if err != nil {
		return "", err
	}

	return string(status), nil
}

var _ oracle.Querier = (*Network)(nil)

// Client returns a workload submitter bound to endpoint.
func (n *Network) Client(endpoint string) workload.Submitter {
	return &client{net: n, endpoint: endpoint}
}

// submit appends a block to the chain the node currently follows.
func (n *Network) submit(endpoint, key, value string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	sn, err := n.byEndpointLocked(endpoint)
	if err != nil {
		return err
	}

	n.gossipLocked()
	if len(sn.chain) == 0 {
		return fmt.Errorf("%s: no genesis block", endpoint)
	}

	n.txns++
	sn.chain = append(sn.chain, blockID(sn.head(), fmt.Sprintf("%d:%s=%s", n.txns, key, value)))
	sn.events = append(sn.events, fmt.Sprintf("commit %s=%s at height %d", key, value, len(sn.chain)))
	n.gossipLocked()

	return nil
}

type client struct {
	net      *Network
	endpoint string
}

func (c *client) Set(_ context.Context, key, value string) error {
	return c.net.submit(c.endpoint, key, value)
}

// WaitForCommit returns at once: simulated submissions commit on Set.
func (c *client) WaitForCommit(ctx context.Context) error {
	return ctx.Err()
}

// driver implements node.Driver for one simulated node.
type driver struct {
	net *Network
	id  int
}

func (d *driver) Start(ctx context.Context, cfg netconfig.NodeConfig) error {
	n := d.net
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.faults.StartFail[d.id] {
		return fmt.Errorf("%s: exec: simulated spawn failure", cfg.Name)
	}

	sn := n.nodeLocked(d.id)
	if sn.live {
		return fmt.Errorf("%s is already running", cfg.Name)
	}

	if sn.endpoint != "" && sn.endpoint != cfg.Endpoint {
		delete(n.byAddr, sn.endpoint)
	}
	sn.endpoint = cfg.Endpoint
	n.byAddr[cfg.Endpoint] = sn

	sn.config = cfg.Clone()
	sn.live = true

	if cfg.Genesis && n.genesis == "" {
		n.genesis = blockID("", "genesis")
	}
	if len(sn.chain) == 0 && n.genesis != "" {
		sn.chain = []string{n.genesis}
	}

	sn.events = append(sn.events, fmt.Sprintf("start peers=%v connectivity=%d genesis=%t",
		cfg.Peers, cfg.InitialConnectivity, cfg.Genesis))

	return nil
}

func (d *driver) Apply(_ context.Context, cfg netconfig.NodeConfig) error {
	n := d.net
	n.mu.Lock()
	defer n.mu.Unlock()

	sn := n.nodeLocked(d.id)
	if !sn.live {
		return fmt.Errorf("%s: %w", cfg.Name, ErrUnreachable)
	}

	if n.faults.ApplyFail[d.id] {
		return fmt.Errorf("%s: simulated reconfiguration failure", cfg.Name)
	}

	sn.config = cfg.Clone()
	sn.events = append(sn.events, fmt.Sprintf("apply peers=%v connectivity=%d", cfg.Peers, cfg.InitialConnectivity))

	return nil
}

func (d *driver) Probe(context.Context) bool {
	n := d.net
	n.mu.Lock()
	defer n.mu.Unlock()

	sn, ok := n.nodes[d.id]
	return ok && sn.live && !n.faults.NeverLive[d.id]
}

func (d *driver) Stop(_ context.Context, archiveDir string) error {
	n := d.net
	n.mu.Lock()
	defer n.mu.Unlock()

	sn := n.nodeLocked(d.id)
	sn.live = false
	sn.events = append(sn.events, "stop")

	var errs []error
	if archiveDir != "" {
		if err := os.MkdirAll(archiveDir, 0755); err != nil {
			errs = append(errs, err)
		} else {
			log := strings.Join(sn.events, "\n") + "\n"
			errs = append(errs, os.WriteFile(filepath.Join(archiveDir, "events.log"), []byte(log), 0644))
		}
	}

	if n.faults.StopFail[d.id] {
		errs = append(errs, fmt.Errorf("node-%d: simulated teardown failure", d.id))
	}

	return errors.Join(errs...)
}
