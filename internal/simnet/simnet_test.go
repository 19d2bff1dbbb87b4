package simnet_test

import (
	"context"
	"testing"

	"github.com/st3v3nmw/splitbrain/internal/netconfig"
	"github.com/st3v3nmw/splitbrain/internal/simnet"
	"github.com/st3v3nmw/splitbrain/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var chain = topology.MustNew([][]int{
	{1, 1, 0, 0, 0},
	{1, 1, 1, 0, 0},
	{0, 1, 1, 1, 0},
	{0, 0, 1, 1, 1},
	{0, 0, 0, 1, 1},
})

func start(t *testing.T, net *simnet.Network, m *topology.Matrix) []netconfig.NodeConfig {
	t.Helper()

	configs, err := netconfig.NewProvider("sim", 100).Derive(m, nil, nil)
	require.NoError(t, err)

	factory := net.Factory()
	for i, cfg := range configs {
		if i == 0 {
			cfg.Genesis = true
		}
		require.NoError(t, factory(i, "").Start(context.Background(), cfg))
	}

	return configs
}

func TestGossipWithinComponent(t *testing.T) {
	net := simnet.New()
	configs := start(t, net, chain)
	ctx := context.Background()

	assert.Equal(t, [][]int{{0, 1, 2, 3, 4}}, net.Components())

	require.NoError(t, net.Client(configs[0].Endpoint).Set(ctx, "1", "2"))

	first, err := net.Head(ctx, configs[0].Endpoint)
	require.NoError(t, err)
	last, err := net.Head(ctx, configs[4].Endpoint)
	require.NoError(t, err)

	assert.Equal(t, first, last)
	assert.Equal(t, 2, last.Length)
}

func TestSeveredNodeSplitsChain(t *testing.T) {
	net := simnet.New()
	configs := start(t, net, chain)
	ctx := context.Background()

	severed, err := netconfig.NewProvider("sim", 100).Derive(chain.Sever(2), nil, nil)
	require.NoError(t, err)

	factory := net.Factory()
	for _, id := range []int{1, 2, 3} {
		require.NoError(t, factory(id, "").Apply(ctx, severed[id]))
	}

	assert.Equal(t, [][]int{{0, 1}, {2}, {3, 4}}, net.Components())

	require.NoError(t, net.Client(configs[0].Endpoint).Set(ctx, "a", "1"))
	require.NoError(t, net.Client(configs[4].Endpoint).Set(ctx, "b", "1"))
	require.NoError(t, net.Client(configs[4].Endpoint).Set(ctx, "c", "1"))

	left, _ := net.Head(ctx, configs[1].Endpoint)
	middle, _ := net.Head(ctx, configs[2].Endpoint)
	right, _ := net.Head(ctx, configs[3].Endpoint)

	assert.NotEqual(t, left.ID, right.ID)
	assert.Equal(t, 1, middle.Length)
	assert.Equal(t, 3, right.Length)

	// Heal: the longest chain wins everywhere.
	for _, id := range []int{1, 2, 3} {
		require.NoError(t, factory(id, "").Apply(ctx, configs[id]))
	}

	for _, cfg := range configs {
		head, err := net.Head(ctx, cfg.Endpoint)
		require.NoError(t, err)
		assert.Equal(t, right, head)
	}
}

func TestConnectivityZeroLeavesNodesApart(t *testing.T) {
	net := simnet.New()
	configs := start(t, net, topology.Full(2))
	ctx := context.Background()

	assert.Equal(t, [][]int{{0, 1}}, net.Components())

	cfg := configs[1].Clone()
	cfg.InitialConnectivity = 0
	require.NoError(t, net.Factory()(1, "").Apply(ctx, cfg))

	assert.Equal(t, [][]int{{0}, {1}}, net.Components())
}

func TestStatusAndUnreachable(t *testing.T) {
	net := simnet.New()
	configs := start(t, net, chain)
	ctx := context.Background()

	status, err := net.Status(ctx, configs[2].Endpoint)
	require.NoError(t, err)
	assert.Equal(t, "node-2", gjson.Get(status, "name").String())
	assert.Equal(t, int64(2), gjson.Get(status, "connected.#").Int())

	require.NoError(t, net.Factory()(2, "").Stop(ctx, ""))
	_, err = net.Head(ctx, configs[2].Endpoint)
	assert.ErrorIs(t, err, simnet.ErrUnreachable)
	assert.False(t, net.Live(2))
}
