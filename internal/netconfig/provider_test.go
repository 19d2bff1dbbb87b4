package netconfig_test

import (
	"testing"

	"github.com/st3v3nmw/splitbrain/internal/netconfig"
	"github.com/st3v3nmw/splitbrain/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var chain = topology.MustNew([][]int{
	{1, 1, 0, 0, 0},
	{1, 1, 1, 0, 0},
	{0, 1, 1, 1, 0},
	{0, 0, 1, 1, 1},
	{0, 0, 0, 1, 1},
})

func TestDerive(t *testing.T) {
	p := netconfig.NewProvider("127.0.0.1", 9000)

	configs, err := p.Derive(chain, nil, nil)
	require.NoError(t, err)
	require.Len(t, configs, 5)

	node2 := configs[2]
	assert.Equal(t, 2, node2.ID)
	assert.Equal(t, "node-2", node2.Name)
	assert.Equal(t, "127.0.0.1:9002", node2.Endpoint)
	assert.Equal(t, []int{1, 3}, node2.Peers)
	assert.Equal(t, []string{"127.0.0.1:9001", "127.0.0.1:9003"}, node2.PeerEndpoints)
	assert.Equal(t, 1, node2.InitialConnectivity)
	assert.Empty(t, node2.Blacklist)

	assert.Equal(t, 0, configs[0].InitialConnectivity)
	assert.Equal(t, 1, configs[4].InitialConnectivity)
}

func TestDeriveBlacklistAndOverrides(t *testing.T) {
	p := netconfig.NewProvider("127.0.0.1", 9000)

	configs, err := p.Derive(chain, map[int][]int{2: {3, 3, 0}}, map[int]int{2: 2})
	require.NoError(t, err)

	assert.Equal(t, []int{1}, configs[2].Peers)
	assert.Equal(t, []int{0, 3}, configs[2].Blacklist)
	assert.Equal(t, 2, configs[2].InitialConnectivity)

	// Blacklisting is per node; node 3 still lists node 2.
	assert.True(t, configs[3].HasPeer(2))
}

func TestDeriveRejectsBadInput(t *testing.T) {
	p := netconfig.NewProvider("127.0.0.1", 9000)

	tests := []struct {
		name      string
		blacklist map[int][]int
		overrides map[int]int
	}{
		{name: "Negative Override", overrides: map[int]int{1: -1}},
		{name: "Unknown Override", overrides: map[int]int{7: 1}},
		{name: "Unknown Blacklist", blacklist: map[int][]int{-1: {0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Derive(chain, tt.blacklist, tt.overrides)
			assert.Error(t, err)
		})
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	p := netconfig.NewProvider("10.0.0.1", 7000)
	blacklist := map[int][]int{0: {1}, 4: {3}}
	overrides := map[int]int{2: 2, 3: 0}

	first, err := p.Derive(chain, blacklist, overrides)
	require.NoError(t, err)

	for range 20 {
		again, err := p.Derive(chain, blacklist, overrides)
		require.NoError(t, err)
		require.Equal(t, first, again)
		for i := range first {
			assert.True(t, first[i].Equal(again[i]))
		}
	}
}

func TestClone(t *testing.T) {
	p := netconfig.NewProvider("127.0.0.1", 9000)
	configs, err := p.Derive(chain, nil, nil)
	require.NoError(t, err)

	clone := configs[2].Clone()
	clone.Peers[0] = 4
	clone.InitialConnectivity = 2

	assert.Equal(t, []int{1, 3}, configs[2].Peers)
	assert.False(t, clone.Equal(configs[2]))
}
