package sitrep_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/st3v3nmw/splitbrain/internal/oracle"
	"github.com/st3v3nmw/splitbrain/internal/sitrep"
	"github.com/stretchr/testify/assert"
)

type stubQuerier struct {
	heads  map[string]oracle.Head
	status map[string]string
}

func (s *stubQuerier) Head(_ context.Context, endpoint string) (oracle.Head, error) {
	head, ok := s.heads[endpoint]
	if !ok {
		return oracle.Head{}, errors.New("connection refused")
	}

	return head, nil
}

func (s *stubQuerier) Status(_ context.Context, endpoint string) (string, error) {
	status, ok := s.status[endpoint]
	if !ok {
		return "", errors.New("connection refused")
	}

	return status, nil
}

func newStub() *stubQuerier {
	return &stubQuerier{
		heads: map[string]oracle.Head{
			"n0": {ID: "aaaaaaaaaaaa", Length: 2},
			"n1": {ID: "aaaaaaaaaaaa", Length: 2},
			"n2": {ID: "bbbbbbbbbbbb", Length: 3},
		},
		status: map[string]string{
			"n0": `{"peers":[1],"connected":[1],"initial_connectivity":0,"blacklist":[]}`,
			"n2": `{"peers":[4],"initial_connectivity":0}`,
		},
	}
}

func TestReport(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name      string
		verbosity int
		contains  []string
		excludes  []string
	}{
		{
			name:      "Summary Only",
			verbosity: 0,
			contains:  []string{"SITREP 3/4 reachable, 2 head(s) | aaaaaaaa len=2 nodes=[0 1] | bbbbbbbb len=3 nodes=[2]"},
			excludes:  []string{"node-0"},
		},
		{
			name:      "Per Node",
			verbosity: 1,
			contains: []string{
				"node-0",
				"head=aaaaaaaa length=2",
				"head=bbbbbbbb length=3",
				"node-3   n3",
				"unreachable",
			},
			excludes: []string{"initial_connectivity"},
		},
		{
			name:      "With Status",
			verbosity: 2,
			contains: []string{
				"peers=[1] connected=[1] initial_connectivity=0 blacklist=[]",
				"peers=[4] initial_connectivity=0",
				"status unavailable",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			sitrep.New(newStub(), &out).Report(context.Background(), []string{"n0", "n1", "n2", "n3"}, tt.verbosity)

			got := out.String()
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, got, unwanted)
			}
		})
	}
}

func TestReportUnreachableCluster(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	q := &stubQuerier{}
	sitrep.New(q, &out).Report(context.Background(), []string{"x", "y"}, 1)

	assert.Equal(t, 2, strings.Count(out.String(), "unreachable"))
	assert.Contains(t, out.String(), "0/2 reachable, 0 head(s)")
}
