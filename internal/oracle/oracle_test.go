package oracle_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/st3v3nmw/splitbrain/internal/oracle"
	"github.com/stretchr/testify/assert"
)

func samples(heads ...string) []oracle.Sample {
	out := make([]oracle.Sample, len(heads))
	for i, h := range heads {
		out[i] = oracle.Sample{NodeID: i, Endpoint: fmt.Sprintf("node-%d", i), Head: h, Length: len(h)}
	}

	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		samples  []oracle.Sample
		standard int
		want     oracle.Verdict
	}{
		{name: "Majority Of Five", samples: samples("h1", "h1", "h1", "h2", "h2"), standard: 3, want: oracle.Convergent},
		{name: "Unanimous", samples: samples("h1", "h1", "h1", "h1", "h1"), standard: 5, want: oracle.Convergent},
		{name: "Three Way Split", samples: samples("h1", "h1", "h2", "h2", "h3"), standard: 3, want: oracle.Divergent},
		{name: "Majority Below Standard", samples: samples("h1", "h1", "h1", "h2", "h2"), standard: 4, want: oracle.Divergent},
		{name: "Two Responders", samples: samples("h1", "h1"), standard: 3, want: oracle.Indeterminate},
		{name: "Two Responders High Standard", samples: samples("h1", "h1"), standard: 5, want: oracle.Indeterminate},
		{name: "No Responders", samples: nil, standard: 1, want: oracle.Indeterminate},
		{name: "Zero Standard", samples: samples("h1", "h2"), standard: 0, want: oracle.Convergent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, oracle.Classify(tt.samples, tt.standard))
		})
	}
}

func TestGroups(t *testing.T) {
	groups := oracle.Groups(samples("b", "a", "b", "c", "a", "b"))

	assert.Len(t, groups, 3)
	assert.Equal(t, "b", groups[0].Head)
	assert.Equal(t, []int{0, 2, 5}, groups[0].NodeIDs)
	assert.Equal(t, "a", groups[1].Head)
	assert.Equal(t, []int{1, 4}, groups[1].NodeIDs)
	assert.Equal(t, "c", groups[2].Head)
}

type fakeQuerier struct {
	heads map[string]string
	slow  map[string]bool
}

func (f *fakeQuerier) Head(ctx context.Context, endpoint string) (oracle.Head, error) {
	if f.slow[endpoint] {
		select {
		case <-ctx.Done():
			return oracle.Head{}, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}

	head, ok := f.heads[endpoint]
	if !ok {
		return oracle.Head{}, errors.New("connection refused")
	}

	return oracle.Head{ID: head, Length: 7}, nil
}

func (f *fakeQuerier) Status(ctx context.Context, endpoint string) (string, error) {
	return "{}", nil
}

func TestSample(t *testing.T) {
	q := &fakeQuerier{
		heads: map[string]string{"a": "h1", "b": "h1", "c": "h2", "e": "h1"},
		slow:  map[string]bool{"e": true},
	}
	o := oracle.New(q, 100*time.Millisecond)

	start := time.Now()
	got := o.Sample(context.Background(), []string{"a", "b", "c", "d", "e"})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []oracle.Sample{
		{NodeID: 0, Endpoint: "a", Head: "h1", Length: 7},
		{NodeID: 1, Endpoint: "b", Head: "h1", Length: 7},
		{NodeID: 2, Endpoint: "c", Head: "h2", Length: 7},
	}, got)

	verdict, _ := o.Check(context.Background(), []string{"a", "b", "c", "d", "e"}, 3)
	assert.Equal(t, oracle.Divergent, verdict, "three answers with no group of three")

	verdict, _ = o.Check(context.Background(), []string{"a", "b", "d", "e"}, 3)
	assert.Equal(t, oracle.Indeterminate, verdict, "only two answers")
	assert.True(t, o.IsConvergent(context.Background(), []string{"a", "b", "c"}, 2))
}
