package oracle

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/st3v3nmw/splitbrain/internal/metrics"
	"github.com/st3v3nmw/splitbrain/pkg/threadsafe"
	"golang.org/x/sync/errgroup"
)

// Verdict classifies a set of samples.
type Verdict int

const (
	// Indeterminate: too few nodes answered. Keep polling.
	Indeterminate Verdict = iota
	Convergent
	Divergent
)

func (v Verdict) String() string {
	switch v {
	case Convergent:
		return "convergent"
	case Divergent:
		return "divergent"
	default:
		return "indeterminate"
	}
}

// Sample is one node's answer in a sample round.
type Sample struct {
	NodeID   int
	Endpoint string
	Head     string
	Length   int
}

// Group is a set of nodes sharing a chain head.
type Group struct {
	Head    string
	Length  int
	NodeIDs []int
}

// Oracle samples chain heads and classifies agreement. It keeps no timer
// of its own; callers poll it at whatever pace they like.
type Oracle struct {
	querier Querier
	timeout time.Duration
}

// New creates an oracle whose sample rounds last at most timeout.
func New(querier Querier, timeout time.Duration) *Oracle {
	return &Oracle{querier: querier, timeout: timeout}
}

// Sample queries every endpoint concurrently. NodeID is the endpoint's
// index. Nodes that fail or miss the round's deadline are left out.
func (o *Oracle) Sample(ctx context.Context, endpoints []string) []Sample {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	answers := threadsafe.NewMap[int, Sample]()

	var g errgroup.Group
	for i, endpoint := range endpoints {
		g.Go(func() error {
			head, err := o.querier.Head(ctx, endpoint)
			if err != nil {
				return nil
			}

			answers.Set(i, Sample{NodeID: i, Endpoint: endpoint, Head: head.ID, Length: head.Length})
			return nil
		})
	}
	g.Wait()

	samples := make([]Sample, 0, answers.Len())
	for _, i := range threadsafe.SortedKeys(answers) {
		s, _ := answers.Get(i)
		samples = append(samples, s)
	}

	metrics.OracleResponders.Set(float64(len(samples)))
	return samples
}

// Classify groups samples by head. A group of at least standard nodes is
// Convergent; fewer than standard answers is Indeterminate; anything else
// is Divergent. A standard below 1 counts as 1.
func Classify(samples []Sample, standard int) Verdict {
	standard = max(standard, 1)

	verdict := Divergent
	groups := Groups(samples)
	switch {
	case len(samples) < standard:
		verdict = Indeterminate
	case len(groups[0].NodeIDs) >= standard:
		verdict = Convergent
	}

	metrics.OracleVerdicts.WithLabelValues(verdict.String()).Inc()
	return verdict
}

// Groups returns head groups, largest first, ties broken by head id.
func Groups(samples []Sample) []Group {
	index := make(map[string]int)
	groups := []Group{}

	for _, s := range samples {
		i, ok := index[s.Head]
		if !ok {
			i = len(groups)
			index[s.Head] = i
			groups = append(groups, Group{Head: s.Head, Length: s.Length})
		}
		groups[i].NodeIDs = append(groups[i].NodeIDs, s.NodeID)
	}

	slices.SortFunc(groups, func(a, b Group) int {
		if c := cmp.Compare(len(b.NodeIDs), len(a.NodeIDs)); c != 0 {
			return c
		}

		return cmp.Compare(a.Head, b.Head)
	})

	return groups
}

// Check samples endpoints once and classifies the result.
func (o *Oracle) Check(ctx context.Context, endpoints []string, standard int) (Verdict, []Sample) {
	samples := o.Sample(ctx, endpoints)
	return Classify(samples, standard), samples
}

// IsConvergent reports whether at least standard nodes currently share a head.
func (o *Oracle) IsConvergent(ctx context.Context, endpoints []string, standard int) bool {
	verdict, _ := o.Check(ctx, endpoints, standard)
	return verdict == Convergent
}
