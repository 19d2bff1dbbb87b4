// Package sitrep prints human-readable situation reports about a running
// cluster: which chain head each node follows and how the nodes split.
package sitrep

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/st3v3nmw/splitbrain/internal/oracle"
	"github.com/tidwall/gjson"
)

const (
	defaultTimeout = 2 * time.Second
	headPrefixLen  = 8
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// statusFields are the /status keys shown at verbosity 2 and above.
var statusFields = []string{"peers", "connected", "initial_connectivity", "blacklist"}

// Reporter writes situation reports. It only reads from nodes.
type Reporter struct {
	querier oracle.Querier
	oracle  *oracle.Oracle
	out     io.Writer
	timeout time.Duration
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithTimeout bounds each report's queries.
func WithTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func New(q oracle.Querier, w io.Writer, opts ...Option) *Reporter {
	r := &Reporter{querier: q, out: w, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	r.oracle = oracle.New(q, r.timeout)

	return r
}

// Report prints one line per node followed by a summary. Verbosity 0
// prints the summary only; 2 and above add status fields per node.
// Query failures show up as unreachable nodes, never as errors.
func (r *Reporter) Report(ctx context.Context, endpoints []string, verbosity int) {
	samples := r.oracle.Sample(ctx, endpoints)
	groups := oracle.Groups(samples)

	majority := ""
	if len(groups) == 1 || (len(groups) > 1 && len(groups[0].NodeIDs) > len(groups[1].NodeIDs)) {
		majority = groups[0].Head
	}

	byNode := make(map[int]oracle.Sample, len(samples))
	for _, s := range samples {
		byNode[s.NodeID] = s
	}

	if verbosity > 0 {
		for i, endpoint := range endpoints {
			s, ok := byNode[i]
			name := fmt.Sprintf("node-%d", i)

			var line string
			switch {
			case !ok:
				line = fmt.Sprintf("%s %-8s %-21s %s", red("●"), name, endpoint, red("unreachable"))
			case s.Head == majority:
				line = fmt.Sprintf("%s %-8s %-21s head=%s length=%d", green("●"), name, endpoint, green(shortHead(s.Head)), s.Length)
			default:
				line = fmt.Sprintf("%s %-8s %-21s head=%s length=%d", yellow("●"), name, endpoint, yellow(shortHead(s.Head)), s.Length)
			}
			fmt.Fprintln(r.out, line)

			if ok && verbosity >= 2 {
				r.printStatus(ctx, endpoint)
			}
		}
		fmt.Fprintln(r.out)
	}

	fmt.Fprintln(r.out, summary(len(endpoints), len(samples), groups))
}

func (r *Reporter) printStatus(ctx context.Context, endpoint string) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	status, err := r.querier.Status(ctx, endpoint)
	if err != nil {
		fmt.Fprintf(r.out, "    %s\n", faint("status unavailable: "+err.Error()))
		return
	}

	parts := make([]string, 0, len(statusFields))
	for i, value := range gjson.GetMany(status, statusFields...) {
		if value.Exists() {
			parts = append(parts, fmt.Sprintf("%s=%s", statusFields[i], value.Raw))
		}
	}

	if len(parts) > 0 {
		fmt.Fprintf(r.out, "    %s\n", faint(strings.Join(parts, " ")))
	}
}

func summary(total, reachable int, groups []oracle.Group) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d/%d reachable, %d head(s)", bold("SITREP"), reachable, total, len(groups))

	for _, g := range groups {
		fmt.Fprintf(&b, " | %s len=%d nodes=%v", shortHead(g.Head), g.Length, g.NodeIDs)
	}

	return b.String()
}

func shortHead(head string) string {
	if len(head) <= headPrefixLen {
		return head
	}

	return head[:headPrefixLen]
}
