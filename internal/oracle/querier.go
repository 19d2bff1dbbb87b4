package oracle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// Head is a node's view of its chain tip.
type Head struct {
	ID     string
	Length int
}

// Querier is the read-only node query interface. Implementations must not
// mutate node state.
type Querier interface {
	// Head returns the node's current chain head.
	Head(ctx context.Context, endpoint string) (Head, error)
	// Status returns the node's raw status document (JSON).
	Status(ctx context.Context, endpoint string) (string, error)
}

// HTTPQuerier reads GET /head and GET /status from each node.
//
//	GET /head   -> {"head": "<block id>", "length": <n>}
//	GET /status -> free-form JSON, e.g. {"peers": [...], "initial_connectivity": 2}
type HTTPQuerier struct {
	client *http.Client
}

var _ Querier = (*HTTPQuerier)(nil)

// NewHTTPQuerier creates a querier whose requests time out after timeout.
func NewHTTPQuerier(timeout time.Duration) *HTTPQuerier {
	return &HTTPQuerier{client: &http.Client{Timeout: timeout}}
}

func (q *HTTPQuerier) Head(ctx context.Context, endpoint string) (Head, error) {
	body, err := q.get(ctx, endpoint, "/head")
	if err != nil {
		return Head{}, err
	}

	if !gjson.Valid(body) {
		return Head{}, fmt.Errorf("%s/head: invalid JSON", endpoint)
	}

	id := gjson.Get(body, "head")
	if !id.Exists() || id.String() == "" {
		return Head{}, fmt.Errorf("%s/head: missing head", endpoint)
	}

	return Head{ID: id.String(), Length: int(gjson.Get(body, "length").Int())}, nil
}

func (q *HTTPQuerier) Status(ctx context.Context, endpoint string) (string, error) {
	body, err := q.get(ctx, endpoint, "/status")
	if err != nil {
		return "", err
	}

	if !gjson.Valid(body) {
		return "", fmt.Errorf("%s/status: invalid JSON", endpoint)
	}

	return body, nil
}

func (q *HTTPQuerier) get(ctx context.Context, endpoint, path string) (string, error) {
	url := fmt.Sprintf("http://%s%s", endpoint, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	return string(body), nil
}
