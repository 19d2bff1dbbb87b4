package workload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/st3v3nmw/splitbrain/internal/poll"
	"github.com/tidwall/gjson"
)

// Submitter submits key/value mutations to one node.
type Submitter interface {
	// Set submits a mutation and returns once the node has accepted it.
	Set(ctx context.Context, key, value string) error
	// WaitForCommit blocks until the last submission is committed.
	WaitForCommit(ctx context.Context) error
}

// Factory builds a submitter bound to a node endpoint.
type Factory func(endpoint string) Submitter

// CommitTimeoutError is returned when a submission is not committed in time.
type CommitTimeoutError struct {
	ID      string
	Timeout time.Duration
}

func (e *CommitTimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not committed within %s", e.ID, e.Timeout)
}

// Client talks to a node's transaction API:
//
//	POST /txn        {"key": "...", "value": "..."} -> {"id": "..."}
//	GET  /txn/<id>   -> {"status": "pending" | "committed"}
type Client struct {
	endpoint      string
	http          *http.Client
	commitTimeout time.Duration
	pollInterval  time.Duration

	pending string
}

var _ Submitter = (*Client)(nil)

// NewClient creates a client for endpoint.
func NewClient(endpoint string, requestTimeout, commitTimeout, pollInterval time.Duration) *Client {
	return &Client{
		endpoint:      endpoint,
		http:          &http.Client{Timeout: requestTimeout},
		commitTimeout: commitTimeout,
		pollInterval:  pollInterval,
	}
}

// HTTPFactory returns a Factory building HTTP clients with shared settings.
func HTTPFactory(requestTimeout, commitTimeout, pollInterval time.Duration) Factory {
	return func(endpoint string) Submitter {
		return NewClient(endpoint, requestTimeout, commitTimeout, pollInterval)
	}
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	payload, err := json.Marshal(map[string]string{"key": key, "value": value})
	if err != nil {
		return err
	}

	body, err := c.do(ctx, http.MethodPost, "/txn", payload)
	if err != nil {
		return err
	}

	id := gjson.Get(body, "id").String()
	if id == "" {
		return fmt.Errorf("POST /txn: response carries no transaction id: %q", body)
	}

	c.pending = id
	return nil
}

func (c *Client) WaitForCommit(ctx context.Context) error {
	if c.pending == "" {
		return nil
	}

	id := c.pending
	waitCtx, cancel := context.WithTimeout(ctx, c.commitTimeout)
	defer cancel()

	err := poll.Until(waitCtx, func(ctx context.Context) bool {
		body, err := c.do(ctx, http.MethodGet, "/txn/"+id, nil)
		return err == nil && gjson.Get(body, "status").String() == "committed"
	}, c.pollInterval)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &CommitTimeoutError{ID: id, Timeout: c.commitTimeout}
		}
		return err
	}

	c.pending = ""
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (string, error) {
	url := fmt.Sprintf("http://%s%s", c.endpoint, path)

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%s %s: %s", method, url, resp.Status)
	}

	return string(body), nil
}
