package workload_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/st3v3nmw/splitbrain/internal/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCommit(t *testing.T) {
	var polls atomic.Int32
	var received map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/txn":
			json.NewDecoder(r.Body).Decode(&received)
			w.Write([]byte(`{"id": "tx-7"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/txn/tx-7":
			if polls.Add(1) < 3 {
				w.Write([]byte(`{"status": "pending"}`))
				return
			}
			w.Write([]byte(`{"status": "committed"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := workload.NewClient(strings.TrimPrefix(server.URL, "http://"), time.Second, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Set(context.Background(), "5", "32"))
	assert.Equal(t, map[string]string{"key": "5", "value": "32"}, received)

	require.NoError(t, c.WaitForCommit(context.Background()))
	assert.Equal(t, int32(3), polls.Load())

	// Nothing pending.
	require.NoError(t, c.WaitForCommit(context.Background()))
}

func TestClientCommitTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"id": "tx-1"}`))
			return
		}
		w.Write([]byte(`{"status": "pending"}`))
	}))
	defer server.Close()

	c := workload.NewClient(strings.TrimPrefix(server.URL, "http://"), time.Second, 100*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, c.Set(context.Background(), "1", "2"))
	err := c.WaitForCommit(context.Background())

	var timeout *workload.CommitTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "tx-1", timeout.ID)
}

func TestClientRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := workload.NewClient(strings.TrimPrefix(server.URL, "http://"), time.Second, time.Second, 10*time.Millisecond)

	assert.Error(t, c.Set(context.Background(), "1", "2"))
}
