package node_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/st3v3nmw/splitbrain/internal/netconfig"
	"github.com/st3v3nmw/splitbrain/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessDriverApply(t *testing.T) {
	var received netconfig.NodeConfig
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/admin/config" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := node.NewProcessDriver(&node.ProcessConfig{ExecuteTimeout: time.Second})
	d.MockEndpoint("node-2", strings.TrimPrefix(server.URL, "http://"))

	cfg := testConfig(2)
	require.NoError(t, d.Apply(context.Background(), cfg))
	assert.Equal(t, []int{1, 3}, received.Peers)
	assert.Equal(t, 2, received.InitialConnectivity)

	assert.True(t, d.Probe(context.Background()))
}

func TestProcessDriverApplyRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "peer list locked", http.StatusConflict)
	}))
	defer server.Close()

	d := node.NewProcessDriver(&node.ProcessConfig{ExecuteTimeout: time.Second})
	d.MockEndpoint("node-2", strings.TrimPrefix(server.URL, "http://"))

	err := d.Apply(context.Background(), testConfig(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "peer list locked")
}

func TestProcessDriverStartStop(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "run.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho started \"$@\"\nexec sleep 30\n"), 0755))

	d := node.NewProcessDriver(&node.ProcessConfig{
		Command:         script,
		WorkingDir:      filepath.Join(dir, "run"),
		ShutdownTimeout: 2 * time.Second,
		ExecuteTimeout:  time.Second,
	})

	cfg := testConfig(1)
	cfg.Endpoint = "127.0.0.1:1"
	cfg.Genesis = true
	require.NoError(t, d.Start(context.Background(), cfg))

	// Nothing listens on port 1.
	assert.False(t, d.Probe(context.Background()))

	// Give the script a moment to write its banner.
	time.Sleep(200 * time.Millisecond)

	archive := filepath.Join(dir, "archive")
	require.NoError(t, d.Stop(context.Background(), archive))

	log, err := os.ReadFile(filepath.Join(archive, "node-2.log"))
	require.NoError(t, err)
	assert.Contains(t, string(log), "--port=1")
	assert.Contains(t, string(log), "--genesis")

	config, err := os.ReadFile(filepath.Join(archive, "node-2.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(config), "initial_connectivity: 1")

	// Stopping again is harmless.
	require.NoError(t, d.Stop(context.Background(), ""))
}
