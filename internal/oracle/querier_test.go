package oracle_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/st3v3nmw/splitbrain/internal/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPQuerier(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    oracle.Head
		wantErr bool
	}{
		{
			name: "Head OK",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/head" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.Write([]byte(`{"head": "ab12cd", "length": 12}`))
			},
			want: oracle.Head{ID: "ab12cd", Length: 12},
		},
		{
			name: "Missing Head",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"length": 12}`))
			},
			wantErr: true,
		},
		{
			name: "Invalid JSON",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`head=ab12cd`))
			},
			wantErr: true,
		},
		{
			name: "Server Error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantErr: true,
		},
		{
			name: "Timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(500 * time.Millisecond)
				w.Write([]byte(`{"head": "ab12cd", "length": 12}`))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			q := oracle.NewHTTPQuerier(100 * time.Millisecond)
			head, err := q.Head(context.Background(), strings.TrimPrefix(server.URL, "http://"))

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, head)
		})
	}
}

func TestHTTPQuerierStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"peers": [1, 3], "initial_connectivity": 2}`))
	}))
	defer server.Close()

	q := oracle.NewHTTPQuerier(time.Second)
	status, err := q.Status(context.Background(), strings.TrimPrefix(server.URL, "http://"))

	require.NoError(t, err)
	assert.Contains(t, status, `"initial_connectivity": 2`)
}
