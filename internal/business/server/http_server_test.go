package server

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/storyblok-proxy/internal/config"
)

func TestSplitNetwork(t *testing.T) {
	tests := []struct {
		addr        string
		wantNetwork string
		wantAddress string
	}{
		{addr: ":3000", wantNetwork: "tcp", wantAddress: ":3000"},
		{addr: "localhost:8080", wantNetwork: "tcp", wantAddress: "localhost:8080"},
		{addr: "unix:///tmp/proxy.sock", wantNetwork: "unix", wantAddress: "/tmp/proxy.sock"},
		{addr: "tcp4://127.0.0.1:0", wantNetwork: "tcp4", wantAddress: "127.0.0.1:0"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			network, address := splitNetwork(tt.addr)
			assert.Equal(t, tt.wantNetwork, network)
			assert.Equal(t, tt.wantAddress, address)
		})
	}
}

func TestCreateHTTPServer(t *testing.T) {
	env := newTestEnv(t)

	cfg := testConfig()
	cfg.HTTP = config.HTTPServer{Address: "localhost:8080"}

	server, err := createHTTPServer(t.Context(), cfg, env.deps)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", server.Addr)
	assert.NotNil(t, server.Handler)
}

func TestStartHTTPServer_UnixSocket(t *testing.T) {
	env := newTestEnv(t)

	socket := filepath.Join(t.TempDir(), "proxy.sock")
	cfg := testConfig()
	cfg.HTTP = config.HTTPServer{
		Address:         "unix://" + socket,
		ShutdownTimeout: time.Second,
	}

	ctx, cancel := context.WithCancel(t.Context())
	errChan := make(chan error, 1)
	go func() {
		errChan <- StartHTTPServer(ctx, cfg, env.deps)
	}()

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return new(net.Dialer).DialContext(ctx, "unix", socket)
		},
	}}

	require.Eventually(t, func() bool {
		resp, err := client.Get("http://proxy/")
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shut down within timeout")
	}
}
