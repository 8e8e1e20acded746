// Package valkeytest runs a throwaway valkey container for tests.
package valkeytest

import (
	"context"
	"net"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/valkey-io/valkey-go"

	valkeycontainer "github.com/testcontainers/testcontainers-go/modules/valkey"
)

// Start runs a valkey container for the duration of the test and returns a
// client connected to it. The test is skipped when no container runtime is
// available.
func Start(t *testing.T) valkey.Client {
	t.Helper()

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := valkeycontainer.Run(ctx, "valkey/valkey:8-alpine")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "starting valkey container")

	port, err := container.MappedPort(ctx, nat.Port("6379"))
	require.NoError(t, err, "mapping valkey port")

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{net.JoinHostPort("localhost", port.Port())},
	})
	require.NoError(t, err, "connecting to valkey")
	t.Cleanup(client.Close)

	return client
}
