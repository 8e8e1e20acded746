package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/storyblok-proxy/internal/config"
)

// createHTTPServer creates the proxy http server using the given config.
func createHTTPServer(ctx context.Context, cfg *config.Config, deps Deps) (*http.Server, error) {
	handler, err := NewRouter(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: handler,
	}, nil
}

// StartHTTPServer serves the proxy until ctx is cancelled.
func StartHTTPServer(ctx context.Context, cfg *config.Config, deps Deps) error {
	server, err := createHTTPServer(ctx, cfg, deps)
	if err != nil {
		return err
	}

	network, address := splitNetwork(server.Addr)

	slogctx.Info(ctx, "Starting a listener", "network", network, "address", address)

	listener, err := new(net.ListenConfig).Listen(ctx, network, address)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	slogctx.Info(ctx, "A listener started", "address", listener.Addr().String())

	go func() {
		slogctx.Info(ctx, "Serving an HTTP server", "address", listener.Addr().String())
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve an HTTP server", "error", err)
		}

		slogctx.Info(ctx, "Stopped an HTTP server")
	}()

	<-ctx.Done()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}

// splitNetwork parses addresses of the form network://address, such as
// unix:///tmp/proxy.sock. Plain addresses listen on tcp.
func splitNetwork(addr string) (network, address string) {
	if network, address, ok := strings.Cut(addr, "://"); ok && network != "" {
		return network, address
	}

	return "tcp", addr
}
