package business

import (
	"context"
	"fmt"
	"sync"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/storyblok-proxy/internal/business/server"
	"github.com/openkcm/storyblok-proxy/internal/config"
	"github.com/openkcm/storyblok-proxy/internal/grant"
	"github.com/openkcm/storyblok-proxy/internal/oauth"
	"github.com/openkcm/storyblok-proxy/internal/upstream"
	"github.com/openkcm/storyblok-proxy/pkg/session"
	"github.com/openkcm/storyblok-proxy/pkg/session/cookiestore"
	sessionmemory "github.com/openkcm/storyblok-proxy/pkg/session/memory"
	sessionsql "github.com/openkcm/storyblok-proxy/pkg/session/sql"
	sessionvalkey "github.com/openkcm/storyblok-proxy/pkg/session/valkey"
)

// Main starts the proxy server. With the memory backend the in-process
// housekeeping loop runs next to it.
func Main(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	grantCfg, err := grant.BuildConfig(cfg.Grant, creds)
	if err != nil {
		return fmt.Errorf("building grant config: %w", err)
	}

	upstreamFactory, err := upstream.NewFactory(cfg.Upstream.BaseURL, nil)
	if err != nil {
		return err
	}

	backend, err := initSessionBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the session store: %w", err)
	}
	defer backend.close()

	deps := server.Deps{
		Grant:    grantCfg,
		Tokens:   oauth.NewClient(nil),
		Upstream: upstreamFactory,
		Sessions: session.NewManager(backend.store, cfg.Sessions),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// errChan is used to capture the first error and shutdown.
	errChan := make(chan error, 2)

	var wg sync.WaitGroup

	wg.Go(func() {
		errChan <- server.StartHTTPServer(ctx, cfg, deps)
	})

	if backend.memory != nil {
		wg.Go(func() {
			errChan <- housekeep(ctx, cfg, backend)
		})
	}

	// wait for any error to initiate the shutdown
	err = <-errChan
	if err != nil {
		slogctx.Error(ctx, "Shutting down", "error", err)
	}
	cancel()

	wg.Wait()

	return err
}

// sessionBackend is the session store selected by the configuration plus
// the handles the housekeeper works on.
type sessionBackend struct {
	store    session.Store
	memory   *sessionmemory.Repository
	valkey   *sessionvalkey.Repository
	postgres *sessionsql.Repository
	close    func()
}

func initSessionBackend(ctx context.Context, cfg *config.Config) (*sessionBackend, error) {
	secret, generated, err := config.LoadSessionSecret(cfg.Sessions)
	if err != nil {
		return nil, err
	}

	if generated {
		slogctx.Warn(ctx, "No session secret configured, sessions will not survive a restart")
	}

	backend := &sessionBackend{close: func() {}}

	var repo session.Repository
	switch cfg.Sessions.Backend {
	case config.SessionBackendCookie:
		store, err := cookiestore.New(secret, cookiestore.WithIssuer(cfg.Application.Name))
		if err != nil {
			return nil, err
		}

		backend.store = store
		slogctx.Info(ctx, "Using cookie session store")

		return backend, nil
	case config.SessionBackendMemory:
		backend.memory = sessionmemory.NewRepository(cfg.Housekeeper.TriggerInterval)
		repo = backend.memory
	case config.SessionBackendValKey:
		client, err := newValkeyClient(cfg.ValKey)
		if err != nil {
			return nil, err
		}

		backend.valkey = sessionvalkey.NewRepository(client, cfg.ValKey.Prefix)
		backend.close = client.Close
		repo = backend.valkey
	case config.SessionBackendPostgres:
		db, err := newPostgresPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}

		backend.postgres = sessionsql.NewRepository(db)
		backend.close = db.Close
		repo = backend.postgres
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Sessions.Backend)
	}

	store, err := session.NewServerSideStore(repo, secret)
	if err != nil {
		backend.close()
		return nil, err
	}

	backend.store = store
	slogctx.Info(ctx, "Using server-side session store", "backend", cfg.Sessions.Backend)

	return backend, nil
}

func newValkeyClient(cfg config.ValKey) (valkey.Client, error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("loading valkey host: %w", err)
	}

	valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.User)
	if err != nil {
		return nil, fmt.Errorf("loading valkey username: %w", err)
	}

	valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("loading valkey password: %w", err)
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
	}

	if cfg.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return client, nil
}

func newPostgresPool(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	connStr, err := config.MakeConnStr(cfg)
	if err != nil {
		return nil, fmt.Errorf("making dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing pgxpool config: %w", err)
	}

	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	return db, nil
}
