package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/bookline/bookline/clientcore/authapi"
	"github.com/bookline/bookline/clientcore/config"
	"github.com/bookline/bookline/clientcore/guard"
	"github.com/bookline/bookline/clientcore/models"
	"github.com/bookline/bookline/clientcore/oauthbridge"
	"github.com/bookline/bookline/clientcore/resolver"
	"github.com/bookline/bookline/clientcore/storage"
	"github.com/bookline/bookline/clientcore/token"
)

// Dependencies holds all subsystem components. It is the central wiring
// point: everything is constructor-injected so tests can instantiate
// isolated instances per case, and nothing lives in package globals.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	Store  storage.Store

	// Token handling
	Mirror *token.MemoryMirror
	Tokens *token.Manager

	// Auth server client
	API *authapi.Client

	// OAuth redirect bridge
	Bridge *oauthbridge.Bridge

	// Principal resolvers, one per slot
	Consumer *resolver.Resolver
	Provider *resolver.Resolver

	// View gating
	Guard *guard.Guard

	sqlStore *storage.SQLStore
}

// NewDependencies creates and wires all subsystem components. navigate
// receives the hard-navigation target after logout; pass nil when the
// host handles navigation itself.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger,
	navigate resolver.NavigateFunc) (*Dependencies, error) {

	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStore(); err != nil {
		return nil, err
	}

	// Credentialed HTTP client: the cookie jar carries the same-origin
	// session across calls.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	httpClient := &http.Client{
		Jar:     jar,
		Timeout: cfg.Server.RequestTimeout,
	}

	deps.Mirror = token.NewMemoryMirror()
	deps.Tokens = token.NewManager(cfg.Server.BaseURL+cfg.Server.TokenPath, httpClient, deps.Mirror, logger)
	deps.API = authapi.NewClient(cfg.Server.BaseURL, httpClient, deps.Tokens, logger)

	deps.Bridge = oauthbridge.NewBridge(deps.Store, &oauth2.Config{
		ClientID:    cfg.OAuth.ClientID,
		RedirectURL: cfg.OAuth.RedirectURI,
		Scopes:      cfg.OAuth.Scopes,
		Endpoint:    oauth2.Endpoint{AuthURL: cfg.OAuth.AuthURL},
	}, logger)

	deps.Consumer = resolver.New(models.PrincipalConsumer, deps.API, deps.Store,
		cfg.Session.SettleDelay, navigate, logger)
	deps.Provider = resolver.New(models.PrincipalProvider, deps.API, deps.Store,
		cfg.Session.SettleDelay, navigate, logger)

	deps.Guard = guard.New(deps.Consumer, deps.Provider, logger)

	logger.Info("clientcore wired",
		zap.String("auth_server", cfg.Server.BaseURL),
		zap.String("storage_backend", cfg.Storage.Backend))
	return deps, nil
}

func (d *Dependencies) initStore() error {
	switch d.Config.Storage.Backend {
	case "memory":
		d.Store = storage.NewMemoryStore()
	case "file":
		store, err := storage.NewFileStore(d.Config.Storage.FilePath)
		if err != nil {
			return fmt.Errorf("failed to open file store: %w", err)
		}
		d.Store = store
	case "postgres":
		store, err := storage.NewSQLStore(d.Config.Storage.ConnectionString, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to open sql store: %w", err)
		}
		d.Store = store
		d.sqlStore = store
	default:
		return fmt.Errorf("unknown storage backend %q", d.Config.Storage.Backend)
	}
	return nil
}

// ResolveAll runs both resolvers' resolution chains
func (d *Dependencies) ResolveAll(ctx context.Context) error {
	if err := d.Consumer.Resolve(ctx); err != nil {
		return err
	}
	return d.Provider.Resolve(ctx)
}

// Logout tears down whichever principal is authenticated and drops the
// cached anti-forgery token
func (d *Dependencies) Logout(ctx context.Context) error {
	var firstErr error
	for _, r := range []*resolver.Resolver{d.Consumer, d.Provider} {
		if !r.CurrentPrincipal().IsAuthenticated() {
			continue
		}
		if err := r.Logout(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.Tokens.Invalidate()
	return firstErr
}

// NewSessionWatch builds the inactivity watch over the shared store,
// bound to this dependency set's logout path
func (d *Dependencies) NewSessionWatch(prompt guard.PromptFunc) *guard.SessionWatch {
	return guard.NewSessionWatch(d.Store,
		d.Config.Session.InactivityTimeout, d.Config.Session.WarningLead,
		d, prompt, d.Logger)
}

// Close releases held resources
func (d *Dependencies) Close() error {
	if d.sqlStore != nil {
		return d.sqlStore.Close()
	}
	return nil
}
