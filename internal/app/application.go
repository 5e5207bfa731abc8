package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/R3E-Network/marketplace/internal/app/httpapi"
	"github.com/R3E-Network/marketplace/internal/app/system"
	"github.com/R3E-Network/marketplace/internal/chain"
	"github.com/R3E-Network/marketplace/internal/config"
	"github.com/R3E-Network/marketplace/internal/fetch"
	"github.com/R3E-Network/marketplace/internal/session"
	"github.com/R3E-Network/marketplace/internal/view"
	"github.com/R3E-Network/marketplace/pkg/logger"
)

// Options replace parts of the default wiring. Nil fields use the
// configuration.
type Options struct {
	// Reader replaces the contract binding built from the node config.
	Reader chain.MarketplaceReader
	// Store replaces the configured session backend.
	Store session.Store
	// Connector replaces the address connector, for example with a bridge to
	// a browser wallet.
	Connector session.Connector
	Logger    *logger.Logger
}

// Application ties the contract reader, wallet session, fetchers and views
// together and manages their lifecycle.
type Application struct {
	cfg     *config.Config
	manager *system.Manager
	log     *logger.Logger
	closers []func() error

	Contract chain.MarketplaceReader
	Session  *session.Manager
	// Addresses is the default connector; nil when Options.Connector is set.
	Addresses *session.AddressConnector
	Catalog   *fetch.CatalogFetcher
	Detail    *fetch.DetailFetcher
	Profile   *fetch.ProfileFetcher
	Views     *view.Composer

	stopFollow func()
}

// New builds a fully initialised application from cfg.
func New(cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.New(cfg.Logging)
	}

	a := &Application{cfg: cfg, manager: system.NewManager(), log: log}

	reader := opts.Reader
	if reader == nil {
		client, err := chain.NewClient(cfg.ChainConfig(log.WithComponent("chain")))
		if err != nil {
			return nil, fmt.Errorf("configure node client: %w", err)
		}
		reader = chain.NewMarketplaceContract(client, cfg.Identity())
	}
	a.Contract = reader

	store := opts.Store
	if store == nil {
		s, closer, err := openStore(cfg.Session)
		if err != nil {
			return nil, err
		}
		store = s
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	connector := opts.Connector
	if connector == nil {
		a.Addresses = session.NewAddressConnector(store, cfg.ChainNetwork() == chain.Mainnet, log.WithComponent("wallet"))
		connector = a.Addresses
	}
	a.Session = session.NewManager(store, connector, session.AppDetails{
		Name: cfg.Wallet.AppName,
		Icon: cfg.Wallet.AppIcon,
	}, log.WithComponent("session"))

	fetchLog := log.WithComponent("fetch")
	a.Catalog = fetch.NewCatalogFetcher(reader, fetchLog)
	a.Detail = fetch.NewDetailFetcher(reader, fetchLog)
	a.Profile = fetch.NewProfileFetcher(reader, fetchLog)
	a.stopFollow = a.Profile.FollowSession(a.Session)
	a.Views = view.NewComposer(a.Session, a.Catalog, a.Detail, a.Profile, log.WithComponent("view"))

	services := []system.Service{resumeService{session: a.Session, log: log}}
	if cfg.Refresh.CatalogSchedule != "" {
		refresher, err := fetch.NewCatalogRefresher(a.Catalog, cfg.Refresh.CatalogSchedule, log.WithComponent("catalog-refresher"))
		if err != nil {
			return nil, err
		}
		services = append(services, refresher)
	}
	for _, svc := range services {
		if err := a.manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}
	return a, nil
}

func openStore(cfg config.SessionConfig) (session.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return session.NewMemoryStore(), nil, nil
	case config.BackendRedis:
		client, err := session.ConnectRedis(cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		store := session.NewRedisStore(client, cfg.RedisKey)
		return store, store.Close, nil
	case config.BackendFile, "":
		return session.NewFileStore(cfg.Path), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// Config returns the configuration the application was built from.
func (a *Application) Config() *config.Config { return a.cfg }

// Logger returns the root logger.
func (a *Application) Logger() *logger.Logger { return a.log }

// NewHTTPServer builds the HTTP view surface from the configuration and
// attaches it. Call before Start.
func (a *Application) NewHTTPServer() (*httpapi.Server, error) {
	srv, err := httpapi.NewServer(httpapi.Deps{
		Session:   a.Session,
		Connector: a.Addresses,
		Mainnet:   a.cfg.ChainNetwork() == chain.Mainnet,
		Reader:    a.Contract,
		Catalog:   a.Catalog,
		Profile:   a.Profile,
		Composer:  a.Views,
		Logger:    a.log.WithComponent("http"),
	}, httpapi.Options{
		ListenAddr:     a.cfg.HTTP.ListenAddr,
		AllowedOrigins: a.cfg.HTTP.AllowedOrigins,
		RateLimit:      a.cfg.HTTP.RateLimit,
		Burst:          a.cfg.HTTP.Burst,
	})
	if err != nil {
		return nil, err
	}
	if err := a.Attach(srv); err != nil {
		return nil, err
	}
	return srv, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services, cancels in-flight reads and releases the session
// backend.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	if a.stopFollow != nil {
		a.stopFollow()
		a.stopFollow = nil
	}
	a.Catalog.Close()
	a.Detail.Close()
	a.Profile.Close()

	errs := []error{err}
	for _, closer := range a.closers {
		errs = append(errs, closer())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// resumeService restores the persisted wallet session at start-up. A session
// that cannot be read leaves the client disconnected rather than failing.
type resumeService struct {
	session *session.Manager
	log     *logger.Logger
}

func (r resumeService) Name() string { return "session" }

func (r resumeService) Start(ctx context.Context) error {
	if err := r.session.Resume(ctx); err != nil {
		r.log.WithError(err).Warn("starting without a wallet session")
	}
	return nil
}

func (r resumeService) Stop(ctx context.Context) error { return nil }
