// Package app wires the stores, fetchers and resolution engine shared by
// the HTTP and gRPC servers.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"bibxml/internal/auth"
	"bibxml/internal/citation"
	"bibxml/internal/events"
	"bibxml/internal/metrics"
	"bibxml/internal/refs"
	"bibxml/internal/sources"
	"bibxml/internal/xml2rfc"
	"bibxml/pkg/cache"
	"bibxml/pkg/database"
	"bibxml/pkg/utils"
)

type Config struct {
	DB      database.Config
	Server  utils.ServerConfig
	Auth    utils.AuthConfig
	Xml2rfc utils.Xml2rfcConfig
}

// LoadConfig reads every section from the environment and the optional
// YAML file.
func LoadConfig() (Config, error) {
	x, err := utils.LoadXml2rfcConfig()
	if err != nil {
		return Config{}, fmt.Errorf("load xml2rfc config: %w", err)
	}
	cfg := Config{
		DB:      database.DefaultConfig(),
		Server:  utils.LoadServerConfig(),
		Auth:    utils.LoadAuthConfig(),
		Xml2rfc: x,
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DB.Path) == "" {
		return errors.New("database path is required")
	}
	return c.Xml2rfc.Validate()
}

// App holds the long-lived components of one server process.
type App struct {
	Config Config
	Logger *slog.Logger

	DB    *sql.DB
	Cache *cache.Cache

	Refs      *refs.Repo
	Citations *citation.Builder
	DOI       *sources.DOIFetcher
	Manual    *xml2rfc.ManualMap
	Snapshots *xml2rfc.Snapshots
	Engine    *xml2rfc.Engine

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Hub      *events.Hub

	Tokens auth.TokenService
	Creds  auth.Credentials
}

// New opens the database and cache and builds the engine. The caller owns
// Close.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	cacheCfg := cache.InMemoryConfig()
	if cfg.Server.CacheDir != "" {
		cacheCfg = cache.DefaultConfig(cfg.Server.CacheDir)
	}
	cacheCfg.Logger = logger.With("component", "cache")
	c, err := cache.Open(cacheCfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Cache:  c,
		Tokens: auth.TokenService{
			Secret:   []byte(cfg.Auth.JWTSecret),
			Issuer:   cfg.Auth.JWTIssuer,
			Duration: cfg.Auth.JWTDuration,
		},
		Creds: auth.Credentials{
			User:         cfg.Auth.AdminUser,
			PasswordHash: cfg.Auth.AdminPasswordHash,
		},
	}

	a.Refs = refs.NewRepo(db)
	a.Citations = citation.NewBuilder(a.Refs, logger)
	a.DOI = sources.NewDOIFetcher(cfg.Server.CrossrefURL, c, logger)
	a.Manual = xml2rfc.NewManualMap(db)
	a.Snapshots = xml2rfc.NewSnapshots(db)

	fetchers, err := xml2rfc.NewRegistry(sources.DefaultFetchers(a.Refs, a.DOI)...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build fetcher registry: %w", err)
	}
	if err := xml2rfc.CheckAliases(cfg.Xml2rfc.Aliases, fetchers.Datasets()...); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("check aliases: %w", err)
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)
	a.Hub = events.NewHub(logger)

	a.Engine = xml2rfc.NewEngine(xml2rfc.EngineConfig{
		Aliases:           xml2rfc.NewAliases(cfg.Xml2rfc.Aliases, fetchers.Datasets()...),
		Fetchers:          fetchers,
		Manual:            a.Manual,
		Citations:         a.Citations,
		Snapshots:         a.Snapshots,
		Metrics:           a.Metrics,
		Events:            a.Hub,
		Logger:            logger,
		InternalRequester: cfg.Xml2rfc.InternalRequester,
	})

	logger.Info("resolution engine ready",
		"datasets", fetchers.Datasets(),
		"db", cfg.DB.Path,
		"prefix", cfg.Xml2rfc.PathPrefix,
	)
	return a, nil
}

func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	return errors.Join(errs...)
}
