package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"govpulse/internal/config"
	"govpulse/internal/db"
	"govpulse/internal/engine"
	"govpulse/internal/fetch"
	"govpulse/internal/insights"
	"govpulse/internal/migrate"
)

// Options selects the store and config a workspace is opened with.
type Options struct {
	Workspace string
	Driver    string
	DSN       string
	// ConfigPath overrides the workspace govpulse.yml.
	ConfigPath string
	Logger     zerolog.Logger
	Observer   fetch.Observer
}

// Workspace bundles an open, migrated store with the engine and report
// service built on it.
type Workspace struct {
	Conn     *sql.DB
	Dialect  db.Dialect
	Config   *config.Config
	Engine   engine.Engine
	Insights insights.Service
}

// Open loads config, opens the store, applies migrations and wires the
// engine and report service. A missing govpulse.yml yields the defaults.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	conn, dialect, err := db.Open(db.Config{Workspace: opts.Workspace, Driver: opts.Driver, DSN: opts.DSN})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn, dialect); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, dialect, cfg)
	return &Workspace{
		Conn:    conn,
		Dialect: dialect,
		Config:  cfg,
		Engine:  e,
		Insights: insights.Service{
			Store:    e.Repo,
			Config:   cfg,
			Logger:   opts.Logger,
			Observer: opts.Observer,
			Client:   &http.Client{Timeout: 30 * time.Second},
		},
	}, nil
}

func loadConfig(opts Options) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.FromFile(opts.ConfigPath)
	}
	return config.LoadOrDefault(opts.Workspace)
}

// Close releases the store.
func (w *Workspace) Close() error {
	if w == nil || w.Conn == nil {
		return nil
	}
	return w.Conn.Close()
}
