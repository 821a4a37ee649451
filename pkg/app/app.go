// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

// Package app assembles a credshare process from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/internaltools/credshare/pkg/api"
	"github.com/internaltools/credshare/pkg/audit"
	"github.com/internaltools/credshare/pkg/debug"
	"github.com/internaltools/credshare/pkg/events"
	"github.com/internaltools/credshare/pkg/lifecycle"
	"github.com/internaltools/credshare/pkg/logger"
	"github.com/internaltools/credshare/pkg/metadata/db"
	"github.com/internaltools/credshare/pkg/metadata/db/leveldb"
	"github.com/internaltools/credshare/pkg/metadata/db/memory"
	metasql "github.com/internaltools/credshare/pkg/metadata/db/sql"
	"github.com/internaltools/credshare/pkg/objstore"
	"github.com/internaltools/credshare/pkg/storage/backend"
	"github.com/internaltools/credshare/pkg/types"
)

const readyCheckTimeout = 2 * time.Second

// App owns every component of a running process. Components never reach
// each other through globals; New wires them explicitly.
type App struct {
	cfg Config

	backends *backend.Manager
	meta     db.DB
	auditLog *audit.Log
	emitter  *events.Emitter
	store    *objstore.Store
	sweeper  *lifecycle.Sweeper
	handler  *api.Handler
	server   *api.Server

	debugServer *http.Server

	mu       sync.Mutex
	cancel   context.CancelFunc
	addr     net.Addr
	stopOnce sync.Once
}

// New builds every component without starting any background work.
// On error, whatever was opened is closed again.
func New(ctx context.Context, cfg Config) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		backends: backend.NewManager(),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	payload, err := a.backends.Add(BackendPayload, cfg.Payload)
	if err != nil {
		return nil, err
	}

	a.meta, err = openMetadata(ctx, cfg.Metadata)
	if err != nil {
		return nil, err
	}

	auditStore, err := audit.OpenStore(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	a.auditLog = audit.New(cfg.Audit, auditStore)
	if cfg.exportEnabled() {
		dest, err := a.backends.Add(BackendAccessLogs, cfg.AccessLogs)
		if err != nil {
			return nil, err
		}
		a.auditLog.WithExporter(audit.NewExporter(cfg.Audit, auditStore, dest))
	}

	a.emitter = events.NoopEmitter()
	if cfg.Events.Enabled {
		pubs, err := events.NewPublishers(cfg.Events)
		if err != nil {
			return nil, fmt.Errorf("open event publishers: %w", err)
		}
		a.emitter = events.NewEmitter(cfg.Events, pubs...)
	}

	a.store = objstore.New(cfg.Objects, a.meta, payload,
		objstore.WithAuditor(a.auditLog),
		objstore.WithNotifier(a.emitter),
	)
	a.sweeper = lifecycle.NewSweeper(cfg.Lifecycle, a.store, a.auditLog)
	a.handler = api.NewHandler(cfg.API, a.store, a.auditLog)
	a.server = api.NewServer(cfg.API, a.handler)

	logger.Info().
		Str("payload", string(cfg.Payload.Type)).
		Str("metadata", string(cfg.Metadata.Driver)).
		Str("audit_store", cfg.Audit.Store).
		Bool("audit_export", cfg.exportEnabled()).
		Bool("events", a.emitter.IsEnabled()).
		Dur("retention", cfg.Objects.Retention).
		Msg("credshare assembled")

	return a, nil
}

func openMetadata(ctx context.Context, cfg db.Config) (db.DB, error) {
	var (
		store db.DB
		err   error
	)
	switch cfg.Driver {
	case db.DriverMemory, "":
		store = memory.New()
	case db.DriverLevelDB:
		store, err = leveldb.Open(cfg.DSN, true)
	default:
		dialect, ok := metasql.DialectFor(string(cfg.Driver))
		if !ok {
			return nil, fmt.Errorf("unknown metadata driver %q", cfg.Driver)
		}
		store, err = metasql.Open(dialect, metasql.ConfigFrom(cfg))
	}
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate metadata store: %w", err)
	}
	return db.NewMetricsDB(store), nil
}

// Start launches the background loops and the listeners, then marks the
// process ready.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return errors.New("app already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.auditLog.Start(runCtx)
	a.emitter.Start(runCtx)
	a.sweeper.Start(runCtx)

	addr, err := a.server.Start()
	if err != nil {
		cancel()
		return fmt.Errorf("start http server: %w", err)
	}
	a.addr = addr

	if a.cfg.DebugAddr != "" {
		a.debugServer = &http.Server{
			Addr:              a.cfg.DebugAddr,
			Handler:           debug.GetMux(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := a.debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", a.cfg.DebugAddr).Msg("debug server exited")
			}
		}()
	}

	debug.AddReadyCheck("metadata", a.checkMetadata)
	debug.AddReadyCheck(BackendPayload, a.checkPayload)
	debug.SetReady()
	return nil
}

// Stop drains in reverse start order: stop accepting requests, stop the
// sweeps, flush events and audit entries, then close the stores.
func (a *App) Stop(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		debug.SetNotReady()
		debug.RemoveReadyCheck("metadata")
		debug.RemoveReadyCheck(BackendPayload)

		a.mu.Lock()
		cancel := a.cancel
		a.mu.Unlock()

		if cancel != nil {
			if e := a.server.Shutdown(ctx); e != nil {
				err = errors.Join(err, fmt.Errorf("shutdown http server: %w", e))
			}
			if a.debugServer != nil {
				a.debugServer.Shutdown(ctx)
			}
			a.sweeper.Stop()
			if e := a.emitter.Stop(); e != nil {
				err = errors.Join(err, fmt.Errorf("stop event emitter: %w", e))
			}
			a.auditLog.Stop()
			cancel()
		}
		err = errors.Join(err, a.close())
	})
	return err
}

func (a *App) close() error {
	var err error
	if a.cancel == nil {
		// Never started: deliver what one-shot callers recorded.
		if a.emitter != nil {
			err = errors.Join(err, a.emitter.Stop())
		}
		if a.auditLog != nil {
			a.auditLog.Stop()
		}
	}
	if a.auditLog != nil {
		err = errors.Join(err, a.auditLog.Close())
	}
	if a.meta != nil {
		err = errors.Join(err, a.meta.Close())
	}
	return errors.Join(err, a.backends.Close())
}

func (a *App) checkMetadata() error {
	ctx, cancel := context.WithTimeout(context.Background(), readyCheckTimeout)
	defer cancel()
	_, err := a.meta.GetObject(ctx, "ready-probe")
	if err != nil && !errors.Is(err, db.ErrObjectNotFound) {
		return err
	}
	return nil
}

func (a *App) checkPayload() error {
	ctx, cancel := context.WithTimeout(context.Background(), readyCheckTimeout)
	defer cancel()
	_, err := a.payload().Exists(ctx, "ready-probe")
	return err
}

func (a *App) payload() types.BackendStorage {
	b, _ := a.backends.Get(BackendPayload)
	return b
}

// Addr is the bound API address once started.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

func (a *App) Store() *objstore.Store { return a.store }

func (a *App) AuditLog() *audit.Log { return a.auditLog }

func (a *App) Sweeper() *lifecycle.Sweeper { return a.sweeper }

func (a *App) Handler() http.Handler { return a.handler }
