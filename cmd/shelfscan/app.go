package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"shelfscan/internal/access"
	"shelfscan/internal/config"
	"shelfscan/internal/dispatch"
	"shelfscan/internal/googlebooks"
	"shelfscan/internal/logging"
	"shelfscan/internal/session"
	"shelfscan/internal/store"
	"shelfscan/internal/zotero"
)

// resultGrace is added to the request timeout when waiting on session events.
const resultGrace = 10 * time.Second

// app is one wired shelfscan instance: store, queue, handlers and session.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	key      store.Key
	registry *prometheus.Registry
	queue    *dispatch.Queue
	zotero   *dispatch.Handler
	books    *dispatch.Handler
	session  *session.Session
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.RequireZotero(); err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	key, err := st.SaveKey(ctx, store.Key{Key: cfg.Zotero.APIKey, UserID: cfg.Zotero.UserID})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: st, key: key, registry: prometheus.NewRegistry()}
	if err := a.wire(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	metrics := dispatch.NewMetrics(a.registry)
	transport := dispatch.NewHTTPTransport(dispatch.HTTPOptions{
		UserAgent:       a.cfg.Dispatch.UserAgent,
		RatePerSecond:   a.cfg.Dispatch.RatePerSecond,
		Burst:           a.cfg.Dispatch.Burst,
		BreakerFailures: a.cfg.Dispatch.BreakerFailures,
		BreakerCooldown: a.cfg.BreakerCooldown(),
		Logger:          a.logger,
	})
	a.queue = dispatch.NewQueue(transport,
		dispatch.WithWorkers(a.cfg.Dispatch.Workers),
		dispatch.WithTimeout(a.cfg.RequestTimeout()),
		dispatch.WithLogger(a.logger),
		dispatch.WithMetrics(metrics),
	)

	a.zotero = zotero.NewHandler(zotero.HandlerDeps{
		Access:  a.store,
		Groups:  a.store,
		Logger:  a.logger,
		Options: []dispatch.HandlerOption{dispatch.WithHandlerMetrics(metrics)},
	})
	a.books = googlebooks.NewHandler(a.logger, dispatch.WithHandlerMetrics(metrics))

	account, err := zotero.NewAccount(a.cfg.Zotero, access.KeyRef{ID: a.key.ID, Key: a.key.Key})
	if err != nil {
		return err
	}
	library, err := zotero.New(a.cfg.Zotero, account, a.queue, a.zotero)
	if err != nil {
		return err
	}
	lookups, err := googlebooks.New(a.cfg.GoogleBooks, a.queue, a.books)
	if err != nil {
		return err
	}
	a.session, err = session.New(session.Deps{
		Key:     account.Key,
		Store:   a.store,
		Library: library,
		Lookups: lookups,
		Queue:   a.queue,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}

	a.zotero.Bind(a.session)
	a.books.Bind(a.session)
	return a.queue.Start(ctx)
}

// Close unbinds the session, stops the queue and closes the store.
func (a *app) Close() error {
	if a.zotero != nil {
		a.zotero.Unbind()
	}
	if a.books != nil {
		a.books.Unbind()
	}
	if a.queue != nil {
		a.queue.Stop()
	}
	return a.store.Close()
}

// errStop ends an await loop without an error.
var errStop = errors.New("stop")

// await feeds session events to fn until fn returns errStop or an error, or
// until the request timeout plus a grace period passes.
func (a *app) await(ctx context.Context, fn func(session.Event) error) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout()+resultGrace)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for results: %w", ctx.Err())
		case ev := <-a.session.Events():
			if err := fn(ev); err != nil {
				if errors.Is(err, errStop) {
					return nil
				}
				return err
			}
		}
	}
}

// authorize loads the key's access and waits until it is known.
func (a *app) authorize(ctx context.Context, refresh bool) (*access.Access, error) {
	var err error
	if refresh {
		err = a.session.RefreshPermissions()
	} else {
		err = a.session.LookupAuthorizations(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}

	var acc *access.Access
	err = a.await(ctx, func(ev session.Event) error {
		switch ev.Kind {
		case session.EventPermissions:
			acc = ev.Access
			return errStop
		case session.EventDenied:
			return fmt.Errorf("permissions: %w", ev.Err)
		}
		return nil
	})
	return acc, err
}
