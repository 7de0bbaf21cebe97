package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onnwee/chatter/chat"
	"github.com/onnwee/chatter/config"
	"github.com/onnwee/chatter/crypto"
	"github.com/onnwee/chatter/db"
	"github.com/onnwee/chatter/discordapi"
	"github.com/onnwee/chatter/kickapi"
	"github.com/onnwee/chatter/relay"
	"github.com/onnwee/chatter/twitchapi"
	"github.com/onnwee/chatter/youtubeapi"
)

// newLogger builds the process logger from settings. When quiet is set (TUI
// mode) logs go to LOG_FILE, or nowhere, so they don't corrupt the screen.
func newLogger(s *config.Settings, quiet bool) (*slog.Logger, func(), error) {
	var out io.Writer = os.Stdout
	closeFn := func() {}
	switch {
	case s.LogFile != "":
		if err := os.MkdirAll(filepath.Dir(s.LogFile), 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { _ = f.Close() }
	case quiet:
		out = io.Discard
	}

	opts := &slog.HandlerOptions{Level: s.SlogLevel()}
	var handler slog.Handler
	switch s.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	log := slog.New(handler)
	slog.SetDefault(log)
	return log, closeFn, nil
}

// openStore returns the accounts store for the configured backend. The
// returned func releases it.
func openStore(ctx context.Context, s *config.Settings) (config.Store, func(), error) {
	if s.AccountsBackend != config.BackendPostgres {
		return config.NewFileStore(s.AccountsFile), func() {}, nil
	}

	var sealer *crypto.Sealer
	if s.EncryptionKey != "" {
		var err error
		if sealer, err = crypto.NewSealer(s.EncryptionKey); err != nil {
			return nil, nil, err
		}
	}

	database, err := db.Connect(ctx, s.DBDsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(ctx, database); err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("migrate db: %w", err)
	}
	return db.NewAccountStore(database, sealer), func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}, nil
}

// newRegistry wires every platform to its adapter factory.
func newRegistry(ctx context.Context, s *config.Settings) chat.Registry {
	deps := s.Deps()
	return chat.Registry{
		chat.PlatformYouTube: youtubeapi.NewFactory(ctx, deps, s.YouTubeEndpoint),
		chat.PlatformTwitch:  twitchapi.NewFactory(twitchapi.NewDialer(s.TwitchIRCAddr)),
		chat.PlatformKick: kickapi.NewFactory(kickapi.Config{
			APIURL:    s.KickAPIURL,
			PusherURL: s.KickPusherURL,
			Timeout:   s.RequestTimeout,
		}),
		chat.PlatformDiscord: discordapi.NewFactory(discordapi.DefaultDialer),
		chat.PlatformRelay:   relay.NewFactory(deps),
	}
}

// app is a running aggregator with its bus and store.
type app struct {
	settings *config.Settings
	log      *slog.Logger
	store    config.Store
	bus      *chat.Bus
	agg      *chat.Aggregator

	closeStore func()
}

// startApp opens the store, applies the current accounts and starts
// watching them for changes. Adapters live until ctx is done or Close.
func startApp(ctx context.Context, s *config.Settings, log *slog.Logger) (*app, error) {
	store, closeStore, err := openStore(ctx, s)
	if err != nil {
		return nil, err
	}
	rt := &app{
		settings:   s,
		log:        log,
		store:      store,
		bus:        chat.NewBus(),
		closeStore: closeStore,
	}
	rt.agg = chat.NewAggregator(ctx, rt.bus, newRegistry(ctx, s), log.With(slog.String("component", "aggregator")))

	if err := rt.agg.Reload(ctx, store); err != nil {
		closeStore()
		return nil, err
	}

	if s.WatchAccounts {
		if err := rt.watch(ctx); err != nil {
			log.Warn("accounts watcher disabled", slog.Any("err", err))
		}
	}
	return rt, nil
}

// reloadIfChanged re-reads the store and rebuilds the adapters unless the
// accounts are the ones already running.
func (rt *app) reloadIfChanged(ctx context.Context) {
	snap, err := rt.store.Load(ctx)
	if err != nil {
		rt.log.Error("accounts changed but could not be loaded, keeping current adapters", slog.Any("err", err))
		return
	}
	if snap.Equal(rt.agg.Snapshot()) {
		rt.log.Debug("accounts unchanged, skipping reload")
		return
	}
	rt.log.Info("accounts changed, reloading")
	rt.agg.LoadAndConnect(snap)
}

func (rt *app) watch(ctx context.Context) error {
	switch st := rt.store.(type) {
	case *config.FileStore:
		return config.Watch(ctx, st.Path(), config.DefaultDebounce, func() { rt.reloadIfChanged(ctx) }, rt.log)
	case *db.AccountStore:
		go rt.pollStore(ctx, st)
		return nil
	default:
		return fmt.Errorf("store %T cannot be watched", st)
	}
}

// pollStore reloads when the database row's update time moves.
func (rt *app) pollStore(ctx context.Context, st *db.AccountStore) {
	last, _ := st.UpdatedAt(ctx)
	ticker := time.NewTicker(rt.settings.StorePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			at, err := st.UpdatedAt(ctx)
			if err != nil {
				rt.log.Warn("accounts poll failed", slog.Any("err", err))
				continue
			}
			if at.Equal(last) {
				continue
			}
			last = at
			rt.reloadIfChanged(ctx)
		}
	}
}

// Close disconnects every adapter and releases the store.
func (rt *app) Close() {
	rt.agg.Close()
	rt.closeStore()
}

// startPprof serves the default mux (with /debug/pprof) when enabled.
func startPprof(s *config.Settings) {
	if !s.EnablePprof {
		return
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", s.PprofAddr))
		srv := &http.Server{
			Addr:              s.PprofAddr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
