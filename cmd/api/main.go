package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nostrgate.org/internal/access"
	"nostrgate.org/internal/audit"
	"nostrgate.org/internal/config"
	"nostrgate.org/internal/httpapi"
	"nostrgate.org/internal/invite"
	"nostrgate.org/internal/nip05"
	"nostrgate.org/internal/obs"
	"nostrgate.org/internal/session"
	pgstore "nostrgate.org/internal/store/pg"
	"nostrgate.org/internal/stream"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		store   access.Store
		logs    audit.Store
		invites invite.Ledger
		db      *sql.DB
	)
	if cfg.PGDSN != "" {
		pg, err := pgstore.Open(cfg.PGDSN)
		if err != nil {
			obs.Logger().Fatalf("postgres: %v", err)
		}
		defer pg.Close()
		store = pg
		logs = pg.Logs()
		invites = pg.Invites()
		db = pg.DB()
	} else {
		mem := access.NewInMemory()
		store = mem
		logs = audit.NewInMemory()
		invites = invite.NewInMemory(mem.Keys(context.Background()))
		obs.Warn("storage.inmemory", map[string]any{
			"detail": "NOSTRGATE_PG_DSN not set, all state is volatile",
		})
	}

	feed := stream.New()
	recorder := audit.NewRecorder(logs, feed, cfg.AuditBuffer)
	engine := access.NewEngine(store, recorder, access.WithLocation(cfg.Location))

	sessions, err := session.NewManager(cfg.SessionSecret, cfg.AdminPassword)
	if err != nil {
		obs.Logger().Fatalf("session: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Store:      store,
		Engine:     engine,
		Invites:    invites,
		Sessions:   sessions,
		Recorder:   recorder,
		Logs:       logs,
		Stream:     feed,
		Resolver:   nip05.NewResolver(cfg.NIP05Timeout),
		ReadyProbe: httpapi.ReadyProbe{DB: db},
		Version:    version,
	})

	handler := api.Handler()
	handler = httpapi.RateLimit(handler, cfg.RateBurst, cfg.RatePerSecond)
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// No blanket write timeout: the SSE feed holds its response open.
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		obs.LogRequest(map[string]any{
			"ts":      time.Now().UTC().Format(time.RFC3339Nano),
			"level":   "info",
			"msg":     "listening",
			"addr":    cfg.Addr,
			"version": version,
		})
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		obs.LogRequest(map[string]any{
			"ts":     time.Now().UTC().Format(time.RFC3339Nano),
			"level":  "info",
			"msg":    "shutting down",
			"signal": sig.String(),
		})
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Logger().Fatalf("server: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		obs.LogRequest(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "error",
			"msg":   "shutdown",
			"error": err.Error(),
		})
	}
	// Drain buffered audit entries before the process exits.
	if err := recorder.Close(ctx); err != nil {
		obs.LogRequest(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "error",
			"msg":   "audit drain",
			"error": err.Error(),
		})
	}
}
