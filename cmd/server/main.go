// Command server runs the door access controller: the resolution endpoint,
// the manager admin API, the background membership refresher, and the audit
// pipeline.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"heimdall/internal/access"
	"heimdall/internal/access/cache"
	accesshandler "heimdall/internal/access/handler"
	accessmetrics "heimdall/internal/access/metrics"
	"heimdall/internal/audit"
	auditmetrics "heimdall/internal/audit/metrics"
	identityhandler "heimdall/internal/identity/handler"
	identitymetrics "heimdall/internal/identity/metrics"
	"heimdall/internal/identity/service"
	"heimdall/internal/identity/store"
	"heimdall/internal/membership"
	membershipmetrics "heimdall/internal/membership/metrics"
	"heimdall/internal/membership/refresher"
	"heimdall/internal/platform/config"
	"heimdall/internal/platform/httpserver"
	"heimdall/internal/platform/logger"
	platformredis "heimdall/internal/platform/redis"
	"heimdall/pkg/platform/circuit"
	"heimdall/pkg/platform/middleware/auth"
	"heimdall/pkg/platform/middleware/metadata"
	"heimdall/pkg/platform/middleware/requestid"
	"heimdall/pkg/platform/middleware/requesttime"
)

const (
	auditBuffer = 1024
	// Refresher fetches run off the hot path and can afford a real timeout.
	membershipTimeout = 10 * time.Second
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("controller exited", "error", err)
		os.Exit(1)
	}
	log.Info("controller stopped")
}

func run(cfg config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	identityStore, db, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	sink, closeSink, err := newAuditSink(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeSink()

	resolveCache, closeCache, err := newCache(cfg, identityStore)
	if err != nil {
		return err
	}
	defer closeCache()

	auditWorker := audit.NewWorker(sink, auditBuffer, log, auditmetrics.New())
	identitySvc := service.New(identityStore, resolveCache, log, identitymetrics.New())
	resolver := access.NewResolver(resolveCache, identityStore, auditWorker,
		cfg.ResolveTimeout, cfg.GraceWindow, log, accessmetrics.New())

	router := newRouter(cfg, log, resolver, identitySvc)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return auditWorker.Run(gctx)
	})

	if cfg.MembershipURL != "" {
		source := membership.WithBreaker(
			membership.NewHTTPSource(cfg.MembershipURL, membershipTimeout),
			circuit.New("membership", circuit.WithFailureThreshold(3)),
			log,
		)
		sweep := refresher.New(identityStore, identitySvc, source,
			cfg.RefreshInterval, log, membershipmetrics.New())
		g.Go(func() error {
			return sweep.Run(gctx)
		})
	} else {
		log.Warn("no membership source configured; statuses will age until the grace window denies")
	}

	g.Go(func() error {
		log.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newStore(ctx context.Context, cfg config.Config) (store.Store, *sql.DB, error) {
	if cfg.PostgresDSN == "" {
		return store.NewInMemory(), nil, nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	pg := store.NewPostgres(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return pg, db, nil
}

// newAuditSink picks the audit destination: kafka when brokers are
// configured, else the postgres table next to the identity store, else
// process memory.
func newAuditSink(ctx context.Context, cfg config.Config, db *sql.DB) (audit.Sink, func(), error) {
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := audit.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		return kafka, kafka.Close, nil
	}
	if db != nil {
		pg := audit.NewPostgresSink(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		return pg, func() {}, nil
	}
	return audit.NewInMemorySink(), func() {}, nil
}

func newCache(cfg config.Config, loader cache.Loader) (cache.Cache, func(), error) {
	if cfg.RedisURL == "" {
		return cache.NewMemory(loader, cfg.CacheFreshness, cfg.StatusFreshness), func() {}, nil
	}

	client, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	c := cache.NewRedis(client.Client, loader, cfg.CacheFreshness, cfg.StatusFreshness)
	return c, func() { _ = client.Close() }, nil
}

func newRouter(cfg config.Config, log *slog.Logger, resolver *access.Resolver, identitySvc *service.Service) chi.Router {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	accesshandler.New(resolver, log).Register(r)

	verifier := auth.NewVerifier([]byte(cfg.AdminJWTKey))
	r.Group(func(admin chi.Router) {
		admin.Use(auth.RequireManager(verifier, log))
		identityhandler.New(identitySvc, log).Register(admin)
	})

	return r
}
