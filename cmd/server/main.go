// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"dochost/internal/audit"
	authhandler "dochost/internal/auth/handler"
	authservice "dochost/internal/auth/service"
	"dochost/internal/auth/store/user"
	"dochost/internal/content"
	"dochost/internal/defense/admin"
	defenseconfig "dochost/internal/defense/config"
	"dochost/internal/defense/engine"
	defensehandler "dochost/internal/defense/handler"
	"dochost/internal/defense/metrics"
	"dochost/internal/defense/tracer"
	"dochost/internal/defense/workers/cleanup"
	jwttoken "dochost/internal/jwt_token"
	"dochost/internal/platform/config"
	"dochost/internal/platform/health"
	"dochost/internal/platform/httpserver"
	"dochost/internal/platform/logger"
	httptransport "dochost/internal/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New("info").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	log.Info("initializing dochost",
		"addr", cfg.Addr,
		"upload_dir", cfg.UploadDir,
		"audit_log", cfg.AuditLogPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	settings := defenseconfig.NewStore(defenseconfig.Defaults())
	if len(cfg.Defense) > 0 {
		res := settings.Apply(cfg.Defense)
		log.Info("applied defense overrides from config",
			"applied", res.Applied,
			"rejected", res.Rejected,
		)
	}

	// Spans go to the global OTel provider; a no-op until a deployment
	// installs an exporter.
	eng, err := engine.New(settings,
		engine.WithLogger(log),
		engine.WithMetrics(m),
		engine.WithTracer(tracer.NewOTel()),
	)
	if err != nil {
		log.Error("failed to build defense engine", "error", err)
		os.Exit(1)
	}

	auditFile, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		log.Error("failed to open audit log", "error", err)
		os.Exit(1)
	}
	defer auditFile.Close()

	recorder, err := audit.NewRecorder(auditFile, audit.WithLogger(log))
	if err != nil {
		log.Error("failed to build audit recorder", "error", err)
		os.Exit(1)
	}

	adminSvc, err := admin.New(settings, eng,
		admin.WithLogger(log),
		admin.WithMetrics(m),
		admin.WithAuditRecorder(recorder),
	)
	if err != nil {
		log.Error("failed to build admin service", "error", err)
		os.Exit(1)
	}

	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, "dochost", cfg.TokenTTL)
	users := user.New()
	authSvc, err := authservice.New(users, eng, tokens,
		authservice.WithLogger(log),
		authservice.WithAuditRecorder(recorder),
	)
	if err != nil {
		log.Error("failed to build auth service", "error", err)
		os.Exit(1)
	}
	if cfg.SeedUsername != "" {
		if err := authSvc.Register(ctx, cfg.SeedUsername, cfg.SeedPassword); err != nil {
			log.Error("failed to seed user", "error", err)
			os.Exit(1)
		}
		log.Info("seeded user", "username", cfg.SeedUsername)
	}

	store, err := content.NewStore(cfg.UploadDir)
	if err != nil {
		log.Error("failed to prepare upload directory", "error", err)
		os.Exit(1)
	}

	healthHandler := health.New()
	healthHandler.RegisterCheck("upload_dir", func() error {
		_, err := os.Stat(cfg.UploadDir)
		return err
	})

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:     log,
		AdminToken: cfg.AdminToken,
		Auth:       authhandler.New(authSvc, log),
		Content:    content.NewHandler(store, log, content.WithAuditRecorder(recorder)),
		Defense:    defensehandler.New(adminSvc, log),
		Health:     healthHandler,
		FakeIP: func() (bool, []string) {
			snap := settings.Snapshot()
			return snap.FakeIPEnabled, snap.FakeIPList
		},
	})

	srv := httpserver.New(cfg.Addr, router)
	sweeper := cleanup.New(eng,
		cleanup.WithLogger(log),
		cleanup.WithInterval(cfg.SweepInterval),
		cleanup.WithMetrics(m),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return sweeper.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
