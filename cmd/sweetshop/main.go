package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/Skotchmaster/sweet_shop/internal/config"
	"github.com/Skotchmaster/sweet_shop/internal/events"
	"github.com/Skotchmaster/sweet_shop/internal/httpserver"
	"github.com/Skotchmaster/sweet_shop/internal/jobs"
	"github.com/Skotchmaster/sweet_shop/internal/metrics"
	"github.com/Skotchmaster/sweet_shop/internal/models"
	"github.com/Skotchmaster/sweet_shop/internal/repo"
	"github.com/Skotchmaster/sweet_shop/internal/search"
	"github.com/Skotchmaster/sweet_shop/internal/service"
	pkgdb "github.com/Skotchmaster/sweet_shop/pkg/db"
	"github.com/Skotchmaster/sweet_shop/pkg/logging"
	loggingmw "github.com/Skotchmaster/sweet_shop/pkg/middleware/logging"
	"github.com/Skotchmaster/sweet_shop/pkg/tokens"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("env_file_not_loaded", "path", *envFile, "error", err)
	}

	cfg, err := config.Load(context.Background(), nil)
	if err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("sweetshop_failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := pkgdb.Open(openCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, pkgdb.Close(db)) }()

	r := &repo.GormRepo{DB: db}
	if err := r.Migrate(ctx); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, cfg.MetricsNamespace)

	var pub events.Publisher = events.Noop{}
	if cfg.EventsEnabled() {
		producer := events.NewProducer(cfg.KafkaBrokers, logger)
		defer func() { err = multierr.Append(err, producer.Close()) }()
		pub = producer
		logger.Info("events_enabled", "brokers", cfg.KafkaBrokers)
	}

	inv := &service.InventoryService{Repo: r, Events: pub, Metrics: m}
	if cfg.SearchEnabled() {
		es, err := search.NewClient(search.Config{
			URL:      cfg.ESURL,
			User:     cfg.ESUser,
			Password: cfg.ESPassword,
			Index:    cfg.ESIndex,
		})
		if err != nil {
			return err
		}
		esCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := es.Ping(esCtx); err != nil {
			logger.Warn("search_unreachable", "url", cfg.ESURL, "error", err)
		} else if err := es.EnsureIndex(esCtx); err != nil {
			logger.Warn("search_index_unavailable", "index", es.Index(), "error", err)
		}
		cancel()
		inv.Index = es
		logger.Info("search_enabled", "index", es.Index())
	}

	iss := tokens.NewIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL, models.AllRoles()...)
	authSvc := &service.AuthService{Repo: r, Tokens: iss, Events: pub, Metrics: m}

	if _, err := authSvc.SeedAdmin(logging.IntoContext(ctx, logger), cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}

	if cfg.ReindexSchedule != "" && inv.Index != nil {
		sched, err := jobs.NewScheduler(cfg.ReindexSchedule, jobs.NewReindexJob(inv, logger), logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.Secure())
	e.Use(loggingmw.RequestLoggerWithConfig(loggingmw.Config{
		Logger:        logger,
		UserIDKey:     "user_id",
		QuietPrefixes: []string{"/health", "/metrics"},
	}))
	e.Use(echomw.CORS())
	e.Use(echomw.BodyLimit("1M"))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:      &httpserver.AuthHTTP{Svc: authSvc},
		SweetsHandler:    &httpserver.SweetsHTTP{Svc: inv},
		Tokens:           iss,
		DB:               db,
		Registry:         reg,
		MetricsNamespace: cfg.MetricsNamespace,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sweetshop_listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting_down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("sweetshop_stopped")
	return nil
}
