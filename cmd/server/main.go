package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/cds-extensions/internal/bank"
	"github.com/iliyamo/cds-extensions/internal/config"
	"github.com/iliyamo/cds-extensions/internal/consent"
	"github.com/iliyamo/cds-extensions/internal/database"
	"github.com/iliyamo/cds-extensions/internal/events"
	"github.com/iliyamo/cds-extensions/internal/gateway"
	"github.com/iliyamo/cds-extensions/internal/handler"
	"github.com/iliyamo/cds-extensions/internal/logging"
	"github.com/iliyamo/cds-extensions/internal/metadata"
	"github.com/iliyamo/cds-extensions/internal/metrics"
	"github.com/iliyamo/cds-extensions/internal/middleware"
	"github.com/iliyamo/cds-extensions/internal/queue"
	"github.com/iliyamo/cds-extensions/internal/repository"
	"github.com/iliyamo/cds-extensions/internal/router"
	"github.com/iliyamo/cds-extensions/internal/scheduler"
)

func main() {
	_ = godotenv.Load() // .env is optional
	logging.Setup(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))

	cfg := config.Load()
	cds, err := config.LoadCDS(cfg.CDSConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load cds config")
	}
	timeout := time.Duration(cfg.HTTPTimeoutSec) * time.Second

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := database.EnsureSchema(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unavailable, metrics cache and rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores and outward clients
	metaRepo := repository.NewAccountMetadataRepo(db)
	consentRepo := repository.NewConsentRepo(db)
	providerRepo := repository.NewServiceProviderRepo(db)
	publisher := queue.NewPublisher(cfg.AMQPURL)
	bankClient := bank.NewClient(cds.Authorize.SharableAccountsURL, timeout)

	// Register metadata
	holder := metadata.NewHolder()
	updater := &metadata.Updater{
		Registry:  metadata.NewRegistryClient(cds.MetadataCache, timeout),
		Providers: providerRepo,
		Holder:    holder,
		Consents:  consentRepo,
		Events:    publisher,
		Cfg:       cds.MetadataCache,
	}
	sched := scheduler.New(ctx)
	if cds.MetadataCache.Enabled {
		if err := sched.RegisterMetadata(updater, cds.MetadataCache); err != nil {
			log.Fatal().Err(err).Msg("schedule metadata jobs")
		}
		go updater.Run(ctx)
	}
	sched.Start()

	// Consent state events
	executor := &events.Executor{}
	if cds.Telemetry.PublishAuthMetrics {
		executor.Metrics = publisher
	}
	if cds.Revocation.Enabled && cds.Revocation.SigningKeyPath != "" {
		key, err := events.LoadSigningKey(cds.Revocation.SigningKeyPath)
		if err != nil {
			log.Fatal().Err(err).Msg("load revocation signing key")
		}
		executor.Revoker = events.NewRevocationClient(cds.Revocation, key, providerRepo, timeout)
	} else if cds.Revocation.Enabled {
		log.Warn().Msg("revocation signing key not configured, recipients will not be notified")
	}

	// Metrics
	var metricsCache metrics.Cache
	if rdb != nil {
		metricsCache = metrics.NewRedisCache(rdb)
	}
	metricsSvc := &metrics.Service{
		Analytics: metrics.NewAnalyticsClient(cds.Metrics.AnalyticsURL, cds.Metrics.AppName, timeout),
		Cache:     metricsCache,
		Cfg:       cds.Metrics,
	}

	// HTTP
	mediator := &gateway.Mediator{Cfg: cds.Telemetry}
	if cds.Telemetry.Enabled {
		mediator.Telemetry = publisher
	}
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = mediator.ErrorHandler
	e.Use(gateway.InteractionID())

	router.RegisterRoutes(e, &handler.HealthHandler{DB: db, Metadata: holder})
	router.RegisterConsent(e, &handler.ConsentHandler{
		Builder: &consent.Builder{Accounts: bankClient, Meta: metaRepo, Consents: consentRepo, Providers: providerRepo, Cfg: cds},
		Persister: consent.NewPersister(
			&consent.SecondaryAccountStep{Cfg: cds.SecondaryUser},
			&consent.BusinessAccountStep{Meta: metaRepo, Cfg: cds.BNR},
			&consent.BaseStep{Consents: consentRepo, Meta: metaRepo, Events: publisher},
		),
		Validator: &consent.Validator{Consents: consentRepo, Meta: metaRepo, Providers: providerRepo, Accounts: bankClient, Cfg: cds},
		Accounts:  bankClient,
		Timeout:   timeout,
	}, holder)
	router.RegisterAdmin(e,
		&handler.AdminHandler{
			Admin:      &consent.Admin{Meta: metaRepo, Consents: consentRepo, Events: publisher},
			MetricsSvc: metricsSvc,
			Timeout:    timeout,
		},
		&handler.AuthHandler{JWTSecret: cfg.JWTSecret, TTL: 15 * time.Minute, Role: middleware.RoleAdmin},
		middleware.AdminCredentials{JWTSecret: cfg.JWTSecret, User: cfg.AdminUser, PasswordHash: cfg.AdminPasswordHash},
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := queue.StartConsentStateConsumer(gctx, cfg.AMQPURL, executor.Process)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
		}
		updater.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
