package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clinichub/scheduling/internal/api"
	"github.com/clinichub/scheduling/internal/auth"
	"github.com/clinichub/scheduling/internal/authz"
	"github.com/clinichub/scheduling/internal/config"
	"github.com/clinichub/scheduling/internal/db"
	"github.com/clinichub/scheduling/internal/grants"
	"github.com/clinichub/scheduling/internal/identity"
	"github.com/clinichub/scheduling/internal/logging"
	"github.com/clinichub/scheduling/internal/onboarding"
	redisclient "github.com/clinichub/scheduling/internal/redis"
	"github.com/clinichub/scheduling/internal/scheduling"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := logging.Get()
		logger.Fatal().Err(err).Msg("config load error")
	}

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log := logging.Get()
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatal().Err(err).Msg("schema migration error")
	}

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	// The policy adapter keeps its own small connection; domain queries
	// stay on the pgx pool.
	policyDB, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("policy store connection error")
	}

	engine, err := authz.NewEngine(policyDB, cfg.CasbinPolicyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("authorization engine error")
	}

	watcher := authz.NewWatcher(rdb, cfg.PolicyReloadChannel, engine, log)
	go watcher.Run(rootCtx)

	verifier, err := auth.NewVerifier(rootCtx, auth.VerifierConfig{
		JWKSURL:  cfg.JWKSURL(),
		Issuer:   cfg.Issuer(),
		Audience: cfg.KCAudience,
		ClientID: cfg.KCClientID,
		Leeway:   cfg.JWTLeeway,
		KeyTTL:   cfg.KeyCacheTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("token verifier error")
	}

	sessions := db.NewSessions(pgPool)
	repo := scheduling.NewPgRepository()
	ledger := grants.NewPgLedger()
	publisher := scheduling.NewRedisPublisher(rdb, log)
	schedulingSvc := scheduling.NewService(sessions, repo, ledger, publisher, log)

	var onboardingSvc api.OnboardingService
	if cfg.KCAdminClientID != "" && cfg.InviteSecret != "" {
		admin, err := identity.NewAdminClient(
			cfg.KCURL, cfg.KCRealm, cfg.KCClientID,
			cfg.KCAdminClientID, cfg.KCAdminClientSecret,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("identity admin client error")
		}
		onboardingSvc = onboarding.NewService(cfg.InviteSecret, cfg.InviteAudience, cfg.InviteTTL, admin)
	} else {
		log.Warn().Msg("onboarding disabled: admin credentials or invite secret not configured")
	}

	router := api.NewRouter(api.RouterConfig{
		Scheduling:    schedulingSvc,
		Onboarding:    onboardingSvc,
		Authorizer:    engine,
		Verifier:      verifier,
		ClientID:      cfg.KCClientID,
		OnboardingURL: cfg.OnboardingURL,
		PgPool:        pgPool,
		Redis:         rdb,
		Env:           cfg.Env,
		Version:       version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()

	log.Info().Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
