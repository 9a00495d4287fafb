package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/meridianpay/tokenvault/internal/chain"
	"github.com/meridianpay/tokenvault/internal/config"
	"github.com/meridianpay/tokenvault/internal/errors"
	"github.com/meridianpay/tokenvault/internal/health"
	"github.com/meridianpay/tokenvault/internal/httpapi"
	"github.com/meridianpay/tokenvault/internal/metrics"
	"github.com/meridianpay/tokenvault/internal/offline"
	"github.com/meridianpay/tokenvault/internal/signer"
	"github.com/meridianpay/tokenvault/internal/store"
	"github.com/meridianpay/tokenvault/internal/token"
)

// disabledGateway stands in when no blockchain gateway is configured:
// redemptions fail cleanly as external errors instead of panicking.
type disabledGateway struct{}

func (disabledGateway) Transfer(context.Context, string, int64) (string, error) {
	return "", errors.Externalf("blockchain gateway is not configured")
}

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load policy")
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Str("database", cfg.DatabasePath).
		Bool("gateway_enabled", cfg.GatewayEnabled()).
		Msg("starting token vault")

	// Ledger storage
	st, err := store.New(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open ledger store")
	}
	defer st.Close()

	// Issuer signing key
	var sig *signer.Signer
	if cfg.IssuerKeyPath != "" {
		sig, err = signer.New(cfg.IssuerKeyPath, logger)
	} else {
		logger.Warn().Msg("no issuer key configured, using ephemeral key")
		sig, err = signer.NewEphemeral(logger)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load issuer key")
	}

	m := metrics.New()

	// Blockchain gateway
	var gateway token.Gateway = disabledGateway{}
	var gatewayClient *chain.Client
	if cfg.GatewayEnabled() {
		gatewayClient = chain.NewClient(cfg.GatewayURL, cfg.GatewayTimeout, logger)
		gatewayClient.SetObserver(m.ObserveGateway)
		gateway = gatewayClient
	}

	// Core services
	manager := token.NewManager(st, sig, gateway, token.Config{
		TokenTTL:       policy.TokenTTL,
		MaxRedeemBatch: policy.MaxRedeemBatch,
	}, logger)
	detector := offline.NewConflictDetector(st, logger)
	coordinator := offline.NewCoordinator(st, detector, logger)

	// Persist expiry for tokens that lapsed while the service was down.
	if n, err := st.SweepExpired(context.Background(), time.Now().UTC()); err != nil {
		logger.Warn().Err(err).Msg("expired token sweep failed")
	} else if n > 0 {
		logger.Info().Int64("count", n).Msg("swept expired tokens")
	}

	// Health checker
	checker := health.NewChecker(logger)
	checker.Register("store", func(ctx context.Context) health.Status {
		if st.Ping() != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})
	if gatewayClient != nil {
		// A dead gateway only blocks redemptions, so it degrades
		// readiness rather than failing it.
		checker.Register("gateway", func(ctx context.Context) health.Status {
			if gatewayClient.Ping(ctx) != nil {
				return health.StatusDegraded
			}
			return health.StatusOK
		})
	}

	authMode := "jwt"
	if cfg.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			logger.Fatal().Msg("JWT_SECRET is required in production")
		}
		logger.Warn().Msg("no JWT secret configured, trusting X-Requester-ID header")
		authMode = "none"
	}

	handlers := httpapi.NewHandlers(manager, coordinator, st, checker, m, policy.MaxSyncBatch, logger)
	server := httpapi.NewServer(httpapi.ServerConfig{
		ListenAddr: cfg.ListenAddr,
		Auth:       httpapi.AuthConfig{Mode: authMode, Secret: cfg.JWTSecret},
		RateLimit:  httpapi.RateLimitConfig{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
	}, handlers, m, logger)

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("api server error")
		}
	case s := <-sigCh:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
		if err := server.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("server shutdown failed")
		}
	}

	logger.Info().Msg("token vault stopped")
}
