package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "proof-contrib-backend/docs"
	"proof-contrib-backend/internal/common/config"
	"proof-contrib-backend/internal/common/logger"
	"proof-contrib-backend/internal/common/middleware"
	providerHTTP "proof-contrib-backend/internal/features/provider/delivery/http"
	"proof-contrib-backend/internal/features/provider/registry"
	relayHTTP "proof-contrib-backend/internal/features/relay/delivery/http"
	relayRedis "proof-contrib-backend/internal/features/relay/repository/redis"
	relayService "proof-contrib-backend/internal/features/relay/service"
	"proof-contrib-backend/internal/features/verification/attestation"
	"proof-contrib-backend/internal/features/verification/channel"
	verificationHTTP "proof-contrib-backend/internal/features/verification/delivery/http"
	"proof-contrib-backend/internal/features/verification/normalizer"
	"proof-contrib-backend/internal/features/verification/recovery"
	"proof-contrib-backend/internal/features/verification/session"
	"proof-contrib-backend/internal/features/verification/submitter"
	"proof-contrib-backend/internal/platform/redis"
)

// @title           Proof Contribution API
// @version         1.0
// @description     Backend for zero-knowledge attestation verification and ledger contributions. All verification endpoints require init_data authentication.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey TelegramInitData
// @in header
// @name init_data
// @description Telegram Mini App init_data string for authentication

// @tag.name providers
// @tag.description Provider catalog

// @tag.name verification
// @tag.description Verification sessions - start, status, cancel, visibility, redirect recovery

// @tag.name relay
// @tag.description Proof relay - out-of-band callback storage and polling

func main() {
	cfg := config.Load()

	logger.Init("proof-contrib-backend", cfg.Debug)
	logger.Info().Bool("debug", cfg.Debug).Msg("Starting proof contribution backend")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	redisClient, err := redis.Open(ctx, cfg)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Relay: out-of-band proof parking for the polling channel.
	relayRepo := relayRedis.NewRepository(redisClient)
	relaySvc := relayService.NewService(relayRepo, cfg.Verification.RelayProofTTL)

	// Diagnostic side-channel. The attestation client writes its verbose
	// output here; live sessions tap it to scavenge proofs from failures.
	taps := recovery.NewTapRouter()

	attestor := attestation.NewClient(
		cfg.Attestation.BaseURL,
		cfg.Attestation.AppID,
		cfg.Attestation.AppSecret,
		taps,
	)

	providers := registry.New()

	ledger := submitter.New(cfg.Ledger.BaseURL, cfg.Ledger.Token, nil)

	sessions := session.NewService(
		providers,
		channel.NewSelector(cfg.Server.PublicBaseURL),
		attestor,
		relaySvc,
		normalizer.New(),
		ledger,
		taps,
		session.Timings{
			PollInitialDelay:  cfg.Verification.PollInitialDelay,
			PollInterval:      cfg.Verification.PollInterval,
			PollAttempts:      cfg.Verification.PollAttempts,
			HiddenGraceWindow: cfg.Verification.HiddenGraceWindow,
		},
	)
	defer sessions.Close()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Errors())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "Accept", "init_data"}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, cfg, providers, sessions, relaySvc, redisClient)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}

func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	providers *registry.Registry,
	sessions *session.Service,
	relaySvc *relayService.Service,
	redisClient *redis.Client,
) {
	v1 := router.Group("/api/v1")

	// The relay callback is called by the attestation service's companion
	// app, never by our clients; it must stay outside init data auth.
	relayHTTP.NewHandler(relaySvc).RegisterRoutes(v1)

	authed := v1.Group("")
	authed.Use(middleware.TelegramInitData(cfg.Telegram.BotToken, cfg.Telegram.Debug))
	{
		providerHTTP.NewHandler(providers).RegisterRoutes(authed)
		verificationHTTP.NewHandler(sessions).RegisterRoutes(authed)
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   "proof-contrib-backend",
		})
	})

	router.GET("/live", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unready",
				"error":   "redis unavailable",
				"details": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   "proof-contrib-backend",
		})
	})
}
