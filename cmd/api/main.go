package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/scrippt-tech/scrippt-server/internal/config"
	"github.com/scrippt-tech/scrippt-server/internal/db"
	"github.com/scrippt-tech/scrippt-server/internal/email"
	apihttp "github.com/scrippt-tech/scrippt-server/internal/http"
	"github.com/scrippt-tech/scrippt-server/internal/repository"
	"github.com/scrippt-tech/scrippt-server/internal/service"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewDevelopment()
	if cfg.IsProduction() {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	var accountRepo repository.AccountRepository
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("db schema", zap.Error(err))
		}
		accountRepo = repository.NewPgAccountRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set, accounts are kept in memory")
		accountRepo = repository.NewMemoryAccountRepository()
	}

	var emailSender email.Sender = email.NewDisabledSender("email sender not configured")
	switch {
	case cfg.IsTest():
		emailSender = email.NewNoopSender()
	case cfg.SMTPHost != "":
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	codeTTL := cfg.VerificationCodeTTL()
	codeStore := service.NewMemoryCodeStore()
	limiter := service.NewMemoryRequestLimiter(codeTTL, cfg.VerificationRequestsPerWindow)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory verification state", zap.Error(err))
		} else {
			codeStore = service.NewRedisCodeStore(redisClient)
			limiter = service.NewRedisRequestLimiter(redisClient, codeTTL, cfg.VerificationRequestsPerWindow)
		}
		cancel()
	}

	tokens := service.NewTokenService(cfg.JWTSecret, cfg.AppName, cfg.Domain, cfg.TokenTTL())
	if cfg.Google.ClientID == "" {
		logger.Warn("google client id not configured, google sign-in will reject every token")
	}
	google := service.NewGoogleVerifier(logger, service.GoogleVerifierConfig{
		ClientID:     cfg.Google.ClientID,
		CertsURL:     cfg.Google.CertsURL,
		CachePath:    cfg.Google.JWKSCachePath,
		FetchTimeout: cfg.Google.FetchTimeout(),
	})

	verificationSvc := service.NewVerificationService(logger, accountRepo, codeStore, limiter, emailSender, codeTTL)
	accountSvc := service.NewAccountService(logger, accountRepo, verificationSvc, tokens, google, emailSender)
	profileSvc := service.NewProfileService(logger, accountRepo, cfg.ProfileCollectionLimit)
	documentSvc := service.NewDocumentService(logger, accountRepo)

	accountHandler := apihttp.NewAccountHandler(logger, accountSvc, verificationSvc)
	profileHandler := apihttp.NewProfileHandler(logger, profileSvc)
	documentHandler := apihttp.NewDocumentHandler(logger, documentSvc)
	router := apihttp.NewRouter(logger, tokens, accountHandler, profileHandler, documentHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("environment", cfg.Environment))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
