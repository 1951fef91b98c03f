package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/trustlens/internal/auth"
	"github.com/example/trustlens/internal/config"
	"github.com/example/trustlens/internal/handlers"
	"github.com/example/trustlens/internal/inference"
	"github.com/example/trustlens/internal/logging"
	"github.com/example/trustlens/internal/repository"
	"github.com/example/trustlens/internal/usecase"
)

// defaultCredential is injected at build time with
// -ldflags "-X main.defaultCredential=<key>" and wins over every other source.
var defaultCredential string

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, closeStore := initCredentialStore(ctx, cfg, logger)
	defer closeStore()

	credentials, err := usecase.NewCredentialService(ctx, store, injectedCredential(cfg), logger)
	if err != nil {
		logger.Fatal("failed to load credential", zap.Error(err))
	}

	httpClient := &http.Client{Timeout: cfg.Inference.RequestTimeout}
	analyzer := inference.NewClient(cfg.Inference.Endpoint, httpClient, logger)
	registry := usecase.NewSessionRegistry(analyzer, credentials, usecase.NewMetrics(), logger)

	r := gin.Default()
	r.MaxMultipartMemory = handlers.MaxUploadSize

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORS.AllowOrigins
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	r.Use(cors.New(corsConfig))

	authMiddleware := auth.JWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience)
	handlers.RegisterRoutes(r, registry, authMiddleware)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	logger.Info("TrustLens API listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("credential_store", cfg.Credential.Store),
		zap.Bool("credential_configured", credentials.Current() != ""),
	)
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// injectedCredential picks the build-time value first, then the configured default.
func injectedCredential(cfg *config.Config) string {
	if value := strings.TrimSpace(defaultCredential); value != "" {
		return value
	}
	return cfg.Credential.Default
}

func initCredentialStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (usecase.CredentialStore, func()) {
	switch cfg.Credential.Store {
	case config.StoreFile:
		return repository.NewFileCredentialStore(cfg.Credential.FilePath), func() {}
	case config.StoreRedis:
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		client := initRedis(redisCtx, cfg.Redis.Addr, logger)
		store := repository.NewRedisCredentialStore(repository.NewRedisKeyValue(client), cfg.Credential.Key, logger)
		return store, func() { _ = client.Close() }
	case config.StorePostgres:
		db := initDatabase(ctx, cfg.Database.DSN, logger)
		repo := repository.NewCredentialRepository(db, cfg.Credential.Key, logger)
		if err := repo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		return repo, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
	default:
		return repository.NewMemoryCredentialStore(), func() {}
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
