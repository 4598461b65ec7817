package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/interview-coach/backend/internal/analysis/resume"
	"github.com/zhouzirui/interview-coach/backend/internal/config"
	"github.com/zhouzirui/interview-coach/backend/internal/handler"
	"github.com/zhouzirui/interview-coach/backend/internal/logger"
	"github.com/zhouzirui/interview-coach/backend/internal/model/interview"
	"github.com/zhouzirui/interview-coach/backend/internal/service/ai"
	"github.com/zhouzirui/interview-coach/backend/internal/service/chat"
	"github.com/zhouzirui/interview-coach/backend/internal/service/session"
	"github.com/zhouzirui/interview-coach/backend/internal/storage"
	"github.com/zhouzirui/interview-coach/backend/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("interview coach backend stopped")
	}
}

// run 装配并运行服务；所有 defer 都在返回前执行，错误交给 main 统一退出。
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := logger.New(cfg.LogLevel)
	if envErr != nil {
		log.WithError(envErr).Debug("no .env file loaded, continuing with system environment variables only")
	}

	// 模型凭证缺失时直接退出，而不是等到第一次对话才失败。
	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		return fmt.Errorf("initialize chat model: %w", err)
	}
	aiService, err := ai.NewService(ctx, chatModel, cfg.AI, log)
	if err != nil {
		return fmt.Errorf("initialize AI service: %w", err)
	}
	log.WithFields(logrus.Fields{
		"provider": cfg.AI.Provider,
		"model":    cfg.AI.Model,
		"stream":   cfg.AI.StreamResponse,
	}).Info("AI service initialized")

	store, closeStore, err := newStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("initialize session store: %w", err)
	}
	defer closeStore()
	log.WithField("backend", cfg.Store.Backend).Info("session store ready")

	telemetryManager, err := telemetry.NewManager(ctx, telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		log.WithError(err).Warn("telemetry disabled")
		telemetryManager = nil
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryManager.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("failed to flush telemetry")
		}
	}()

	sessionOpts := []session.Option{
		session.WithLogger(log),
		session.WithTelemetry(telemetryManager),
	}
	if cfg.Archive.Enabled() {
		uploader, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:      cfg.Archive.Bucket,
			Prefix:      cfg.Archive.Prefix,
			EndpointURL: cfg.Archive.EndpointURL,
			Region:      cfg.Archive.Region,
			AccessKey:   cfg.Archive.AccessKey,
			SecretKey:   cfg.Archive.SecretKey,
		})
		if err != nil {
			log.WithError(err).Warn("resume archive disabled")
		} else {
			sessionOpts = append(sessionOpts, session.WithArchive(uploader))
			log.WithField("bucket", cfg.Archive.Bucket).Info("resume archive enabled")
		}
	}

	sessionService := session.NewService(store, resume.NewPDFExtractor(), sessionOpts...)
	defer sessionService.WaitArchives()
	relay := chat.NewRelay(sessionService, aiService,
		chat.WithLogger(log),
		chat.WithTelemetry(telemetryManager),
	)

	router := handler.NewRouter(sessionService, relay, handler.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.WithField("addr", srv.Addr).Info("interview coach backend listening")
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func newStore(ctx context.Context, cfg config.StoreConfig) (interview.Store, func(), error) {
	if cfg.Backend != config.StoreRedis {
		return interview.NewMemoryStore(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	return interview.NewRedisStore(rdb, cfg.KeyPrefix), func() { _ = rdb.Close() }, nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
