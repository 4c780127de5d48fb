package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"queryforum/backend/internal/access"
	"queryforum/backend/internal/analysis"
	"queryforum/backend/internal/api/handler"
	"queryforum/backend/internal/complaint"
	"queryforum/backend/internal/config"
	"queryforum/backend/internal/feedhub"
	"queryforum/backend/internal/hostel"
	"queryforum/backend/internal/imagestore"
	"queryforum/backend/internal/localization"
	"queryforum/backend/internal/logging"
	"queryforum/backend/internal/metrics"
	"queryforum/backend/internal/storage"
	"queryforum/backend/internal/telegram"
	"queryforum/backend/internal/voting"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is configured from cfg, so fall back to a default one.
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting query forum backend", zap.String("addr", cfg.HTTPAddr))

	// 1. Dependencies
	db, err := storage.Connect(ctx, cfg.DatabaseDSN, storage.DefaultRetryPolicy, logger)
	if err != nil {
		return err
	}
	rdb, err := storage.ConnectRedis(ctx, &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, storage.DefaultRetryPolicy, logger)
	if err != nil {
		return err
	}
	if err := storage.Migrate(db); err != nil {
		return err
	}

	store := storage.NewStorageService(db, rdb, logger)
	store.VoteCacheTTL = cfg.VoteCacheTTL
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}()
	logger.Info("database and redis connections established, migrations complete")

	directory := hostel.Default()
	if cfg.HostelDirectoryFile != "" {
		if directory, err = hostel.Load(cfg.HostelDirectoryFile); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	images, uploadsDir, closeImages, err := openImageStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeImages()

	// 2. Services
	guard := access.NewGuard(directory, store)
	var bus feedhub.EventBus
	if rdb != nil {
		bus = store
	}
	hub := feedhub.NewManagerService(bus, m, logger)

	deps := complaint.Deps{
		Storage:   store,
		Guard:     guard,
		Images:    images,
		Publisher: hub,
		Metrics:   m,
		Logger:    logger,
	}
	var notifier *telegram.Notifier
	if cfg.NotificationsEnabled() {
		bot, err := telegram.NewBotAPI(cfg.TelegramBotToken, logger)
		if err != nil {
			return err
		}
		notifier = telegram.NewNotifier(bot, cfg.TelegramAdminChatID, localization.Default(), cfg.NotifyLanguage, m, logger)
		deps.Notifier = notifier
	}

	complaints := complaint.NewService(deps)
	votes := voting.NewService(store, guard, hub, m, logger)
	stats := analysis.NewService(store, directory)

	// 3. HTTP
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.NewHandler(complaints, votes, stats, hub, guard, localization.Default(), logger)
	r := handler.NewRouter(h, handler.RouterOptions{
		Auth:       handler.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL),
		Gatherer:   registry,
		UploadsDir: uploadsDir,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// 4. Goroutines
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	if notifier != nil {
		g.Go(func() error { return notifier.Run(gctx) })
	}
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openImageStore returns the configured store, the directory to serve at
// /uploads ("" for remote stores) and a release function.
func openImageStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (imagestore.Store, string, func(), error) {
	if cfg.ImageStore == "gcs" {
		gcs, err := imagestore.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile, cfg.GCSPublicBaseURL, logger)
		if err != nil {
			return nil, "", nil, err
		}
		return gcs, "", func() {
			if err := gcs.Close(); err != nil {
				logger.Warn("failed to close gcs client", zap.Error(err))
			}
		}, nil
	}
	local, err := imagestore.NewLocalStore(cfg.ImageDir, cfg.ImageBaseURL, logger)
	if err != nil {
		return nil, "", nil, err
	}
	return local, local.Dir(), func() {}, nil
}
