package main

import (
	"context"
	"fmt"
	"os"

	"queryforum/backend/internal/access"
	"queryforum/backend/internal/analysis"
	"queryforum/backend/internal/complaint"
	"queryforum/backend/internal/config"
	"queryforum/backend/internal/hostel"
	"queryforum/backend/internal/logging"
	"queryforum/backend/internal/storage"

	"go.uber.org/zap"
)

// adminApp holds what the admin commands operate on.
type adminApp struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      *storage.Service
	directory  *hostel.Directory
	complaints *complaint.Service
	stats      *analysis.Service

	closer func() error
}

func newAdminApp(cfg *config.Config, store *storage.Service, directory *hostel.Directory, logger *zap.Logger) *adminApp {
	return &adminApp{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		directory: directory,
		// No hub and no notifier: changes made here are picked up by web
		// clients on their next fetch.
		complaints: complaint.NewService(complaint.Deps{
			Storage: store,
			Guard:   access.NewGuard(directory, store),
			Logger:  logger,
		}),
		stats: analysis.NewService(store, directory),
	}
}

// openAdminApp connects to the database configured in the environment.
// Redis is not needed for admin commands.
func openAdminApp(ctx context.Context) (*adminApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return nil, err
	}
	db, err := storage.Connect(ctx, cfg.DatabaseDSN, storage.DefaultRetryPolicy, logger)
	if err != nil {
		return nil, err
	}
	directory := hostel.Default()
	if cfg.HostelDirectoryFile != "" {
		if directory, err = hostel.Load(cfg.HostelDirectoryFile); err != nil {
			return nil, err
		}
	}
	store := storage.NewStorageService(db, nil, logger)
	app := newAdminApp(cfg, store, directory, logger)
	app.closer = store.Close
	return app, nil
}

func (a *adminApp) Close() error {
	_ = a.logger.Sync()
	if a.closer == nil {
		return nil
	}
	return a.closer()
}

func main() {
	if err := newRootCommand(openAdminApp).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
