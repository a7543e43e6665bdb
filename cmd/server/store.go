package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/prasenjit/go-replay/internal/config"
	"github.com/prasenjit/go-replay/internal/storage"
)

// openStore creates the configured storage backend
func openStore(cfg config.StorageConfig, logger logrus.FieldLogger) (storage.Storage, error) {
	switch cfg.Type {
	case "memory":
		return storage.NewMemoryStorage(), nil

	case "redis":
		store, err := storage.NewRedisStorage(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis storage: %w", err)
		}
		logger.WithField("addr", cfg.Redis.Addr).Info("using redis storage")
		return store, nil

	default:
		path := cfg.Path
		if path != "" && !filepath.IsAbs(path) {
			if cwd, err := os.Getwd(); err == nil {
				path = filepath.Join(cwd, path)
			}
		}

		store, err := storage.NewFileStorage(path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file storage: %w", err)
		}
		for _, name := range store.Skipped() {
			logger.WithField("file", name).Warn("skipped unreadable record")
		}
		logger.WithField("path", path).Info("using file storage")
		return store, nil
	}
}
