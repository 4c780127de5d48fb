// Package storagetest builds a storage.Service backed by an in-memory
// SQLite database and a miniredis server.
package storagetest

import (
	"testing"

	"queryforum/backend/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewService returns a migrated storage service and the miniredis instance
// behind its Redis client.
func NewService(t testing.TB) (*storage.Service, *miniredis.Miniredis) {
	t.Helper()

	db := NewDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return storage.NewStorageService(db, rdb, zap.NewNop()), mr
}

// NewServiceWithoutRedis returns a migrated storage service with caching
// and event publishing disabled.
func NewServiceWithoutRedis(t testing.TB) *storage.Service {
	t.Helper()
	return storage.NewStorageService(NewDB(t), nil, zap.NewNop())
}

// NewDB opens a private in-memory SQLite database. The pool is capped at
// one connection so every statement sees the same database and concurrent
// writers are serialized.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, storage.Migrate(db))
	return db
}
