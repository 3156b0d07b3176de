// Package storagetest wires a storage.Service to an in-memory SQLite
// database and a miniredis instance for package tests.
package storagetest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/storage"
)

// New returns an isolated storage service. Each test gets its own DB and Redis.
func New(t *testing.T) (*storage.Service, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := &config.Config{}
	cfg.DB.Driver = "sqlite"
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg.DB.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	cfg.Redis.Addr = mr.Addr()

	db, err := storage.OpenDB(cfg)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	rdb, err := storage.OpenRedis(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	return storage.NewStorageService(db, rdb), mr
}
