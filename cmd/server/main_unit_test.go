package main

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"crosspay.backend/internal/config"
	repoimpl "crosspay.backend/internal/infrastructure/repositories"
	plog "crosspay.backend/pkg/logger"
	"crosspay.backend/pkg/redis"
)

func withMainHooks(t *testing.T) {
	t.Helper()
	origLoadDotenv := loadDotenv
	origLoadCfg := loadCfg
	origInitLog := initLog
	origInitRedis := initRedis
	origOpenDB := openDB
	origOpenSQLite := openSQLite
	origRunServer := runServer

	t.Cleanup(func() {
		loadDotenv = origLoadDotenv
		loadCfg = origLoadCfg
		initLog = origInitLog
		initRedis = origInitRedis
		openDB = origOpenDB
		openSQLite = origOpenSQLite
		runServer = origRunServer
	})

	loadDotenv = func(...string) error { return nil }
	initLog = plog.Init
}

func baseTestConfig(driver string) func() *config.Config {
	return func() *config.Config {
		return &config.Config{
			Server: config.ServerConfig{
				Port: "18080",
				Env:  "development",
			},
			Database: config.DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "postgres",
				Password: "postgres",
				DBName:   "crosspay",
				SSLMode:  "disable",
			},
			Redis: config.RedisConfig{
				URL: "redis://localhost:6379",
			},
			Storage: config.StorageConfig{
				Driver:     driver,
				SQLitePath: "file:main_test?mode=memory&cache=shared",
			},
			Bridge:  config.BridgeConfig{APIURL: "http://127.0.0.1:1", Timeout: time.Second},
			Indexer: config.IndexerConfig{URL: "http://127.0.0.1:1", Timeout: time.Second, RemoteLimit: 10},
			History: config.HistoryConfig{PollInterval: time.Second, SyncInterval: time.Minute},
		}
	}
}

func TestRunMainProcess_RedisInitError(t *testing.T) {
	withMainHooks(t)
	loadCfg = baseTestConfig("redis")
	initRedis = func(string, string) error { return errors.New("redis down") }

	err := runMainProcess()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestRunMainProcess_DBOpenError(t *testing.T) {
	withMainHooks(t)
	loadCfg = baseTestConfig("postgres")
	openDB = func(config.DatabaseConfig) (*gorm.DB, error) { return nil, errors.New("db open failed") }

	require.Error(t, runMainProcess())
}

func TestRunMainProcess_UnknownStorageDriver(t *testing.T) {
	withMainHooks(t)
	loadCfg = baseTestConfig("cassandra")

	err := runMainProcess()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassandra")
}

func TestRunMainProcess_ServerRunError(t *testing.T) {
	withMainHooks(t)
	loadCfg = baseTestConfig("memory")
	runServer = func(*http.Server) error { return errors.New("listen failed") }

	require.Error(t, runMainProcess())
}

func TestRunMainProcess_SuccessPaths(t *testing.T) {
	for _, driver := range []string{"sqlite", "postgres", "memory", "none"} {
		t.Run(driver, func(t *testing.T) {
			withMainHooks(t)
			loadCfg = baseTestConfig(driver)
			openDB = func(config.DatabaseConfig) (*gorm.DB, error) {
				return gorm.Open(sqlite.Open("file:main_success_pg?mode=memory&cache=shared"), &gorm.Config{})
			}
			var handler http.Handler
			runServer = func(srv *http.Server) error {
				handler = srv.Handler
				return http.ErrServerClosed
			}

			require.NoError(t, runMainProcess())
			require.NotNil(t, handler)
		})
	}
}

func TestOpenStore_Redis(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("skip: miniredis not available in this environment: %v", err)
	}
	t.Cleanup(srv.Close)

	withMainHooks(t)
	cfg := baseTestConfig("redis")()
	cfg.Redis.URL = "redis://" + srv.Addr()

	store, closeStore, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(closeStore)
	require.IsType(t, &repoimpl.RedisKeyValueRepository{}, store)

	require.NoError(t, store.Set(context.Background(), "history", `{"0xabc":[]}`))
	got, err := store.Get(context.Background(), "history")
	require.NoError(t, err)
	assert.Equal(t, `{"0xabc":[]}`, got)
	assert.NotNil(t, redis.GetClient())
}

func TestOpenStore_SQLiteMigrates(t *testing.T) {
	withMainHooks(t)
	cfg := baseTestConfig("sqlite")()
	cfg.Storage.SQLitePath = "file:open_store_sqlite?mode=memory&cache=shared"

	store, closeStore, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(closeStore)

	require.NoError(t, store.Set(context.Background(), "k", "v"))
	got, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestOpenStore_NoneReturnsNilStore(t *testing.T) {
	withMainHooks(t)
	store, closeStore, err := openStore(context.Background(), baseTestConfig("none")())
	require.NoError(t, err)
	closeStore()
	assert.Nil(t, store)
}
