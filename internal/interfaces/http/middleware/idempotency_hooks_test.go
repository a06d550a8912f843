package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyMiddleware_WithHookedRedis(t *testing.T) {
	origGet := redisGet
	origSet := redisSet
	origSetNX := redisSetNX
	origDel := redisDel
	t.Cleanup(func() {
		redisGet = origGet
		redisSet = origSet
		redisSetNX = origSetNX
		redisDel = origDel
	})

	noopSet := func(context.Context, string, interface{}, time.Duration) error { return nil }
	noopDel := func(context.Context, string) error { return nil }

	t.Run("processing conflict", func(t *testing.T) {
		redisGet = func(context.Context, string) (string, error) { return "processing", nil }
		redisSetNX = func(context.Context, string, interface{}, time.Duration) (bool, error) { return false, nil }
		redisSet = noopSet
		redisDel = noopDel

		r := idempotentRouter(func(c *gin.Context) { c.String(http.StatusCreated, `{"id":1}`) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, idempotentRequest("key-1"))
		require.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("key includes account and route", func(t *testing.T) {
		var seen string
		redisGet = func(_ context.Context, key string) (string, error) { seen = key; return `{}`, nil }
		redisSetNX = func(context.Context, string, interface{}, time.Duration) (bool, error) { return true, nil }
		redisSet = noopSet
		redisDel = noopDel

		r := idempotentRouter(func(c *gin.Context) { c.Status(http.StatusCreated) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, idempotentRequest("key-2"))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, storageKeyFor("key-2"), seen)
	})

	t.Run("success stores and failure cleans up", func(t *testing.T) {
		setCalled := false
		delCalled := false
		redisGet = func(context.Context, string) (string, error) { return "", redisv9.Nil }
		redisSetNX = func(context.Context, string, interface{}, time.Duration) (bool, error) { return true, nil }
		redisSet = func(_ context.Context, _ string, value interface{}, ttl time.Duration) error {
			setCalled = true
			require.Equal(t, `{"id":9}`, value)
			require.Equal(t, RetentionDuration, ttl)
			return nil
		}
		redisDel = func(context.Context, string) error { delCalled = true; return nil }

		gin.SetMode(gin.TestMode)
		r := gin.New()
		r.Use(AccountMiddleware(), IdempotencyMiddleware())
		r.POST("/ok", func(c *gin.Context) { c.String(http.StatusCreated, `{"id":9}`) })
		r.POST("/fail", func(c *gin.Context) { c.String(http.StatusBadRequest, "bad") })

		reqOK := httptest.NewRequest(http.MethodPost, "/ok", nil)
		reqOK.Header.Set(IdempotencyHeader, "key-3")
		wOK := httptest.NewRecorder()
		r.ServeHTTP(wOK, reqOK)
		require.Equal(t, http.StatusCreated, wOK.Code)
		require.True(t, setCalled)

		reqFail := httptest.NewRequest(http.MethodPost, "/fail", nil)
		reqFail.Header.Set(IdempotencyHeader, "key-4")
		wFail := httptest.NewRecorder()
		r.ServeHTTP(wFail, reqFail)
		require.Equal(t, http.StatusBadRequest, wFail.Code)
		require.True(t, delCalled)
	})

	t.Run("redis read error passthrough", func(t *testing.T) {
		redisGet = func(context.Context, string) (string, error) { return "", errors.New("redis down") }
		redisSetNX = func(context.Context, string, interface{}, time.Duration) (bool, error) {
			t.Fatal("lock must not be taken when the read failed")
			return false, nil
		}
		redisSet = noopSet
		redisDel = noopDel

		r := idempotentRouter(func(c *gin.Context) { c.Status(http.StatusAccepted) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, idempotentRequest("key-5"))
		require.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("setnx error returns conflict", func(t *testing.T) {
		redisGet = func(context.Context, string) (string, error) { return "", redisv9.Nil }
		redisSetNX = func(context.Context, string, interface{}, time.Duration) (bool, error) { return false, errors.New("boom") }
		redisSet = noopSet
		redisDel = noopDel

		r := idempotentRouter(func(c *gin.Context) { c.Status(http.StatusAccepted) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, idempotentRequest("key-6"))
		require.Equal(t, http.StatusConflict, w.Code)
	})
}
