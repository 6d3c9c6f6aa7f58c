package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "s3cret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, "tc:", cfg.KeyPrefix)
	assert.Equal(t, 24, cfg.JWTExpiryHours)
	assert.Equal(t, 100, cfg.RateLimitMax)
	assert.Equal(t, time.Second, cfg.RateLimitWindow)
	assert.Equal(t, LockDatabase, cfg.LockBackend)
	assert.Equal(t, BusRedis, cfg.EventBus)
	assert.Equal(t, 60*time.Second, cfg.PresenceWindow)
	assert.Equal(t, 60*time.Second, cfg.NotifyThrottle)
	assert.False(t, cfg.Production())
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("EVENT_BUS", "memory")
	t.Setenv("PRESENCE_WINDOW", "2m")
	t.Setenv("REDIS_DB", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.Production())
	assert.Equal(t, "5432", cfg.DBPort)
	assert.Equal(t, LockRedis, cfg.LockBackend)
	assert.Equal(t, BusMemory, cfg.EventBus)
	assert.Equal(t, 2*time.Minute, cfg.PresenceWindow)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"log level", "LOG_LEVEL", "loud"},
		{"db driver", "DB_DRIVER", "sqlite"},
		{"lock backend", "LOCK_BACKEND", "zookeeper"},
		{"event bus", "EVENT_BUS", "kafka"},
		{"rate limit", "RATE_LIMIT_MAX", "0"},
		{"duration", "NOTIFY_THROTTLE", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_RequiresSecret(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestCORS_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(LoggerMiddleware(logrus.New()), CORS("http://app.test"))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://app.test", w.Header().Get("Access-Control-Allow-Origin"))
}
