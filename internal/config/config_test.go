package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("REPORT_WINDOW_DAYS", "")

	cfg := Load()
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 30, cfg.ReportWindowDays)
	assert.Equal(t, 24*time.Hour, cfg.ReportJobTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")
	t.Setenv("AUTO_MIGRATE", "no")
	t.Setenv("REPORT_JOB_TTL", "90m")
	t.Setenv("CORS_ORIGINS", "https://portal.example.edu, http://localhost:5173")
	t.Setenv("CLOUDINARY_CLOUD_NAME", "demo")
	t.Setenv("CLOUDINARY_API_KEY", "key")
	t.Setenv("CLOUDINARY_API_SECRET", "secret")

	cfg := Load()
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 10, cfg.RateLimitPerMin)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, 90*time.Minute, cfg.ReportJobTTL)
	assert.Equal(t, []string{"https://portal.example.edu", "http://localhost:5173"}, cfg.CORSOrigins)
	assert.True(t, cfg.Cloudinary.Enabled())
}

func TestFallbacksOnGarbage(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		get  func() any
		want any
	}{
		{name: "int", key: "X_INT", val: "lots", get: func() any { return intEnv("X_INT", 7) }, want: 7},
		{name: "bool", key: "X_BOOL", val: "maybe", get: func() any { return boolEnv("X_BOOL", true) }, want: true},
		{name: "duration", key: "X_DUR", val: "soon", get: func() any { return durationEnv("X_DUR", time.Second) }, want: time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			assert.Equal(t, tt.want, tt.get())
		})
	}
}

func TestLocation(t *testing.T) {
	assert.Equal(t, time.UTC, App{Timezone: "Mars/Olympus"}.Location())
	assert.Equal(t, time.UTC, App{Timezone: "UTC"}.Location())
}
