package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MINIO_ACCESS_KEY_ID", "minio")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "minio-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 8080 || cfg.Candidates.DefaultPageLimit != 100 || cfg.Candidates.MaxPageLimit != 500 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Candidates.PageCacheTTL != 30*time.Second || cfg.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected durations: %+v", cfg)
	}
	if got := cfg.Redis.Addr(); got != "localhost:6379" {
		t.Fatalf("redis addr = %q", got)
	}
	if dsn := cfg.Database.DSN(); !strings.Contains(dsn, "dbname=valentine") || !strings.Contains(dsn, "sslmode=disable") {
		t.Fatalf("dsn = %q", dsn)
	}
}

func TestLoadFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("API_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("CANDIDATES_DEFAULT_PAGE_LIMIT", "25")
	t.Setenv("CANDIDATES_PAGE_CACHE_TTL", "5s")
	t.Setenv("JWT_ACCESS_TOKEN_TTL", "1m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 9090 {
		t.Fatalf("port = %d", cfg.API.Port)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.API.AllowedOrigins) != len(want) || cfg.API.AllowedOrigins[0] != want[0] || cfg.API.AllowedOrigins[1] != want[1] {
		t.Fatalf("origins = %q", cfg.API.AllowedOrigins)
	}
	if cfg.Candidates.DefaultPageLimit != 25 || cfg.Candidates.PageCacheTTL != 5*time.Second || cfg.Auth.AccessTokenTTL != time.Minute {
		t.Fatalf("unexpected candidates config: %+v", cfg.Candidates)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing minio key", map[string]string{"MINIO_ACCESS_KEY_ID": ""}, "minio access key id"},
		{"max below default", map[string]string{"CANDIDATES_MAX_PAGE_LIMIT": "10"}, "max page limit"},
		{"zero default limit", map[string]string{"CANDIDATES_DEFAULT_PAGE_LIMIT": "0"}, "default page limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}
