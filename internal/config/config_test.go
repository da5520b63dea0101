package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_TIMEOUT", "RUN_MIGRATIONS", "ALLOWED_ORIGINS", "REDIS_ADDRESS"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.Port != "8081" {
		t.Errorf("Port: got %q, want 8081", cfg.Port)
	}
	if cfg.StoreTimeout != 5*time.Second {
		t.Errorf("StoreTimeout: got %v, want 5s", cfg.StoreTimeout)
	}
	if cfg.RunMigrations {
		t.Error("RunMigrations should default to false")
	}
	if cfg.RedisAddress != "" {
		t.Errorf("RedisAddress: got %q, want empty", cfg.RedisAddress)
	}
	if len(cfg.AllowedOrigins) != 1 {
		t.Errorf("AllowedOrigins: got %v", cfg.AllowedOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("RUN_MIGRATIONS", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Errorf("Port: got %q", cfg.Port)
	}
	if cfg.StoreTimeout != 750*time.Millisecond {
		t.Errorf("StoreTimeout: got %v", cfg.StoreTimeout)
	}
	if !cfg.RunMigrations {
		t.Error("RunMigrations: want true")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins: got %v", cfg.AllowedOrigins)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("STORE_TIMEOUT", "soon")
	t.Setenv("RUN_MIGRATIONS", "maybe")

	cfg := Load()
	if cfg.StoreTimeout != 5*time.Second {
		t.Errorf("StoreTimeout: got %v, want fallback 5s", cfg.StoreTimeout)
	}
	if cfg.RunMigrations {
		t.Error("RunMigrations: want fallback false")
	}
}
