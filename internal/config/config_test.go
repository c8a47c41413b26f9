package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("Load() with empty env = %+v, want %+v", cfg, Default())
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SCRIPTURE_DB_PATH", "/tmp/bible.db")
	t.Setenv("SCRIPTURE_BATCH_SIZE", "250")
	t.Setenv("SCRIPTURE_DEFAULT_VERSION", "KJV")
	t.Setenv("SCRIPTURE_SLIDE_MODE", "plain")
	t.Setenv("SCRIPTURE_DOWNLOAD_TIMEOUT", "30s")
	t.Setenv("SCRIPTURE_ALLOWED_ORIGINS", "http://a,http://b")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/bible.db" || cfg.BatchSize != 250 || cfg.DefaultVersion != "KJV" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.SlideMode != "plain" || cfg.DownloadTimeout != 30*time.Second {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"zero batch", "SCRIPTURE_BATCH_SIZE", "0"},
		{"bad mode", "SCRIPTURE_SLIDE_MODE", "fancy"},
		{"bad port", "SCRIPTURE_HTTP_PORT", "70000"},
		{"not a number", "SCRIPTURE_BATCH_SIZE", "many"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
