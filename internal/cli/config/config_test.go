package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file should yield defaults: %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL || cfg.TokenTTL != DefaultTokenTTL || cfg.PrettyJSON == nil || !*cfg.PrettyJSON {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	path := filepath.Join(t.TempDir(), "judgectl.yaml")
	data := "baseURL: http://judge:9000\ntimeout: 3s\nprettyJSON: false\njwtSecret: s\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "http://judge:9000" || cfg.Timeout != 3*time.Second || *cfg.PrettyJSON || cfg.JWTSecret != "s" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
