package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"BACKEND_URL", "BACKEND_TIMEOUT", "BACKEND_RETRY_MAX", "REFRESH_HOUR", "REFRESH_TIMEZONE", "REGIONS", "DEFAULT_REGION", "CACHE_BACKEND", "MOCKS_ENABLE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:5001" {
		t.Fatalf("unexpected base url %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 10*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Backend.Timeout)
	}
	if cfg.Refresh.Hour != 3 || cfg.Refresh.Timezone != "Europe/Copenhagen" {
		t.Fatalf("unexpected refresh config %+v", cfg.Refresh)
	}
	if len(cfg.Dashboard.Regions) != 2 || cfg.Dashboard.Regions[0] != "global" || cfg.Dashboard.Regions[1] != "europe" {
		t.Fatalf("unexpected regions %v", cfg.Dashboard.Regions)
	}
	if cfg.Mocks.Enable {
		t.Fatal("mocks should be disabled by default")
	}
}

func TestLoadTrimsBaseURLAndParsesRegions(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://gmc.example.com/")
	t.Setenv("REGIONS", " global , europe,, apac ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.BaseURL != "https://gmc.example.com" {
		t.Fatalf("unexpected base url %q", cfg.Backend.BaseURL)
	}
	if got := len(cfg.Dashboard.Regions); got != 3 {
		t.Fatalf("expected 3 regions, got %d: %v", got, cfg.Dashboard.Regions)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"REFRESH_HOUR":      "24",
		"BACKEND_TIMEOUT":   "soon",
		"BACKEND_RETRY_MAX": "-1",
		"REFRESH_TIMEZONE":  "Mars/Olympus",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}
