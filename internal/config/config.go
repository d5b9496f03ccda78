package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // refresh timezones must resolve in minimal containers
)

type Config struct {
	Backend   BackendConfig   `json:"backend"`
	Refresh   RefreshConfig   `json:"refresh"`
	Dashboard DashboardConfig `json:"dashboard"`
	Cache     CacheConfig     `json:"cache"`
	Directory DirectoryConfig `json:"directory"`
	Logging   LoggingConfig   `json:"logging"`
	Mocks     MockConfig      `json:"mocks"`
}

type BackendConfig struct {
	BaseURL  string        `json:"base_url"`
	Timeout  time.Duration `json:"timeout"`
	RetryMax int           `json:"retry_max"`

	HTTPClient *http.Client `json:"-"`
}

// RefreshConfig controls the daily forced refresh boundary.
type RefreshConfig struct {
	Hour     int    `json:"hour"`
	Timezone string `json:"timezone"`
}

// Location resolves Timezone, falling back to UTC for an empty name.
func (r RefreshConfig) Location() (*time.Location, error) {
	if r.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh timezone %q: %w", r.Timezone, err)
	}
	return loc, nil
}

type DashboardConfig struct {
	Title         string   `json:"title"`
	Regions       []string `json:"regions"`
	DefaultRegion string   `json:"default_region"`
}

type CacheConfig struct {
	Backend   string `json:"backend"` // "file", "memory", "blob" or "redis"
	Dir       string `json:"dir"`
	Container string `json:"container"`
	RedisURL  string `json:"redis_url"`
}

type DirectoryConfig struct {
	File string `json:"file"`
}

type LoggingConfig struct {
	Format       string        `json:"format"` // "json" or "text"
	OTLPEndpoint string        `json:"otlp_endpoint"`
	Sink         LogSinkConfig `json:"sink"`
}

// LogSinkConfig enables shipping logs to an Azure append blob when all fields are set.
type LogSinkConfig struct {
	AccountName string `json:"account_name"`
	AccountKey  string `json:"-"`
	Container   string `json:"container"`
}

func (c LogSinkConfig) Enabled() bool {
	return c.AccountName != "" && c.AccountKey != "" && c.Container != ""
}

type MockConfig struct {
	Enable bool `json:"enable"`
}

func Load() (*Config, error) {
	timeout, err := time.ParseDuration(getEnvOrDefault("BACKEND_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BACKEND_TIMEOUT: %w", err)
	}
	retryMax, err := strconv.Atoi(getEnvOrDefault("BACKEND_RETRY_MAX", "2"))
	if err != nil || retryMax < 0 {
		return nil, fmt.Errorf("invalid BACKEND_RETRY_MAX %q", os.Getenv("BACKEND_RETRY_MAX"))
	}
	hour, err := strconv.Atoi(getEnvOrDefault("REFRESH_HOUR", "3"))
	if err != nil || hour < 0 || hour > 23 {
		return nil, fmt.Errorf("invalid REFRESH_HOUR %q", os.Getenv("REFRESH_HOUR"))
	}

	config := &Config{
		Backend: BackendConfig{
			BaseURL:  strings.TrimRight(getEnvOrDefault("BACKEND_URL", "http://localhost:5001"), "/"),
			Timeout:  timeout,
			RetryMax: retryMax,
		},
		Refresh: RefreshConfig{
			Hour:     hour,
			Timezone: getEnvOrDefault("REFRESH_TIMEZONE", "Europe/Copenhagen"),
		},
		Dashboard: DashboardConfig{
			Title:         getEnvOrDefault("DASHBOARD_TITLE", "ECCO Shoes"),
			Regions:       splitList(getEnvOrDefault("REGIONS", "global,europe")),
			DefaultRegion: getEnvOrDefault("DEFAULT_REGION", "global"),
		},
		Cache: CacheConfig{
			Backend:   getEnvOrDefault("CACHE_BACKEND", "file"),
			Dir:       getEnvOrDefault("CACHE_DIR", "cache"),
			Container: getEnvOrDefault("CACHE_CONTAINER", "gmcstatus"),
			RedisURL:  os.Getenv("REDIS_URL"),
		},
		Directory: DirectoryConfig{
			File: os.Getenv("MERCHANT_DIRECTORY_FILE"),
		},
		Logging: LoggingConfig{
			Format:       getEnvOrDefault("LOG_FORMAT", "json"),
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Sink: LogSinkConfig{
				AccountName: os.Getenv("LOGSINK_ACCOUNT_NAME"),
				AccountKey:  os.Getenv("LOGSINK_ACCOUNT_KEY"),
				Container:   getEnvOrDefault("LOGSINK_CONTAINER", "logs"),
			},
		},
		Mocks: MockConfig{
			Enable: os.Getenv("MOCKS_ENABLE") == "true",
		},
	}

	if len(config.Dashboard.Regions) == 0 {
		return nil, fmt.Errorf("REGIONS must name at least one region")
	}
	if _, err := config.Refresh.Location(); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
