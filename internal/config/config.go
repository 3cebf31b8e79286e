package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Engine names accepted in WEATHER_ENGINE.
const (
	EngineSynthetic   = "synthetic"
	EngineEarthdata   = "earthdata"
	EngineMeteomatics = "meteomatics"
	EngineOpenMeteo   = "openmeteo"
)

// Result store backends accepted in RESULT_STORE.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type AppConfig struct {
	Port      string
	LogLevel  string
	LogFormat string

	// Engine selects the data engine.
	Engine string
	// ThresholdsPath points at the conditions document. Empty uses the
	// embedded default.
	ThresholdsPath string

	HTTPTimeout         time.Duration
	FetchAttemptTimeout time.Duration
	FetchTotalDeadline  time.Duration
	// SeriesDeadline bounds one whole remote series assembly.
	SeriesDeadline   time.Duration
	FetchConcurrency int
	// UpstreamRateLimit is requests per second to third-party APIs (0 = unlimited).
	UpstreamRateLimit float64

	EarthdataToken    string
	EarthdataUsername string
	EarthdataPassword string
	NetrcPath         string

	MeteomaticsUsername string
	MeteomaticsPassword string

	// Result store.
	ResultStore        string
	RedisAddr          string
	ResultTTL          time.Duration
	StoreMaxEntries    int
	StorePruneInterval time.Duration

	GeocoderAPIKey string
	SyntheticSeed  uint64
}

// Load reads configuration from environment with sensible defaults. A .env
// file in the working directory is loaded first when present.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "json")

	cfg.Engine = strings.ToLower(getenvDefault("WEATHER_ENGINE", EngineSynthetic))
	switch cfg.Engine {
	case EngineSynthetic, EngineEarthdata, EngineMeteomatics, EngineOpenMeteo:
	default:
		return nil, fmt.Errorf("invalid WEATHER_ENGINE %q", cfg.Engine)
	}
	cfg.ThresholdsPath = os.Getenv("THRESHOLDS_PATH")

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"HTTP_TIMEOUT", "30s", &cfg.HTTPTimeout},
		{"FETCH_ATTEMPT_TIMEOUT", "20s", &cfg.FetchAttemptTimeout},
		{"FETCH_TOTAL_DEADLINE", "60s", &cfg.FetchTotalDeadline},
		{"SERIES_DEADLINE", "5m", &cfg.SeriesDeadline},
		{"RESULT_TTL", "24h", &cfg.ResultTTL},
		{"STORE_PRUNE_INTERVAL", "10m", &cfg.StorePruneInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getenvDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	cfg.FetchConcurrency = getenvInt("FETCH_CONCURRENCY", 8)
	if v := os.Getenv("UPSTREAM_RATE_LIMIT"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps < 0 {
			return nil, fmt.Errorf("invalid UPSTREAM_RATE_LIMIT %q", v)
		}
		cfg.UpstreamRateLimit = rps
	}

	cfg.EarthdataToken = os.Getenv("EARTHDATA_TOKEN")
	cfg.EarthdataUsername = os.Getenv("EARTHDATA_USERNAME")
	cfg.EarthdataPassword = os.Getenv("EARTHDATA_PASSWORD")
	cfg.NetrcPath = os.Getenv("NETRC")
	cfg.MeteomaticsUsername = os.Getenv("METEOMATICS_USERNAME")
	cfg.MeteomaticsPassword = os.Getenv("METEOMATICS_PASSWORD")

	cfg.ResultStore = strings.ToLower(getenvDefault("RESULT_STORE", StoreMemory))
	if cfg.ResultStore != StoreMemory && cfg.ResultStore != StoreRedis {
		return nil, fmt.Errorf("invalid RESULT_STORE %q", cfg.ResultStore)
	}
	cfg.RedisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.StoreMaxEntries = getenvInt("STORE_MAX_ENTRIES", 1000)

	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")
	cfg.SyntheticSeed = uint64(getenvInt("SYNTHETIC_SEED", 1234))

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
