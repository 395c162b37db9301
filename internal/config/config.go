package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/zhaoxiaowang1993/ai-doc-review/internal/geom"
)

type Config struct {
	Port string

	// Auth
	ReviewAPIKey string

	// Extraction service
	MinerUBaseURL        string
	MinerUAPIKey         string
	MinerUModelVersion   string
	MinerUPollInterval   time.Duration
	MinerUMaxWait        time.Duration
	MinerUCacheDir       string
	MinerUCacheArtifacts bool

	// Extraction bbox coordinate assumptions. Most artifacts use
	// image-like coordinates with the origin at top-left.
	BBoxOrigin          geom.Origin
	BBoxUnits           geom.Units
	BBoxContentCoverage float64

	// LLM
	DeepSeekAPIKey  string
	DeepSeekBaseURL string
	DeepSeekModel   string

	// Streaming / batching
	Pagination int

	// Upload limits
	MaxUploadBytes int64
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		ReviewAPIKey: os.Getenv("REVIEW_API_KEY"),

		MinerUBaseURL:        envOr("MINERU_BASE_URL", "https://mineru.net"),
		MinerUAPIKey:         os.Getenv("MINERU_API_KEY"),
		MinerUModelVersion:   envOr("MINERU_MODEL_VERSION", "vlm"),
		MinerUPollInterval:   envDuration("MINERU_POLL_INTERVAL", 1*time.Second),
		MinerUMaxWait:        envDuration("MINERU_MAX_WAIT", 300*time.Second),
		MinerUCacheDir:       envOr("MINERU_CACHE_DIR", "./data/mineru"),
		MinerUCacheArtifacts: envBool("MINERU_CACHE_ARTIFACTS", true),

		BBoxOrigin:          geom.Origin(envOr("MINERU_BBOX_ORIGIN", string(geom.OriginTopLeft))),
		BBoxUnits:           geom.Units(envOr("MINERU_BBOX_UNITS", string(geom.UnitsAuto))),
		BBoxContentCoverage: envFloat("MINERU_BBOX_CONTENT_COVERAGE", 0.92),

		DeepSeekAPIKey:  os.Getenv("DEEPSEEK_API_KEY"),
		DeepSeekBaseURL: envOr("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1"),
		DeepSeekModel:   envOr("DEEPSEEK_MODEL", "deepseek-chat"),

		Pagination: envInt("PAGINATION", 32),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
	}

	if cfg.MinerUPollInterval <= 0 {
		cfg.MinerUPollInterval = 1 * time.Second
	}
	if cfg.MinerUMaxWait <= 0 {
		cfg.MinerUMaxWait = 300 * time.Second
	}
	if cfg.BBoxContentCoverage <= 0 || cfg.BBoxContentCoverage > 1 {
		cfg.BBoxContentCoverage = 0.92
	}
	if cfg.Pagination == 0 {
		cfg.Pagination = 32
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}

	return cfg
}

func (c Config) Validate() error {
	if c.ReviewAPIKey == "" {
		return fmt.Errorf("REVIEW_API_KEY is required")
	}
	if c.MinerUAPIKey == "" {
		return fmt.Errorf("MINERU_API_KEY is required")
	}
	if c.DeepSeekAPIKey == "" {
		return fmt.Errorf("DEEPSEEK_API_KEY is required")
	}
	switch c.BBoxOrigin {
	case geom.OriginTopLeft, geom.OriginBottomLeft:
	default:
		return fmt.Errorf("MINERU_BBOX_ORIGIN must be %q or %q", geom.OriginTopLeft, geom.OriginBottomLeft)
	}
	switch c.BBoxUnits {
	case geom.UnitsAuto, geom.UnitsPx, geom.UnitsPt:
	default:
		return fmt.Errorf("MINERU_BBOX_UNITS must be %q, %q or %q", geom.UnitsAuto, geom.UnitsPx, geom.UnitsPt)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
