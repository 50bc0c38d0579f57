// Package config handles service configuration
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/GriffinCanCode/hudreader/internal/digits"
	apperrors "github.com/GriffinCanCode/hudreader/internal/errors"
	"github.com/GriffinCanCode/hudreader/internal/ocr"
	"github.com/GriffinCanCode/hudreader/internal/regions"
)

type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	CORSOrigins []string

	Engine         string
	FallbackEngine string
	TemplateDir    string
	IconTemplate   string
	TessdataPrefix string
	OCRLanguage    string
	BatchSize      int
	OCRWorkers     int
	MinScore       float64
	MatchThreshold float64
	MinConfidence  float64
	MinSeparation  int
	IconThreshold  float64
	RegionsFile    string

	CaptureSource     string
	CaptureRate       float64 // Hz
	ResultBuffer      int
	MaxEngineFailures int
	SummaryEvery      int
	SkipSimilarFrames bool

	HistorySize   int
	AlertsEnabled bool
	AlertCooldown time.Duration
	PopCapRatio   float64

	LogLevel  string
	LogFormat string
}

// Load reads the environment, after applying an optional .env file.
func Load() *Config {
	loadDotEnv(getEnv("ENV_FILE", ".env"))
	return &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8000"),
		GRPCAddr:    getEnv("GRPC_ADDR", ":50061"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),

		Engine:         getEnv("ENGINE", "template"),
		FallbackEngine: getEnv("FALLBACK_ENGINE", ""),
		TemplateDir:    getEnv("TEMPLATE_DIR", "assets/digits"),
		IconTemplate:   getEnv("ICON_TEMPLATE", "assets/villager_icon.png"),
		TessdataPrefix: getEnv("TESSDATA_PREFIX_DIR", ""),
		OCRLanguage:    getEnv("OCR_LANGUAGE", "eng"),
		BatchSize:      getEnvInt("BATCH_SIZE", ocr.DefaultBatchSize),
		OCRWorkers:     getEnvInt("OCR_WORKERS", ocr.DefaultWorkers),
		MinScore:       getEnvFloat("MIN_SCORE", ocr.DefaultMinScore),
		MatchThreshold: getEnvFloat("MATCH_THRESHOLD", digits.DefaultMatchThreshold),
		MinConfidence:  getEnvFloat("MIN_CONFIDENCE", digits.DefaultMinConfidence),
		MinSeparation:  getEnvInt("MIN_SEPARATION", digits.DefaultMinSeparation),
		IconThreshold:  getEnvFloat("ICON_THRESHOLD", 0.6),
		RegionsFile:    getEnv("REGIONS_FILE", ""),

		CaptureSource:     getEnv("CAPTURE_SOURCE", "screen"),
		CaptureRate:       getEnvFloat("CAPTURE_RATE", 10),
		ResultBuffer:      getEnvInt("RESULT_BUFFER", 2),
		MaxEngineFailures: getEnvInt("MAX_ENGINE_FAILURES", 5),
		SummaryEvery:      getEnvInt("SUMMARY_EVERY", 100),
		SkipSimilarFrames: getEnvBool("SKIP_SIMILAR_FRAMES", false),

		HistorySize:   getEnvInt("HISTORY_SIZE", 300),
		AlertsEnabled: getEnvBool("ALERTS_ENABLED", true),
		AlertCooldown: getEnvDuration("ALERT_COOLDOWN", 10*time.Second),
		PopCapRatio:   getEnvFloat("POP_CAP_RATIO", 0.95),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	invalid := func(key string, v any) error {
		return apperrors.Newf(apperrors.CodeConfigInvalid, "invalid %s: %v", key, v).WithMetadata("key", key)
	}
	if _, err := ocr.ParseKind(c.Engine); err != nil {
		return err
	}
	if _, err := ocr.ParseKind(c.FallbackEngine); err != nil {
		return err
	}
	switch {
	case c.BatchSize <= 0:
		return invalid("BATCH_SIZE", c.BatchSize)
	case c.OCRWorkers <= 0:
		return invalid("OCR_WORKERS", c.OCRWorkers)
	case c.MinScore < 0 || c.MinScore > 1:
		return invalid("MIN_SCORE", c.MinScore)
	case c.MatchThreshold <= 0 || c.MatchThreshold > 1:
		return invalid("MATCH_THRESHOLD", c.MatchThreshold)
	case c.MinConfidence < 0 || c.MinConfidence > 1:
		return invalid("MIN_CONFIDENCE", c.MinConfidence)
	case c.MinSeparation <= 0:
		return invalid("MIN_SEPARATION", c.MinSeparation)
	case c.IconThreshold <= 0 || c.IconThreshold > 1:
		return invalid("ICON_THRESHOLD", c.IconThreshold)
	case c.CaptureRate <= 0:
		return invalid("CAPTURE_RATE", c.CaptureRate)
	case c.ResultBuffer <= 0:
		return invalid("RESULT_BUFFER", c.ResultBuffer)
	case c.MaxEngineFailures <= 0:
		return invalid("MAX_ENGINE_FAILURES", c.MaxEngineFailures)
	case c.SummaryEvery <= 0:
		return invalid("SUMMARY_EVERY", c.SummaryEvery)
	case c.HistorySize <= 0:
		return invalid("HISTORY_SIZE", c.HistorySize)
	case c.PopCapRatio <= 0 || c.PopCapRatio > 1:
		return invalid("POP_CAP_RATIO", c.PopCapRatio)
	case c.AlertCooldown < 0:
		return invalid("ALERT_COOLDOWN", c.AlertCooldown)
	}
	return nil
}

// OCR returns the recognition engine settings. Call Validate first.
func (c *Config) OCR() ocr.Config {
	kind, _ := ocr.ParseKind(c.Engine)
	fallback, _ := ocr.ParseKind(c.FallbackEngine)
	return ocr.Config{
		Kind:        kind,
		Fallback:    fallback,
		BatchSize:   c.BatchSize,
		Workers:     c.OCRWorkers,
		MinScore:    c.MinScore,
		TemplateDir: c.TemplateDir,
		Digits: digits.Config{
			MatchThreshold: c.MatchThreshold,
			MinConfidence:  c.MinConfidence,
			MinSeparation:  c.MinSeparation,
		},
	}
}

// Regions returns the configured region table, or the built-in one when
// REGIONS_FILE is unset.
func (c *Config) Regions() ([]regions.StatRegion, error) {
	return regions.Load(c.RegionsFile)
}

// NeedsBackend reports whether a neural engine is configured.
func (c *Config) NeedsBackend() bool {
	cfg := c.OCR()
	neural := func(k ocr.Kind) bool { return k == ocr.KindNeuralBatch || k == ocr.KindNeuralParallel }
	return neural(cfg.Kind) || neural(cfg.Fallback)
}

func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load env file", "path", path, "error", err)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
