package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"marketchart/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Dashboard backend
	BackendURL        string
	BackendUser       string
	BackendPassword   string
	BackendTOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	ListenAddr    string
	LogLevel      string

	// Chart engine
	FetchTimeout time.Duration
	CacheEnabled bool
	DefaultsPath string
}

// LoadEnvFile loads a .env file into the process environment. A missing file
// is not an error; variables already set win.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	log.Printf("[config] loaded environment from %s", path)
	return nil
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		BackendURL:        getEnv("BACKEND_URL", "http://localhost:8000"),
		BackendUser:       getEnv("BACKEND_USER", ""),
		BackendPassword:   getEnv("BACKEND_PASSWORD", ""),
		BackendTOTPSecret: getEnv("BACKEND_TOTP_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/charts.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		FetchTimeout: getDuration("FETCH_TIMEOUT", 15*time.Second),
		CacheEnabled: getBool("CACHE_ENABLED", true),
		DefaultsPath: getEnv("CHART_DEFAULTS", "config/chart_defaults.yaml"),
	}
}

// ChartDefaults is what a new chart session starts with.
type ChartDefaults struct {
	Ticker           string                  `yaml:"ticker" json:"ticker"`
	Timeframe        model.Timeframe         `yaml:"timeframe" json:"timeframe"`
	Indicators       []model.IndicatorConfig `yaml:"indicators" json:"indicators"`
	Comparisons      []string                `yaml:"comparisons" json:"comparisons"`
	ComparisonColors []string                `yaml:"comparison_colors" json:"comparison_colors"`
}

// BuiltinDefaults is used when no defaults file exists.
func BuiltinDefaults() ChartDefaults {
	return ChartDefaults{
		Timeframe: model.TF1d,
		Indicators: []model.IndicatorConfig{
			{Type: model.SMA, Period: 20, Color: "#2962ff"},
			{Type: model.RSI, Period: 14, Color: "#7e57c2"},
		},
		ComparisonColors: []string{"#ff9800", "#26a69a", "#ef5350", "#ab47bc"},
	}
}

// LoadDefaults reads chart defaults from a YAML file. A missing file yields
// BuiltinDefaults; fields left out of the file keep their builtin values.
func LoadDefaults(path string) (ChartDefaults, error) {
	d := BuiltinDefaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return ChartDefaults{}, fmt.Errorf("read chart defaults: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &d); err != nil {
			return ChartDefaults{}, fmt.Errorf("parse chart defaults: %w", err)
		}
	}
	if err := d.Validate(); err != nil {
		return ChartDefaults{}, fmt.Errorf("chart defaults %s: %w", path, err)
	}
	return d, nil
}

// Validate checks timeframe and indicator configs.
func (d ChartDefaults) Validate() error {
	if _, err := model.ParseTimeframe(string(d.Timeframe)); err != nil {
		return err
	}
	for i, c := range d.Indicators {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("indicators[%d]: %w", i, err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid %s %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s %q, using %t", key, v, fallback)
		return fallback
	}
	return b
}
