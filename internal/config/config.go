package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all runtime settings, populated from environment variables.
type Config struct {
	StoreBackend    string // "postgis" or "memory"
	DatabaseURL     string
	LogLevel        string
	LogFormat       string
	MetricsAddr     string
	ShutdownTimeout time.Duration

	// SWDI acquisition.
	SWDIBaseURL         string
	SWDITimeout         time.Duration
	FetchMaxAttempts    int
	FetchInitialBackoff time.Duration
	FetchMaxBackoff     time.Duration

	// Export artifacts.
	ExportDir      string
	ExportCompress bool

	// Optional cluster summary publication.
	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaClusterTopic string

	// Optional reverse geocoding of cluster centroids.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	CatalogPath string
	Catalog     *Catalog
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	swdiTimeout, err := parsePositiveDuration("SWDI_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	initialBackoff, err := parseNonNegativeDuration("FETCH_INITIAL_BACKOFF", "2s")
	if err != nil {
		return nil, err
	}
	maxBackoff, err := parseNonNegativeDuration("FETCH_MAX_BACKOFF", "30s")
	if err != nil {
		return nil, err
	}
	maxAttempts, err := parsePositiveInt("FETCH_MAX_ATTEMPTS", 4)
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	kafkaTopic := sharedcfg.EnvOrDefault("KAFKA_CLUSTER_TOPIC", "storm-clusters")
	kafkaEnabled := os.Getenv("KAFKA_BROKERS") != ""
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	catalogPath := os.Getenv("PIPELINE_CATALOG")
	catalog, err := LoadCatalog(catalogPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		StoreBackend:    sharedcfg.EnvOrDefault("STORE_BACKEND", "postgis"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		ShutdownTimeout: shutdownTimeout,

		SWDIBaseURL:         sharedcfg.EnvOrDefault("SWDI_BASE_URL", "https://www.ncdc.noaa.gov/swdiws"),
		SWDITimeout:         swdiTimeout,
		FetchMaxAttempts:    maxAttempts,
		FetchInitialBackoff: initialBackoff,
		FetchMaxBackoff:     maxBackoff,

		ExportDir:      sharedcfg.EnvOrDefault("EXPORT_DIR", "maps"),
		ExportCompress: os.Getenv("EXPORT_COMPRESS") == "true",

		KafkaEnabled:      kafkaEnabled,
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaClusterTopic: kafkaTopic,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),

		CatalogPath: catalogPath,
		Catalog:     catalog,
	}

	switch cfg.StoreBackend {
	case "postgis":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q (want postgis or memory)", cfg.StoreBackend)
	}
	if cfg.FetchMaxBackoff < cfg.FetchInitialBackoff {
		return nil, errors.New("FETCH_MAX_BACKOFF must not be below FETCH_INITIAL_BACKOFF")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("invalid LOG_FORMAT %q (want json or text)", cfg.LogFormat)
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaClusterTopic == "" {
		return nil, errors.New("KAFKA_CLUSTER_TOPIC is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseNonNegativeDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
