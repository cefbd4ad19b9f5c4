package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// CMAC processing.
	SiteConfig string
	OutputDir  string
	MetaAppend domain.MetadataSource
	Verbose    bool

	// Sounding retrieval.
	SoundingCacheSize int
	SoundingTimeout   time.Duration

	CatalogPath string

	// InfluxDB statistics sink, disabled when InfluxURL is empty.
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

// Load reads configuration from the environment and an optional .env file,
// applying defaults where unset.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	soundingTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("SOUNDING_TIMEOUT", "10s"))
	if err != nil || soundingTimeout <= 0 {
		return nil, errors.New("invalid SOUNDING_TIMEOUT")
	}

	metaAppend, err := domain.ParseMetadataSource(os.Getenv("CMAC_META_APPEND"))
	if err != nil {
		return nil, fmt.Errorf("invalid CMAC_META_APPEND: %w", err)
	}

	verbose := false
	if v := os.Getenv("CMAC_VERBOSE"); v != "" {
		verbose, err = strconv.ParseBool(v)
		if err != nil {
			return nil, errors.New("invalid CMAC_VERBOSE: must be a boolean")
		}
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "cmac-scan-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "cmac-products"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "storm-cmac"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		SiteConfig: sharedcfg.EnvOrDefault("CMAC_SITE_CONFIG", "configs/sgp_xsapr.toml"),
		OutputDir:  sharedcfg.EnvOrDefault("CMAC_OUTPUT_DIR", "output"),
		MetaAppend: metaAppend,
		Verbose:    verbose,

		SoundingCacheSize: parseSoundingCacheSize(),
		SoundingTimeout:   soundingTimeout,

		CatalogPath: sharedcfg.EnvOrDefault("CATALOG_PATH", "cmac-catalog.db"),

		InfluxURL:    os.Getenv("INFLUX_URL"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    sharedcfg.EnvOrDefault("INFLUX_ORG", "arm"),
		InfluxBucket: sharedcfg.EnvOrDefault("INFLUX_BUCKET", "cmac"),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.InfluxURL != "" && cfg.InfluxToken == "" {
		return nil, errors.New("INFLUX_URL is set but INFLUX_TOKEN is not")
	}

	return cfg, nil
}

// InfluxEnabled reports whether scan statistics are written to InfluxDB.
func (c *Config) InfluxEnabled() bool {
	return c.InfluxURL != ""
}

func parseSoundingCacheSize() int {
	if s := os.Getenv("SOUNDING_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 64
}
