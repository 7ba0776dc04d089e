package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendDynamo        = "dynamodb"
	BackendElasticsearch = "elasticsearch"
	BackendScylla        = "scylla"
	BackendMemory        = "memory"
)

// Common contains the storage parameters shared by every binary.
type Common struct {
	StoreBackend string `env:"STORE_BACKEND" envDefault:"dynamodb"`

	AWSRegion          string `env:"AWS_REGION"            envDefault:"ap-northeast-1"`
	AWSEndpoint        string `env:"AWS_ENDPOINT_URL"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`

	Table         string `env:"DYNAMODB_TABLE"      envDefault:"articles"`
	DateIndex     string `env:"DYNAMODB_DATE_INDEX" envDefault:"ArticlesByDate"`
	PayloadBucket string `env:"PAYLOAD_BUCKET"      envDefault:"article-payloads"`
	// PayloadDir serves payload blobs from <dir>/<bucket>/<key> instead of S3.
	PayloadDir string `env:"PAYLOAD_DIR"`

	ElasticsearchAddr  string `env:"ELASTICSEARCH_ADDR"  envDefault:"http://elasticsearch:9200"`
	ElasticsearchIndex string `env:"ELASTICSEARCH_INDEX" envDefault:"articles"`

	ScyllaHosts    []string `env:"SCYLLA_HOSTS"    envDefault:"scylla:9042" envSeparator:","`
	ScyllaKeyspace string   `env:"SCYLLA_KEYSPACE" envDefault:"diet_digest"`

	// SeedPath is a fixture file or directory for the memory backend.
	SeedPath string `env:"SEED_PATH"`

	StoreTimeout   time.Duration `env:"STORE_TIMEOUT"   envDefault:"5s"`
	PayloadTimeout time.Duration `env:"PAYLOAD_TIMEOUT" envDefault:"3s"`

	// OTLPEndpoint enables tracing when set.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr       string        `env:"API_BIND_ADDR"       envDefault:"0.0.0.0:8080"`
	RequestTimeout time.Duration `env:"API_REQUEST_TIMEOUT" envDefault:"10s"`
	RateLimit      float64       `env:"API_RATE_LIMIT"      envDefault:"20"`
	RateBurst      int           `env:"API_RATE_BURST"      envDefault:"40"`

	CacheTTL          time.Duration `env:"CACHE_TTL"           envDefault:"1m"`
	CacheWarmSchedule string        `env:"CACHE_WARM_SCHEDULE"`

	// KafkaBrokers enables cache invalidation from article events when set.
	KafkaBrokers   []string      `env:"KAFKA_BROKERS"        envSeparator:","`
	KafkaTopic     string        `env:"KAFKA_TOPIC"          envDefault:"article-events"`
	KafkaConsumer  string        `env:"KAFKA_CONSUMER_GROUP" envDefault:"digest-api"`
	DedupeCapacity int           `env:"DEDUPE_CAPACITY"      envDefault:"20000"`
	DedupeTTL      time.Duration `env:"DEDUPE_TTL"           envDefault:"24h"`

	StartupRetries int `env:"STORE_STARTUP_RETRIES" envDefault:"10"`
}

// CLI configures digestctl.
type CLI struct {
	Common
	SeedWorkers int `env:"SEED_WORKERS" envDefault:"4"`
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	return LoadAPIFrom(environ())
}

// LoadAPIFrom builds an API config from the given variables.
func LoadAPIFrom(vars map[string]string) (*API, error) {
	c := &API{}
	if err := parse(c, vars); err != nil {
		return nil, err
	}
	if err := c.Common.validate(); err != nil {
		return nil, err
	}
	c.KafkaBrokers = splitAndTrim(c.KafkaBrokers)

	if c.RateLimit < 0 {
		return nil, fmt.Errorf("API_RATE_LIMIT cannot be negative")
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return nil, fmt.Errorf("API_RATE_BURST must be positive")
	}
	if c.RequestTimeout <= 0 {
		return nil, fmt.Errorf("API_REQUEST_TIMEOUT must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("DEDUPE_CAPACITY must be positive")
	}
	if c.StartupRetries <= 0 {
		return nil, fmt.Errorf("STORE_STARTUP_RETRIES must be positive")
	}
	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		return nil, fmt.Errorf("KAFKA_TOPIC is required with KAFKA_BROKERS")
	}

	return c, nil
}

// LoadCLI builds a CLI config from environment variables.
func LoadCLI() (*CLI, error) {
	return LoadCLIFrom(environ())
}

// LoadCLIFrom builds a CLI config from the given variables.
func LoadCLIFrom(vars map[string]string) (*CLI, error) {
	c := &CLI{}
	if err := parse(c, vars); err != nil {
		return nil, err
	}
	if err := c.Common.validate(); err != nil {
		return nil, err
	}
	if c.SeedWorkers <= 0 {
		return nil, fmt.Errorf("SEED_WORKERS must be positive")
	}
	return c, nil
}

func (c *Common) validate() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.ScyllaHosts = splitAndTrim(c.ScyllaHosts)

	switch c.StoreBackend {
	case BackendDynamo, BackendElasticsearch:
	case BackendScylla:
		if len(c.ScyllaHosts) == 0 {
			return fmt.Errorf("SCYLLA_HOSTS must contain at least one host")
		}
	case BackendMemory:
		if strings.TrimSpace(c.SeedPath) == "" {
			return fmt.Errorf("SEED_PATH is required for the memory backend")
		}
	default:
		return fmt.Errorf("STORE_BACKEND %q is not one of dynamodb, elasticsearch, scylla, memory", c.StoreBackend)
	}

	if strings.TrimSpace(c.Table) == "" {
		return fmt.Errorf("DYNAMODB_TABLE cannot be empty")
	}
	if strings.TrimSpace(c.PayloadBucket) == "" {
		return fmt.Errorf("PAYLOAD_BUCKET cannot be empty")
	}
	if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
		return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.PayloadTimeout <= 0 {
		return fmt.Errorf("PAYLOAD_TIMEOUT must be positive")
	}
	return nil
}

func parse(target any, vars map[string]string) error {
	if err := env.ParseWithOptions(target, env.Options{Environment: vars}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func environ() map[string]string {
	out := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && v != "" {
			out[k] = v
		}
	}
	return out
}

func splitAndTrim(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
