package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Enrichment struct {
		ConfigPath    string        `yaml:"config_path"` // hot-reloadable provider document
		WatchInterval time.Duration `yaml:"watch_interval"`
		Workers       int           `yaml:"workers"`
		QueueSize     int           `yaml:"queue_size"`
		CallTimeout   time.Duration `yaml:"call_timeout"`
		GlobalTimeout time.Duration `yaml:"global_timeout"`
		CacheTTL      time.Duration `yaml:"cache_ttl"`
	} `yaml:"enrichment"`
	Providers struct {
		Timeout           time.Duration `yaml:"timeout"`
		PricePredictorURL string        `yaml:"price_predictor_url"`
		PolicyEngineURL   string        `yaml:"policy_engine_url"`
		SentimentURL      string        `yaml:"sentiment_url"`
		ConsensusURL      string        `yaml:"consensus_url"`
	} `yaml:"providers"`
	Breaker struct {
		FailureThreshold int                      `yaml:"failure_threshold"`
		Cooldown         time.Duration            `yaml:"cooldown"`
		Providers        map[string]BreakerConfig `yaml:"providers"`
	} `yaml:"breaker"`
	Predictor struct {
		HistorySize    int     `yaml:"history_size"`
		RetrainEvery   int     `yaml:"retrain_every"`
		MinSamples     int     `yaml:"min_samples"`
		RiskCeiling    float64 `yaml:"risk_ceiling"`
		DefaultRisk    float64 `yaml:"default_risk"`
		WarmupFromGaps bool    `yaml:"warmup_from_store"`
	} `yaml:"predictor"`
	Versioning struct {
		Dir           string `yaml:"dir"`
		MinSampleSize int    `yaml:"min_sample_size"`
	} `yaml:"versioning"`
	Cache struct {
		MemoryMaxSize int `yaml:"memory_max_size"`
		Redis         struct {
			Enabled  bool   `yaml:"enabled"`
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		SignalsTopic  string   `yaml:"signals_topic"`
		EnrichedTopic string   `yaml:"enriched_topic"`
		LogsTopic     string   `yaml:"logs_topic"`
		RequiredAcks  int      `yaml:"required_acks"`
		Compression   string   `yaml:"compression"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	MarketFeed struct {
		Enabled        bool          `yaml:"enabled"`
		WebSocketURL   string        `yaml:"websocket_url"`
		APIKey         string        `yaml:"api_key"`
		Assets         []string      `yaml:"assets"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"marketfeed"`
}

// BreakerConfig is a per-provider circuit breaker override.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("MARKETFEED_API_KEY"); v != "" {
		c.MarketFeed.APIKey = v
	}
	if v := os.Getenv("ENRICHMENT_CONFIG"); v != "" {
		c.Enrichment.ConfigPath = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Enrichment.Workers <= 0 {
		c.Enrichment.Workers = 4
	}
	if c.Enrichment.QueueSize <= 0 {
		c.Enrichment.QueueSize = 64
	}
	if c.Enrichment.CallTimeout <= 0 {
		c.Enrichment.CallTimeout = 10 * time.Second
	}
	if c.Enrichment.GlobalTimeout <= 0 {
		c.Enrichment.GlobalTimeout = 30 * time.Second
	}
	if c.Enrichment.CacheTTL <= 0 {
		c.Enrichment.CacheTTL = 5 * time.Minute
	}
	if c.Enrichment.WatchInterval <= 0 {
		c.Enrichment.WatchInterval = 2 * time.Second
	}
	if c.Providers.Timeout <= 0 {
		c.Providers.Timeout = 3 * time.Second
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.Cooldown <= 0 {
		c.Breaker.Cooldown = 30 * time.Second
	}
	if c.Predictor.HistorySize <= 0 {
		c.Predictor.HistorySize = 1000
	}
	if c.Predictor.RetrainEvery <= 0 {
		c.Predictor.RetrainEvery = 50
	}
	if c.Predictor.MinSamples <= 0 {
		c.Predictor.MinSamples = 25
	}
	if c.Predictor.RiskCeiling <= 0 {
		c.Predictor.RiskCeiling = 0.7
	}
	if c.Predictor.DefaultRisk <= 0 {
		c.Predictor.DefaultRisk = 0.15
	}
	if c.Versioning.Dir == "" {
		c.Versioning.Dir = "data/versions"
	}
	if c.Versioning.MinSampleSize <= 0 {
		c.Versioning.MinSampleSize = 100
	}
	if c.Cache.MemoryMaxSize <= 0 {
		c.Cache.MemoryMaxSize = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Enrichment.ConfigPath == "" {
		return fmt.Errorf("enrichment.config_path is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.MarketFeed.Enabled && c.MarketFeed.WebSocketURL == "" {
		return fmt.Errorf("marketfeed.websocket_url is required when marketfeed is enabled")
	}
	return nil
}
