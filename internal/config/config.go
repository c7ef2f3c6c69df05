package config

import (
	"gopkg.in/yaml.v3"
	"io/ioutil"
	"os"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Push      PushConfig      `yaml:"push"`
	Sweep     SweepConfig     `yaml:"sweep"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	OrdersTopic   string   `yaml:"orders_topic"`
	PresenceTopic string   `yaml:"presence_topic"`
	Group         string   `yaml:"group"`
}

type PushConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type SweepConfig struct {
	IntervalSeconds          int `yaml:"interval_seconds"`
	TokenTTLDays             int `yaml:"token_ttl_days"`
	LogTTLDays               int `yaml:"log_ttl_days"`
	ReconcileIntervalSeconds int `yaml:"reconcile_interval_seconds"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override secrets from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if key := os.Getenv("PUSH_GATEWAY_KEY"); key != "" {
		cfg.Push.APIKey = key
	}
	if cfg.Sweep.TokenTTLDays == 0 {
		cfg.Sweep.TokenTTLDays = 90
	}
	if cfg.Sweep.LogTTLDays == 0 {
		cfg.Sweep.LogTTLDays = 30
	}
	return &cfg, nil
}
