package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Log          LogConfig          `mapstructure:"log"`
	Outbox       OutboxConfig       `mapstructure:"outbox"`
	Balance      BalanceConfig      `mapstructure:"balance"`
	Notification NotificationConfig `mapstructure:"notification"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// RedisConfig backs the idempotency cache and the rate limiter. Timeouts are
// kept short: both callers fail open when Redis is slow.
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig configures validation of caller tokens. Tokens are issued by the
// identity provider; only the shared secret and issuer are needed here.
type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// OutboxConfig drives the publisher and janitor schedules.
type OutboxConfig struct {
	PublisherInterval time.Duration `mapstructure:"publisher_interval"`
	JanitorInterval   time.Duration `mapstructure:"janitor_interval"`
	Retention         time.Duration `mapstructure:"retention"`
	BatchSize         int           `mapstructure:"batch_size"`
	Concurrency       int           `mapstructure:"concurrency"`
}

// BalanceConfig is shared by the balance service (listen side) and the
// core service (client side).
type BalanceConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CASAttempts int           `mapstructure:"cas_attempts"`
	Port        int           `mapstructure:"port"`
}

type NotificationConfig struct {
	Driver  string        `mapstructure:"driver"` // http, kafka
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"` // comma separated
	Topic   string `mapstructure:"topic"`
}

// BrokerList splits the comma separated broker string.
func (k KafkaConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(k.Brokers, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: MF_ (moneyflow).
// Nested keys use underscore: MF_DATABASE_HOST, MF_OUTBOX_RETENTION, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "moneyflow")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", "2s")
	v.SetDefault("redis.read_timeout", "500ms")
	v.SetDefault("redis.write_timeout", "500ms")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "1h")
	v.SetDefault("jwt.issuer", "moneyflow")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("outbox.publisher_interval", "5s")
	v.SetDefault("outbox.janitor_interval", "1m")
	v.SetDefault("outbox.retention", "1h")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.concurrency", 8)
	v.SetDefault("balance.base_url", "http://balance-service:8081")
	v.SetDefault("balance.timeout", "5s")
	v.SetDefault("balance.cas_attempts", 3)
	v.SetDefault("balance.port", 8081)
	v.SetDefault("notification.driver", "http")
	v.SetDefault("notification.url", "http://notification-service:8082/api/v1/notifications")
	v.SetDefault("notification.secret", "")
	v.SetDefault("notification.timeout", "5s")
	v.SetDefault("notification.kafka.brokers", "")
	v.SetDefault("notification.kafka.topic", "notifications")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: MF_DATABASE_HOST -> database.host
	v.SetEnvPrefix("MF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (o OutboxConfig) validate() error {
	if o.PublisherInterval <= 0 {
		return fmt.Errorf("outbox.publisher_interval must be positive")
	}
	if o.JanitorInterval <= 0 {
		return fmt.Errorf("outbox.janitor_interval must be positive")
	}
	if o.Retention <= 0 {
		return fmt.Errorf("outbox.retention must be positive")
	}
	return nil
}
