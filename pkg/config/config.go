package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Datastore DatastoreConfig `mapstructure:"datastore"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig defines HTTP server settings.
type ServerConfig struct {
	Port           int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	WriteRateLimit float64       `mapstructure:"write_rate_limit" validate:"gte=0"` // POST requests per second, 0 disables
}

// BillingConfig holds the tariff. UnitPrice is kept as text so it parses exactly.
type BillingConfig struct {
	UnitPrice      string          `mapstructure:"unit_price" validate:"required"`
	CurrencySymbol string          `mapstructure:"currency_symbol"`
	Price          decimal.Decimal `mapstructure:"-"`
}

type CacheConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds" validate:"gte=0"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// DatastoreConfig locates the ledger table.
type DatastoreConfig struct {
	Driver      string `mapstructure:"driver" validate:"oneof=sheets sqlite csv"`
	Identifier  string `mapstructure:"identifier" validate:"required"`
	Worksheet   string `mapstructure:"worksheet"`
	Credentials string `mapstructure:"credentials"`
}

// KafkaConfig defines the ledger event producer. No brokers means events are off.
type KafkaConfig struct {
	Brokers          []string `mapstructure:"brokers"`
	Topic            string   `mapstructure:"topic"`
	RequiredAcks     string   `mapstructure:"required_acks"`
	CompressionCodec string   `mapstructure:"compression_codec"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// MetricsConfig defines metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.write_rate_limit", 5)
	v.SetDefault("billing.unit_price", "2500")
	v.SetDefault("billing.currency_symbol", "Rp")
	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("datastore.driver", "sqlite")
	v.SetDefault("datastore.identifier", "tagihan_air.db")
	v.SetDefault("datastore.worksheet", "Sheet1")
	v.SetDefault("datastore.credentials", "credentials.json")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "ledger-rows")
	v.SetDefault("kafka.required_acks", "all")
	v.SetDefault("kafka.compression_codec", "none")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// LoadConfig loads configuration from .env, config.yaml and environment variables,
// in increasing precedence.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	// BILLING_UNIT_PRICE overrides billing.unit_price.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		fmt.Printf("Config file not found in %q. Using defaults and environment variables.\n", configPath)
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config %s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	price, err := decimal.NewFromString(strings.TrimSpace(c.Billing.UnitPrice))
	if err != nil {
		return fmt.Errorf("billing.unit_price must be a number: %w", err)
	}
	if price.IsNegative() {
		return fmt.Errorf("billing.unit_price must not be negative")
	}
	c.Billing.Price = price

	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic must be specified when brokers are set")
	}
	return nil
}
