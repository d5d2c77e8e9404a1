package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the configuration of the API server and the outbox relay,
// loadable from environment variables (SHOPDESK_ prefix), flags, or YAML
// config files.
type Config struct {
	Addr              string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL       string `usage:"PostgreSQL connection URL (SHOPDESK_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper      string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	LowStockThreshold int    `default:"10" usage:"Default threshold of the low-stock report" flag:"low-stock-threshold"`
	Kafka             KafkaConfig
	Relay             RelayConfig
	RateLimit         RateLimitConfig
	CORS              CORSConfig
	Graceful          GracefulConfig
}

// KafkaConfig locates the broker the outbox relay publishes order events to.
type KafkaConfig struct {
	Brokers string `default:"localhost:9092" usage:"Comma-separated Kafka broker addresses"`
	Topic   string `default:"shopdesk.orders" usage:"Topic for order events"`
}

// RelayConfig controls outbox polling.
type RelayConfig struct {
	Interval  time.Duration `default:"1s" usage:"Outbox poll interval"`
	BatchSize int           `default:"100" usage:"Max events published per poll"`
}

// RateLimitConfig controls the per-key token bucket limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(false)
}

func loadConfig(skipFlags bool) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOPDESK",
		SkipFlags: skipFlags,
		Files:     []string{"config.yaml", "/etc/shopdesk/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set SHOPDESK_DATABASE_URL or DATABASE_URL")
	case c.LowStockThreshold < 0:
		return errors.Errorf("low stock threshold %d must not be negative", c.LowStockThreshold)
	case c.Relay.BatchSize <= 0:
		return errors.Errorf("relay batch size %d must be positive", c.Relay.BatchSize)
	case c.Relay.Interval <= 0:
		return errors.New("relay interval must be positive")
	case c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0:
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// applyPlatformDefaults maps DATABASE_URL and PORT, as set by hosting
// platforms, onto the SHOPDESK_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
