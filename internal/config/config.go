package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr       string        `yaml:"http_addr"`
	GRPCAddr       string        `yaml:"grpc_addr"`
	APIURL         string        `yaml:"api_url"`
	APITimeout     time.Duration `yaml:"api_timeout"`
	DBPath         string        `yaml:"db_path"`
	RabbitURL      string        `yaml:"rabbit_url"`
	RabbitExchange string        `yaml:"rabbit_exchange"`
	LogLevel       string        `yaml:"log_level"`
	Env            string        `yaml:"env"`

	SessionCapacity int           `yaml:"session_capacity"`
	BookCacheSize   int           `yaml:"book_cache_size"`
	BookCacheTTL    time.Duration `yaml:"book_cache_ttl"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP.
	// Only safe behind a proxy that overwrites those headers.
	TrustProxy bool `yaml:"trust_proxy"`

	DeliveryFee   decimal.Decimal `yaml:"-"`
	PickupStation string          `yaml:"pickup_station"`
}

func defaults() Config {
	return Config{
		HTTPAddr:        ":8080",
		GRPCAddr:        ":50055",
		APITimeout:      30 * time.Second,
		DBPath:          "./data/storefront.db",
		RabbitExchange:  "storefront_events",
		SessionCapacity: 1024,
		BookCacheSize:   512,
		BookCacheTTL:    2 * time.Minute,
		DeliveryFee:     decimal.NewFromInt(500),
		PickupStation:   "SUG Building - Pickup Station",
	}
}

// Load builds the config from defaults, then the optional YAML file named by
// STOREFRONT_CONFIG, then the environment (a .env file in the working
// directory is read first when present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("STOREFRONT_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("config: FUBOOKS_API_URL is required")
	}
	log.Debug().
		Str("http", cfg.HTTPAddr).
		Str("grpc", cfg.GRPCAddr).
		Str("api", cfg.APIURL).
		Str("db", cfg.DBPath).
		Bool("rabbit", cfg.RabbitURL != "").
		Msg("config loaded")
	return &cfg, nil
}

func (c *Config) Dev() bool { return c.Env == "" || c.Env == "dev" || c.Env == "development" }

type fileConfig struct {
	Config      `yaml:",inline"`
	DeliveryFee string `yaml:"delivery_fee"`
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	fc := fileConfig{Config: *cfg}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	*cfg = fc.Config
	if fc.DeliveryFee != "" {
		fee, err := decimal.NewFromString(fc.DeliveryFee)
		if err != nil {
			return fmt.Errorf("config: delivery_fee: %w", err)
		}
		cfg.DeliveryFee = fee
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTPAddr = getenv("STOREFRONT_HTTP_ADDR", cfg.HTTPAddr)
	cfg.GRPCAddr = getenv("STOREFRONT_GRPC_ADDR", cfg.GRPCAddr)
	cfg.APIURL = getenv("FUBOOKS_API_URL", cfg.APIURL)
	cfg.DBPath = getenv("STOREFRONT_DB_PATH", cfg.DBPath)
	cfg.RabbitURL = getenv("RABBITMQ_URL", cfg.RabbitURL)
	cfg.RabbitExchange = getenv("RABBIT_EXCHANGE", cfg.RabbitExchange)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.Env = getenv("APP_ENV", cfg.Env)
	cfg.PickupStation = getenv("PICKUP_STATION", cfg.PickupStation)

	var err error
	if cfg.APITimeout, err = durationEnv("FUBOOKS_API_TIMEOUT", cfg.APITimeout); err != nil {
		return err
	}
	if cfg.BookCacheTTL, err = durationEnv("BOOK_CACHE_TTL", cfg.BookCacheTTL); err != nil {
		return err
	}
	if cfg.SessionCapacity, err = intEnv("SESSION_CAPACITY", cfg.SessionCapacity); err != nil {
		return err
	}
	if cfg.BookCacheSize, err = intEnv("BOOK_CACHE_SIZE", cfg.BookCacheSize); err != nil {
		return err
	}
	if v := os.Getenv("DELIVERY_FEE"); v != "" {
		fee, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("config: DELIVERY_FEE: %w", err)
		}
		cfg.DeliveryFee = fee
	}
	if v := os.Getenv("STOREFRONT_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: STOREFRONT_TRUST_PROXY: %w", err)
		}
		cfg.TrustProxy = b
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func durationEnv(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", k, err)
	}
	return d, nil
}

func intEnv(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", k, err)
	}
	return n, nil
}
