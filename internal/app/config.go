package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (BTP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (BTP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisAddr    string `default:"localhost:6379" usage:"Redis address for the login guard" flag:"redis-addr"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (BTP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Momo         MomoConfig
	VnPay        VnPayConfig `env:"VNPAY" flag:"vnpay"`
	LoginGuard   LoginGuardConfig
	Sweeper      SweeperConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// MomoConfig holds the MoMo wallet merchant credentials.
type MomoConfig struct {
	PartnerCode string `usage:"MoMo partner code"`
	AccessKey   string `usage:"MoMo access key"`
	SecretKey   string `usage:"MoMo HMAC secret"`
	Endpoint    string `default:"https://test-payment.momo.vn/v2/gateway/api/create" usage:"MoMo create-payment endpoint"`
}

// VnPayConfig holds the VNPay merchant credentials.
type VnPayConfig struct {
	TmnCode    string `usage:"VNPay terminal code"`
	HashSecret string `usage:"VNPay HMAC secret"`
	PayURL     string `default:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html" usage:"VNPay redirect base URL"`
	ReturnURL  string `usage:"Default VNPay return URL"`
}

// LoginGuardConfig tunes the authentication failure throttle.
type LoginGuardConfig struct {
	MaxFailures int64         `default:"5"   usage:"Failed attempts before blocking"`
	Window      time.Duration `default:"15m" usage:"Failure counting window"`
	BlockFor    time.Duration `default:"15m" usage:"Block duration once threshold is reached"`
}

// SweeperConfig controls the periodic discount code expiry sweep.
type SweeperConfig struct {
	Interval time.Duration `default:"1h" usage:"Discount expiry sweep interval"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BTP",
		Files:     []string{"config.yaml", "/etc/booktrade/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set BTP_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's BTP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.RedisAddr == "localhost:6379" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.RedisAddr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
