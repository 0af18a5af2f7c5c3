package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret            string        `mapstructure:"JWT_SECRET"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	PresenceBackend      string        `mapstructure:"PRESENCE_BACKEND"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	PresenceTTL          time.Duration `mapstructure:"PRESENCE_TTL"`
	PresenceOfflineGrace time.Duration `mapstructure:"PRESENCE_OFFLINE_GRACE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("PRESENCE_BACKEND", "postgres")
	v.SetDefault("PRESENCE_TTL", "2m")
	v.SetDefault("PRESENCE_OFFLINE_GRACE", "10s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("PRESENCE_BACKEND")
	v.BindEnv("REDIS_URL")
	v.BindEnv("PRESENCE_TTL")
	v.BindEnv("PRESENCE_OFFLINE_GRACE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: JWT_SECRET is unset; using an insecure built-in dev secret.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development a
// real JWT_SECRET must be configured, since the same secret gates both the
// HTTP API and the WebSocket handshake.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf(
			"JWT_SECRET must be set when ENV is %q. "+
				"Refusing to start without authentication configuration", c.Env)
	}

	switch c.PresenceBackend {
	case "postgres":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when PRESENCE_BACKEND is \"redis\"")
		}
	default:
		return fmt.Errorf("PRESENCE_BACKEND must be \"postgres\" or \"redis\", got %q", c.PresenceBackend)
	}

	if c.PresenceOfflineGrace < 0 {
		return fmt.Errorf("PRESENCE_OFFLINE_GRACE must not be negative")
	}

	return nil
}
