package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/anonymouswhite07/bulkwala-backend/internal/security"
)

type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type AppConfig struct {
	ServiceName string     `mapstructure:"service_name"`
	Env         string     `mapstructure:"env"`
	LogLevel    string     `mapstructure:"log_level"`
	MetricsPath string     `mapstructure:"metrics_path"`
	HTTP        HTTPConfig `mapstructure:"http"`
}

// Argon2Params aliases the security package's type so handler wiring
// can pass the configured parameters straight to HashPassword.
type Argon2Params = security.Argon2Params

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type RateLimitConfig struct {
	LoginLimit int
	Window     time.Duration
}

// CookieConfig is the explicit transport policy for the two token
// cookies. CrossSite selects the secure+SameSite=None posture required
// when the frontend is served from a different origin; Domain is left
// empty for host-only cookies unless subdomain sharing is needed.
type CookieConfig struct {
	CrossSite bool
	Domain    string
	Path      string
	MaxAge    time.Duration
}

type KafkaConfig struct {
	Brokers            []string
	EventsTopic        string
	NotificationsTopic string
	DLQTopic           string
}

type Config struct {
	App              AppConfig
	AccessSecret     string
	JWTIssuer        string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	RecoveryTokenTTL time.Duration
	VerificationTTL  time.Duration
	ResetTokenTTL    time.Duration
	OTPTTL           time.Duration
	Argon2           Argon2Params
	Cookie           CookieConfig
	DB               DBConfig
	Redis            RedisConfig
	RateLimit        RateLimitConfig
	Kafka            KafkaConfig
}

func Load() (*Config, error) {
	appCfg, err := loadApp(os.Getenv("BW_CONFIG"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App:              *appCfg,
		AccessSecret:     envString("BW_ACCESS_TOKEN_SECRET", ""),
		JWTIssuer:        envString("BW_JWT_ISSUER", "bulkwala-auth"),
		AccessTokenTTL:   envDuration("BW_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:  envDuration("BW_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		RecoveryTokenTTL: envDuration("BW_RECOVERY_TOKEN_TTL", 5*time.Minute),
		VerificationTTL:  envDuration("BW_VERIFICATION_TTL", 10*time.Minute),
		ResetTokenTTL:    envDuration("BW_RESET_TOKEN_TTL", 15*time.Minute),
		OTPTTL:           envDuration("BW_OTP_TTL", 10*time.Minute),
		Argon2: Argon2Params{
			Memory:      uint32(envInt("BW_ARGON2_MEMORY", 64*1024)),
			Iterations:  uint32(envInt("BW_ARGON2_ITERATIONS", 3)),
			Parallelism: uint8(envInt("BW_ARGON2_PARALLELISM", 2)),
			SaltLength:  uint32(envInt("BW_ARGON2_SALT_LENGTH", 16)),
			KeyLength:   uint32(envInt("BW_ARGON2_KEY_LENGTH", 32)),
		},
		Cookie: CookieConfig{
			CrossSite: envBool("BW_COOKIE_CROSS_SITE", appCfg.Env == "prod"),
			Domain:    envString("BW_COOKIE_DOMAIN", ""),
			Path:      envString("BW_COOKIE_PATH", "/"),
			MaxAge:    envDuration("BW_COOKIE_MAX_AGE", 7*24*time.Hour),
		},
		DB: DBConfig{
			Host:     envString("POSTGRES_HOST", "localhost"),
			Port:     envInt("POSTGRES_PORT", 5432),
			Name:     envString("POSTGRES_DB", "bulkwala"),
			User:     envString("POSTGRES_USER", "bulkwala"),
			Password: envString("POSTGRES_PASSWORD", "bulkwala"),
			SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     envString("BW_REDIS_ADDR", ""),
			Password: envString("BW_REDIS_PASSWORD", ""),
			DB:       envInt("BW_REDIS_DB", 0),
			Prefix:   envString("BW_REDIS_PREFIX", "bw:auth:"),
		},
		RateLimit: RateLimitConfig{
			LoginLimit: envInt("BW_LOGIN_RATE_LIMIT", 10),
			Window:     envDuration("BW_LOGIN_RATE_WINDOW", 1*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:            envStrings("BW_KAFKA_BROKERS", nil),
			EventsTopic:        envString("BW_KAFKA_EVENTS_TOPIC", "auth.events"),
			NotificationsTopic: envString("BW_KAFKA_NOTIFICATIONS_TOPIC", "auth.notifications"),
			DLQTopic:           envString("BW_KAFKA_DLQ_TOPIC", "auth.dlq"),
		},
	}

	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("BW_ACCESS_TOKEN_SECRET must be set")
	}

	return cfg, nil
}

func loadApp(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("BW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path == "" {
		path = "config.yaml"
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "auth-service")
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_path", "/metrics")
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "5s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.idle_timeout", "60s")
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envStrings(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
