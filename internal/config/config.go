package config

import (
	"log"
	"strings"

	"github.com/GoPolymarket/reqlog/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	RequestLog RequestLogConfig `mapstructure:"request_log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required"`
	// Upstream application that unmatched routes are proxied to. Empty disables proxying.
	Upstream       string   `mapstructure:"upstream" validate:"omitempty,url"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

type AuthConfig struct {
	AdminKey       string  `mapstructure:"admin_key"`
	AdminRateQPS   float64 `mapstructure:"admin_rate_qps" validate:"gte=0"`
	AdminRateBurst int     `mapstructure:"admin_rate_burst" validate:"gte=0"`
}

type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
	RetentionDays          int    `mapstructure:"retention_days" validate:"gte=0"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes" validate:"gte=0"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	FeedKey  string `mapstructure:"feed_key"`
	FeedMax  int    `mapstructure:"feed_max" validate:"gte=0"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RequestLogConfig controls which requests get recorded and what is kept.
type RequestLogConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	ValidMethodNames []string `mapstructure:"valid_method_names" validate:"dive,http_method"`
	IgnorePaths      []string `mapstructure:"ignore_paths"` // glob, matched without the leading "/"
	IgnoreAjax       bool     `mapstructure:"ignore_ajax"`
	IgnoreIP         []string `mapstructure:"ignore_ip"`          // addresses or CIDR blocks
	IgnoreUserAgents []string `mapstructure:"ignore_user_agents"` // glob
	IgnoreUsername   []string `mapstructure:"ignore_username"`
	OnlyErrors       bool     `mapstructure:"only_errors"`
	MaxPathLength    int      `mapstructure:"max_path_length" validate:"gt=0,lte=255"`
	LogIP            bool     `mapstructure:"log_ip"`
	IPDummy          string   `mapstructure:"ip_dummy" validate:"omitempty,ip"`
	AnonymousIP      bool     `mapstructure:"anonymous_ip"`
	LogUser          bool     `mapstructure:"log_user"`
	RedactKeys       []string `mapstructure:"redact_keys"` // JSON body keys masked before storage
	// Header carrying the authenticated username set by a trusted auth proxy.
	UsernameHeader string `mapstructure:"username_header"`
}

// DefaultRequestLog mirrors the viper defaults for callers that build configs in code.
func DefaultRequestLog() RequestLogConfig {
	return RequestLogConfig{
		Enabled:          true,
		ValidMethodNames: []string{"get", "post", "put", "delete", "head", "options", "trace"},
		MaxPathLength:    255,
		LogIP:            true,
		IPDummy:          "1.1.1.1",
		LogUser:          true,
		RedactKeys:       []string{"password", "token", "secret", "api_key", "private_key"},
	}
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. REQLOG_REQUEST_LOG_ONLY_ERRORS
	viper.SetEnvPrefix("reqlog")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	defaults := DefaultRequestLog()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.upstream", "")
	viper.SetDefault("server.trusted_proxies", []string{})
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("auth.admin_key", "")
	viper.SetDefault("auth.admin_rate_qps", 5.0)
	viper.SetDefault("auth.admin_rate_burst", 10)
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 50)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.auto_migrate", true)
	viper.SetDefault("database.retention_days", 30)
	viper.SetDefault("database.cleanup_interval_minutes", 60)
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.feed_key", "reqlog:recent")
	viper.SetDefault("redis.feed_max", 10000)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("request_log.enabled", defaults.Enabled)
	viper.SetDefault("request_log.valid_method_names", defaults.ValidMethodNames)
	viper.SetDefault("request_log.ignore_paths", []string{"admin/*", "metrics", "health"})
	viper.SetDefault("request_log.ignore_ajax", false)
	viper.SetDefault("request_log.ignore_ip", []string{})
	viper.SetDefault("request_log.ignore_user_agents", []string{})
	viper.SetDefault("request_log.ignore_username", []string{})
	viper.SetDefault("request_log.only_errors", false)
	viper.SetDefault("request_log.max_path_length", defaults.MaxPathLength)
	viper.SetDefault("request_log.log_ip", defaults.LogIP)
	viper.SetDefault("request_log.ip_dummy", defaults.IPDummy)
	viper.SetDefault("request_log.anonymous_ip", false)
	viper.SetDefault("request_log.log_user", defaults.LogUser)
	viper.SetDefault("request_log.username_header", "")
	viper.SetDefault("request_log.redact_keys", defaults.RedactKeys)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints on a loaded config.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.RegisterValidation("http_method", func(fl validator.FieldLevel) bool {
		return model.IsKnownMethod(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.Struct(cfg)
}
