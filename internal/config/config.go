package config

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	SourceDomain          string   `mapstructure:"source_domain"`
	MirrorTemplates       []string `mapstructure:"mirror_templates"` // each with one %s for the subtitle id
	ProxyConnectionString string   `mapstructure:"proxy_connection_string"`
	ClientTimeout         string   `mapstructure:"client_timeout"` // Go duration string like "30s"
	UserAgents            []string `mapstructure:"user_agents"`
	LogLevel              string   `mapstructure:"log_level"`
	SentryDSN             string   `mapstructure:"sentry_dsn"`
	Server                struct {
		Port    int    `mapstructure:"port"`
		Address string `mapstructure:"address"`
	} `mapstructure:"server"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Cache struct {
		Size        int    `mapstructure:"size"`         // max entries per namespace
		SearchTTL   string `mapstructure:"search_ttl"`   // Go duration string
		DownloadTTL string `mapstructure:"download_ttl"` // Go duration string
	} `mapstructure:"cache"`
	Fetch struct {
		SearchAttempts int `mapstructure:"search_attempts"`
		JitterMinMs    int `mapstructure:"jitter_min_ms"`
		JitterMaxMs    int `mapstructure:"jitter_max_ms"`
	} `mapstructure:"fetch"`
	RateLimit struct {
		PerMinute int `mapstructure:"per_minute"` // sustained per-client request rate
		Burst     int `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`
	Keepalive struct {
		URL      string `mapstructure:"url"`
		Interval string `mapstructure:"interval"` // Go duration string
	} `mapstructure:"keepalive"`
}

// SearchTTL returns the parsed search-cache TTL, falling back to 5 minutes.
func (c *Config) SearchTTL() time.Duration {
	return parseDuration(c.Cache.SearchTTL, 5*time.Minute)
}

// DownloadTTL returns the parsed download-cache TTL, falling back to 6 hours.
// Binary payloads are more expensive to refetch than result pages, so the
// default is deliberately much longer than the search TTL.
func (c *Config) DownloadTTL() time.Duration {
	return parseDuration(c.Cache.DownloadTTL, 6*time.Hour)
}

// KeepaliveInterval returns the parsed self-ping interval, falling back to
// 10 minutes.
func (c *Config) KeepaliveInterval() time.Duration {
	return parseDuration(c.Keepalive.Interval, 10*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		logger.Warn().Str("duration", s).Err(err).Msg("Invalid duration in config, using default")
		return fallback
	}
	return d
}

var (
	globalConfig *Config
	logger       zerolog.Logger
)

func init() {
	logger = zerolog.New(zerolog.ConsoleWriter{
		Out:     os.Stdout,
		NoColor: false,
	}).With().Timestamp().Logger()

	config, err := LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}

	level := zerolog.InfoLevel
	if config.LogLevel != "" {
		if parsedLevel, err := zerolog.ParseLevel(config.LogLevel); err == nil {
			level = parsedLevel
		} else {
			logger.Warn().Str("invalid_level", config.LogLevel).Msg("Invalid log level, using default 'info'")
		}
	}

	zerolog.SetGlobalLevel(level)
	logger = logger.Level(level)

	globalConfig = config
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variable support
	viper.AutomaticEnv()
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = viper.BindEnv("log_level", "LOG_LEVEL")

	viper.SetDefault("source_domain", "https://www.opensubtitles.org")
	viper.SetDefault("mirror_templates", []string{
		"https://www.opensubtitles.org/en/subtitleserve/sub/%s",
		"https://dl.opensubtitles.org/en/download/sub/%s",
	})
	viper.SetDefault("client_timeout", "30s")
	viper.SetDefault("server.address", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("cache.size", 256)
	viper.SetDefault("cache.search_ttl", "5m")
	viper.SetDefault("cache.download_ttl", "6h")
	viper.SetDefault("fetch.search_attempts", 2)
	viper.SetDefault("fetch.jitter_min_ms", 300)
	viper.SetDefault("fetch.jitter_max_ms", 1500)
	viper.SetDefault("rate_limit.per_minute", 30)
	viper.SetDefault("rate_limit.burst", 10)
	viper.SetDefault("keepalive.interval", "10m")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func GetConfig() *Config {
	return globalConfig
}

func GetLogger() zerolog.Logger {
	return logger
}
