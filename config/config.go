package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/serverpool/internal/backend"
	"github.com/angeloszaimis/serverpool/internal/selector"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	AddSource bool   `mapstructure:"add_source"`
}

type SelectorConfig struct {
	Type string `mapstructure:"type"`
}

type BackendConfig struct {
	Address  string `mapstructure:"address"`
	Capacity int    `mapstructure:"capacity"`
}

type HealthCheckConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
	Timeout  string `mapstructure:"timeout"`
	Path     string `mapstructure:"path"`
}

type CircuitBreakerConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Threshold    int    `mapstructure:"threshold"`
	ResetTimeout string `mapstructure:"reset_timeout"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type AdminConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DiscoveryConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Endpoints   []string `mapstructure:"endpoints"`
	Prefix      string   `mapstructure:"prefix"`
	DialTimeout string   `mapstructure:"dial_timeout"`
}

type MetricsConfig struct {
	BufferSize int    `mapstructure:"buffer_size"`
	Namespace  string `mapstructure:"namespace"`
}

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Selector       SelectorConfig       `mapstructure:"selector"`
	Backends       []BackendConfig      `mapstructure:"backends"`
	HealthCheck    HealthCheckConfig    `mapstructure:"health_check"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Admin          AdminConfig          `mapstructure:"admin"`
	Discovery      DiscoveryConfig      `mapstructure:"discovery"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
}

// BackendSpecs returns the configured servers in file order.
func (c *Config) BackendSpecs() []backend.Spec {
	specs := make([]backend.Spec, 0, len(c.Backends))
	for _, b := range c.Backends {
		specs = append(specs, backend.Spec{Address: b.Address, Capacity: b.Capacity})
	}
	return specs
}

func (h HealthCheckConfig) ParsedInterval() time.Duration { return mustDuration(h.Interval) }
func (h HealthCheckConfig) ParsedTimeout() time.Duration  { return mustDuration(h.Timeout) }

func (cb CircuitBreakerConfig) ParsedResetTimeout() time.Duration {
	return mustDuration(cb.ResetTimeout)
}

func (d DiscoveryConfig) ParsedDialTimeout() time.Duration { return mustDuration(d.DialTimeout) }

// Loader reads the configuration through its own viper instance.
type Loader struct {
	v      *viper.Viper
	logger *slog.Logger
}

type LoaderOption func(*Loader)

// WithConfigFile reads exactly the given file instead of searching for config.yaml.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) {
		if path != "" {
			l.v.SetConfigFile(path)
		}
	}
}

// WithSearchPaths replaces the default ./config and . search directories.
func WithSearchPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.v = newViper(paths...)
	}
}

func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		v:      newViper("./config", "."),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads config.yaml from ./config or . with environment overrides.
func Load() (*Config, error) {
	return NewLoader().Load()
}

func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			l.logger.Error("Failed to read config file", slog.Any("err", err))
			return nil, err
		}
		l.logger.Warn("Config file not found, using defaults and environment variables")
	} else {
		l.logger.Info("Loaded config file", slog.String("file", l.v.ConfigFileUsed()))
	}

	return l.decode()
}

// Watch calls onChange with every valid configuration written to the loaded
// file. Invalid reloads are logged and skipped.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(event fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			l.logger.Error("Config reload rejected",
				slog.String("file", event.Name),
				slog.Any("err", err))
			return
		}

		l.logger.Info("Config reloaded",
			slog.String("file", event.Name),
			slog.Int("backends", len(cfg.Backends)))
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		l.logger.Error("Failed to unmarshal config", slog.Any("err", err))
		return nil, fmt.Errorf("config: parsing: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		l.logger.Error("Invalid configuration", slog.Any("err", err))
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

func newViper(paths ...string) *viper.Viper {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("selector.type", string(selector.KindRoundRobin))
	v.SetDefault("health_check.enabled", true)
	v.SetDefault("health_check.interval", "2s")
	v.SetDefault("health_check.timeout", "1s")
	v.SetDefault("health_check.path", "/health")
	v.SetDefault("circuit_breaker.enabled", true)
	v.SetDefault("circuit_breaker.threshold", 5)
	v.SetDefault("circuit_breaker.reset_timeout", "30s")
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rps", 100.0)
	v.SetDefault("rate_limit.burst", 200)
	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.address", ":9091")
	v.SetDefault("discovery.enabled", false)
	v.SetDefault("discovery.prefix", "/serverpool/servers/")
	v.SetDefault("discovery.dial_timeout", "5s")
	v.SetDefault("metrics.buffer_size", 1000)
	v.SetDefault("metrics.namespace", "serverpool")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		// Validate rejects unparsable durations before they reach here
		return 0
	}
	return d
}
