package config

import (
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/angeloszaimis/serverpool/internal/backend"
	"github.com/angeloszaimis/serverpool/internal/httpserver"
	"github.com/angeloszaimis/serverpool/internal/selector"
)

var metricNamespace = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func init() {
	// name fields in errors after their keys in config.yaml
	validation.ErrorTag = "mapstructure"
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Server),
		validation.Field(&c.Logging),
		validation.Field(&c.Selector),
		validation.Field(&c.Backends,
			validation.Length(0, selector.MaxServers),
			validation.By(uniqueAddresses),
		),
		validation.Field(&c.HealthCheck),
		validation.Field(&c.CircuitBreaker),
		validation.Field(&c.RateLimit),
		validation.Field(&c.Admin),
		validation.Field(&c.Discovery),
		validation.Field(&c.Metrics),
	)
}

func (sc ServerConfig) Validate() error {
	return validation.ValidateStruct(&sc,
		validation.Field(&sc.Environment,
			validation.Required,
			validation.In(EnvDev, EnvStaging, EnvProd),
		),
		validation.Field(&sc.Address, validation.Required, validation.By(listenAddress)),
	)
}

func (lc LoggingConfig) Validate() error {
	return validation.ValidateStruct(&lc,
		validation.Field(&lc.Level,
			validation.Required,
			validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
		),
	)
}

func (sc SelectorConfig) Validate() error {
	return validation.ValidateStruct(&sc,
		validation.Field(&sc.Type,
			validation.Required,
			validation.In(
				string(selector.KindRoundRobin),
				string(selector.KindLeastConn),
				string(selector.KindWeightedRoundRobin),
			),
		),
	)
}

func (b BackendConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Address, validation.Required, validation.By(serverAddress)),
		validation.Field(&b.Capacity, validation.Min(0)),
	)
}

func (hc HealthCheckConfig) Validate() error {
	return validation.ValidateStruct(&hc,
		validation.Field(&hc.Interval, validation.Required, validation.By(positiveDuration)),
		validation.Field(&hc.Timeout, validation.Required, validation.By(positiveDuration)),
		validation.Field(&hc.Path,
			validation.Required,
			validation.By(func(value interface{}) error {
				if !strings.HasPrefix(value.(string), "/") {
					return validation.NewError("validation_invalid_path", "must start with /")
				}
				return nil
			}),
		),
	)
}

func (cb CircuitBreakerConfig) Validate() error {
	return validation.ValidateStruct(&cb,
		validation.Field(&cb.Threshold, validation.When(cb.Enabled, validation.Required, validation.Min(1))),
		validation.Field(&cb.ResetTimeout, validation.When(cb.Enabled, validation.Required, validation.By(positiveDuration))),
	)
}

func (rl RateLimitConfig) Validate() error {
	return validation.ValidateStruct(&rl,
		validation.Field(&rl.RPS, validation.When(rl.Enabled, validation.Required, validation.Min(0.0).Exclusive())),
		validation.Field(&rl.Burst, validation.When(rl.Enabled, validation.Required, validation.Min(1))),
	)
}

func (ac AdminConfig) Validate() error {
	return validation.ValidateStruct(&ac,
		validation.Field(&ac.Address, validation.When(ac.Enabled, validation.Required, validation.By(listenAddress))),
		validation.Field(&ac.JWTSecret, validation.Length(16, 0)),
	)
}

func (dc DiscoveryConfig) Validate() error {
	return validation.ValidateStruct(&dc,
		validation.Field(&dc.Endpoints, validation.When(dc.Enabled,
			validation.Required,
			validation.Each(validation.Required, is.RequestURL.Error("must be a URL such as http://127.0.0.1:2379")),
		)),
		validation.Field(&dc.Prefix, validation.When(dc.Enabled, validation.Required)),
		validation.Field(&dc.DialTimeout, validation.When(dc.Enabled, validation.Required, validation.By(positiveDuration))),
	)
}

func (mc MetricsConfig) Validate() error {
	return validation.ValidateStruct(&mc,
		validation.Field(&mc.BufferSize, validation.Required, validation.Min(1)),
		validation.Field(&mc.Namespace, validation.Required, validation.Match(metricNamespace)),
	)
}

func listenAddress(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	return httpserver.ValidateAddress(addr)
}

func serverAddress(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	u, err := backend.ParseAddress(addr)
	if err != nil {
		return validation.NewError("validation_invalid_address", "must be host:port or an http(s) URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "must use http or https")
	}
	if u.Host == "" {
		return validation.NewError("validation_missing_host", "must have a host")
	}
	return nil
}

func uniqueAddresses(value interface{}) error {
	backends, ok := value.([]BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a list of backends")
	}

	seen := make(map[string]bool, len(backends))
	for _, b := range backends {
		if seen[b.Address] {
			return validation.NewError("validation_duplicate_address", "addresses must be unique: "+b.Address)
		}
		seen[b.Address] = true
	}
	return nil
}

func positiveDuration(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}
	if d <= 0 {
		return validation.NewError("validation_non_positive_duration", "must be greater than zero")
	}
	return nil
}
