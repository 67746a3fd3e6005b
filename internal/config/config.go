// Package config loads service settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fieldroute/internal/opt"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Webhooks  WebhookConfig   `yaml:"webhooks"`
}

type ServerConfig struct {
	Port         string   `yaml:"port"`
	RateRPS      float64  `yaml:"rateRps"`
	RateBurst    int      `yaml:"rateBurst"`
	AllowOrigins []string `yaml:"allowOrigins"`
}

type DatabaseConfig struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type AuthConfig struct {
	Mode        string `yaml:"mode"` // dev | hmac | jwks
	HMACSecret  string `yaml:"hmacSecret"`
	JWKSURL     string `yaml:"jwksUrl"`
	TenantClaim string `yaml:"tenantClaim"`
	RoleClaim   string `yaml:"roleClaim"`
	TeamClaim   string `yaml:"teamClaim"`
}

type OptimizerConfig struct {
	Iterations    int     `yaml:"iterations"`
	InitialTemp   float64 `yaml:"initialTemp"`
	Cooling       float64 `yaml:"cooling"`
	TunnelDecay   float64 `yaml:"tunnelDecay"`
	AffinityNoise bool    `yaml:"affinityNoise"`
	SpeedKph      float64 `yaml:"speedKph"`
	Polish        bool    `yaml:"polish"`
	Seed          int64   `yaml:"seed"`
	TimeBudgetMs  int     `yaml:"timeBudgetMs"`
}

type WebhookConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	PollInterval time.Duration `yaml:"pollInterval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Default mirrors opt.DefaultOptions plus the service defaults.
func Default() Config {
	o := opt.DefaultOptions()
	return Config{
		Server:   ServerConfig{Port: "8080", RateRPS: 20, RateBurst: 40},
		Database: DatabaseConfig{Migrate: true},
		Auth:     AuthConfig{Mode: "dev", TenantClaim: "tenant", RoleClaim: "role", TeamClaim: "sub"},
		Optimizer: OptimizerConfig{
			Iterations:    o.Anneal.Iterations,
			InitialTemp:   o.Anneal.InitialTemp,
			Cooling:       o.Anneal.Cooling,
			TunnelDecay:   o.Anneal.TunnelDecay,
			AffinityNoise: o.AffinityNoise,
			SpeedKph:      o.SpeedKph,
		},
		Webhooks: WebhookConfig{MaxAttempts: 10, PollInterval: time.Second, Timeout: 5 * time.Second},
	}
}

// Load reads CONFIG_FILE when set, then applies environment overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile decodes a YAML file over cfg. ${VAR} and ${VAR:-default}
// references are expanded before decoding.
func LoadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal([]byte(expandEnv(string(raw))), cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		parts := envRef.FindStringSubmatch(m)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[3]
	})
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []string
	num := func(key string, set func(string) error) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: %v", key, v, err))
			}
		}
	}
	intVar := func(dst *int) func(string) error {
		return func(v string) error { n, err := strconv.Atoi(v); *dst = n; return err }
	}
	floatVar := func(dst *float64) func(string) error {
		return func(v string) error { f, err := strconv.ParseFloat(v, 64); *dst = f; return err }
	}
	boolVar := func(dst *bool) func(string) error {
		return func(v string) error { b, err := strconv.ParseBool(v); *dst = b; return err }
	}

	str("PORT", &c.Server.Port)
	num("RATE_RPS", floatVar(&c.Server.RateRPS))
	num("RATE_BURST", intVar(&c.Server.RateBurst))
	if v := os.Getenv("ALLOW_ORIGINS"); v != "" {
		c.Server.AllowOrigins = splitList(v)
	}
	str("DATABASE_URL", &c.Database.URL)
	if v := os.Getenv("DB_MIGRATE"); v != "" {
		c.Database.Migrate = v != "false"
	}
	str("REDIS_URL", &c.Redis.URL)
	str("AUTH_MODE", &c.Auth.Mode)
	c.Auth.Mode = strings.ToLower(c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("AUTH_JWKS_URL", &c.Auth.JWKSURL)
	str("AUTH_TENANT_CLAIM", &c.Auth.TenantClaim)
	str("AUTH_ROLE_CLAIM", &c.Auth.RoleClaim)
	str("AUTH_TEAM_CLAIM", &c.Auth.TeamClaim)
	num("WEBHOOK_MAX_ATTEMPTS", intVar(&c.Webhooks.MaxAttempts))

	num("OPT_ITERATIONS", intVar(&c.Optimizer.Iterations))
	num("OPT_INITIAL_TEMP", floatVar(&c.Optimizer.InitialTemp))
	num("OPT_COOLING", floatVar(&c.Optimizer.Cooling))
	num("OPT_TUNNEL_DECAY", floatVar(&c.Optimizer.TunnelDecay))
	num("OPT_AFFINITY_NOISE", boolVar(&c.Optimizer.AffinityNoise))
	num("OPT_SPEED_KPH", floatVar(&c.Optimizer.SpeedKph))
	num("OPT_POLISH", boolVar(&c.Optimizer.Polish))
	num("OPT_SEED", func(v string) error { n, err := strconv.ParseInt(v, 10, 64); c.Optimizer.Seed = n; return err })
	num("OPT_TIME_BUDGET_MS", intVar(&c.Optimizer.TimeBudgetMs))

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate rejects settings the optimizer cannot run with.
func (c Config) Validate() error {
	o := c.Optimizer
	switch {
	case o.Iterations < 0:
		return fmt.Errorf("optimizer.iterations must be >= 0")
	case o.Cooling <= 0 || o.Cooling >= 1:
		return fmt.Errorf("optimizer.cooling must be in (0,1)")
	case o.InitialTemp <= 0:
		return fmt.Errorf("optimizer.initialTemp must be > 0")
	case o.TunnelDecay <= 0:
		return fmt.Errorf("optimizer.tunnelDecay must be > 0")
	case o.SpeedKph <= 0:
		return fmt.Errorf("optimizer.speedKph must be > 0")
	case o.TimeBudgetMs < 0:
		return fmt.Errorf("optimizer.timeBudgetMs must be >= 0")
	}
	switch c.Auth.Mode {
	case "dev", "jwks":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			return fmt.Errorf("auth.hmacSecret required for hmac mode")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}
	if c.Webhooks.MaxAttempts <= 0 {
		return fmt.Errorf("webhooks.maxAttempts must be > 0")
	}
	return nil
}

// EngineOptions converts the optimizer section into engine options.
func (c Config) EngineOptions() opt.Options {
	o := c.Optimizer
	return opt.Options{
		Anneal: opt.AnnealConfig{
			Iterations:    o.Iterations,
			InitialTemp:   o.InitialTemp,
			Cooling:       o.Cooling,
			TunnelDecay:   o.TunnelDecay,
			SnapshotEvery: opt.DefaultAnnealConfig().SnapshotEvery,
			Polish:        o.Polish,
		},
		AffinityNoise: o.AffinityNoise,
		SpeedKph:      o.SpeedKph,
		TimeBudget:    time.Duration(o.TimeBudgetMs) * time.Millisecond,
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
