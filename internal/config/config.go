package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Sheets    SheetsConfig    `mapstructure:"sheets"`
	MySQL     DatabaseConfig  `mapstructure:"mysql"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Session   SessionConfig   `mapstructure:"session"`
	Data      DataConfig      `mapstructure:"data"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StoreConfig struct {
	Driver  string        `mapstructure:"driver"` // sheets|mysql|memory
	Timeout time.Duration `mapstructure:"timeout"`
}

type SheetsConfig struct {
	ClientEmail      string `mapstructure:"client_email"`
	PrivateKey       string `mapstructure:"private_key"`
	Endpoint         string `mapstructure:"endpoint"` // override for emulators
	ValueInputOption string `mapstructure:"value_input_option"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type MemoryConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

type AuthConfig struct {
	UserDataset string `mapstructure:"user_dataset"`
	UsersTab    string `mapstructure:"users_tab"`
}

type BreakerConfig struct {
	FailThreshold int           `mapstructure:"fail_threshold"`
	OpenFor       time.Duration `mapstructure:"open_for"`
}

type RateLimitConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	Token       string        `mapstructure:"token"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Limit       int           `mapstructure:"limit"`
	Window      time.Duration `mapstructure:"window"`
	Prefix      string        `mapstructure:"prefix"`
	PathPrefix  string        `mapstructure:"path_prefix"`
	Breaker     BreakerConfig `mapstructure:"breaker"`
}

// Enabled reports whether a counting backend is configured.
func (c RateLimitConfig) Enabled() bool { return strings.TrimSpace(c.RedisURL) != "" }

type SessionConfig struct {
	Secret       string `mapstructure:"secret"`
	MaxAge       int    `mapstructure:"max_age"` // seconds
	CookieName   string `mapstructure:"cookie_name"`
	SecureCookie bool   `mapstructure:"secure_cookie"`
}

// TTL returns the session lifetime.
func (c SessionConfig) TTL() time.Duration { return time.Duration(c.MaxAge) * time.Second }

type DataConfig struct {
	DefaultTab string   `mapstructure:"default_tab"`
	Tabs       []string `mapstructure:"tabs"`
}

// envAliases binds the deployment variable names that predate the CLINIC_ prefix.
var envAliases = map[string][]string{
	"sheets.client_email":  {"GOOGLE_SHEETS_CLIENT_EMAIL"},
	"sheets.private_key":   {"GOOGLE_SHEETS_PRIVATE_KEY"},
	"auth.user_dataset":    {"GOOGLE_SHEET_USER_ID"},
	"session.secret":       {"NEXTAUTH_SECRET"},
	"session.max_age":      {"NEXTAUTH_JWT_MAXAGE"},
	"rate_limit.redis_url": {"RATE_LIMIT_REDIS_URL"},
	"rate_limit.token":     {"RATE_LIMIT_REDIS_TOKEN"},
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (CLINIC_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return Config{}, fmt.Errorf("merge %s: %w", path, err)
			}
		}
	}

	// env override (CLINIC_*)
	v.SetEnvPrefix("CLINIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		args := append([]string{key, "CLINIC_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	// keys pasted from a service-account JSON keep their escaped newlines
	c.Sheets.PrivateKey = strings.ReplaceAll(c.Sheets.PrivateKey, `\n`, "\n")
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Auth.UsersTab == "" {
		c.Auth.UsersTab = "Users"
	}
	if c.Data.DefaultTab == "" && len(c.Data.Tabs) > 0 {
		c.Data.DefaultTab = c.Data.Tabs[0]
	}
}

// Validate checks the settings `serve` cannot run without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Session.Secret) == "" {
		return errors.New("session.secret is required")
	}
	if c.Session.MaxAge <= 0 {
		return fmt.Errorf("session.max_age must be positive, got %d", c.Session.MaxAge)
	}
	if strings.TrimSpace(c.Auth.UserDataset) == "" {
		return errors.New("auth.user_dataset is required")
	}
	switch c.Store.Driver {
	case "sheets":
		if c.Sheets.ClientEmail == "" || c.Sheets.PrivateKey == "" {
			return errors.New("sheets.client_email and sheets.private_key are required for the sheets driver")
		}
	case "mysql":
		if c.MySQL.DSN == "" {
			return errors.New("mysql.dsn is required for the mysql driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.RateLimit.Enabled() && (c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0) {
		return errors.New("rate_limit.limit and rate_limit.window must be positive")
	}
	return nil
}

func isMissingFile(err error) bool { return errors.Is(err, fs.ErrNotExist) }
