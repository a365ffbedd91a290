// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads Gatehouse configuration from defaults, a YAML file,
// the environment, and command-line flags, in that order of precedence.
package config

import (
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// EnvPrefix namespaces environment overrides: GATEHOUSE_AUTH_JWT_SECRET
// sets auth.jwt_secret.
const EnvPrefix = "GATEHOUSE_"

// FlagAnnotation marks a pflag with the config key it overrides.
const FlagAnnotation = "gatehouse_config_key"

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Store    string         `koanf:"store"`
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Log      LogConfig      `koanf:"log"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr              string        `koanf:"addr"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures the PostgreSQL store.
type DatabaseConfig struct {
	URL            string        `koanf:"url"`
	MaxConns       int32         `koanf:"max_conns"`
	ConnectRetries uint64        `koanf:"connect_retries"`
	RetryBase      time.Duration `koanf:"retry_base"`
	AutoMigrate    bool          `koanf:"auto_migrate"`
}

// AuthConfig configures hashing, tokens, and sessions.
type AuthConfig struct {
	JWTSecret        string        `koanf:"jwt_secret"`
	JWTIssuer        string        `koanf:"jwt_issuer"`
	TokenTTL         time.Duration `koanf:"token_ttl"`
	SessionTTL       time.Duration `koanf:"session_ttl"`
	Hasher           string        `koanf:"hasher"`
	BcryptCost       int           `koanf:"bcrypt_cost"`
	UserExistsStatus int           `koanf:"user_exists_status"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Defaults returns the built-in configuration.
func Defaults() map[string]any {
	return map[string]any{
		"store":                    StorePostgres,
		"http.addr":                ":3000",
		"http.request_timeout":     "30s",
		"http.read_header_timeout": "10s",
		"http.shutdown_timeout":    "15s",
		"http.cors_origins":        []string{},
		"metrics.addr":             "127.0.0.1:9100",
		"database.max_conns":       10,
		"database.connect_retries": 5,
		"database.retry_base":      "250ms",
		"database.auto_migrate":    false,
		"auth.jwt_issuer":          auth.DefaultTokenIssuer,
		"auth.token_ttl":           auth.DefaultTokenTTL.String(),
		"auth.session_ttl":         auth.DefaultSessionTTL.String(),
		"auth.hasher":              auth.HasherBcrypt,
		"auth.bcrypt_cost":         auth.DefaultBcryptCost,
		"auth.user_exists_status":  409,
		"log.level":                "info",
		"log.format":               "json",
	}
}

// fallbackEnv maps conventional unprefixed variables to config keys.
var fallbackEnv = map[string]string{
	"DATABASE_URL": "database.url",
	"JWT_SECRET":   "auth.jwt_secret",
	"PORT":         "http.addr",
}

// Load builds a Config. path may be empty to skip the file layer; flags may
// be nil. Only flags bound with BindFlag and explicitly set are applied.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "defaults").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("layer", "file").
				With("path", path).
				Wrap(err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", mapFallbackEnv), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "fallback env").Wrap(err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", mapPrefixedEnv), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey(flags)), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "flags").Wrap(err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	return cfg, nil
}

// BindFlag ties an already defined flag to a config key. Unbound flags are
// ignored by Load.
func BindFlag(flags *pflag.FlagSet, name, key string) error {
	if err := flags.SetAnnotation(name, FlagAnnotation, []string{key}); err != nil {
		return oops.Code("CONFIG_FLAG_BIND_FAILED").
			With("flag", name).
			With("key", key).
			Wrap(err)
	}
	return nil
}

func flagKey(flags *pflag.FlagSet) func(f *pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		keys := f.Annotations[FlagAnnotation]
		if len(keys) == 0 {
			return "", nil
		}
		return keys[0], posflag.FlagVal(flags, f)
	}
}

func mapFallbackEnv(key, value string) (string, any) {
	target, ok := fallbackEnv[key]
	if !ok || value == "" {
		return "", nil
	}
	if key == "PORT" && !strings.Contains(value, ":") {
		value = ":" + value
	}
	return target, value
}

// mapPrefixedEnv turns GATEHOUSE_SECTION_SOME_KEY into section.some_key.
// Only the first underscore after the prefix separates section from key.
func mapPrefixedEnv(key, value string) (string, any) {
	name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if name == "" {
		return "", nil
	}
	name = strings.Replace(name, "_", ".", 1)
	if name == "http.cors_origins" {
		return name, splitList(value)
	}
	return name, value
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if !slices.Contains([]string{StoreMemory, StorePostgres}, c.Store) {
		return invalid("store", c.Store, "store must be memory or postgres")
	}
	if c.Store == StorePostgres && c.Database.URL == "" {
		return invalid("database.url", "", "database url is required for the postgres store")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "", "http address is required")
	}
	if (c.HTTP.TLSCertFile == "") != (c.HTTP.TLSKeyFile == "") {
		return invalid("http.tls_cert_file", c.HTTP.TLSCertFile, "tls cert and key files must be set together")
	}
	if c.HTTP.RequestTimeout <= 0 {
		return invalid("http.request_timeout", c.HTTP.RequestTimeout.String(), "request timeout must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return invalid("auth.jwt_secret", "", "jwt secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return invalid("auth.token_ttl", c.Auth.TokenTTL.String(), "token ttl must be positive")
	}
	if c.Auth.SessionTTL <= 0 {
		return invalid("auth.session_ttl", c.Auth.SessionTTL.String(), "session ttl must be positive")
	}
	if !slices.Contains([]string{auth.HasherBcrypt, auth.HasherArgon2id}, c.Auth.Hasher) {
		return invalid("auth.hasher", c.Auth.Hasher, "hasher must be bcrypt or argon2id")
	}
	if c.Auth.Hasher == auth.HasherBcrypt && (c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost) {
		return invalid("auth.bcrypt_cost", c.Auth.BcryptCost, "bcrypt cost must be between 4 and 31")
	}
	if c.Auth.UserExistsStatus != 400 && c.Auth.UserExistsStatus != 409 {
		return invalid("auth.user_exists_status", c.Auth.UserExistsStatus, "user exists status must be 400 or 409")
	}
	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		return invalid("log.format", c.Log.Format, "log format must be json or text")
	}
	return nil
}

func invalid(key string, value any, msg string) error {
	return oops.Code("CONFIG_INVALID").
		With("key", key).
		With("value", value).
		Errorf("%s", msg)
}
