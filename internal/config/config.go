// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

// Package config loads and validates holding's runtime configuration.
//
// Sources are layered lowest to highest: built-in defaults, a YAML file,
// legacy environment variables, HOLDING_* environment variables, and
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"

	"github.com/holding-console/holding/internal/auth"
	"github.com/holding-console/holding/internal/observability"
	"github.com/holding-console/holding/internal/store"
)

// Config is the complete runtime configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http" json:"http" yaml:"http"`
	Store   StoreConfig   `koanf:"store" json:"store" yaml:"store"`
	Auth    AuthConfig    `koanf:"auth" json:"auth" yaml:"auth"`
	Log     LogConfig     `koanf:"log" json:"log" yaml:"log"`
	Metrics MetricsConfig `koanf:"metrics" json:"metrics" yaml:"metrics"`
}

// HTTPConfig configures the auth API listener.
type HTTPConfig struct {
	Addr              string        `koanf:"addr" json:"addr,omitempty" yaml:"addr" validate:"required,hostname_port" jsonschema:"description=listen address of the auth API"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes" json:"max_body_bytes,omitempty" yaml:"max_body_bytes" validate:"gt=0" jsonschema:"description=request body ceiling in bytes"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" json:"read_header_timeout,omitempty" yaml:"read_header_timeout" validate:"gt=0" jsonschema:"oneof_type=string;integer"`
	ReadTimeout       time.Duration `koanf:"read_timeout" json:"read_timeout,omitempty" yaml:"read_timeout" validate:"gt=0" jsonschema:"oneof_type=string;integer"`
	WriteTimeout      time.Duration `koanf:"write_timeout" json:"write_timeout,omitempty" yaml:"write_timeout" validate:"gt=0" jsonschema:"oneof_type=string;integer"`
	IdleTimeout       time.Duration `koanf:"idle_timeout" json:"idle_timeout,omitempty" yaml:"idle_timeout" validate:"gt=0" jsonschema:"oneof_type=string;integer"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout" validate:"gt=0" jsonschema:"oneof_type=string;integer"`
	CORS              CORSConfig    `koanf:"cors" json:"cors,omitempty" yaml:"cors"`
}

// CORSConfig lists the origins the API answers to.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins" json:"allowed_origins,omitempty" yaml:"allowed_origins" validate:"min=1,dive,required" jsonschema:"description=origin globs; * allows any origin"`
}

// StoreConfig selects and locates the credential store.
type StoreConfig struct {
	Driver         string        `koanf:"driver" json:"driver,omitempty" yaml:"driver" validate:"required,oneof=sqlite postgres" jsonschema:"enum=sqlite,enum=postgres"`
	SQLitePath     string        `koanf:"sqlite_path" json:"sqlite_path,omitempty" yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
	PostgresURL    string        `koanf:"postgres_url" json:"postgres_url,omitempty" yaml:"postgres_url" validate:"required_if=Driver postgres"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" json:"connect_timeout,omitempty" yaml:"connect_timeout" validate:"gt=0" jsonschema:"oneof_type=string;integer"`
}

// AuthConfig tunes the credential service.
type AuthConfig struct {
	HashScheme           string `koanf:"hash_scheme" json:"hash_scheme,omitempty" yaml:"hash_scheme" validate:"required,oneof=sha256 argon2id bcrypt" jsonschema:"enum=sha256,enum=argon2id,enum=bcrypt"`
	BcryptCost           int    `koanf:"bcrypt_cost" json:"bcrypt_cost,omitempty" yaml:"bcrypt_cost" validate:"omitempty,min=4,max=31"`
	MinPasswordLength    int    `koanf:"min_password_length" json:"min_password_length,omitempty" yaml:"min_password_length" validate:"gte=1"`
	AllowBootstrapLogin  bool   `koanf:"allow_bootstrap_login" json:"allow_bootstrap_login" yaml:"allow_bootstrap_login"`
	AllowLegacyPlaintext bool   `koanf:"allow_legacy_plaintext" json:"allow_legacy_plaintext" yaml:"allow_legacy_plaintext"`
	UpgradeOnLogin       bool   `koanf:"upgrade_on_login" json:"upgrade_on_login" yaml:"upgrade_on_login"`
	DefaultDisplayName   string `koanf:"default_display_name" json:"default_display_name,omitempty" yaml:"default_display_name"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format     string `koanf:"format" json:"format,omitempty" yaml:"format" validate:"oneof=json text" jsonschema:"enum=json,enum=text"`
	Level      string `koanf:"level" json:"level,omitempty" yaml:"level" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	File       string `koanf:"file" json:"file,omitempty" yaml:"file" jsonschema:"description=optional log file; rotated by size"`
	MaxSizeMB  int    `koanf:"max_size_mb" json:"max_size_mb,omitempty" yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `koanf:"max_backups" json:"max_backups,omitempty" yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `koanf:"max_age_days" json:"max_age_days,omitempty" yaml:"max_age_days" validate:"gte=0"`
}

// MetricsConfig configures the metrics and health listener.
type MetricsConfig struct {
	Addr             string        `koanf:"addr" json:"addr,omitempty" yaml:"addr" validate:"omitempty,hostname_port" jsonschema:"description=metrics/health listen address; empty disables"`
	ReadinessTimeout time.Duration `koanf:"readiness_timeout" json:"readiness_timeout,omitempty" yaml:"readiness_timeout" validate:"gt=0" jsonschema:"oneof_type=string;integer,description=bound on one readiness store ping"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:              ":4000",
			MaxBodyBytes:      50 * 1024,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			CORS:              CORSConfig{AllowedOrigins: []string{"*"}},
		},
		Store: StoreConfig{
			Driver:         store.DriverSQLite,
			SQLitePath:     "data/holding.db",
			ConnectTimeout: store.DefaultConnectTimeout,
		},
		Auth: AuthConfig{
			HashScheme:           auth.SchemeSHA256,
			MinPasswordLength:    auth.MinPasswordLength,
			AllowBootstrapLogin:  true,
			AllowLegacyPlaintext: true,
			DefaultDisplayName:   auth.DefaultDisplayName,
		},
		Log: LogConfig{
			Format:     "json",
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Metrics: MetricsConfig{
			ReadinessTimeout: observability.DefaultReadinessTimeout,
		},
	}
}

var validate = newValidator()

// newValidator reports fields by their koanf keys.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return oops.Code("CONFIG_INVALID").
		With("fields", len(verrs)).
		Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "hostname_port":
		return field + " must be host:port"
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// Redacted returns a copy safe to print: credentials in the postgres URL
// are masked.
func (c Config) Redacted() Config {
	out := c
	out.HTTP.CORS.AllowedOrigins = append([]string(nil), c.HTTP.CORS.AllowedOrigins...)
	if c.Store.PostgresURL != "" {
		if u, err := url.Parse(c.Store.PostgresURL); err == nil {
			out.Store.PostgresURL = u.Redacted()
		} else {
			out.Store.PostgresURL = "<redacted>"
		}
	}
	return out
}
