// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/holding-console/holding/internal/xdg"
)

// EnvPrefix prefixes structured environment overrides.
// HOLDING_HTTP__ADDR sets http.addr; a double underscore separates levels.
const EnvPrefix = "HOLDING_"

// Legacy environment variables understood by earlier console deployments.
const (
	EnvAPIPort     = "HOLDING_API_PORT"
	EnvPort        = "PORT"
	EnvDBPath      = "HOLDING_DB_PATH"
	EnvDatabaseURL = "DATABASE_URL"
)

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"addr":          "http.addr",
	"metrics-addr":  "metrics.addr",
	"log-format":    "log.format",
	"log-level":     "log.level",
	"log-file":      "log.file",
	"store":         "store.driver",
	"db-path":       "store.sqlite_path",
	"database-url":  "store.postgres_url",
	"hash-scheme":   "auth.hash_scheme",
	"max-body-size": "http.max_body_bytes",
}

// Options controls where Load reads from.
type Options struct {
	// Path is an explicit config file. It must exist when set.
	// When empty the XDG default is used if present.
	Path string
	// Flags are applied last. Only flags listed in flagKeys are read.
	Flags *pflag.FlagSet
}

// Loaded is a validated configuration plus the file it came from.
type Loaded struct {
	Config
	// Source is the config file that was read, or "" for none.
	Source string
}

// Load layers every configuration source and validates the result.
func Load(opts Options) (*Loaded, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, err
	}

	source, err := configPath(opts.Path)
	if err != nil {
		return nil, err
	}
	if source != "" {
		if err := loadFile(k, source); err != nil {
			return nil, err
		}
	}

	if err := k.Load(confmap.Provider(legacyEnv(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "legacy env").Wrap(err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		flags := opts.Flags
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, oops.With("source", source).Wrap(err)
	}
	return &Loaded{Config: cfg, Source: source}, nil
}

// loadDefaults seeds koanf from Defaults so flag defaults never shadow them.
func loadDefaults(k *koanf.Koanf) error {
	raw, err := yaml.Marshal(Defaults())
	if err != nil {
		return oops.Code("CONFIG_DEFAULTS_FAILED").Wrap(err)
	}
	defaults, err := kyaml.Parser().Unmarshal(raw)
	if err != nil {
		return oops.Code("CONFIG_DEFAULTS_FAILED").Wrap(err)
	}
	if err := k.Load(confmap.Provider(defaults, ""), nil); err != nil {
		return oops.Code("CONFIG_DEFAULTS_FAILED").Wrap(err)
	}
	return nil
}

func configPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", oops.Code("CONFIG_NOT_FOUND").With("path", explicit).Wrap(err)
		}
		return explicit, nil
	}

	path, err := xdg.ConfigFile()
	if err != nil {
		// No HOME: nothing to discover.
		return "", nil //nolint:nilerr // default file is optional
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}
	return path, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}
	if err := ValidateYAML(data); err != nil {
		return oops.Code("CONFIG_SCHEMA_INVALID").With("path", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// legacyEnv translates the variables older deployments set.
func legacyEnv() map[string]any {
	out := map[string]any{}
	if port := firstEnv(EnvAPIPort, EnvPort); port != "" {
		out["http.addr"] = ":" + port
	}
	if path := os.Getenv(EnvDBPath); path != "" {
		out["store.sqlite_path"] = path
	}
	if dsn := os.Getenv(EnvDatabaseURL); dsn != "" {
		out["store.postgres_url"] = dsn
	}
	return out
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// envValue maps HOLDING_STORE__SQLITE_PATH to store.sqlite_path.
// Legacy names sharing the prefix are handled by legacyEnv and skipped here.
// List-valued keys are split on commas.
func envValue(name, value string) (string, any) {
	switch name {
	case EnvAPIPort, EnvDBPath:
		return "", nil
	}
	key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "__", ".")
	if _, ok := listKeys[key]; ok {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return key, parts
	}
	return key, value
}

var listKeys = map[string]struct{}{
	"http.cors.allowed_origins": {},
}
