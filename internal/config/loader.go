package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/see1right/pkg/errkind"
)

// Environment variables that locate optional configuration files.
const (
	EnvPrefix     = "SEE1RIGHT_"
	EnvConfigFile = EnvPrefix + "CONFIG"
	EnvDotenvFile = EnvPrefix + "DOTENV"

	defaultDotenvFile = ".env"
)

// Unprefixed .env names written by earlier releases.
var legacyDotenvKeys = map[string]string{
	"SUBREDDITS": "channels",
}

// Load builds a Config by layering defaults, .env, an optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. .env file (SEE1RIGHT_DOTENV, default ./.env) if it exists
//  3. file (YAML) if SEE1RIGHT_CONFIG is set
//  4. env (prefix SEE1RIGHT_)
func Load(ctx context.Context) (*Config, error) {
	const op = "config.load"

	base := New(ctx)
	k := koanf.New(".")

	if err := loadDotenv(k); err != nil {
		return nil, errkind.Wrap(op, ErrLoadConfig, err)
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errkind.Wrap(op, ErrLoadConfig, err)
		}
	}

	// SEE1RIGHT_POST_LIMIT -> post_limit. Flat keys keep their underscores
	// to match the koanf tags on the struct.
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, errkind.Wrap(op, ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errkind.Wrap(op, ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errkind.Op(op, err)
	}
	return &cfg, nil
}

// loadDotenv reads the .env file into k without touching the process
// environment. A missing file is not an error.
func loadDotenv(k *koanf.Koanf) error {
	path := os.Getenv(EnvDotenvFile)
	if path == "" {
		path = defaultDotenvFile
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	for name, raw := range vals {
		key, val := envValue(name, raw)
		if key == "" {
			key, val = legacyValue(name, raw)
		}
		if key == "" {
			continue
		}
		if err := k.Set(key, val); err != nil {
			return err
		}
	}
	return nil
}

// envValue maps SEE1RIGHT_FOO_BAR=v to ("foo_bar", v). Names without the
// prefix map to "" and are skipped. Channels are comma separated.
func envValue(name, value string) (string, interface{}) {
	if !strings.HasPrefix(name, EnvPrefix) {
		return "", nil
	}
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return key, normalizeValue(key, value)
}

// legacyValue accepts the unprefixed names of older .env files, such as
// REDDIT_CLIENT_ID or SUBREDDITS, for keys the Config knows.
func legacyValue(name, value string) (string, interface{}) {
	key, ok := legacyDotenvKeys[name]
	if !ok {
		key = strings.ToLower(name)
		if !knownKeys()[key] {
			return "", nil
		}
	}
	return key, normalizeValue(key, value)
}

func normalizeValue(key, value string) interface{} {
	if key != "channels" {
		return value
	}
	return SplitList(value)
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	out := make([]string, 0, strings.Count(s, ",")+1)
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func knownKeys() map[string]bool {
	return map[string]bool{
		"db_path":              true,
		"api_base":             true,
		"reddit_client_id":     true,
		"reddit_client_secret": true,
		"reddit_user_agent":    true,
		"post_limit":           true,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	const op = "config.validate"
	switch {
	case c.Addr == "":
		return errkind.Wrap(op, ErrInvalidConfig, errors.New("addr must not be empty"))
	case c.StoreDriver != StoreSQLite && c.StoreDriver != StorePostgres:
		return errkind.Wrap(op, ErrInvalidConfig, fmt.Errorf("unknown store_driver %q", c.StoreDriver))
	case c.StoreDriver == StorePostgres && c.DatabaseURL == "":
		return errkind.Wrap(op, ErrInvalidConfig, errors.New("database_url is required for postgres"))
	case c.StoreDriver == StoreSQLite && c.DBPath == "":
		return errkind.Wrap(op, ErrInvalidConfig, errors.New("db_path must not be empty"))
	case c.PostLimit < 1:
		return errkind.Wrap(op, ErrInvalidConfig, fmt.Errorf("post_limit must be positive, got %d", c.PostLimit))
	case c.MaxRecentLimit < 1:
		return errkind.Wrap(op, ErrInvalidConfig, fmt.Errorf("max_recent_limit must be positive, got %d", c.MaxRecentLimit))
	case c.FetchTimeout <= 0:
		return errkind.Wrap(op, ErrInvalidConfig, errors.New("fetch_timeout must be positive"))
	case c.MineInterval < 0:
		return errkind.Wrap(op, ErrInvalidConfig, errors.New("mine_interval must not be negative"))
	}
	return nil
}
