// Package config defines process configuration and its layered loader.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Loading and validation errors wrap this package's error kinds.
package config

import (
	"context"
	"time"
)

// Supported store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config contains process configuration shared by the API server and the miner.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`
	// APIBase is the write API the miner submits to in remote mode.
	APIBase string `koanf:"api_base"`

	// StoreDriver selects the event store engine: sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`
	// DBPath is the SQLite database file.
	DBPath string `koanf:"db_path"`
	// DatabaseURL is the Postgres connection URL.
	DatabaseURL string `koanf:"database_url"`

	// MaxRecentLimit caps GET /dashboard/summaries.
	MaxRecentLimit int `koanf:"max_recent_limit"`

	RedditClientID          string `koanf:"reddit_client_id"`
	RedditClientSecret      string `koanf:"reddit_client_secret"`
	RedditUserAgent         string `koanf:"reddit_user_agent"`
	RedditAPIBase           string `koanf:"reddit_api_base"`
	RedditTokenURL          string `koanf:"reddit_token_url"`
	RedditRequestsPerMinute int    `koanf:"reddit_requests_per_minute"`

	// Channels lists the subreddits polled on every pass, in order.
	Channels []string `koanf:"channels"`
	// PostLimit bounds items fetched per channel per pass.
	PostLimit int `koanf:"post_limit"`

	// FetchTimeout is the hard wall-clock limit on one upstream fetch.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	// SubmitTimeout bounds one remote submit call.
	SubmitTimeout time.Duration `koanf:"submit_timeout"`
	// MineInterval is the delay between passes; zero runs a single pass.
	MineInterval time.Duration `koanf:"mine_interval"`
}

// DefaultChannels are the subreddits mined when none are configured.
func DefaultChannels() []string {
	return []string{
		"see1right_dev",
		"virtualreality",
		"oculus",
		"augmentedreality",
		"accessibility",
		"eyestrain",
		"optometry",
	}
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":8000",
		APIBase:                 "http://127.0.0.1:8000",
		StoreDriver:             StoreSQLite,
		DBPath:                  "see1right_v1.sqlite3",
		MaxRecentLimit:          50,
		RedditUserAgent:         "see1right_dev:v1",
		RedditAPIBase:           "https://oauth.reddit.com",
		RedditTokenURL:          "https://www.reddit.com/api/v1/access_token",
		RedditRequestsPerMinute: 60,
		Channels:                DefaultChannels(),
		PostLimit:               5,
		FetchTimeout:            15 * time.Second,
		SubmitTimeout:           15 * time.Second,
	}
}

// StoreDSN returns the data source for the configured driver.
func (c *Config) StoreDSN() string {
	if c.StoreDriver == StorePostgres {
		return c.DatabaseURL
	}
	return c.DBPath
}
