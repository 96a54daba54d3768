// Package reddit polls subreddits for new posts through Reddit's
// application-only OAuth API.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/okian/see1right/internal/config"
	"github.com/okian/see1right/internal/domain/model"
	"github.com/okian/see1right/pkg/errkind"
	"github.com/okian/see1right/pkg/logger"
	"github.com/okian/see1right/pkg/metrics"
)

const (
	// DefaultSource tags events produced by this collector.
	DefaultSource = "reddit"

	// MaxLimit is the largest listing page Reddit serves.
	MaxLimit = 100

	permalinkBase   = "https://www.reddit.com"
	maxResponseSize = 4 << 20
)

// Config holds the collector settings.
type Config struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	// APIBase is the OAuth API host, normally https://oauth.reddit.com.
	APIBase  string
	TokenURL string
	// RequestsPerMinute throttles listing calls; zero or less disables it.
	RequestsPerMinute int
	// FetchTimeout is the hard limit on one FetchNew call, token refresh included.
	FetchTimeout time.Duration
}

// ConfigFrom extracts the collector settings from the process config.
func ConfigFrom(c *config.Config) Config {
	return Config{
		ClientID:          c.RedditClientID,
		ClientSecret:      c.RedditClientSecret,
		UserAgent:         c.RedditUserAgent,
		APIBase:           c.RedditAPIBase,
		TokenURL:          c.RedditTokenURL,
		RequestsPerMinute: c.RedditRequestsPerMinute,
		FetchTimeout:      c.FetchTimeout,
	}
}

// Collector fetches the newest posts of a subreddit. It is safe for
// concurrent use, though the miner calls it sequentially.
type Collector struct {
	cfg     Config
	base    *http.Client
	client  *http.Client
	limiter *rate.Limiter
	source  string
	logger  logger.Logger
}

// New validates the credentials and builds an authenticated collector.
// Tokens are fetched lazily on the first call.
func New(cfg Config, opts ...Option) (*Collector, error) {
	const op = "reddit.new"
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errkind.Wrap(op, config.ErrInvalidConfig, ErrMissingCredentials)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")

	c := &Collector{
		cfg:    cfg,
		base:   &http.Client{},
		source: DefaultSource,
		logger: logger.Get().Named("reddit"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.limiter = rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	// The token endpoint and the API both require the User-Agent, so it is
	// set on the base transport the oauth2 client builds on.
	base := *c.base
	base.Timeout = cfg.FetchTimeout
	base.Transport = &userAgentTransport{agent: cfg.UserAgent, next: transportOf(c.base)}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &base)
	c.client = cc.Client(tokenCtx)
	c.client.Timeout = cfg.FetchTimeout

	return c, nil
}

// Source returns the provenance tag for items from this collector.
func (c *Collector) Source() string { return c.source }

// FetchNew returns up to limit of the newest posts in channel as raw items.
// A limit below one returns nothing; limits above MaxLimit are clamped.
// Failures wrap ErrFetch. There is no retry.
func (c *Collector) FetchNew(ctx context.Context, channel string, limit int) ([]model.RawItem, error) {
	const op = "reddit.fetch_new"
	if limit < 1 {
		return nil, nil
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	start := time.Now()
	defer func() {
		metrics.RecordFetchLatency(channel, float64(time.Since(start).Milliseconds()))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	items, err := c.fetch(ctx, channel, limit)
	if err != nil {
		metrics.RecordFetchError(channel)
		return nil, errkind.Wrap(op, ErrFetch, fmt.Errorf("r/%s: %w", channel, err))
	}

	metrics.RecordItemsFetched(channel, len(items))
	c.logger.Debug(ctx, "fetched channel",
		logger.String("channel", channel),
		logger.Int("items", len(items)),
		logger.Duration("took", time.Since(start)),
	)
	return items, nil
}

func (c *Collector) fetch(ctx context.Context, channel string, limit int) ([]model.RawItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("raw_json", "1")
	endpoint := fmt.Sprintf("%s/r/%s/new?%s", c.cfg.APIBase, url.PathEscape(channel), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var l listing
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&l); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	items := make([]model.RawItem, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		if child.Kind != "" && child.Kind != "t3" {
			continue
		}
		items = append(items, c.toRaw(child.Data))
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

// toRaw maps a post onto the event field names. The fullname (t3_xxx) is
// used as id so re-polling the same post is deduplicated by the store.
func (c *Collector) toRaw(p post) model.RawItem {
	raw := model.RawItem{
		model.FieldCategory: p.Subreddit,
		model.FieldHeadline: p.Title,
		model.FieldSource:   c.source,
	}
	switch {
	case p.Name != "":
		raw[model.FieldID] = p.Name
	case p.ID != "":
		raw[model.FieldID] = "t3_" + p.ID
	}
	if p.Permalink != "" {
		raw[model.FieldPermalink] = permalinkBase + p.Permalink
	}
	if p.CreatedUTC > 0 {
		raw[model.FieldCreatedAt] = p.CreatedUTC
	}
	return raw
}

type listing struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data post   `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Title      string  `json:"title"`
	Subreddit  string  `json:"subreddit"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
}

type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.agent == "" {
		return t.next.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(r)
}

func transportOf(c *http.Client) http.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}
	return http.DefaultTransport
}
