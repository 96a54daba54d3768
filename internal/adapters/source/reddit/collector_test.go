package reddit_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/see1right/internal/adapters/source/reddit"
	"github.com/okian/see1right/internal/config"
	"github.com/okian/see1right/internal/domain/model"
	"github.com/okian/see1right/internal/domain/normalize"
	"github.com/okian/see1right/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

const listingJSON = `{
  "kind": "Listing",
  "data": {
    "children": [
      {"kind": "t3", "data": {"id": "abc", "name": "t3_abc", "title": "Quest 3 review",
        "subreddit": "oculus", "permalink": "/r/oculus/comments/abc/quest_3_review/",
        "created_utc": 1700000000}},
      {"kind": "t3", "data": {"id": "def", "name": "t3_def", "title": "Eye strain tips",
        "subreddit": "oculus", "permalink": "/r/oculus/comments/def/eye_strain_tips/",
        "created_utc": 1700000100.5}}
    ]
  }
}`

type fakeReddit struct {
	*httptest.Server
	tokenCalls   atomic.Int32
	listingCalls atomic.Int32
	lastQuery    atomic.Value
	lastAgent    atomic.Value
	lastAuth     atomic.Value

	tokenStatus   int
	listingStatus int
	delay         time.Duration
}

func newFakeReddit(t *testing.T, configure ...func(*fakeReddit)) *fakeReddit {
	t.Helper()
	f := &fakeReddit{tokenStatus: http.StatusOK, listingStatus: http.StatusOK}
	for _, fn := range configure {
		fn(f)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" || f.tokenStatus != http.StatusOK {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/r/", func(w http.ResponseWriter, r *http.Request) {
		f.listingCalls.Add(1)
		f.lastQuery.Store(r.URL.RawQuery)
		f.lastAgent.Store(r.Header.Get("User-Agent"))
		f.lastAuth.Store(r.Header.Get("Authorization"))
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}
		if f.listingStatus != http.StatusOK {
			w.WriteHeader(f.listingStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listingJSON))
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeReddit) config() reddit.Config {
	return reddit.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		UserAgent:    "see1right-test:v1",
		APIBase:      f.URL,
		TokenURL:     f.URL + "/api/v1/access_token",
		FetchTimeout: 2 * time.Second,
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	Convey("Given a config without a client secret", t, func() {
		_, err := reddit.New(reddit.Config{ClientID: "id"})

		Convey("Then construction fails as a configuration error", func() {
			So(errors.Is(err, reddit.ErrMissingCredentials), ShouldBeTrue)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})

	Convey("Given the process config", t, func() {
		cfg := config.New(context.Background())
		cfg.RedditClientID = "id"
		cfg.RedditClientSecret = "secret"

		Convey("Then the collector settings are carried over", func() {
			rc := reddit.ConfigFrom(cfg)
			So(rc.ClientID, ShouldEqual, "id")
			So(rc.TokenURL, ShouldEqual, cfg.RedditTokenURL)
			So(rc.FetchTimeout, ShouldEqual, cfg.FetchTimeout)
			_, err := reddit.New(rc)
			So(err, ShouldBeNil)
		})
	})
}

func TestCollector_FetchNew(t *testing.T) {
	ctx := context.Background()

	Convey("Given a reachable Reddit API", t, func() {
		f := newFakeReddit(t)
		c, err := reddit.New(f.config())
		So(err, ShouldBeNil)
		So(c.Source(), ShouldEqual, reddit.DefaultSource)

		Convey("When fetching a channel", func() {
			items, err := c.FetchNew(ctx, "oculus", 5)

			Convey("Then posts are mapped to raw items", func() {
				So(err, ShouldBeNil)
				So(items, ShouldHaveLength, 2)
				So(items[0][model.FieldID], ShouldEqual, "t3_abc")
				So(items[0][model.FieldCategory], ShouldEqual, "oculus")
				So(items[0][model.FieldHeadline], ShouldEqual, "Quest 3 review")
				So(items[0][model.FieldSource], ShouldEqual, "reddit")
				So(items[0][model.FieldPermalink], ShouldEqual,
					"https://www.reddit.com/r/oculus/comments/abc/quest_3_review/")
			})

			Convey("Then the items normalize with the post time", func() {
				e := normalize.Normalize(items[1], normalize.Defaults{})
				So(e.CreatedAt, ShouldEqual, "2023-11-14T22:15:00.500000Z")
			})

			Convey("Then the request is authenticated and identified", func() {
				So(f.tokenCalls.Load(), ShouldEqual, 1)
				So(f.lastAuth.Load(), ShouldEqual, "Bearer tok")
				So(f.lastAgent.Load(), ShouldEqual, "see1right-test:v1")
				So(f.lastQuery.Load(), ShouldContainSubstring, "limit=5")
				So(f.lastQuery.Load(), ShouldContainSubstring, "raw_json=1")
			})
		})

		Convey("When the limit is smaller than the page", func() {
			items, err := c.FetchNew(ctx, "oculus", 1)

			Convey("Then at most limit items are returned", func() {
				So(err, ShouldBeNil)
				So(items, ShouldHaveLength, 1)
			})
		})

		Convey("When the limit exceeds the API maximum", func() {
			_, err := c.FetchNew(ctx, "oculus", 500)

			Convey("Then it is clamped", func() {
				So(err, ShouldBeNil)
				So(f.lastQuery.Load(), ShouldContainSubstring, fmt.Sprintf("limit=%d", reddit.MaxLimit))
			})
		})

		Convey("When the limit is zero", func() {
			items, err := c.FetchNew(ctx, "oculus", 0)

			Convey("Then nothing is requested", func() {
				So(err, ShouldBeNil)
				So(items, ShouldBeEmpty)
				So(f.listingCalls.Load(), ShouldEqual, 0)
			})
		})

		Convey("When fetching twice", func() {
			_, err1 := c.FetchNew(ctx, "oculus", 5)
			_, err2 := c.FetchNew(ctx, "vr", 5)

			Convey("Then the token is reused", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(f.tokenCalls.Load(), ShouldEqual, 1)
				So(f.listingCalls.Load(), ShouldEqual, 2)
			})
		})
	})

	Convey("Given an API that fails", t, func() {
		Convey("When the listing returns a server error", func() {
			f := newFakeReddit(t, func(f *fakeReddit) { f.listingStatus = http.StatusServiceUnavailable })
			c, _ := reddit.New(f.config())
			_, err := c.FetchNew(ctx, "oculus", 5)

			Convey("Then a fetch error naming the channel is returned", func() {
				So(errors.Is(err, reddit.ErrFetch), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "r/oculus")
				So(err.Error(), ShouldContainSubstring, "503")
			})
		})

		Convey("When the token is refused", func() {
			f := newFakeReddit(t, func(f *fakeReddit) { f.tokenStatus = http.StatusUnauthorized })
			c, _ := reddit.New(f.config())
			_, err := c.FetchNew(ctx, "oculus", 5)

			Convey("Then a fetch error is returned without hitting the listing", func() {
				So(errors.Is(err, reddit.ErrFetch), ShouldBeTrue)
				So(f.listingCalls.Load(), ShouldEqual, 0)
			})
		})

		Convey("When the listing hangs past the fetch timeout", func() {
			f := newFakeReddit(t, func(f *fakeReddit) { f.delay = 5 * time.Second })
			cfg := f.config()
			cfg.FetchTimeout = 100 * time.Millisecond
			c, _ := reddit.New(cfg)

			start := time.Now()
			_, err := c.FetchNew(ctx, "oculus", 5)

			Convey("Then the call is cut off at the timeout", func() {
				So(errors.Is(err, reddit.ErrFetch), ShouldBeTrue)
				So(time.Since(start), ShouldBeLessThan, 2*time.Second)
			})
		})

		Convey("When the body is not a listing", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if strings.HasSuffix(r.URL.Path, "access_token") {
					w.Header().Set("Content-Type", "application/json")
					_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
					return
				}
				_, _ = w.Write([]byte(`<html>`))
			}))
			defer srv.Close()
			cfg := reddit.Config{
				ClientID:     "id",
				ClientSecret: "secret",
				APIBase:      srv.URL,
				TokenURL:     srv.URL + "/api/v1/access_token",
			}
			c, _ := reddit.New(cfg)

			_, err := c.FetchNew(ctx, "oculus", 5)

			Convey("Then decoding fails as a fetch error", func() {
				So(errors.Is(err, reddit.ErrFetch), ShouldBeTrue)
			})
		})
	})
}
