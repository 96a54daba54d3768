package main

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/see1right/internal/adapters/http/client"
	"github.com/okian/see1right/internal/adapters/repository"
	service "github.com/okian/see1right/internal/app"
	"github.com/okian/see1right/internal/config"
	"github.com/okian/see1right/internal/domain/model"
	"github.com/okian/see1right/pkg/logger"
	"github.com/okian/see1right/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvDotenvFile, filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv(config.EnvConfigFile, "")
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		isolateConfig(t)

		convey.Convey("When configuration comes from the environment", func() {
			t.Setenv("SEE1RIGHT_ADDR", ":8080")
			t.Setenv("SEE1RIGHT_MAX_RECENT_LIMIT", "20")

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.MaxRecentLimit, convey.ShouldEqual, 20)
			})
		})

		convey.Convey("When the configured store driver is unknown", func() {
			t.Setenv("SEE1RIGHT_STORE_DRIVER", "oracle")

			convey.Convey("Then run fails before serving", func() {
				err := run(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestServerEndToEnd(t *testing.T) {
	convey.Convey("Given the API mux served over HTTP", t, func() {
		ctx := context.Background()
		store, err := repository.Open(ctx, repository.DriverSQLite, filepath.Join(t.TempDir(), "events.db"))
		convey.So(err, convey.ShouldBeNil)
		svc := service.New(store)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		convey.Reset(svc.Stop)

		srv := httptest.NewServer(newMux(ctx, svc))
		convey.Reset(srv.Close)
		gw := client.New(srv.URL, client.WithTimeout(5*time.Second))

		convey.Convey("When the gateway client submits a partial event", func() {
			convey.So(gw.Health(ctx), convey.ShouldBeNil)
			receipt, err := gw.Submit(ctx, model.RawItem{"headline": "hello"})
			convey.So(err, convey.ShouldBeNil)
			convey.So(receipt.Status, convey.ShouldEqual, model.StatusStored)

			convey.Convey("Then it can be read back through the same API", func() {
				events, err := gw.Recent(ctx, 10)
				convey.So(err, convey.ShouldBeNil)
				convey.So(events, convey.ShouldHaveLength, 1)
				convey.So(events[0].Headline, convey.ShouldEqual, "hello")
				convey.So(events[0].Source, convey.ShouldEqual, service.DefaultSource)
			})
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing system metrics updater", func() {
			convey.Convey("Then it should stop with its context", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startSystemMetricsUpdater(ctx)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing service metrics updater", func() {
			svc := service.New(nil)

			convey.Convey("Then it should stop with its context", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startServiceMetricsUpdater(ctx, svc)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing system metrics update", func() {
			convey.Convey("Then it should update metrics without panicking", func() {
				convey.So(func() {
					updateSystemMetrics()
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing metrics manager creation", func() {
			convey.Convey("Then a manager on a private registry is creatable", func() {
				manager := metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))
				convey.So(manager, convey.ShouldNotBeNil)
			})
		})
	})
}
