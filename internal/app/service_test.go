package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/see1right/internal/adapters/repository"
	service "github.com/okian/see1right/internal/app"
	"github.com/okian/see1right/internal/domain/dedupe"
	"github.com/okian/see1right/internal/domain/model"
	"github.com/okian/see1right/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func newStartedService(t *testing.T, opts ...service.Option) (*service.Service, *repository.SQLStore) {
	t.Helper()
	ctx := context.Background()
	store, err := repository.Open(ctx, repository.DriverSQLite, filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	svc := service.New(store, opts...)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc, store
}

// failingStore reports a storage failure on every call.
type failingStore struct{}

var errDiskGone = errors.New("disk gone")

func (failingStore) Init(context.Context) error { return nil }
func (failingStore) InsertIfAbsent(context.Context, model.Event) (bool, error) {
	return false, fmt.Errorf("%w: %w", repository.ErrStorage, errDiskGone)
}
func (failingStore) ListRecent(context.Context, int) ([]model.Event, error) {
	return nil, fmt.Errorf("%w: %w", repository.ErrStorage, errDiskGone)
}
func (failingStore) Count(context.Context) (int, error) { return 0, errDiskGone }
func (failingStore) Close() error                       { return nil }

func TestService_Submit(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	Convey("Given a started service", t, func() {
		svc, store := newStartedService(t, service.WithClock(func() time.Time { return fixed }))

		Convey("When a partial payload is submitted", func() {
			receipt, err := svc.Submit(ctx, model.RawItem{"headline": "hello"})

			Convey("Then it is acknowledged and stored with generated fields", func() {
				So(err, ShouldBeNil)
				So(receipt.Status, ShouldEqual, model.StatusStored)

				events, err := svc.Recent(ctx, 0)
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 1)
				So(events[0].Headline, ShouldEqual, "hello")
				So(events[0].ID, ShouldNotBeEmpty)
				So(events[0].CreatedAt, ShouldEqual, "2025-01-02T03:04:05.000000Z")
				So(events[0].Category, ShouldEqual, model.DefaultCategory)
				So(events[0].Source, ShouldEqual, service.DefaultSource)
			})
		})

		Convey("When the same id is submitted twice", func() {
			r1, err1 := svc.Submit(ctx, model.RawItem{"id": "dup", "headline": "first"})
			r2, err2 := svc.Submit(ctx, model.RawItem{"id": "dup", "headline": "second"})

			Convey("Then both are acknowledged identically and one row exists", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(r1, ShouldResemble, r2)

				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)

				stats := svc.GetStats(ctx)
				So(stats["stored"], ShouldEqual, 1)
				So(stats["duplicates"], ShouldEqual, 1)
				So(stats["events"], ShouldEqual, 1)
			})
		})

		Convey("When concurrent callers submit one external id", func() {
			const callers = 12
			var wg sync.WaitGroup
			errs := make([]error, callers)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = svc.Submit(ctx, model.RawItem{"id": "ext-1", "headline": fmt.Sprint(i)})
				}(i)
			}
			wg.Wait()

			Convey("Then one row is stored and no call errors", func() {
				for _, err := range errs {
					So(err, ShouldBeNil)
				}
				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a service with a known-id cache", t, func() {
		known := dedupe.NewInMemory(dedupe.WithMaxSize(10))
		svc, store := newStartedService(t, service.WithKnownIDs(known))

		Convey("When an id is submitted repeatedly", func() {
			for i := 0; i < 3; i++ {
				_, err := svc.Submit(ctx, model.RawItem{"id": "t3_a"})
				So(err, ShouldBeNil)
			}

			Convey("Then the id is remembered and stored once", func() {
				So(known.Known(ctx, "t3_a"), ShouldBeTrue)
				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				So(svc.GetStats(ctx)["duplicates"], ShouldEqual, 2)
			})
		})
	})

	Convey("Given a store that fails", t, func() {
		svc := service.New(failingStore{})
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When submitting", func() {
			_, err := svc.Submit(ctx, model.RawItem{"headline": "x"})

			Convey("Then the storage error is returned", func() {
				So(errors.Is(err, repository.ErrStorage), ShouldBeTrue)
				So(errors.Is(err, errDiskGone), ShouldBeTrue)
			})
		})

		Convey("When reading", func() {
			_, err := svc.Recent(ctx, 10)

			Convey("Then the storage error is returned", func() {
				So(errors.Is(err, repository.ErrStorage), ShouldBeTrue)
			})
		})
	})
}

func TestService_Recent(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service holding more events than the cap", t, func() {
		svc, _ := newStartedService(t, service.WithMaxRecentLimit(3))
		base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 5; i++ {
			_, err := svc.Submit(ctx, model.RawItem{
				"id":         fmt.Sprintf("e%d", i),
				"created_at": base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
			})
			So(err, ShouldBeNil)
		}

		Convey("When asking for more than the cap", func() {
			events, err := svc.Recent(ctx, 100)

			Convey("Then the newest capped number come back", func() {
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 3)
				So(events[0].ID, ShouldEqual, "e4")
				So(events[2].ID, ShouldEqual, "e2")
			})
		})

		Convey("When asking for fewer", func() {
			events, err := svc.Recent(ctx, 2)

			Convey("Then the limit is honored", func() {
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 2)
			})
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(failingStore{}, service.WithDefaultSource("external"))

		Convey("When getting stats before starting", func() {
			stats := svc.GetStats(context.Background())

			Convey("Then it should return basic stats", func() {
				So(stats, ShouldNotBeNil)
				So(stats["started"], ShouldEqual, false)
			})
		})

		Convey("When starting twice and stopping", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.GetStats(context.Background())["started"], ShouldEqual, true)
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				So(svc.GetStats(context.Background())["started"], ShouldEqual, false)
			})
		})
	})
}
