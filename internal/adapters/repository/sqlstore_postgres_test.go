package repository

import (
	"context"
	"fmt"
	"os"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// envTestDatabaseURL names a disposable Postgres database. Its events table
// is dropped before each run.
const envTestDatabaseURL = "SEE1RIGHT_TEST_DATABASE_URL"

func newPostgresStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := os.Getenv(envTestDatabaseURL)
	if dsn == "" {
		t.Skipf("%s not set", envTestDatabaseURL)
	}
	ctx := context.Background()
	s, err := Open(ctx, DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS events`); err != nil {
		t.Fatalf("reset table: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return s
}

func TestSQLStore_Postgres(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)

	Convey("Given an initialized Postgres store", t, func() {
		_, err := s.db.ExecContext(ctx, `TRUNCATE events RESTART IDENTITY`)
		So(err, ShouldBeNil)
		So(s.Driver(), ShouldEqual, DriverPostgres)

		Convey("When the schema is initialized again", func() {
			Convey("Then it is a no-op", func() {
				So(s.Init(ctx), ShouldBeNil)
			})
		})

		Convey("When the same id is inserted twice", func() {
			first, err1 := s.InsertIfAbsent(ctx, event("a", "2024-01-01T00:00:00.000000Z"))
			dup := event("a", "2024-06-01T00:00:00.000000Z")
			dup.Headline = "changed"
			second, err2 := s.InsertIfAbsent(ctx, dup)

			Convey("Then only the first write lands", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)

				n, err := s.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)

				got, err := s.ListRecent(ctx, 10)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				So(got[0].Headline, ShouldEqual, "headline a")
			})
		})

		Convey("When events share and differ in created_at", func() {
			for _, e := range []struct{ id, at string }{
				{"old", "2024-01-01T00:00:00.000000Z"},
				{"tie-1", "2024-03-01T00:00:00.000000Z"},
				{"tie-2", "2024-03-01T00:00:00.000000Z"},
				{"new", "2024-05-01T00:00:00.000000Z"},
			} {
				ok, err := s.InsertIfAbsent(ctx, event(e.id, e.at))
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
			}

			Convey("Then they list newest first with later inserts winning ties", func() {
				got, err := s.ListRecent(ctx, 10)
				So(err, ShouldBeNil)
				ids := make([]string, 0, len(got))
				for _, e := range got {
					ids = append(ids, e.ID)
				}
				So(ids, ShouldResemble, []string{"new", "tie-2", "tie-1", "old"})
			})

			Convey("Then the limit bounds the result", func() {
				got, err := s.ListRecent(ctx, 2)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 2)
				So(got[0].ID, ShouldEqual, "new")
			})
		})

		Convey("When rows written by an older writer hold NULL columns", func() {
			_, err := s.db.ExecContext(ctx, `INSERT INTO events (id, created_at) VALUES ($1, $2)`,
				"legacy", "2024-02-01T00:00:00.000000Z")
			So(err, ShouldBeNil)

			Convey("Then they are read with defaults", func() {
				got, err := s.ListRecent(ctx, 1)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				So(fmt.Sprint(got[0].Category, "|", got[0].Headline), ShouldEqual, "unknown|")
			})
		})
	})
}
