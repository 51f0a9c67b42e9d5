package sqlite_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/sio2000/gymUI-sub000/internal/db"
)

// openTestDB opens a migrated in-memory database private to the calling
// test.  Named shared-cache databases live as long as one connection does,
// so the pool is pinned to a single connection like production.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := sql.Open("sqlite",
		"file:checkin_"+name+"?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	t.Cleanup(func() { conn.Close() })

	if _, err := db.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

// newTestWriter starts a write worker for conn and stops it at cleanup.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(w.Close)
	return w
}
