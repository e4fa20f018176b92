// Package testutil provides shared test helpers for setting up vaults,
// databases and note services.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "notegraph-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// Clock is a manually advanced time source.
type Clock struct {
	T time.Time
}

// Now returns the current fake time and advances it by one second, so
// consecutive writes get distinct timestamps.
func (c *Clock) Now() time.Time {
	t := c.T
	c.T = c.T.Add(time.Second)
	return t
}

// TestService wires a note service over a fresh vault and database. The
// service clock starts at 2024-01-01 UTC.
func TestService(t *testing.T, opts ...noteservice.Option) (*noteservice.Service, storage.Provider, *index.DB) {
	t.Helper()
	_, store := TestVault(t)
	db := TestDB(t)
	clock := &Clock{T: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]noteservice.Option{noteservice.WithClock(clock.Now)}, opts...)
	return noteservice.NewService(store, db, opts...), store, db
}
