// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Skotchmaster/sweet_shop/internal/models"
	pkgdb "github.com/Skotchmaster/sweet_shop/pkg/db"
	"github.com/Skotchmaster/sweet_shop/pkg/hash"
)

func init() {
	hash.Cost = bcrypt.MinCost
}

// pgMu serializes tests sharing the external postgres database.
var pgMu sync.Mutex

// NewDB returns a migrated, empty database. TEST_DATABASE_URL selects a
// shared postgres instance; otherwise each test gets its own sqlite file.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("TEST_DATABASE_URL")
	shared := dsn != ""
	if !shared {
		dsn = "sqlite://" + filepath.Join(t.TempDir(), "test.db")
	} else {
		pgMu.Lock()
		t.Cleanup(pgMu.Unlock)
	}

	db, err := pkgdb.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pkgdb.Close(db) })

	require.NoError(t, db.WithContext(ctx).AutoMigrate(models.All()...))
	if shared {
		require.NoError(t, pkgdb.Truncate(ctx, db, "users", "sweets"))
	}
	return db
}
