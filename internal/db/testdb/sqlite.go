package testdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/6529-Collections/netflow/internal/db"
	"github.com/stretchr/testify/require"
)

func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	path := filepath.Join(t.TempDir(), "sqlite", "netflow")
	sqlite, err := db.OpenSqlite(path)
	require.NoError(t, err)

	cleanup := func() {
		sqlite.Close()
	}
	return sqlite, cleanup
}
