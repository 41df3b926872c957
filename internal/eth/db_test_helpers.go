package eth

import (
	"testing"

	"github.com/6529-Collections/netflow/internal/db"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// setupTestInMemoryDB opens the same in-memory store the indexer uses when no
// tracker path is configured.
func setupTestInMemoryDB(t *testing.T) *badger.DB {
	t.Helper()
	store, err := db.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}
