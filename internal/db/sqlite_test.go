package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxRunner(t *testing.T) {
	tests := []struct {
		name    string
		expect  func(mock sqlmock.Sqlmock)
		fn      func(tx *sql.Tx) (int, error)
		want    int
		wantErr string
	}{
		{
			name: "commits",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectCommit()
			},
			fn:   func(tx *sql.Tx) (int, error) { return 42, nil },
			want: 42,
		},
		{
			name: "rolls back when fn fails",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectRollback()
			},
			fn:      func(tx *sql.Tx) (int, error) { return 7, errors.New("disk I/O error") },
			wantErr: "failed to execute transaction: disk I/O error",
		},
		{
			name: "reports commit failure",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectCommit().WillReturnError(fmt.Errorf("database is locked"))
			},
			fn:      func(tx *sql.Tx) (int, error) { return 42, nil },
			wantErr: "failed to commit transaction: database is locked",
		},
		{
			name: "reports begin failure",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(fmt.Errorf("begin error"))
			},
			fn:      func(tx *sql.Tx) (int, error) { return 42, nil },
			wantErr: "failed to begin transaction: begin error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sqlite, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer sqlite.Close()
			tt.expect(mock)

			got, err := TxRunner(context.Background(), sqlite, tt.fn)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				assert.Zero(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTxRunner_ContextCanceledBeforeCommit(t *testing.T) {
	sqlite, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlite.Close()

	ctx, cancel := context.WithCancel(context.Background())

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = TxRunner(ctx, sqlite, func(tx *sql.Tx) (int, error) {
		cancel()
		return 1, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type countRow struct {
	Name  string
	Count int
}

func (c *countRow) ScanRow(scanner RowScanner) error {
	return scanner.Scan(&c.Name, &c.Count)
}

func TestGetPaginatedResponseForQuery_BuildsQueries(t *testing.T) {
	sqlite, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer sqlite.Close()

	mock.ExpectQuery("SELECT COUNT(*) FROM items WHERE kind = ?").
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery("SELECT name, count FROM items WHERE kind = ? ORDER BY block DESC, idx DESC LIMIT ? OFFSET ?").
		WithArgs("a", 2, 2).
		WillReturnRows(sqlmock.NewRows([]string{"name", "count"}).AddRow("x", 1).AddRow("y", 2))

	total, rows, err := GetPaginatedResponseForQuery(
		"items",
		sqlite,
		"SELECT name, count FROM items",
		QueryOptions{Where: "kind = ?", PageSize: 2, Page: 2},
		[]string{"block", "idx"},
		[]interface{}{"a"},
		func() *countRow { return &countRow{} },
	)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, rows, 2)
	assert.Equal(t, "y", rows[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPaginatedResponseForQuery_Errors(t *testing.T) {
	sqlite, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlite.Close()

	factory := func() *countRow { return &countRow{} }

	_, _, err = GetPaginatedResponseForQuery("items", sqlite, "SELECT name, count FROM items", QueryOptions{Page: 1, PageSize: 1}, nil, nil, factory)
	assert.EqualError(t, err, "no order columns provided")

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT name").WillReturnRows(sqlmock.NewRows([]string{"name", "count"}).AddRow("x", "not a number"))

	_, _, err = GetPaginatedResponseForQuery("items", sqlite, "SELECT name, count FROM items", QueryOptions{Page: 1, PageSize: 1}, []string{"idx"}, nil, factory)
	assert.Error(t, err)
}

func TestOpenSqlite_CreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "netflow")

	sqlite, err := OpenSqlite(path)
	require.NoError(t, err)

	for _, table := range []string{"token_transfers", "labeled_addresses", "netflow_state"} {
		var name string
		err := sqlite.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}

	var in, out string
	var lastBlock sql.NullInt64
	err = sqlite.QueryRow("SELECT cumulative_in, cumulative_out, last_applied_block FROM netflow_state WHERE id = 1").
		Scan(&in, &out, &lastBlock)
	require.NoError(t, err)
	assert.Equal(t, "0", in)
	assert.Equal(t, "0", out)
	assert.False(t, lastBlock.Valid)

	var journalMode string
	require.NoError(t, sqlite.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	require.NoError(t, sqlite.Close())

	// Reopening runs migrations again without touching existing state.
	sqlite, err = OpenSqlite(path)
	require.NoError(t, err)
	defer sqlite.Close()

	var count int
	require.NoError(t, sqlite.QueryRow("SELECT COUNT(*) FROM netflow_state").Scan(&count))
	assert.Equal(t, 1, count)
}
