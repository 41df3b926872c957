package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type QueryRunner interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// TxRunner runs fn inside one transaction. The transaction commits only if fn
// succeeds and ctx is still live; otherwise everything fn wrote is rolled back.
func TxRunner[T any](ctx context.Context, sqlite *sql.DB, fn func(*sql.Tx) (T, error)) (T, error) {
	var zero T
	tx, err := sqlite.BeginTx(ctx, nil)
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}

	result, err := fn(tx)
	switch {
	case err != nil:
		err = fmt.Errorf("failed to execute transaction: %w", err)
	case ctx.Err() != nil:
		err = fmt.Errorf("context canceled before commit: %w", ctx.Err())
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			zap.L().Error("failed to rollback transaction", zap.Error(rbErr))
		}
		return zero, err
	}

	if err := tx.Commit(); err != nil {
		zap.L().Error("failed to commit transaction", zap.Error(err))
		return zero, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

type Scannable interface {
	ScanRow(scanner RowScanner) error
}

type RowScanner interface {
	Scan(dest ...interface{}) error
}

type QueryDirection string

const (
	QueryDirectionAsc  QueryDirection = "ASC"
	QueryDirectionDesc QueryDirection = "DESC"
)

type QueryOptions struct {
	Where     string
	PageSize  int
	Page      int
	Direction QueryDirection
}

type PaginatedQuerier[T any] interface {
	GetPaginatedResponseForQuery(rq QueryRunner, queryOptions QueryOptions, queryParams []interface{}) (total int, data []*T, err error)
}

// ScanAll drains rows into items built by factory.
func ScanAll[T Scannable](rows *sql.Rows, factory func() T) ([]T, error) {
	var items []T
	for rows.Next() {
		item := factory()
		if err := item.ScanRow(rows); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetPaginatedResponseForQuery runs one page of baseQuery filtered by
// queryOptions.Where and ordered by orderColumns, plus the matching row count.
func GetPaginatedResponseForQuery[T Scannable](
	tableName string,
	rq QueryRunner,
	baseQuery string,
	queryOptions QueryOptions,
	orderColumns []string,
	queryParams []interface{},
	factory func() T,
) (int, []T, error) {
	if len(orderColumns) == 0 {
		return 0, nil, errors.New("no order columns provided")
	}
	direction := queryOptions.Direction
	if direction != QueryDirectionAsc {
		direction = QueryDirectionDesc
	}
	orders := make([]string, len(orderColumns))
	for i, col := range orderColumns {
		orders[i] = col + " " + string(direction)
	}

	whereClause := ""
	if queryOptions.Where != "" {
		whereClause = "WHERE " + queryOptions.Where
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", tableName, whereClause)
	if err := rq.QueryRow(countQuery, queryParams...).Scan(&total); err != nil {
		return 0, nil, err
	}

	pageQuery := fmt.Sprintf("%s %s ORDER BY %s LIMIT ? OFFSET ?", baseQuery, whereClause, strings.Join(orders, ", "))
	params := make([]interface{}, 0, len(queryParams)+2)
	params = append(params, queryParams...)
	params = append(params, queryOptions.PageSize, (queryOptions.Page-1)*queryOptions.PageSize)

	rows, err := rq.Query(pageQuery, params...)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	data, err := ScanAll(rows, factory)
	if err != nil {
		return 0, nil, err
	}
	return total, data, nil
}
