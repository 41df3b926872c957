package handlers

import (
	"database/sql"
	"net/http"
	"regexp"
	"strings"

	"github.com/6529-Collections/netflow/internal/ledger"
	"github.com/6529-Collections/netflow/pkg/netflow/models"
)

var transferDb ledger.TransferDb = ledger.NewTransferDb()
var PaginatedTransferQueryHandlerFunc = PaginatedQueryHandler[ledger.TransferRow]

var (
	txHashRegex  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// TransfersGetHandler serves /api/v1/transfers, /api/v1/transfers/:txHash
// and /api/v1/transfers/:address.
func TransfersGetHandler(r *http.Request, db *sql.DB) (interface{}, error) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	query := ""
	queryParams := []interface{}{}

	if len(parts) > 4 {
		return nil, badRequest("unexpected path " + r.URL.Path)
	}
	if len(parts) == 4 {
		filter := strings.ToLower(parts[3])
		switch {
		case txHashRegex.MatchString(filter):
			query = "tx_hash = ?"
			queryParams = []interface{}{filter}
		case addressRegex.MatchString(filter):
			query = "(from_address = ? OR to_address = ?)"
			queryParams = []interface{}{filter, filter}
		default:
			return nil, badRequest("expected a transaction hash or an address")
		}
	}
	if tag := strings.ToUpper(r.URL.Query().Get("tag")); tag != "" {
		switch models.Tag(tag) {
		case models.TagIn, models.TagOut, models.TagBoth, models.TagNone:
		default:
			return nil, badRequest("tag must be one of IN, OUT, BOTH, NONE")
		}
		if query != "" {
			query += " AND "
		}
		query += "tag = ?"
		queryParams = append(queryParams, tag)
	}

	return PaginatedTransferQueryHandlerFunc(r, db, transferDb, query, queryParams)
}
