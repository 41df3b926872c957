package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/6529-Collections/netflow/internal/db"
)

// PaginatedResponse holds the common pagination fields.
type PaginatedResponse[T any] struct {
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Total    int     `json:"total"`
	Prev     *string `json:"prev"`
	Next     *string `json:"next"`
	Data     []*T    `json:"data"`
}

// ReturnPaginatedData sets the total and builds absolute prev/next links that
// keep every other query parameter of the request.
func (p *PaginatedResponse[T]) ReturnPaginatedData(r *http.Request, total int) {
	p.Total = total
	p.Prev = nil
	p.Next = nil

	if p.Page > 1 {
		prev := pageURL(r, p.Page-1, p.PageSize)
		p.Prev = &prev
	}
	if p.Page*p.PageSize < total {
		next := pageURL(r, p.Page+1, p.PageSize)
		p.Next = &next
	}
}

func pageURL(r *http.Request, page, pageSize int) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	query := r.URL.Query()
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))
	return fmt.Sprintf("%s://%s%s?%s", scheme, r.Host, r.URL.Path, query.Encode())
}

// ExtractPagination reads page and page_size, falling back to 1 and 10. The
// first parse error is returned alongside the fallback values.
func ExtractPagination(r *http.Request) (int, int, error) {
	page, pageErr := queryInt(r, "page", 1)
	pageSize, sizeErr := queryInt(r, "page_size", 10)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if pageErr != nil {
		return page, pageSize, pageErr
	}
	return page, pageSize, sizeErr
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, err
	}
	if v < 1 {
		return fallback, nil
	}
	return v, nil
}

const maxPageSize = 500

// ExtractDirection reads ?sort=asc|desc, newest first by default.
func ExtractDirection(r *http.Request) db.QueryDirection {
	if strings.EqualFold(r.URL.Query().Get("sort"), "asc") {
		return db.QueryDirectionAsc
	}
	return db.QueryDirectionDesc
}

func PaginatedQueryHandler[T any](
	r *http.Request,
	rq db.QueryRunner,
	pgQuerier db.PaginatedQuerier[T],
	query string,
	queryParams []interface{},
) (PaginatedResponse[T], error) {
	page, pageSize, _ := ExtractPagination(r)
	queryOptions := db.QueryOptions{
		Where:     query,
		PageSize:  pageSize,
		Page:      page,
		Direction: ExtractDirection(r),
	}

	total, data, err := pgQuerier.GetPaginatedResponseForQuery(rq, queryOptions, queryParams)
	if err != nil {
		return PaginatedResponse[T]{}, err
	}

	resp := PaginatedResponse[T]{
		Page:     page,
		PageSize: pageSize,
		Data:     data,
	}
	if resp.Data == nil {
		resp.Data = []*T{}
	}
	resp.ReturnPaginatedData(r, total)

	return resp, nil
}
