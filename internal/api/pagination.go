package api

import (
	"net/http"
	"strconv"
)

// Alert and delivery feeds can grow without bound on a busy fleet, so
// the list endpoints page. The per_page cap keeps one dashboard refresh
// from dragging the whole delivery log across the wire.
const (
	defaultPage    = 1
	defaultPerPage = 50
	maxPerPage     = 200
)

// PaginationParams is one parsed page window.
type PaginationParams struct {
	Page    int
	PerPage int
}

// ParsePagination reads page/per_page from the query string. Absent or
// garbage values fall back to the defaults rather than erroring; a feed
// request should never 400 over paging.
func ParsePagination(r *http.Request) PaginationParams {
	return PaginationParams{
		Page:    positiveQueryInt(r, "page", defaultPage, 0),
		PerPage: positiveQueryInt(r, "per_page", defaultPerPage, maxPerPage),
	}
}

func positiveQueryInt(r *http.Request, key string, fallback, limit int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// Offset returns the row offset for the current page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages reports how many pages a total row count spans.
func (p PaginationParams) TotalPages(total int64) int {
	if p.PerPage <= 0 {
		return 0
	}
	pages := int(total) / p.PerPage
	if int(total)%p.PerPage > 0 {
		pages++
	}
	return pages
}
