package api

import (
	"net/http"
	"net/url"
	"testing"
)

func feedRequest(query string) *http.Request {
	u, _ := url.Parse("/api/alerts?" + query)
	return &http.Request{URL: u}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		page    int
		perPage int
	}{
		{"defaults", "", 1, 50},
		{"explicit window", "page=3&per_page=25", 3, 25},
		{"per_page capped", "per_page=9000", 1, 200},
		{"garbage falls back", "page=first&per_page=-5", 1, 50},
		{"zero falls back", "page=0", 1, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParsePagination(feedRequest(tt.query))
			if p.Page != tt.page || p.PerPage != tt.perPage {
				t.Errorf("got page=%d per_page=%d, want page=%d per_page=%d",
					p.Page, p.PerPage, tt.page, tt.perPage)
			}
		})
	}
}

func TestPaginationOffset(t *testing.T) {
	p := PaginationParams{Page: 3, PerPage: 25}
	if got := p.Offset(); got != 50 {
		t.Errorf("Offset() = %d, want 50", got)
	}
}

func TestPaginationTotalPages(t *testing.T) {
	p := PaginationParams{Page: 1, PerPage: 50}
	tests := []struct {
		total int64
		want  int
	}{
		{0, 0},
		{1, 1},
		{50, 1},
		{51, 2},
		{200, 4},
	}
	for _, tt := range tests {
		if got := p.TotalPages(tt.total); got != tt.want {
			t.Errorf("TotalPages(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}
