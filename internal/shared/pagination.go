package shared

import "math"

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	page, perPage = NormalizePage(page, perPage)
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// NormalizePage clamps page and perPage to sane values.
func NormalizePage(page, perPage int) (int, int) {
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 200 {
		perPage = 200
	}
	if page <= 0 {
		page = 1
	}
	return page, perPage
}

// Offset returns the row offset for the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}
