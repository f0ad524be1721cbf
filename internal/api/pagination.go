package api

import (
	"net/http"
	"strconv"
)

// PaginationParams holds parsed pagination values from query params.
type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset, or page when offset is absent.
// maxLimit caps the limit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	offset, err := strconv.Atoi(q.Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
		if page, _ := strconv.Atoi(q.Get("page")); page > 1 {
			offset = (page - 1) * limit
		}
	}
	return PaginationParams{Limit: limit, Offset: offset}
}

// PaginatedResponse wraps list data with its total.
type PaginatedResponse struct {
	Data   any  `json:"data"`
	Total  int  `json:"total"`
	Limit  int  `json:"limit"`
	Offset int  `json:"offset"`
	More   bool `json:"has_more"`
}

// NewPaginatedResponse builds a PaginatedResponse.
func NewPaginatedResponse(data any, p PaginationParams, total int) PaginatedResponse {
	return PaginatedResponse{
		Data:   data,
		Total:  total,
		Limit:  p.Limit,
		Offset: p.Offset,
		More:   p.Offset+p.Limit < total,
	}
}
