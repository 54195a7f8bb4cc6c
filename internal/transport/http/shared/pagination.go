package shared

import (
	"errors"
	"net/http"
	"strconv"
)

var ErrInvalidPagination = errors.New("limit and offset must be non-negative integers")

type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination reads ?limit= and ?offset=. Limit is clamped to maxLimit;
// malformed values are rejected instead of silently defaulted.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) (Pagination, error) {
	p := Pagination{Limit: defaultLimit}
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return Pagination{}, ErrInvalidPagination
		}
		p.Limit = v
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return Pagination{}, ErrInvalidPagination
		}
		p.Offset = v
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p, nil
}
