package shared

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseDay(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	now := time.Date(2025, 3, 3, 21, 0, 0, 0, time.UTC)

	cases := map[string]time.Time{
		"":                          time.Date(2025, 3, 4, 0, 0, 0, 0, loc),
		"2025-03-01":                time.Date(2025, 3, 1, 0, 0, 0, 0, loc),
		"2025-03-02T23:30:00-02:00": time.Date(2025, 3, 2, 0, 0, 0, 0, loc),
	}
	for input, want := range cases {
		got, err := ParseDay(input, now, loc)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", input, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%q: expected %v, got %v", input, want, got)
		}
	}
	if _, err := ParseDay("03/04/2025", now, loc); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500&offset=20", nil)
	p, err := ParsePagination(req, 50, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != 200 || p.Offset != 20 {
		t.Fatalf("unexpected pagination %+v", p)
	}

	p, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/", nil), 50, 200)
	if err != nil || p.Limit != 50 || p.Offset != 0 {
		t.Fatalf("expected defaults, got %+v %v", p, err)
	}

	for _, q := range []string{"/?limit=abc", "/?limit=0", "/?offset=-1"} {
		if _, err := ParsePagination(httptest.NewRequest(http.MethodGet, q, nil), 50, 200); !errors.Is(err, ErrInvalidPagination) {
			t.Fatalf("%s: expected ErrInvalidPagination, got %v", q, err)
		}
	}
}
