package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"shiftwatch/internal/requestctx"
)

func TestFailCarriesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(requestctx.WithRequestID(req.Context(), "req-1"))
	rec := httptest.NewRecorder()

	Fail(rec, req, http.StatusBadRequest, "invalid_date", "bad date")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Success || env.Error == nil || env.Error.Code != "invalid_date" || env.RequestID != "req-1" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestSuccessOmitsError(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, httptest.NewRequest(http.MethodGet, "/", nil), []int{})

	var raw map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := raw["error"]; ok {
		t.Fatalf("did not expect error field: %v", raw)
	}
	if data, ok := raw["data"].([]any); !ok || len(data) != 0 {
		t.Fatalf("expected empty data array, got %v", raw["data"])
	}
}
