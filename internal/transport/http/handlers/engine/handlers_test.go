package enginehandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"shiftwatch/internal/auth"
	"shiftwatch/internal/domain/attendance"
	"shiftwatch/internal/domain/audit"
	"shiftwatch/internal/domain/notify"
	"shiftwatch/internal/domain/reports"
	"shiftwatch/internal/platform/jobs"
	"shiftwatch/internal/transport/http/middleware"
)

const secret = "test-secret"

type fakeEngine struct {
	accept   bool
	triggers int
	runs     []jobs.Run
	lastType string
}

func (f *fakeEngine) TriggerPoll() bool {
	f.triggers++
	return f.accept
}

func (f *fakeEngine) RecentRuns(ctx context.Context, filter jobs.RunFilter, limit int) ([]jobs.Run, error) {
	f.lastType = filter.JobType
	return f.runs, nil
}

type fakeNotifications struct {
	asked time.Time
	err   error
}

func (f *fakeNotifications) ListByDate(ctx context.Context, date time.Time) ([]notify.Record, error) {
	f.asked = date
	if f.err != nil {
		return nil, f.err
	}
	return []notify.Record{{ID: 1, WorkerID: 7, Date: date, JobID: 2, Status: notify.StatusSent}}, nil
}

type fakeAttendance struct{}

func (fakeAttendance) ListByDate(ctx context.Context, date time.Time) ([]attendance.Record, error) {
	return nil, nil
}

type fakeAudit struct {
	entries []audit.Entry
	err     error
}

func (f *fakeAudit) Record(ctx context.Context, e audit.Entry) error {
	f.entries = append(f.entries, e)
	return f.err
}

func (f *fakeAudit) List(ctx context.Context, filter audit.Filter, limit, offset int) ([]audit.Event, error) {
	var out []audit.Event
	for i, e := range f.entries {
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		out = append(out, audit.Event{ID: int64(i + 1), Actor: e.Actor, Action: e.Action})
	}
	return out, nil
}

type fakeSummaries struct{}

func (fakeSummaries) Daily(ctx context.Context, date time.Time) (reports.DailySummary, error) {
	return reports.Build(date, []reports.StatusCount{{Status: "on_time", Count: 2}}, reports.NotificationCounts{}), nil
}

func newHandler(engine Engine, notifications NotificationLister, loc *time.Location) *Handler {
	return NewHandler(engine, notifications, fakeAttendance{}, &fakeAudit{}, fakeSummaries{}, loc)
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Auth(secret))
	r.Route("/api/v1", h.RegisterRoutes)
	return r
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.GenerateToken(secret, "ops-1", role, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	return "Bearer " + token
}

func do(t *testing.T, h http.Handler, method, path, authz string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, body
}

func TestTriggerPollRequiresAuth(t *testing.T) {
	engine := &fakeEngine{accept: true}
	router := newRouter(newHandler(engine, &fakeNotifications{}, time.UTC))

	rec, _ := do(t, router, http.MethodPost, "/api/v1/engine/poll", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec, _ = do(t, router, http.MethodPost, "/api/v1/engine/poll", bearer(t, auth.RoleViewer))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer, got %d", rec.Code)
	}
	if engine.triggers != 0 {
		t.Fatalf("expected no trigger, got %d", engine.triggers)
	}
}

func TestTriggerPollQueues(t *testing.T) {
	engine := &fakeEngine{accept: true}
	router := newRouter(newHandler(engine, &fakeNotifications{}, time.UTC))

	rec, body := do(t, router, http.MethodPost, "/api/v1/engine/poll", bearer(t, auth.RoleOperator))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if body["success"] != true {
		t.Fatalf("expected success envelope, got %v", body)
	}
	if engine.triggers != 1 {
		t.Fatalf("expected one trigger, got %d", engine.triggers)
	}
}

func TestTriggerPollQueueFull(t *testing.T) {
	engine := &fakeEngine{accept: false}
	router := newRouter(newHandler(engine, &fakeNotifications{}, time.UTC))

	rec, _ := do(t, router, http.MethodPost, "/api/v1/engine/poll", bearer(t, auth.RoleOperator))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestListRunsPassesType(t *testing.T) {
	engine := &fakeEngine{runs: []jobs.Run{{ID: "01J", JobType: "zone_poll", Status: jobs.StatusCompleted}}}
	router := newRouter(newHandler(engine, &fakeNotifications{}, time.UTC))

	rec, body := do(t, router, http.MethodGet, "/api/v1/engine/runs?type=zone_poll", bearer(t, auth.RoleViewer))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if engine.lastType != "zone_poll" {
		t.Fatalf("expected type filter, got %q", engine.lastType)
	}
	data, _ := body["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("expected one run, got %v", body["data"])
	}
}

func TestListRunsRejectsBadLimit(t *testing.T) {
	router := newRouter(newHandler(&fakeEngine{}, &fakeNotifications{}, time.UTC))

	rec, body := do(t, router, http.MethodGet, "/api/v1/engine/runs?limit=-5", bearer(t, auth.RoleViewer))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	errBody, _ := body["error"].(map[string]any)
	if errBody["code"] != "invalid_pagination" {
		t.Fatalf("unexpected error body %v", body)
	}
	if body["requestId"] != rec.Header().Get("X-Request-ID") {
		t.Fatalf("expected body request id to match header, got %v", body["requestId"])
	}
}

func TestListDispatchesDefaultsToToday(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	notifications := &fakeNotifications{}
	h := newHandler(&fakeEngine{}, notifications, loc)
	h.Now = func() time.Time { return time.Date(2025, 3, 3, 20, 0, 0, 0, time.UTC) }
	router := newRouter(h)

	rec, _ := do(t, router, http.MethodGet, "/api/v1/engine/dispatches", bearer(t, auth.RoleViewer))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	want := time.Date(2025, 3, 4, 0, 0, 0, 0, loc)
	if !notifications.asked.Equal(want) {
		t.Fatalf("expected local date %v, got %v", want, notifications.asked)
	}
}

func TestListDispatchesBadDate(t *testing.T) {
	router := newRouter(newHandler(&fakeEngine{}, &fakeNotifications{}, time.UTC))

	rec, body := do(t, router, http.MethodGet, "/api/v1/engine/dispatches?date=03/04/2025", bearer(t, auth.RoleViewer))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	errBody, _ := body["error"].(map[string]any)
	if errBody["code"] != "invalid_date" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestListDispatchesStoreError(t *testing.T) {
	router := newRouter(newHandler(&fakeEngine{}, &fakeNotifications{err: errors.New("db down")}, time.UTC))

	rec, _ := do(t, router, http.MethodGet, "/api/v1/engine/dispatches?date=2025-03-04", bearer(t, auth.RoleViewer))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestListAttendanceEmptyArray(t *testing.T) {
	router := newRouter(newHandler(&fakeEngine{}, &fakeNotifications{}, time.UTC))

	rec, body := do(t, router, http.MethodGet, "/api/v1/engine/attendance?date=2025-03-04", bearer(t, auth.RoleViewer))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if data, ok := body["data"].([]any); !ok || len(data) != 0 {
		t.Fatalf("expected empty array, got %v", body["data"])
	}
}

func TestTriggerPollWritesAudit(t *testing.T) {
	trail := &fakeAudit{}
	h := NewHandler(&fakeEngine{accept: true}, &fakeNotifications{}, fakeAttendance{}, trail, fakeSummaries{}, time.UTC)
	router := newRouter(h)

	rec, _ := do(t, router, http.MethodPost, "/api/v1/engine/poll", bearer(t, auth.RoleOperator))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(trail.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(trail.entries))
	}
	entry := trail.entries[0]
	if entry.Actor != "ops-1" || entry.Action != audit.ActionPollTrigger || entry.RequestID == "" {
		t.Fatalf("unexpected audit entry %+v", entry)
	}

	rec, body := do(t, router, http.MethodGet, "/api/v1/engine/audit?actor=ops-1", bearer(t, auth.RoleViewer))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if data, _ := body["data"].([]any); len(data) != 1 {
		t.Fatalf("expected one audit event, got %v", body["data"])
	}
}

func TestTriggerPollAuditFailureIsNotFatal(t *testing.T) {
	trail := &fakeAudit{err: errors.New("db down")}
	h := NewHandler(&fakeEngine{accept: true}, &fakeNotifications{}, fakeAttendance{}, trail, fakeSummaries{}, time.UTC)

	rec, _ := do(t, newRouter(h), http.MethodPost, "/api/v1/engine/poll", bearer(t, auth.RoleOperator))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 despite audit failure, got %d", rec.Code)
	}
}

func TestDailySummary(t *testing.T) {
	router := newRouter(newHandler(&fakeEngine{}, &fakeNotifications{}, time.UTC))

	rec, body := do(t, router, http.MethodGet, "/api/v1/engine/summary?date=2025-03-04", bearer(t, auth.RoleViewer))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, _ := body["data"].(map[string]any)
	if data["date"] != "2025-03-04" || data["present"] != float64(2) {
		t.Fatalf("unexpected summary %v", data)
	}
}
