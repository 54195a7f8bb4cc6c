package enginehandler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shiftwatch/internal/domain/attendance"
	"shiftwatch/internal/domain/audit"
	"shiftwatch/internal/domain/notify"
	"shiftwatch/internal/domain/reports"
	"shiftwatch/internal/platform/jobs"
	"shiftwatch/internal/requestctx"
	"shiftwatch/internal/transport/http/api"
	"shiftwatch/internal/transport/http/middleware"
	"shiftwatch/internal/transport/http/shared"
)

type Engine interface {
	TriggerPoll() bool
	RecentRuns(ctx context.Context, filter jobs.RunFilter, limit int) ([]jobs.Run, error)
}

type AuditTrail interface {
	Record(ctx context.Context, e audit.Entry) error
	List(ctx context.Context, filter audit.Filter, limit, offset int) ([]audit.Event, error)
}

type Summaries interface {
	Daily(ctx context.Context, date time.Time) (reports.DailySummary, error)
}

type NotificationLister interface {
	ListByDate(ctx context.Context, date time.Time) ([]notify.Record, error)
}

type AttendanceLister interface {
	ListByDate(ctx context.Context, date time.Time) ([]attendance.Record, error)
}

type Handler struct {
	Engine        Engine
	Notifications NotificationLister
	Attendance    AttendanceLister
	Audit         AuditTrail
	Summaries     Summaries
	Location      *time.Location
	Now           func() time.Time
	TriggerLimit  int
}

func NewHandler(engine Engine, notifications NotificationLister, att AttendanceLister, trail AuditTrail, summaries Summaries, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		Engine:        engine,
		Notifications: notifications,
		Attendance:    att,
		Audit:         trail,
		Summaries:     summaries,
		Location:      loc,
		Now:           time.Now,
		TriggerLimit:  6,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/engine", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.With(middleware.RequireOperator, middleware.RateLimit(h.TriggerLimit, time.Minute)).Post("/poll", h.handleTriggerPoll)
		r.Get("/runs", h.handleListRuns)
		r.Get("/dispatches", h.handleListDispatches)
		r.Get("/attendance", h.handleListAttendance)
		r.Get("/summary", h.handleDailySummary)
		r.Get("/audit", h.handleListAudit)
	})
}

func (h *Handler) handleTriggerPoll(w http.ResponseWriter, r *http.Request) {
	if !h.Engine.TriggerPoll() {
		api.Fail(w, r, http.StatusServiceUnavailable, "queue_full", "poll could not be queued")
		return
	}
	user, _ := middleware.GetUser(r.Context())
	log := requestctx.Logger(r.Context())
	log.Info("manual poll queued", "subject", user.Subject)
	if err := h.Audit.Record(r.Context(), audit.Entry{
		Actor:     user.Subject,
		Action:    audit.ActionPollTrigger,
		RequestID: requestctx.GetRequestID(r.Context()),
		IP:        middleware.ClientIP(r),
	}); err != nil {
		log.Warn("audit record failed", "action", audit.ActionPollTrigger, "err", err)
	}
	api.Accepted(w, r, map[string]string{"status": "queued"})
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	page, ok := queryPage(w, r)
	if !ok {
		return
	}
	filter := jobs.RunFilter{JobType: r.URL.Query().Get("type"), Status: r.URL.Query().Get("status")}
	runs, err := h.Engine.RecentRuns(r.Context(), filter, page.Limit)
	if err != nil {
		requestctx.Logger(r.Context()).Error("list job runs failed", "err", err)
		api.Fail(w, r, http.StatusInternalServerError, "runs_failed", "failed to list runs")
		return
	}
	if runs == nil {
		runs = []jobs.Run{}
	}
	api.Success(w, r, runs)
}

func (h *Handler) handleListDispatches(w http.ResponseWriter, r *http.Request) {
	date, ok := h.queryDate(w, r)
	if !ok {
		return
	}
	records, err := h.Notifications.ListByDate(r.Context(), date)
	if err != nil {
		requestctx.Logger(r.Context()).Error("list notification records failed", "date", date.Format(time.DateOnly), "err", err)
		api.Fail(w, r, http.StatusInternalServerError, "dispatches_failed", "failed to list dispatches")
		return
	}
	if records == nil {
		records = []notify.Record{}
	}
	api.Success(w, r, records)
}

func (h *Handler) handleListAttendance(w http.ResponseWriter, r *http.Request) {
	date, ok := h.queryDate(w, r)
	if !ok {
		return
	}
	records, err := h.Attendance.ListByDate(r.Context(), date)
	if err != nil {
		requestctx.Logger(r.Context()).Error("list attendance records failed", "date", date.Format(time.DateOnly), "err", err)
		api.Fail(w, r, http.StatusInternalServerError, "attendance_failed", "failed to list attendance")
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	api.Success(w, r, records)
}

func (h *Handler) handleDailySummary(w http.ResponseWriter, r *http.Request) {
	date, ok := h.queryDate(w, r)
	if !ok {
		return
	}
	summary, err := h.Summaries.Daily(r.Context(), date)
	if err != nil {
		requestctx.Logger(r.Context()).Error("daily summary failed", "date", date.Format(time.DateOnly), "err", err)
		api.Fail(w, r, http.StatusInternalServerError, "summary_failed", "failed to build summary")
		return
	}
	api.Success(w, r, summary)
}

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	page, ok := queryPage(w, r)
	if !ok {
		return
	}
	filter := audit.Filter{Action: r.URL.Query().Get("action"), Actor: r.URL.Query().Get("actor")}
	events, err := h.Audit.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		requestctx.Logger(r.Context()).Error("list audit events failed", "err", err)
		api.Fail(w, r, http.StatusInternalServerError, "audit_failed", "failed to list audit events")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	api.Success(w, r, events)
}

// queryDate reads ?date=, defaulting to today in the engine's zone.
func (h *Handler) queryDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	day, err := shared.ParseDay(r.URL.Query().Get("date"), h.Now(), h.Location)
	if err != nil {
		api.Fail(w, r, http.StatusBadRequest, "invalid_date", err.Error())
		return time.Time{}, false
	}
	return day, true
}

func queryPage(w http.ResponseWriter, r *http.Request) (shared.Pagination, bool) {
	page, err := shared.ParsePagination(r, 50, 200)
	if err != nil {
		api.Fail(w, r, http.StatusBadRequest, "invalid_pagination", err.Error())
		return shared.Pagination{}, false
	}
	return page, true
}
