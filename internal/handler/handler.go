package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"collegeportal/internal/attendance"
	"collegeportal/internal/auth"
	"collegeportal/internal/metrics"
	"collegeportal/internal/reporting"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler serves the attendance API.
type Handler struct {
	svc           *attendance.Service
	jobs          *reporting.Dispatcher
	log           *zap.Logger
	metrics       *metrics.Metrics
	retentionDays int
	checks        map[string]HealthCheck
}

// New creates a handler. jobs may be nil when no queue is configured, in
// which case the job routes answer 503.
func New(svc *attendance.Service, jobs *reporting.Dispatcher, log *zap.Logger, m *metrics.Metrics, retentionDays int, checks map[string]HealthCheck) *Handler {
	registerValidators()
	return &Handler{svc: svc, jobs: jobs, log: log, metrics: m, retentionDays: retentionDays, checks: checks}
}

// Routes registers the API. mw runs in front of every /v1 route and must
// include authentication.
func (h *Handler) Routes(r gin.IRouter, mw ...gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)

	staff := auth.RequireRole(attendance.RoleFaculty, attendance.RoleAdmin)
	v1 := r.Group("/v1", mw...)
	{
		att := v1.Group("/attendance")
		att.POST("/marks", staff, h.PostMarks)
		att.GET("/marks", staff, h.GetMarks)
		att.GET("/report", h.GetReport)
		att.GET("/report.xlsx", staff, h.GetReportXLSX)
		att.GET("/filters", staff, h.GetFilters)
		att.GET("/roster", staff, h.GetRoster)
		att.POST("/report-jobs", staff, h.PostReportJob)
		att.GET("/report-jobs/:id", staff, h.GetReportJob)

		v1.GET("/students/:id/attendance", h.GetStudentAttendance)
		v1.POST("/admin/attendance/purge", auth.RequireRole(attendance.RoleAdmin), h.PostPurge)
	}
}

// Healthz reports per-dependency health; any failing check turns it into 503.
func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func actor(c *gin.Context) attendance.Actor {
	a, _ := auth.ActorFrom(c)
	return a
}

// respondError maps domain errors onto status codes. Storage causes are
// logged here and never sent to the client.
func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		verr *attendance.ValidationError
		serr *attendance.StorageError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, attendance.ErrForbidden), errors.Is(err, reporting.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, reporting.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.As(err, &serr):
		h.log.Error("attendance storage failure",
			zap.String("op", serr.Op),
			zap.String("path", c.FullPath()),
			zap.Error(serr.Err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": serr.Error()})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) observeReport(g attendance.GroupBy, start time.Time) {
	if h.metrics != nil {
		h.metrics.ReportDuration.WithLabelValues(string(g)).Observe(time.Since(start).Seconds())
	}
}
