package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"collegeportal/internal/attendance"
	"collegeportal/internal/metrics"
	"collegeportal/internal/reporting"
)

type markRequest struct {
	Date     string            `json:"date" binding:"required"`
	CourseID string            `json:"course_id" binding:"omitempty,uuid"`
	Marks    map[string]string `json:"marks" binding:"required,min=1,dive,keys,uuid,endkeys,attendance_status"`
	Notes    map[string]string `json:"notes" binding:"omitempty,dive,max=500"`
}

// PostMarks records a day's attendance for the caller, replacing whatever
// the caller submitted earlier for the same date and course.
func (h *Handler) PostMarks(c *gin.Context) {
	res, err := h.mark(c)
	if h.metrics != nil {
		h.metrics.MarkRequests.WithLabelValues(metrics.Outcome(err)).Inc()
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.MarksWritten.Add(float64(res.Written))
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) mark(c *gin.Context) (attendance.MarkResult, error) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return attendance.MarkResult{}, bindError(err)
	}
	date, err := parseDay("date", req.Date)
	if err != nil {
		return attendance.MarkResult{}, err
	}
	marks := make(map[string]attendance.Status, len(req.Marks))
	for id, v := range req.Marks {
		st, err := attendance.ParseStatus(v)
		if err != nil {
			return attendance.MarkResult{}, &attendance.ValidationError{Field: "marks", Message: err.Error()}
		}
		marks[strings.ToLower(strings.TrimSpace(id))] = st
	}
	return h.svc.Mark(c.Request.Context(), actor(c), attendance.MarkRequest{
		Date:     date,
		CourseID: optionalID(req.CourseID),
		Marks:    marks,
		Notes:    req.Notes,
	})
}

// GetMarks returns the statuses stored under (faculty, date, course) so a
// marking form can be pre-filled.
func (h *Handler) GetMarks(c *gin.Context) {
	date, err := parseDay("date", c.Query("date"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	key := attendance.MarkKey{MarkerID: c.Query("faculty_id"), Date: date, CourseID: optionalID(c.Query("course_id"))}
	marks, err := h.svc.Marks(c.Request.Context(), actor(c), key)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": c.Query("date"), "marks": marks})
}

// GetReport serves the aggregated report. Students are narrowed to their own
// rows by the service.
func (h *Handler) GetReport(c *gin.Context) {
	rep, ok := h.report(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rep)
}

// GetReportXLSX serves the same report as a workbook download.
func (h *Handler) GetReportXLSX(c *gin.Context) {
	rep, ok := h.report(c)
	if !ok {
		return
	}
	data, err := reporting.RenderReport(rep)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="attendance-report-`+rep.From+`-`+rep.To+`.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (h *Handler) report(c *gin.Context) (attendance.Report, bool) {
	f, err := bindReportQuery(c)
	if err != nil {
		h.respondError(c, err)
		return attendance.Report{}, false
	}
	start := time.Now()
	rep, err := h.svc.Report(c.Request.Context(), actor(c), f)
	if err != nil {
		h.respondError(c, err)
		return attendance.Report{}, false
	}
	h.observeReport(rep.GroupBy, start)
	return rep, true
}

// GetStudentAttendance is the per-course summary for one student.
func (h *Handler) GetStudentAttendance(c *gin.Context) {
	from, err := parseDay("from", c.Query("from"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	to, err := parseDay("to", c.Query("to"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	rep, err := h.svc.StudentSummary(c.Request.Context(), actor(c), c.Param("id"), from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// GetFilters lists the values report filters can take. Faculty are scoped to
// their own classrooms; admins see everything unless they pass faculty_id.
func (h *Handler) GetFilters(c *gin.Context) {
	a := actor(c)
	scope := attendance.FilterScope{FacultyID: c.Query("faculty_id")}
	if a.Role == attendance.RoleFaculty && scope.FacultyID == "" {
		scope.FacultyID = a.ID
	}
	opts, err := h.svc.FilterOptions(c.Request.Context(), a, scope)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

type rosterQuery struct {
	Department  string `form:"department"`
	Year        int    `form:"year" binding:"omitempty,min=1"`
	Semester    int    `form:"semester" binding:"omitempty,min=1"`
	Section     string `form:"section"`
	ClassroomID string `form:"classroom_id"`
}

// GetRoster lists the students to show on a marking form.
func (h *Handler) GetRoster(c *gin.Context) {
	var q rosterQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.respondError(c, bindError(err))
		return
	}
	students, err := h.svc.Roster(c.Request.Context(), actor(c), attendance.RosterFilter(q))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}
