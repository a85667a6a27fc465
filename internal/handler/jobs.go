package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collegeportal/internal/attendance"
)

func (h *Handler) jobsEnabled(c *gin.Context) bool {
	if h.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "background jobs not configured"})
		return false
	}
	return true
}

// PostReportJob queues a report; the result is polled via GetReportJob.
func (h *Handler) PostReportJob(c *gin.Context) {
	if !h.jobsEnabled(c) {
		return
	}
	var p reportParams
	if err := c.ShouldBindJSON(&p); err != nil {
		h.respondError(c, bindError(err))
		return
	}
	f, err := p.filter()
	if err != nil {
		h.respondError(c, err)
		return
	}
	if _, err := attendance.ParseGroupBy(string(f.GroupBy)); err != nil {
		h.respondError(c, &attendance.ValidationError{Field: "group_by", Message: err.Error()})
		return
	}
	res, err := h.jobs.SubmitReport(c.Request.Context(), actor(c), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": res.ID, "status": res.Status})
}

// GetReportJob returns the state of a queued job.
func (h *Handler) GetReportJob(c *gin.Context) {
	if !h.jobsEnabled(c) {
		return
	}
	res, err := h.jobs.Status(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type purgeRequest struct {
	RetentionDays int `json:"retention_days" binding:"omitempty,min=1"`
}

// PostPurge queues the deletion of attendance older than the retention
// window, archiving it first.
func (h *Handler) PostPurge(c *gin.Context) {
	if !h.jobsEnabled(c) {
		return
	}
	var req purgeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondError(c, bindError(err))
			return
		}
	}
	days := req.RetentionDays
	if days == 0 {
		days = h.retentionDays
	}
	cutoff := h.svc.RetentionCutoff(days)
	res, err := h.jobs.SubmitPurge(c.Request.Context(), actor(c), cutoff)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": res.ID, "status": res.Status, "cutoff": cutoff.Format(attendance.DateLayout)})
}
