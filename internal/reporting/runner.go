package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"collegeportal/internal/attendance"
	"collegeportal/internal/cloudinary"
	"collegeportal/internal/metrics"
	"collegeportal/internal/queue"
)

// Uploader stores rendered workbooks somewhere clients can fetch them.
type Uploader interface {
	UploadRaw(ctx context.Context, data []byte, publicID, filename string) (*cloudinary.UploadResult, error)
}

// Runner executes queued report and purge jobs.
type Runner struct {
	svc      *attendance.Service
	store    ResultStore
	uploader Uploader
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewRunner wires a runner. uploader and m may be nil.
func NewRunner(svc *attendance.Service, store ResultStore, uploader Uploader, log *zap.Logger, m *metrics.Metrics) *Runner {
	return &Runner{svc: svc, store: store, uploader: uploader, log: log, metrics: m, now: time.Now}
}

// Run consumes q until ctx is cancelled.
func (r *Runner) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	r.log.Info("worker started, waiting for jobs")
	for msg := range messages {
		if err := r.Handle(ctx, msg); err != nil {
			r.log.Warn("job failed", zap.String("type", msg.Type), zap.Error(err))
		}
	}
	r.log.Info("worker stopped")
	return nil
}

// Handle runs one message and records its result.
func (r *Runner) Handle(ctx context.Context, msg queue.Message) error {
	var job Job
	if err := msg.Decode(&job); err != nil {
		r.observe(msg.Type, err)
		return fmt.Errorf("decode job: %w", err)
	}
	res := JobResult{ID: job.ID, Type: job.Type, Status: StatusRunning, OwnerID: job.ActorID, CreatedAt: job.RequestedAt}
	r.save(ctx, res)

	var err error
	switch msg.Type {
	case queue.TypeReport:
		err = r.report(ctx, job, &res)
	case queue.TypePurge:
		err = r.purge(ctx, job, &res)
	default:
		err = fmt.Errorf("unknown job type %q", msg.Type)
	}
	r.observe(msg.Type, err)

	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
	} else {
		res.Status = StatusDone
	}
	r.save(ctx, res)
	if err != nil {
		var serr *attendance.StorageError
		if errors.As(err, &serr) {
			r.log.Error("job storage failure", zap.String("job_id", job.ID), zap.String("op", serr.Op), zap.Error(serr.Err))
		}
	}
	return err
}

func (r *Runner) report(ctx context.Context, job Job, res *JobResult) error {
	start := r.now()
	rep, err := r.svc.Report(ctx, job.Actor(), job.Filter)
	if err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.ReportDuration.WithLabelValues(string(rep.GroupBy)).Observe(r.now().Sub(start).Seconds())
	}
	res.Report = &rep
	if r.uploader == nil {
		return nil
	}
	data, err := RenderReport(rep)
	if err != nil {
		return err
	}
	up, err := r.uploader.UploadRaw(ctx, data, "report-"+job.ID, "attendance-report-"+rep.From+"-"+rep.To+".xlsx")
	if err != nil {
		return err
	}
	res.FileURL = up.SecureURL
	return nil
}

// purge deletes expired rows, archiving exactly the deleted rows first when
// an uploader is configured. A failed upload aborts the purge so nothing is
// lost.
func (r *Runner) purge(ctx context.Context, job Job, res *JobResult) error {
	var archive func([]attendance.Record) error
	if r.uploader != nil {
		archive = func(recs []attendance.Record) error {
			data, err := RenderRecords(recs)
			if err != nil {
				return err
			}
			name := "attendance-archive-before-" + job.Cutoff.Format(attendance.DateLayout) + ".xlsx"
			up, err := r.uploader.UploadRaw(ctx, data, "archive-"+job.ID, name)
			if err != nil {
				return err
			}
			res.FileURL = up.SecureURL
			res.Archived = len(recs)
			return nil
		}
	}
	n, err := r.svc.Purge(ctx, job.Actor(), job.Cutoff, archive)
	if err != nil {
		return err
	}
	res.Purged = n
	r.log.Info("attendance purged",
		zap.String("job_id", job.ID),
		zap.String("cutoff", job.Cutoff.Format(attendance.DateLayout)),
		zap.Int("archived", res.Archived),
		zap.Int64("rows", n))
	return nil
}

func (r *Runner) save(ctx context.Context, res JobResult) {
	res.UpdatedAt = r.now().UTC()
	if err := r.store.Save(ctx, res); err != nil {
		r.log.Error("save job result", zap.String("job_id", res.ID), zap.Error(err))
	}
}

func (r *Runner) observe(typ string, err error) {
	if r.metrics != nil {
		r.metrics.JobsProcessed.WithLabelValues(typ, metrics.Outcome(err)).Inc()
	}
}
