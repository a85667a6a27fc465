package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"collegeportal/internal/attendance"
	"collegeportal/internal/queue"
)

// ErrNotOwner is returned when a caller polls a job somebody else submitted.
var ErrNotOwner = errors.New("job belongs to another user")

// Dispatcher records pending jobs and hands them to the worker queue.
type Dispatcher struct {
	q     queue.Queue
	store ResultStore
	now   func() time.Time
}

// NewDispatcher creates a dispatcher publishing on q.
func NewDispatcher(q queue.Queue, store ResultStore) *Dispatcher {
	return &Dispatcher{q: q, store: store, now: time.Now}
}

// SubmitReport queues an asynchronous report for actor.
func (d *Dispatcher) SubmitReport(ctx context.Context, actor attendance.Actor, f attendance.ReportFilter) (JobResult, error) {
	return d.submit(ctx, Job{Type: queue.TypeReport, ActorID: actor.ID, ActorRole: actor.Role, Filter: f})
}

// SubmitPurge queues a retention purge of everything dated before cutoff.
func (d *Dispatcher) SubmitPurge(ctx context.Context, actor attendance.Actor, cutoff time.Time) (JobResult, error) {
	return d.submit(ctx, Job{Type: queue.TypePurge, ActorID: actor.ID, ActorRole: actor.Role, Cutoff: cutoff})
}

// submit saves the pending result before publishing so a fast worker never
// overwrites a later "pending". Queue and store failures surface as
// attendance.StorageError; a job that could not be published is marked failed.
func (d *Dispatcher) submit(ctx context.Context, job Job) (JobResult, error) {
	now := d.now().UTC()
	job.ID = uuid.NewString()
	job.RequestedAt = now
	res := JobResult{ID: job.ID, Type: job.Type, Status: StatusPending, OwnerID: job.ActorID, CreatedAt: now, UpdatedAt: now}
	msg, err := queue.NewMessage(job.Type, job)
	if err != nil {
		return JobResult{}, err
	}
	if err := d.store.Save(ctx, res); err != nil {
		return JobResult{}, &attendance.StorageError{Op: "save " + job.Type + " job", Err: err}
	}
	if err := d.q.Publish(ctx, msg); err != nil {
		res.Status = StatusFailed
		res.Error = "could not be queued"
		res.UpdatedAt = d.now().UTC()
		if serr := d.store.Save(ctx, res); serr != nil {
			err = errors.Join(err, serr)
		}
		return JobResult{}, &attendance.StorageError{Op: "publish " + job.Type + " job", Err: err}
	}
	return res, nil
}

// Status returns a job result. Only the submitter or an admin may read it.
func (d *Dispatcher) Status(ctx context.Context, actor attendance.Actor, id string) (JobResult, error) {
	if _, err := uuid.Parse(id); err != nil {
		return JobResult{}, ErrJobNotFound
	}
	res, err := d.store.Get(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		return JobResult{}, err
	}
	if err != nil {
		return JobResult{}, &attendance.StorageError{Op: "get job", Err: err}
	}
	if res.OwnerID != actor.ID && actor.Role != attendance.RoleAdmin {
		return JobResult{}, ErrNotOwner
	}
	return res, nil
}
