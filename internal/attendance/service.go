package attendance

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository is the storage the attendance service runs against.
type Repository interface {
	// ReplaceMarks deletes every row under key and inserts records, atomically.
	// A key with a course matches rows of any marker.
	ReplaceMarks(ctx context.Context, key MarkKey, records []Record) (int, error)
	Marks(ctx context.Context, key MarkKey) (map[string]Status, error)
	GetCourse(ctx context.Context, id string) (Course, error)
	ActiveStudents(ctx context.Context, ids []string) (map[string]bool, error)
	Aggregate(ctx context.Context, f ReportFilter) ([]GroupCounts, Counts, error)
	FilterOptions(ctx context.Context, scope FilterScope) (FilterOptions, error)
	Roster(ctx context.Context, f RosterFilter) ([]Student, error)
	// PurgeBefore deletes rows dated before cutoff. archive sees exactly the
	// deleted rows and a non-nil error from it keeps them.
	PurgeBefore(ctx context.Context, cutoff time.Time, archive func([]Record) error) (int64, error)
}

// Service coordinates marking, lookups and reporting.
type Service struct {
	repo       Repository
	loc        *time.Location
	windowDays int
	now        func() time.Time
}

// NewService creates a service backed by a repository. loc decides what
// "today" is; windowDays is the default report window.
func NewService(repo Repository, loc *time.Location, windowDays int) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if windowDays <= 0 {
		windowDays = 30
	}
	return &Service{repo: repo, loc: loc, windowDays: windowDays, now: time.Now}
}

// Today returns the current calendar day in the service timezone.
func (s *Service) Today() time.Time {
	return calendarDay(s.now().In(s.loc))
}

func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(v string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// Mark records one day's attendance. All rows previously written under the
// same key are replaced, including those of students missing from this
// submission. Without a course the key is (actor, date); with one it is
// (course, date) whoever marked it, so a student has one row per course day.
func (s *Service) Mark(ctx context.Context, actor Actor, req MarkRequest) (MarkResult, error) {
	if !actor.CanMark() {
		return MarkResult{}, ErrForbidden
	}
	if _, err := uuid.Parse(actor.ID); err != nil {
		return MarkResult{}, invalid("marked_by", "invalid caller id")
	}
	if err := s.checkDate(req.Date); err != nil {
		return MarkResult{}, err
	}
	req.Date = calendarDay(req.Date)
	if len(req.Marks) == 0 {
		return MarkResult{}, invalid("marks", "at least one student is required")
	}

	ids := make([]string, 0, len(req.Marks))
	for id, st := range req.Marks {
		if _, err := uuid.Parse(id); err != nil {
			return MarkResult{}, invalid("marks", "invalid student id %q", id)
		}
		if !st.Valid() {
			return MarkResult{}, invalid("marks", "invalid status %q for student %s", st, id)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	courseID, err := normalizeID("course_id", req.CourseID)
	if err != nil {
		return MarkResult{}, err
	}
	if courseID != nil {
		course, err := s.course(ctx, *courseID)
		if err != nil {
			return MarkResult{}, err
		}
		if !owns(actor, course) {
			return MarkResult{}, invalid("course_id", "course is not assigned to you")
		}
	}

	known, err := s.repo.ActiveStudents(ctx, ids)
	if err != nil {
		return MarkResult{}, storageErr("active students", err)
	}
	for _, id := range ids {
		if !known[id] {
			return MarkResult{}, invalid("marks", "unknown student %s", id)
		}
	}

	now := s.now().UTC()
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec := Record{
			ID:        uuid.NewString(),
			StudentID: id,
			CourseID:  courseID,
			Date:      req.Date,
			Status:    req.Marks[id],
			MarkedBy:  actor.ID,
			MarkedAt:  now,
		}
		if note := strings.TrimSpace(req.Notes[id]); note != "" {
			rec.Notes = &note
		}
		records = append(records, rec)
	}

	key := MarkKey{MarkerID: actor.ID, Date: req.Date, CourseID: courseID}
	n, err := s.repo.ReplaceMarks(ctx, key, records)
	if err != nil {
		return MarkResult{}, storageErr("replace marks", err)
	}
	return MarkResult{Written: n}, nil
}

// Marks returns the statuses currently recorded under key. Course marks are
// readable by the course's faculty; otherwise faculty may only read their own
// submissions. An empty MarkerID means the actor.
func (s *Service) Marks(ctx context.Context, actor Actor, key MarkKey) (map[string]Status, error) {
	if !actor.CanMark() {
		return nil, ErrForbidden
	}
	if key.Date.IsZero() {
		return nil, invalid("date", "is required")
	}
	key.Date = calendarDay(key.Date)
	courseID, err := normalizeID("course_id", key.CourseID)
	if err != nil {
		return nil, err
	}
	key.CourseID = courseID

	if courseID != nil {
		course, err := s.course(ctx, *courseID)
		if err != nil {
			return nil, err
		}
		if !owns(actor, course) {
			return nil, ErrForbidden
		}
	} else {
		if key.MarkerID == "" {
			key.MarkerID = actor.ID
		}
		if key.MarkerID != actor.ID && actor.Role != RoleAdmin {
			return nil, ErrForbidden
		}
		if _, err := uuid.Parse(key.MarkerID); err != nil {
			return nil, invalid("faculty_id", "invalid id")
		}
	}

	marks, err := s.repo.Marks(ctx, key)
	if err != nil {
		return nil, storageErr("marks", err)
	}
	if marks == nil {
		marks = map[string]Status{}
	}
	return marks, nil
}

// Report aggregates attendance over the filter's window. Students only ever
// see their own rows.
func (s *Service) Report(ctx context.Context, actor Actor, f ReportFilter) (Report, error) {
	switch actor.Role {
	case RoleStudent:
		if f.StudentID != "" && f.StudentID != actor.ID {
			return Report{}, ErrForbidden
		}
		f.StudentID = actor.ID
	case RoleFaculty, RoleAdmin:
	default:
		return Report{}, ErrForbidden
	}

	q, err := s.resolve(f)
	if err != nil {
		return Report{}, err
	}
	groups, overall, err := s.repo.Aggregate(ctx, q)
	if err != nil {
		return Report{}, storageErr("aggregate", err)
	}
	return BuildReport(q, groups, overall), nil
}

func (s *Service) course(ctx context.Context, id string) (Course, error) {
	c, err := s.repo.GetCourse(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Course{}, invalid("course_id", "unknown course")
	}
	if err != nil {
		return Course{}, storageErr("get course", err)
	}
	return c, nil
}

func owns(actor Actor, c Course) bool {
	return actor.Role == RoleAdmin || (c.FacultyID != nil && *c.FacultyID == actor.ID)
}

// StudentSummary is a per-course report for one student.
func (s *Service) StudentSummary(ctx context.Context, actor Actor, studentID string, from, to time.Time) (Report, error) {
	return s.Report(ctx, actor, ReportFilter{StudentID: studentID, From: from, To: to, GroupBy: GroupByCourse})
}

func (s *Service) resolve(f ReportFilter) (ReportFilter, error) {
	g, err := ParseGroupBy(string(f.GroupBy))
	if err != nil {
		return f, invalid("group_by", "%v", err)
	}
	f.GroupBy = g
	if f.Year < 0 {
		return f, invalid("year", "must be positive")
	}
	if f.Semester < 0 {
		return f, invalid("semester", "must be positive")
	}
	for field, v := range map[string]string{"course_id": f.CourseID, "student_id": f.StudentID} {
		if v == "" {
			continue
		}
		if _, err := uuid.Parse(v); err != nil {
			return f, invalid(field, "invalid id")
		}
	}

	today := s.Today()
	switch {
	case f.From.IsZero() && f.To.IsZero():
		f.To = today
		f.From = today.AddDate(0, 0, -s.windowDays)
	case f.To.IsZero():
		f.To = today
	case f.From.IsZero():
		f.From = f.To.AddDate(0, 0, -s.windowDays)
	}
	if f.From.After(f.To) {
		return f, invalid("from", "must not be after to")
	}
	return f, nil
}

// FilterOptions lists the distinct filter values, optionally limited to one
// faculty member's classrooms.
func (s *Service) FilterOptions(ctx context.Context, actor Actor, scope FilterScope) (FilterOptions, error) {
	if !actor.CanMark() {
		return FilterOptions{}, ErrForbidden
	}
	if scope.FacultyID != "" {
		if scope.FacultyID != actor.ID && actor.Role != RoleAdmin {
			return FilterOptions{}, ErrForbidden
		}
		if _, err := uuid.Parse(scope.FacultyID); err != nil {
			return FilterOptions{}, invalid("faculty_id", "invalid id")
		}
	}
	opts, err := s.repo.FilterOptions(ctx, scope)
	if err != nil {
		return FilterOptions{}, storageErr("filter options", err)
	}
	return normalizeOptions(opts), nil
}

func normalizeOptions(o FilterOptions) FilterOptions {
	if o.Departments == nil {
		o.Departments = []string{}
	}
	if o.Years == nil {
		o.Years = []int{}
	}
	if o.Semesters == nil {
		o.Semesters = []int{}
	}
	if o.Sections == nil {
		o.Sections = []string{}
	}
	if o.Classrooms == nil {
		o.Classrooms = []string{}
	}
	sort.Strings(o.Departments)
	sort.Ints(o.Years)
	sort.Ints(o.Semesters)
	sort.Strings(o.Sections)
	sort.Strings(o.Classrooms)
	return o
}

// Roster lists the active students a marking form should offer.
func (s *Service) Roster(ctx context.Context, actor Actor, f RosterFilter) ([]Student, error) {
	if !actor.CanMark() {
		return nil, ErrForbidden
	}
	if f.ClassroomID != "" {
		if _, err := uuid.Parse(f.ClassroomID); err != nil {
			return nil, invalid("classroom_id", "invalid id")
		}
	}
	students, err := s.repo.Roster(ctx, f)
	if err != nil {
		return nil, storageErr("roster", err)
	}
	if students == nil {
		students = []Student{}
	}
	return students, nil
}

// RetentionCutoff returns the first day that is kept for a retention of days.
func (s *Service) RetentionCutoff(days int) time.Time {
	return s.Today().AddDate(0, 0, -days)
}

// Purge deletes the records dated before cutoff. archive, when set, receives
// exactly the rows being deleted; if it fails nothing is deleted and its error
// is returned as is.
func (s *Service) Purge(ctx context.Context, actor Actor, cutoff time.Time, archive func([]Record) error) (int64, error) {
	if actor.Role != RoleAdmin {
		return 0, ErrForbidden
	}
	if err := s.checkCutoff(cutoff); err != nil {
		return 0, err
	}
	var archiveErr error
	n, err := s.repo.PurgeBefore(ctx, cutoff, func(recs []Record) error {
		if archive == nil {
			return nil
		}
		archiveErr = archive(recs)
		return archiveErr
	})
	if archiveErr != nil {
		return 0, archiveErr
	}
	if err != nil {
		return 0, storageErr("purge", err)
	}
	return n, nil
}

func (s *Service) checkDate(d time.Time) error {
	if d.IsZero() {
		return invalid("date", "is required")
	}
	if calendarDay(d).After(s.Today()) {
		return invalid("date", "must not be in the future")
	}
	return nil
}

func (s *Service) checkCutoff(cutoff time.Time) error {
	if cutoff.IsZero() {
		return invalid("cutoff", "is required")
	}
	if cutoff.After(s.Today()) {
		return invalid("cutoff", "must not be in the future")
	}
	return nil
}

func normalizeID(field string, id *string) (*string, error) {
	if id == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*id)
	if v == "" {
		return nil, nil
	}
	if _, err := uuid.Parse(v); err != nil {
		return nil, invalid(field, "invalid id")
	}
	return &v, nil
}
