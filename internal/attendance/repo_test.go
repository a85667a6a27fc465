package attendance

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func testRecords(n int) []Record {
	marked := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	ids := []string{s1, s2, s3}
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Record{ID: "r" + ids[i], StudentID: ids[i], Date: march1, Status: StatusPresent, MarkedBy: facultyID, MarkedAt: marked})
	}
	return out
}

func anyArgs(n int) []driver.Value {
	out := make([]driver.Value, n)
	for i := range out {
		out[i] = sqlmock.AnyArg()
	}
	return out
}

func TestPostgresReplaceMarks(t *testing.T) {
	repo, mock := newMockRepo(t)
	key := MarkKey{MarkerID: facultyID, Date: march1}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)).
		WithArgs("attendance:" + facultyID + ":2024-03-01:").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM attendance WHERE marked_by = $1 AND date = $2 AND course_id IS NULL`)).
		WithArgs(facultyID, march1).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO attendance \(id, student_id, course_id, date, status, marked_by, marked_at, notes\) VALUES \(\$1,.*\$8\), \(\$9,.*\$16\)$`).
		WithArgs(anyArgs(16)...).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.ReplaceMarks(context.Background(), key, testRecords(2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReplaceMarksRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	course := courseID
	key := MarkKey{MarkerID: facultyID, Date: march1, CourseID: &course}

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).
		WithArgs("attendance:course:" + courseID + ":2024-03-01").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM attendance WHERE course_id = $1 AND date = $2`)).
		WithArgs(courseID, march1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO attendance`).
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	_, err := repo.ReplaceMarks(context.Background(), key, testRecords(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert marks")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarks(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT student_id, status FROM attendance WHERE marked_by = $1 AND date = $2 AND course_id IS NULL`)).
		WithArgs(facultyID, march1).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "status"}).
			AddRow(s1, "present").
			AddRow(s2, "late"))

	got, err := repo.Marks(context.Background(), MarkKey{MarkerID: facultyID, Date: march1})
	require.NoError(t, err)
	assert.Equal(t, map[string]Status{s1: StatusPresent, s2: StatusLate}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarksByCourseIgnoresMarker(t *testing.T) {
	repo, mock := newMockRepo(t)
	course := courseID
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT student_id, status FROM attendance WHERE course_id = $1 AND date = $2`)).
		WithArgs(courseID, march1).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "status"}).AddRow(s1, "absent"))

	got, err := repo.Marks(context.Background(), MarkKey{MarkerID: adminID, Date: march1, CourseID: &course})
	require.NoError(t, err)
	assert.Equal(t, map[string]Status{s1: StatusAbsent}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetCourse(t *testing.T) {
	repo, mock := newMockRepo(t)
	cols := []string{"id", "code", "name", "department", "faculty_id", "is_active"}
	mock.ExpectQuery(`FROM courses WHERE id = \$1`).
		WithArgs(courseID).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(courseID, "CS201", "Data Structures", "CSE", facultyID, true))
	mock.ExpectQuery(`FROM courses WHERE id = \$1`).
		WithArgs(s1).
		WillReturnRows(sqlmock.NewRows(cols))

	c, err := repo.GetCourse(context.Background(), courseID)
	require.NoError(t, err)
	assert.Equal(t, "CS201", c.Code)
	require.NotNil(t, c.FacultyID)
	assert.Equal(t, facultyID, *c.FacultyID)

	_, err = repo.GetCourse(context.Background(), s1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresActiveStudents(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(`id IN ($1,$2)`)).
		WithArgs(s1, s2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(s1))

	got, err := repo.ActiveStudents(context.Background(), []string{s1, s2})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{s1: true}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAggregate(t *testing.T) {
	repo, mock := newMockRepo(t)
	f := ReportFilter{Department: "CSE", Year: 2, From: march1, To: march1, GroupBy: GroupByClassroom}
	cols := []string{"total_row", "department", "year", "semester", "section", "total", "present", "absent", "late", "students", "days"}

	mock.ExpectQuery(`GROUP BY GROUPING SETS \(\(u\.department, u\.year, u\.semester, u\.section\), \(\)\)`).
		WithArgs(march1, march1, "CSE", 2).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(false, "CSE", int64(2), int64(3), "A", int64(3), int64(1), int64(1), int64(1), int64(3), int64(1)).
			AddRow(true, "", int64(0), int64(0), "", int64(3), int64(1), int64(1), int64(1), int64(3), int64(1)))

	groups, overall, err := repo.Aggregate(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, GroupKey{Department: "CSE", Year: 2, Semester: 3, Section: "A"}, groups[0].Key)
	assert.Equal(t, Counts{Total: 3, Present: 1, Absent: 1, Late: 1, Students: 3, Days: 1}, overall)

	rep := BuildReport(f, groups, overall)
	assert.Equal(t, 66.6, rep.Overall.AttendanceRate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAggregateByDateFiltersCourse(t *testing.T) {
	repo, mock := newMockRepo(t)
	f := ReportFilter{CourseID: courseID, StudentID: s1, From: march1, To: march1, GroupBy: GroupByDate}
	mock.ExpectQuery(regexp.QuoteMeta(`a.course_id = $3 AND a.student_id = $4`)).
		WithArgs(march1, march1, courseID, s1).
		WillReturnRows(sqlmock.NewRows([]string{"total_row", "date", "total", "present", "absent", "late", "students", "days"}).
			AddRow(true, "", int64(0), int64(0), int64(0), int64(0), int64(0), int64(0)))

	groups, overall, err := repo.Aggregate(context.Background(), f)
	require.NoError(t, err)
	assert.Empty(t, groups)
	assert.Equal(t, Counts{}, overall)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFilterOptionsScoped(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`JOIN classroom_assignments ca`).
		WithArgs(facultyID).
		WillReturnRows(sqlmock.NewRows([]string{"department", "year", "semester", "section", "name"}).
			AddRow("ECE", int64(1), int64(2), "B", "ECE-1B").
			AddRow("CSE", int64(2), int64(3), "A", "CSE-2A").
			AddRow(nil, nil, nil, nil, nil))

	got, err := repo.FilterOptions(context.Background(), FilterScope{FacultyID: facultyID})
	require.NoError(t, err)
	assert.Equal(t, []string{"CSE", "ECE"}, got.Departments)
	assert.Equal(t, []int{1, 2}, got.Years)
	assert.Equal(t, []int{2, 3}, got.Semesters)
	assert.Equal(t, []string{"CSE-2A", "ECE-1B"}, got.Classrooms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var purgeColumns = []string{"id", "student_id", "course_id", "date", "status", "marked_by", "marked_at", "notes"}

func TestPostgresPurgeBefore(t *testing.T) {
	cutoff := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	jan := time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2023, 2, 10, 0, 0, 0, 0, time.UTC)
	expired := func() *sqlmock.Rows {
		return sqlmock.NewRows(purgeColumns).
			AddRow("r2", s2, nil, feb, "late", facultyID, feb, nil).
			AddRow("r1", s1, courseID, jan, "present", facultyID, jan, "ok")
	}
	deleteQuery := `DELETE FROM attendance\s+WHERE date < \$1\s+RETURNING id, student_id, course_id, date, status, marked_by, marked_at, notes`

	t.Run("archives the deleted rows then commits", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(deleteQuery).WithArgs(cutoff).WillReturnRows(expired())
		mock.ExpectCommit()

		var archived []Record
		n, err := repo.PurgeBefore(context.Background(), cutoff, func(recs []Record) error {
			archived = recs
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		require.Len(t, archived, 2)
		assert.Equal(t, "r1", archived[0].ID, "archive is ordered by date")
		assert.Equal(t, courseID, *archived[0].CourseID)
		assert.Equal(t, StatusLate, archived[1].Status)
		assert.Nil(t, archived[1].CourseID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("archive failure rolls back", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(deleteQuery).WithArgs(cutoff).WillReturnRows(expired())
		mock.ExpectRollback()

		uploadErr := errors.New("upload failed")
		_, err := repo.PurgeBefore(context.Background(), cutoff, func([]Record) error { return uploadErr })
		assert.ErrorIs(t, err, uploadErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
