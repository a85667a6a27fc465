package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PostgresRepository persists attendance in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ReplaceMarks deletes the rows under key and bulk-inserts records in one
// transaction. A transaction-scoped advisory lock on the key serializes
// concurrent submissions for the same key.
func (r *PostgresRepository) ReplaceMarks(ctx context.Context, key MarkKey, records []Record) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin mark tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey(key)); err != nil {
		return 0, fmt.Errorf("lock mark key: %w", err)
	}
	where, args := keyWhere(key)
	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance WHERE `+where, args...); err != nil {
		return 0, fmt.Errorf("delete marks: %w", err)
	}
	if len(records) > 0 {
		query, args := insertRecords(records)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("insert marks: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit marks: %w", err)
	}
	return len(records), nil
}

// keyWhere scopes a mark key. A course key is shared by everyone allowed to
// mark the course; a key without a course belongs to one faculty member.
func keyWhere(key MarkKey) (string, []any) {
	if key.CourseID != nil {
		return "course_id = $1 AND date = $2", []any{*key.CourseID, key.Date}
	}
	return "marked_by = $1 AND date = $2 AND course_id IS NULL", []any{key.MarkerID, key.Date}
}

func lockKey(key MarkKey) string {
	day := key.Date.Format(DateLayout)
	if key.CourseID != nil {
		return "attendance:course:" + *key.CourseID + ":" + day
	}
	return "attendance:" + key.MarkerID + ":" + day + ":"
}

const recordColumns = 8

func insertRecords(records []Record) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO attendance (id, student_id, course_id, date, status, marked_by, marked_at, notes) VALUES `)
	args := make([]any, 0, len(records)*recordColumns)
	for i, rec := range records {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := 0; j < recordColumns; j++ {
			if j > 0 {
				b.WriteString(",")
			}
			b.WriteString("$" + itoa(len(args)+j+1))
		}
		b.WriteString(")")
		args = append(args, rec.ID, rec.StudentID, nullable(rec.CourseID), rec.Date, string(rec.Status), rec.MarkedBy, rec.MarkedAt, nullable(rec.Notes))
	}
	return b.String(), args
}

// Marks returns student -> status for one mark key.
func (r *PostgresRepository) Marks(ctx context.Context, key MarkKey) (map[string]Status, error) {
	where, args := keyWhere(key)
	rows, err := r.db.QueryContext(ctx, `SELECT student_id, status FROM attendance WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]Status{}
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		out[id] = Status(status)
	}
	return out, rows.Err()
}

// GetCourse returns a single course by id.
func (r *PostgresRepository) GetCourse(ctx context.Context, id string) (Course, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, code, name, COALESCE(department, ''), faculty_id, is_active
		FROM courses WHERE id = $1
	`, id)
	var c Course
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Department, &c.FacultyID, &c.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, ErrNotFound
		}
		return Course{}, err
	}
	return c, nil
}

// ActiveStudents reports which of ids are active students.
func (r *PostgresRepository) ActiveStudents(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	marks := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		marks[i] = "$" + itoa(i+1)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM users
		WHERE role = 'student' AND is_active AND id IN (`+strings.Join(marks, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

type grouping struct {
	cols  string // GROUP BY expressions
	first string // expression passed to GROUPING()
	sel   string
	scan  func(k *GroupKey) []any
}

var groupings = map[GroupBy]grouping{
	GroupByClassroom: {
		cols:  "u.department, u.year, u.semester, u.section",
		first: "u.department",
		sel:   "COALESCE(u.department, ''), COALESCE(u.year, 0), COALESCE(u.semester, 0), COALESCE(u.section, '')",
		scan:  func(k *GroupKey) []any { return []any{&k.Department, &k.Year, &k.Semester, &k.Section} },
	},
	GroupByDepartment: {
		cols:  "u.department",
		first: "u.department",
		sel:   "COALESCE(u.department, '')",
		scan:  func(k *GroupKey) []any { return []any{&k.Department} },
	},
	GroupByCourse: {
		cols:  "a.course_id, c.code, c.name",
		first: "a.course_id",
		sel:   "COALESCE(a.course_id::text, ''), COALESCE(c.code, ''), COALESCE(c.name, '')",
		scan:  func(k *GroupKey) []any { return []any{&k.CourseID, &k.CourseCode, &k.CourseName} },
	},
	GroupByDate: {
		cols:  "a.date",
		first: "a.date",
		sel:   "COALESCE(to_char(a.date, 'YYYY-MM-DD'), '')",
		scan:  func(k *GroupKey) []any { return []any{&k.Date} },
	},
}

// Aggregate runs one grouped query returning per-group tallies plus the
// overall tally through an empty grouping set.
func (r *PostgresRepository) Aggregate(ctx context.Context, f ReportFilter) ([]GroupCounts, Counts, error) {
	g, ok := groupings[f.GroupBy]
	if !ok {
		g = groupings[GroupByClassroom]
	}
	args := []any{f.From, f.To}
	clauses := []string{"a.date BETWEEN $1 AND $2"}
	add := func(expr string, v any) {
		args = append(args, v)
		clauses = append(clauses, expr+" = $"+itoa(len(args)))
	}
	if f.Department != "" {
		add("u.department", f.Department)
	}
	if f.Year > 0 {
		add("u.year", f.Year)
	}
	if f.Semester > 0 {
		add("u.semester", f.Semester)
	}
	if f.Section != "" {
		add("u.section", f.Section)
	}
	if f.CourseID != "" {
		add("a.course_id", f.CourseID)
	}
	if f.StudentID != "" {
		add("a.student_id", f.StudentID)
	}

	query := `
		SELECT GROUPING(` + g.first + `) = 1, ` + g.sel + `,
			COUNT(*),
			COUNT(*) FILTER (WHERE a.status = 'present'),
			COUNT(*) FILTER (WHERE a.status = 'absent'),
			COUNT(*) FILTER (WHERE a.status = 'late'),
			COUNT(DISTINCT a.student_id),
			COUNT(DISTINCT a.date)
		FROM attendance a
		JOIN users u ON u.id = a.student_id
		LEFT JOIN courses c ON c.id = a.course_id
		WHERE ` + strings.Join(clauses, " AND ") + `
		GROUP BY GROUPING SETS ((` + g.cols + `), ())`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Counts{}, err
	}
	defer rows.Close()

	var (
		groups  []GroupCounts
		overall Counts
	)
	for rows.Next() {
		var (
			isTotal bool
			gc      GroupCounts
		)
		dest := append([]any{&isTotal}, g.scan(&gc.Key)...)
		dest = append(dest, &gc.Counts.Total, &gc.Counts.Present, &gc.Counts.Absent, &gc.Counts.Late, &gc.Counts.Students, &gc.Counts.Days)
		if err := rows.Scan(dest...); err != nil {
			return nil, Counts{}, err
		}
		if isTotal {
			overall = gc.Counts
			continue
		}
		groups = append(groups, gc)
	}
	return groups, overall, rows.Err()
}

// FilterOptions returns distinct classroom dimensions, either over all active
// students or over the classrooms assigned to scope.FacultyID.
func (r *PostgresRepository) FilterOptions(ctx context.Context, scope FilterScope) (FilterOptions, error) {
	query := `
		SELECT DISTINCT u.department, u.year, u.semester, u.section, cl.name
		FROM users u
		LEFT JOIN classrooms cl ON cl.id = u.classroom_id AND cl.is_active
		WHERE u.role = 'student' AND u.is_active`
	var args []any
	if scope.FacultyID != "" {
		query = `
		SELECT DISTINCT cl.department, cl.year, cl.semester, cl.section, cl.name
		FROM classrooms cl
		JOIN classroom_assignments ca ON ca.classroom_id = cl.id
		WHERE ca.user_id = $1 AND ca.is_active AND cl.is_active`
		args = append(args, scope.FacultyID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return FilterOptions{}, err
	}
	defer rows.Close()

	set := newOptionSet()
	for rows.Next() {
		var (
			dept, section, name sql.NullString
			year, semester      sql.NullInt64
		)
		if err := rows.Scan(&dept, &year, &semester, &section, &name); err != nil {
			return FilterOptions{}, err
		}
		set.add(dept.String, int(year.Int64), int(semester.Int64), section.String, name.String)
	}
	if err := rows.Err(); err != nil {
		return FilterOptions{}, err
	}
	return set.options(), nil
}

// Roster lists active students matching f ordered by name.
func (r *PostgresRepository) Roster(ctx context.Context, f RosterFilter) ([]Student, error) {
	query := `
		SELECT id, first_name, last_name, COALESCE(student_number, ''), COALESCE(department, ''),
			COALESCE(year, 0), COALESCE(semester, 0), COALESCE(section, ''), classroom_id, is_active
		FROM users`
	args := []any{}
	clauses := []string{"role = 'student'", "is_active"}
	add := func(expr string, v any) {
		args = append(args, v)
		clauses = append(clauses, expr+" = $"+itoa(len(args)))
	}
	if f.Department != "" {
		add("department", f.Department)
	}
	if f.Year > 0 {
		add("year", f.Year)
	}
	if f.Semester > 0 {
		add("semester", f.Semester)
	}
	if f.Section != "" {
		add("section", f.Section)
	}
	if f.ClassroomID != "" {
		add("classroom_id", f.ClassroomID)
	}
	query += " WHERE " + strings.Join(clauses, " AND ") + " ORDER BY first_name, last_name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.StudentNumber, &s.Department, &s.Year, &s.Semester, &s.Section, &s.ClassroomID, &s.Active); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// PurgeBefore deletes ledger rows dated before cutoff and hands exactly the
// deleted rows to archive before committing. An archive error rolls the
// delete back.
func (r *PostgresRepository) PurgeBefore(ctx context.Context, cutoff time.Time, archive func([]Record) error) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		DELETE FROM attendance
		WHERE date < $1
		RETURNING id, student_id, course_id, date, status, marked_by, marked_at, notes
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	var recs []Record
	for rows.Next() {
		var (
			rec    Record
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.CourseID, &rec.Date, &status, &rec.MarkedBy, &rec.MarkedAt, &rec.Notes); err != nil {
			rows.Close()
			return 0, err
		}
		rec.Status = Status(status)
		recs = append(recs, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(recs) > 0 && archive != nil {
		sortRecords(recs)
		if err := archive(recs); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return int64(len(recs)), nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func itoa(i int) string { return strconv.Itoa(i) }
