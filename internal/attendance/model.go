package attendance

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar days.
const DateLayout = "2006-01-02"

// Status is the attendance state recorded for a student on a day.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
)

// Valid reports whether s is one of the supported statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate:
		return true
	default:
		return false
	}
}

// ParseStatus normalizes a form value into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", v)
	}
	return s, nil
}

// Role is the portal role of a caller.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

// Actor is the authenticated caller a core operation runs on behalf of.
type Actor struct {
	ID   string
	Role Role
}

// CanMark reports whether the actor may submit attendance.
func (a Actor) CanMark() bool {
	return a.Role == RoleFaculty || a.Role == RoleAdmin
}

// Record is one row of the attendance ledger.
type Record struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	CourseID  *string   `json:"course_id,omitempty"`
	Date      time.Time `json:"date"`
	Status    Status    `json:"status"`
	MarkedBy  string    `json:"marked_by"`
	MarkedAt  time.Time `json:"marked_at"`
	Notes     *string   `json:"notes,omitempty"`
}

// Student is the subset of a student identity the attendance code reads.
type Student struct {
	ID            string  `json:"id"`
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	StudentNumber string  `json:"student_number,omitempty"`
	Department    string  `json:"department,omitempty"`
	Year          int     `json:"year,omitempty"`
	Semester      int     `json:"semester,omitempty"`
	Section       string  `json:"section,omitempty"`
	ClassroomID   *string `json:"classroom_id,omitempty"`
	Active        bool    `json:"active"`
}

// Course is the subset of a course the attendance code reads.
type Course struct {
	ID         string  `json:"id"`
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Department string  `json:"department,omitempty"`
	FacultyID  *string `json:"faculty_id,omitempty"`
	Active     bool    `json:"active"`
}

// MarkKey identifies the set of rows one submission replaces.
type MarkKey struct {
	MarkerID string
	Date     time.Time
	CourseID *string
}

// MarkRequest is one day's attendance submission.
type MarkRequest struct {
	Date     time.Time
	CourseID *string
	Marks    map[string]Status
	Notes    map[string]string
}

// MarkResult reports how many rows a submission wrote.
type MarkResult struct {
	Written int `json:"written"`
}

// GroupBy selects the dimension tuple reports are grouped on.
type GroupBy string

const (
	GroupByClassroom  GroupBy = "classroom"
	GroupByDepartment GroupBy = "department"
	GroupByCourse     GroupBy = "course"
	GroupByDate       GroupBy = "date"
)

// ParseGroupBy maps a query value to a GroupBy, defaulting to classroom.
func ParseGroupBy(v string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(v))); g {
	case "":
		return GroupByClassroom, nil
	case GroupByClassroom, GroupByDepartment, GroupByCourse, GroupByDate:
		return g, nil
	default:
		return "", fmt.Errorf("unknown grouping %q", v)
	}
}

// ReportFilter restricts and groups a report. Zero values mean "no filter".
type ReportFilter struct {
	Department string
	Year       int
	Semester   int
	Section    string
	CourseID   string
	StudentID  string
	From       time.Time
	To         time.Time
	GroupBy    GroupBy
}

// GroupKey holds the dimension values of one report group. Only the fields
// belonging to the requested grouping are populated.
type GroupKey struct {
	Department string `json:"department,omitempty"`
	Year       int    `json:"year,omitempty"`
	Semester   int    `json:"semester,omitempty"`
	Section    string `json:"section,omitempty"`
	CourseID   string `json:"course_id,omitempty"`
	CourseCode string `json:"course_code,omitempty"`
	CourseName string `json:"course_name,omitempty"`
	Date       string `json:"date,omitempty"`
}

// Counts are the raw tallies for a group of attendance rows.
type Counts struct {
	Total    int `json:"total"`
	Present  int `json:"present"`
	Absent   int `json:"absent"`
	Late     int `json:"late"`
	Students int `json:"students"`
	Days     int `json:"days"`
}

// GroupCounts pairs a group key with its tallies.
type GroupCounts struct {
	Key    GroupKey
	Counts Counts
}

// Stats are counts plus derived percentages.
type Stats struct {
	Counts
	PresentPct     float64 `json:"present_pct"`
	AbsentPct      float64 `json:"absent_pct"`
	LatePct        float64 `json:"late_pct"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// GroupStats is one row of a report.
type GroupStats struct {
	GroupKey
	Stats
}

// Report is the output of the aggregation engine.
type Report struct {
	From    string       `json:"from"`
	To      string       `json:"to"`
	GroupBy GroupBy      `json:"group_by"`
	Groups  []GroupStats `json:"groups"`
	Overall Stats        `json:"overall"`
}

// FilterScope limits filter discovery to one faculty member's classrooms.
type FilterScope struct {
	FacultyID string
}

// FilterOptions lists the distinct values available for report filters.
type FilterOptions struct {
	Departments []string `json:"departments"`
	Years       []int    `json:"years"`
	Semesters   []int    `json:"semesters"`
	Sections    []string `json:"sections"`
	Classrooms  []string `json:"classrooms"`
}

// RosterFilter selects the students offered on a marking form.
type RosterFilter struct {
	Department  string
	Year        int
	Semester    int
	Section     string
	ClassroomID string
}
