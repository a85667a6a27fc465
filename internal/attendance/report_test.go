package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsFor(t *testing.T) {
	tests := []struct {
		name string
		in   Counts
		want Stats
	}{
		{
			name: "empty",
			in:   Counts{},
			want: Stats{},
		},
		{
			name: "one of each",
			in:   Counts{Total: 3, Present: 1, Absent: 1, Late: 1},
			want: Stats{Counts: Counts{Total: 3, Present: 1, Absent: 1, Late: 1}, PresentPct: 33.3, AbsentPct: 33.3, LatePct: 33.3, AttendanceRate: 66.6},
		},
		{
			name: "all present",
			in:   Counts{Total: 4, Present: 4},
			want: Stats{Counts: Counts{Total: 4, Present: 4}, PresentPct: 100, AttendanceRate: 100},
		},
		{
			name: "two thirds late",
			in:   Counts{Total: 3, Late: 2, Absent: 1},
			want: Stats{Counts: Counts{Total: 3, Late: 2, Absent: 1}, LatePct: 66.7, AbsentPct: 33.3, AttendanceRate: 66.7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatsFor(tt.in))
		})
	}
}

func TestStatsForRateTracksPresentAndLate(t *testing.T) {
	for p := 0; p <= 5; p++ {
		for a := 0; a <= 5; a++ {
			for l := 0; l <= 5; l++ {
				s := StatsFor(Counts{Total: p + a + l, Present: p, Absent: a, Late: l})
				assert.Equal(t, round1(s.PresentPct+s.LatePct), s.AttendanceRate)
				assert.GreaterOrEqual(t, s.AttendanceRate, 0.0)
				assert.LessOrEqual(t, s.AttendanceRate, 100.0)
			}
		}
	}
}

func TestBuildReportOrdersAndSkipsEmptyGroups(t *testing.T) {
	q := ReportFilter{
		From:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		To:      time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		GroupBy: GroupByClassroom,
	}
	groups := []GroupCounts{
		{Key: GroupKey{Department: "ECE", Year: 1, Section: "A"}, Counts: Counts{Total: 2, Present: 2}},
		{Key: GroupKey{Department: "CSE", Year: 2, Section: "B"}, Counts: Counts{Total: 1, Absent: 1}},
		{Key: GroupKey{Department: "CSE", Year: 2, Section: "A"}, Counts: Counts{Total: 1, Late: 1}},
		{Key: GroupKey{Department: "CSE", Year: 1, Section: "A"}},
	}
	rep := BuildReport(q, groups, Counts{Total: 4, Present: 2, Absent: 1, Late: 1})

	assert.Equal(t, "2024-02-01", rep.From)
	assert.Equal(t, "2024-02-29", rep.To)
	if assert.Len(t, rep.Groups, 3) {
		assert.Equal(t, "A", rep.Groups[0].Section)
		assert.Equal(t, "B", rep.Groups[1].Section)
		assert.Equal(t, "ECE", rep.Groups[2].Department)
	}
	assert.Equal(t, 50.0, rep.Overall.PresentPct)
	assert.Equal(t, 75.0, rep.Overall.AttendanceRate)
}

func TestKeyFor(t *testing.T) {
	course := "c1"
	st := Student{Department: "CSE", Year: 2, Semester: 3, Section: "A"}
	rec := Record{CourseID: &course, Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	c := &Course{ID: course, Code: "CS201", Name: "Data Structures"}

	assert.Equal(t, GroupKey{Department: "CSE", Year: 2, Semester: 3, Section: "A"}, keyFor(GroupByClassroom, st, rec, c))
	assert.Equal(t, GroupKey{Department: "CSE"}, keyFor(GroupByDepartment, st, rec, c))
	assert.Equal(t, GroupKey{CourseID: "c1", CourseCode: "CS201", CourseName: "Data Structures"}, keyFor(GroupByCourse, st, rec, c))
	assert.Equal(t, GroupKey{Date: "2024-03-01"}, keyFor(GroupByDate, st, rec, c))
	assert.Equal(t, GroupKey{}, keyFor(GroupByCourse, st, Record{}, nil))
}
