package attendance

import (
	"math"
	"sort"
)

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(part) / float64(total) * 100)
}

// StatsFor derives percentages from raw counts. Late arrivals count as
// attended, so the rate is present% + late%.
func StatsFor(c Counts) Stats {
	s := Stats{Counts: c}
	if c.Total == 0 {
		return s
	}
	s.PresentPct = percent(c.Present, c.Total)
	s.AbsentPct = percent(c.Absent, c.Total)
	s.LatePct = percent(c.Late, c.Total)
	s.AttendanceRate = round1(s.PresentPct + s.LatePct)
	return s
}

// BuildReport turns repository tallies into a report. q must carry the
// resolved date window; overall must be the tally over all rows, not a sum of
// per-group distinct counts.
func BuildReport(q ReportFilter, groups []GroupCounts, overall Counts) Report {
	out := Report{
		From:    q.From.Format(DateLayout),
		To:      q.To.Format(DateLayout),
		GroupBy: q.GroupBy,
		Groups:  make([]GroupStats, 0, len(groups)),
		Overall: StatsFor(overall),
	}
	for _, g := range groups {
		if g.Counts.Total == 0 {
			continue
		}
		out.Groups = append(out.Groups, GroupStats{GroupKey: g.Key, Stats: StatsFor(g.Counts)})
	}
	sort.Slice(out.Groups, func(i, j int) bool {
		return lessKey(out.Groups[i].GroupKey, out.Groups[j].GroupKey)
	})
	return out
}

func lessKey(a, b GroupKey) bool {
	switch {
	case a.Department != b.Department:
		return a.Department < b.Department
	case a.Year != b.Year:
		return a.Year < b.Year
	case a.Semester != b.Semester:
		return a.Semester < b.Semester
	case a.Section != b.Section:
		return a.Section < b.Section
	case a.CourseCode != b.CourseCode:
		return a.CourseCode < b.CourseCode
	case a.CourseID != b.CourseID:
		return a.CourseID < b.CourseID
	default:
		return a.Date < b.Date
	}
}

// keyFor projects a student's dimensions and a record onto the grouping.
func keyFor(g GroupBy, st Student, rec Record, course *Course) GroupKey {
	switch g {
	case GroupByDepartment:
		return GroupKey{Department: st.Department}
	case GroupByCourse:
		if rec.CourseID == nil {
			return GroupKey{}
		}
		k := GroupKey{CourseID: *rec.CourseID}
		if course != nil {
			k.CourseCode, k.CourseName = course.Code, course.Name
		}
		return k
	case GroupByDate:
		return GroupKey{Date: rec.Date.Format(DateLayout)}
	default:
		return GroupKey{Department: st.Department, Year: st.Year, Semester: st.Semester, Section: st.Section}
	}
}

// tally accumulates counts including distinct students and days.
type tally struct {
	counts   Counts
	students map[string]struct{}
	days     map[string]struct{}
}

func newTally() *tally {
	return &tally{students: map[string]struct{}{}, days: map[string]struct{}{}}
}

func (t *tally) add(rec Record) {
	t.counts.Total++
	switch rec.Status {
	case StatusPresent:
		t.counts.Present++
	case StatusAbsent:
		t.counts.Absent++
	case StatusLate:
		t.counts.Late++
	}
	t.students[rec.StudentID] = struct{}{}
	t.days[rec.Date.Format(DateLayout)] = struct{}{}
}

func (t *tally) result() Counts {
	c := t.counts
	c.Students = len(t.students)
	c.Days = len(t.days)
	return c
}
