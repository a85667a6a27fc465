package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Classroom is a (department, year, semester, section) cohort.
type Classroom struct {
	ID         string
	Name       string
	Department string
	Year       int
	Semester   int
	Section    string
	Active     bool
}

// MemoryRepository is a mutex-guarded in-memory store for dev and testing.
type MemoryRepository struct {
	mu          sync.RWMutex
	records     []Record
	students    map[string]Student
	courses     map[string]Course
	classrooms  map[string]Classroom
	assignments map[string][]string // faculty id -> classroom ids
}

// NewMemoryRepository creates an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		students:    map[string]Student{},
		courses:     map[string]Course{},
		classrooms:  map[string]Classroom{},
		assignments: map[string][]string{},
	}
}

// PutStudent adds or replaces a student identity.
func (m *MemoryRepository) PutStudent(s Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
}

// PutCourse adds or replaces a course.
func (m *MemoryRepository) PutCourse(c Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID] = c
}

// PutClassroom adds or replaces a classroom.
func (m *MemoryRepository) PutClassroom(c Classroom) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classrooms[c.ID] = c
}

// Assign gives a faculty member an active classroom assignment.
func (m *MemoryRepository) Assign(facultyID, classroomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[facultyID] = append(m.assignments[facultyID], classroomID)
}

// Records returns a copy of every stored row.
func (m *MemoryRepository) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Record(nil), m.records...)
}

func sameCourse(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// matches mirrors keyWhere: course keys ignore the marker.
func (k MarkKey) matches(rec Record) bool {
	if !rec.Date.Equal(k.Date) || !sameCourse(rec.CourseID, k.CourseID) {
		return false
	}
	return k.CourseID != nil || rec.MarkedBy == k.MarkerID
}

func (m *MemoryRepository) ReplaceMarks(_ context.Context, key MarkKey, records []Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0:0]
	for _, rec := range m.records {
		if !key.matches(rec) {
			kept = append(kept, rec)
		}
	}
	m.records = append(kept, records...)
	return len(records), nil
}

func (m *MemoryRepository) Marks(_ context.Context, key MarkKey) (map[string]Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[string]Status{}
	for _, rec := range m.records {
		if key.matches(rec) {
			out[rec.StudentID] = rec.Status
		}
	}
	return out, nil
}

func (m *MemoryRepository) GetCourse(_ context.Context, id string) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryRepository) ActiveStudents(_ context.Context, ids []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if s, ok := m.students[id]; ok && s.Active {
			out[id] = true
		}
	}
	return out, nil
}

func (m *MemoryRepository) Aggregate(_ context.Context, f ReportFilter) ([]GroupCounts, Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	groups := map[GroupKey]*tally{}
	overall := newTally()
	for _, rec := range m.records {
		st, ok := m.students[rec.StudentID]
		if !ok || !f.matches(st, rec) {
			continue
		}
		var course *Course
		if rec.CourseID != nil {
			if c, ok := m.courses[*rec.CourseID]; ok {
				course = &c
			}
		}
		k := keyFor(f.GroupBy, st, rec, course)
		t, ok := groups[k]
		if !ok {
			t = newTally()
			groups[k] = t
		}
		t.add(rec)
		overall.add(rec)
	}
	out := make([]GroupCounts, 0, len(groups))
	for k, t := range groups {
		out = append(out, GroupCounts{Key: k, Counts: t.result()})
	}
	return out, overall.result(), nil
}

func (f ReportFilter) matches(st Student, rec Record) bool {
	if rec.Date.Before(f.From) || rec.Date.After(f.To) {
		return false
	}
	switch {
	case f.Department != "" && st.Department != f.Department,
		f.Year > 0 && st.Year != f.Year,
		f.Semester > 0 && st.Semester != f.Semester,
		f.Section != "" && st.Section != f.Section,
		f.StudentID != "" && rec.StudentID != f.StudentID,
		f.CourseID != "" && (rec.CourseID == nil || *rec.CourseID != f.CourseID):
		return false
	}
	return true
}

func (m *MemoryRepository) FilterOptions(_ context.Context, scope FilterScope) (FilterOptions, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := newOptionSet()
	if scope.FacultyID != "" {
		for _, id := range m.assignments[scope.FacultyID] {
			if c, ok := m.classrooms[id]; ok && c.Active {
				set.add(c.Department, c.Year, c.Semester, c.Section, c.Name)
			}
		}
		return set.options(), nil
	}
	for _, s := range m.students {
		if !s.Active {
			continue
		}
		name := ""
		if s.ClassroomID != nil {
			if c, ok := m.classrooms[*s.ClassroomID]; ok && c.Active {
				name = c.Name
			}
		}
		set.add(s.Department, s.Year, s.Semester, s.Section, name)
	}
	return set.options(), nil
}

func (m *MemoryRepository) Roster(_ context.Context, f RosterFilter) ([]Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Student
	for _, s := range m.students {
		switch {
		case !s.Active,
			f.Department != "" && s.Department != f.Department,
			f.Year > 0 && s.Year != f.Year,
			f.Semester > 0 && s.Semester != f.Semester,
			f.Section != "" && s.Section != f.Section,
			f.ClassroomID != "" && (s.ClassroomID == nil || *s.ClassroomID != f.ClassroomID):
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		return out[i].LastName < out[j].LastName
	})
	return out, nil
}

func (m *MemoryRepository) PurgeBefore(_ context.Context, cutoff time.Time, archive func([]Record) error) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		kept    = m.records[:0:0]
		expired []Record
	)
	for _, rec := range m.records {
		if rec.Date.Before(cutoff) {
			expired = append(expired, rec)
		} else {
			kept = append(kept, rec)
		}
	}
	if len(expired) > 0 && archive != nil {
		sortRecords(expired)
		if err := archive(expired); err != nil {
			return 0, err
		}
	}
	m.records = kept
	return int64(len(expired)), nil
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].Date.Equal(recs[j].Date) {
			return recs[i].Date.Before(recs[j].Date)
		}
		return recs[i].StudentID < recs[j].StudentID
	})
}

// optionSet collects distinct, non-empty filter values.
type optionSet struct {
	depts, sections, rooms map[string]struct{}
	years, semesters       map[int]struct{}
}

func newOptionSet() *optionSet {
	return &optionSet{
		depts:     map[string]struct{}{},
		sections:  map[string]struct{}{},
		rooms:     map[string]struct{}{},
		years:     map[int]struct{}{},
		semesters: map[int]struct{}{},
	}
}

func (o *optionSet) add(dept string, year, semester int, section, room string) {
	if dept != "" {
		o.depts[dept] = struct{}{}
	}
	if year > 0 {
		o.years[year] = struct{}{}
	}
	if semester > 0 {
		o.semesters[semester] = struct{}{}
	}
	if section != "" {
		o.sections[section] = struct{}{}
	}
	if room != "" {
		o.rooms[room] = struct{}{}
	}
}

func (o *optionSet) options() FilterOptions {
	out := FilterOptions{
		Departments: keys(o.depts),
		Sections:    keys(o.sections),
		Classrooms:  keys(o.rooms),
		Years:       keys(o.years),
		Semesters:   keys(o.semesters),
	}
	return normalizeOptions(out)
}

func keys[K comparable](m map[K]struct{}) []K {
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
