package reporting

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"collegeportal/internal/attendance"
)

const (
	reportSheet  = "Report"
	archiveSheet = "Archive"
)

var statHeaders = []string{"Total", "Present", "Absent", "Late", "Students", "Days", "Present %", "Absent %", "Late %", "Attendance rate %"}

func groupHeaders(g attendance.GroupBy) []string {
	switch g {
	case attendance.GroupByDepartment:
		return []string{"Department"}
	case attendance.GroupByCourse:
		return []string{"Course code", "Course name"}
	case attendance.GroupByDate:
		return []string{"Date"}
	default:
		return []string{"Department", "Year", "Semester", "Section"}
	}
}

func groupCells(g attendance.GroupBy, k attendance.GroupKey) []any {
	switch g {
	case attendance.GroupByDepartment:
		return []any{k.Department}
	case attendance.GroupByCourse:
		if k.CourseID == "" {
			return []any{"(classroom-wide)", ""}
		}
		return []any{k.CourseCode, k.CourseName}
	case attendance.GroupByDate:
		return []any{k.Date}
	default:
		return []any{k.Department, k.Year, k.Semester, k.Section}
	}
}

func statCells(s attendance.Stats) []any {
	return []any{s.Total, s.Present, s.Absent, s.Late, s.Students, s.Days, s.PresentPct, s.AbsentPct, s.LatePct, s.AttendanceRate}
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func styleRow(f *excelize.File, sheet string, row, cols, style int) error {
	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(cols, row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, first, last, style)
}

func newWorkbook(sheet string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// RenderReport writes a report as a single-sheet workbook: a title, the
// window, one row per group and a closing overall row.
func RenderReport(rep attendance.Report) ([]byte, error) {
	f, err := newWorkbook(reportSheet)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	style, err := headerStyle(f)
	if err != nil {
		return nil, err
	}
	headers := append(groupHeaders(rep.GroupBy), statHeaders...)

	if err := f.SetCellValue(reportSheet, "A1", "Attendance report"); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(reportSheet, "A2", fmt.Sprintf("%s to %s, grouped by %s", rep.From, rep.To, rep.GroupBy)); err != nil {
		return nil, err
	}

	row := 4
	hdr := make([]any, len(headers))
	for i, h := range headers {
		hdr[i] = h
	}
	if err := setRow(f, reportSheet, row, hdr); err != nil {
		return nil, err
	}
	if err := styleRow(f, reportSheet, row, len(headers), style); err != nil {
		return nil, err
	}
	for _, g := range rep.Groups {
		row++
		if err := setRow(f, reportSheet, row, append(groupCells(rep.GroupBy, g.GroupKey), statCells(g.Stats)...)); err != nil {
			return nil, err
		}
	}

	row++
	overall := make([]any, len(groupHeaders(rep.GroupBy)))
	overall[0] = "Overall"
	if err := setRow(f, reportSheet, row, append(overall, statCells(rep.Overall)...)); err != nil {
		return nil, err
	}
	if err := styleRow(f, reportSheet, row, len(headers), style); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write report workbook: %w", err)
	}
	return buf.Bytes(), nil
}

var archiveHeaders = []any{"ID", "Student", "Course", "Date", "Status", "Marked by", "Marked at", "Notes"}

// RenderRecords writes raw ledger rows, used for retention archives.
func RenderRecords(recs []attendance.Record) ([]byte, error) {
	f, err := newWorkbook(archiveSheet)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	style, err := headerStyle(f)
	if err != nil {
		return nil, err
	}
	if err := setRow(f, archiveSheet, 1, archiveHeaders); err != nil {
		return nil, err
	}
	if err := styleRow(f, archiveSheet, 1, len(archiveHeaders), style); err != nil {
		return nil, err
	}
	for i, rec := range recs {
		course, notes := "", ""
		if rec.CourseID != nil {
			course = *rec.CourseID
		}
		if rec.Notes != nil {
			notes = *rec.Notes
		}
		values := []any{rec.ID, rec.StudentID, course, rec.Date.Format(attendance.DateLayout), string(rec.Status), rec.MarkedBy, rec.MarkedAt.UTC().Format("2006-01-02 15:04:05"), notes}
		if err := setRow(f, archiveSheet, i+2, values); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write archive workbook: %w", err)
	}
	return buf.Bytes(), nil
}
