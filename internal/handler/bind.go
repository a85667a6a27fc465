package handler

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"collegeportal/internal/attendance"
)

var registerOnce sync.Once

// registerValidators teaches gin's validator the attendance_status tag and
// to report json/form names instead of Go field names.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
			_, err := attendance.ParseStatus(fl.Field().String())
			return err == nil
		})
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	})
}

// bindError turns a binding failure into a ValidationError so it renders
// like one raised by the service.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		if i := strings.IndexByte(field, '['); i > 0 {
			field = field[:i]
		}
		msg := "failed " + fe.Tag() + " check"
		switch fe.Tag() {
		case "required":
			msg = "is required"
		case "min":
			msg = "must be at least " + fe.Param()
		case "attendance_status":
			msg = "invalid status " + quote(fe.Value())
		case "uuid":
			msg = "invalid id " + quote(fe.Value())
		}
		return &attendance.ValidationError{Field: field, Message: msg}
	}
	return &attendance.ValidationError{Message: "malformed request: " + err.Error()}
}

func quote(v any) string {
	s, _ := v.(string)
	return `"` + s + `"`
}

func parseDay(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := attendance.ParseDate(v)
	if err != nil {
		return time.Time{}, &attendance.ValidationError{Field: field, Message: "expected YYYY-MM-DD"}
	}
	return t, nil
}

func optionalID(v string) *string {
	if v = strings.TrimSpace(v); v == "" {
		return nil
	}
	return &v
}

// reportParams is shared by the report query string and the report-job body.
type reportParams struct {
	Department string `form:"department" json:"department"`
	Year       int    `form:"year" json:"year" binding:"omitempty,min=1"`
	Semester   int    `form:"semester" json:"semester" binding:"omitempty,min=1"`
	Section    string `form:"section" json:"section"`
	CourseID   string `form:"course_id" json:"course_id" binding:"omitempty,uuid"`
	StudentID  string `form:"student_id" json:"student_id" binding:"omitempty,uuid"`
	From       string `form:"from" json:"from"`
	To         string `form:"to" json:"to"`
	GroupBy    string `form:"group_by" json:"group_by" binding:"omitempty,oneof=classroom department course date"`
}

func (p reportParams) filter() (attendance.ReportFilter, error) {
	from, err := parseDay("from", p.From)
	if err != nil {
		return attendance.ReportFilter{}, err
	}
	to, err := parseDay("to", p.To)
	if err != nil {
		return attendance.ReportFilter{}, err
	}
	return attendance.ReportFilter{
		Department: strings.TrimSpace(p.Department),
		Year:       p.Year,
		Semester:   p.Semester,
		Section:    strings.TrimSpace(p.Section),
		CourseID:   p.CourseID,
		StudentID:  p.StudentID,
		From:       from,
		To:         to,
		GroupBy:    attendance.GroupBy(p.GroupBy),
	}, nil
}

func bindReportQuery(c *gin.Context) (attendance.ReportFilter, error) {
	var p reportParams
	if err := c.ShouldBindQuery(&p); err != nil {
		return attendance.ReportFilter{}, bindError(err)
	}
	return p.filter()
}
