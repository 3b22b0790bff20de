package core

import "fmt"

// AttendanceCategory names one headcount bucket.
type AttendanceCategory string

const (
	Male        AttendanceCategory = "male"
	Female      AttendanceCategory = "female"
	Teenager    AttendanceCategory = "teenager"
	Children    AttendanceCategory = "children"
	FirstTimers AttendanceCategory = "firstTimers"
	NC          AttendanceCategory = "nc"
)

// AttendanceCategories lists every category in report order.
var AttendanceCategories = []AttendanceCategory{Male, Female, Teenager, Children, FirstTimers, NC}

// Attendance is the fixed-category headcount for one service.
// First timers and NC are tracked alongside but outside the core headcount.
type Attendance struct {
	Male        int64 `json:"male"`
	Female      int64 `json:"female"`
	Teenager    int64 `json:"teenager"`
	Children    int64 `json:"children"`
	FirstTimers int64 `json:"firstTimers"`
	NC          int64 `json:"nc"`
}

// Set replaces one category's count.
func (a *Attendance) Set(cat AttendanceCategory, n int64) error {
	if n < 0 {
		return &ValidationError{Field: string(cat), Reason: fmt.Sprintf("count %d is negative", n), Err: ErrInvalidAttendance}
	}
	p := a.field(cat)
	if p == nil {
		return NewValidationError(string(cat), "unknown attendance category")
	}
	*p = n
	return nil
}

// Get returns one category's count.
func (a Attendance) Get(cat AttendanceCategory) int64 {
	if p := a.field(cat); p != nil {
		return *p
	}
	return 0
}

// CoreTotal is male+female+teenager+children, recomputed on every call.
func (a Attendance) CoreTotal() int64 {
	return a.Male + a.Female + a.Teenager + a.Children
}

// AllTotal adds first timers and NC to the core headcount.
func (a Attendance) AllTotal() int64 {
	return a.CoreTotal() + a.FirstTimers + a.NC
}

// Validate rejects negative categories.
func (a Attendance) Validate() error {
	for _, cat := range AttendanceCategories {
		if v := a.Get(cat); v < 0 {
			return &ValidationError{Field: string(cat), Reason: fmt.Sprintf("count %d is negative", v), Err: ErrInvalidAttendance}
		}
	}
	return nil
}

func (a *Attendance) field(cat AttendanceCategory) *int64 {
	switch cat {
	case Male:
		return &a.Male
	case Female:
		return &a.Female
	case Teenager:
		return &a.Teenager
	case Children:
		return &a.Children
	case FirstTimers:
		return &a.FirstTimers
	case NC:
		return &a.NC
	}
	return nil
}

// Label returns the printed heading for a category.
func (c AttendanceCategory) Label() string {
	switch c {
	case Male:
		return "Male"
	case Female:
		return "Female"
	case Teenager:
		return "Teenagers"
	case Children:
		return "Children"
	case FirstTimers:
		return "First Timers"
	case NC:
		return "NC"
	}
	return string(c)
}
