package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RecordSchemaVersion is bumped whenever the persisted record shape changes.
const RecordSchemaVersion = 1

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

const (
	RoleAdmin        Role = "admin"
	RoleCountingUnit Role = "counting_unit"
	RoleApprover     Role = "approver"
	RoleReceiver     Role = "receiver"
)

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

const maxTextLen = 200

type (
	Status     string
	Role       string
	SyncStatus string

	Date struct {
		time.Time
	}

	Branch struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Location  string    `json:"location,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// Service is a scheduled gathering of a branch; records attach to it.
	Service struct {
		ID          string    `json:"id"`
		BranchID    string    `json:"branchId"`
		Title       string    `json:"title"`
		Date        Date      `json:"date"`
		Day         string    `json:"day,omitempty"`
		Time        string    `json:"time,omitempty"`
		Description string    `json:"description,omitempty"`
		Status      string    `json:"status,omitempty"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	User struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName,omitempty"`
		Role        Role   `json:"role"`
		BranchID    string `json:"branchId,omitempty"`
	}

	// Actor is the authenticated user performing an operation.
	Actor struct {
		ID       string
		Email    string
		Name     string
		Role     Role
		BranchID string
	}

	// Signature is one role's sign-off on a record.
	Signature struct {
		Role     Role      `json:"role"`
		ActorID  string    `json:"actorId"`
		SignedAt time.Time `json:"signedAt"`
	}

	// RecordDraft carries the counting-unit editable fields of a record.
	RecordDraft struct {
		Ledger       *Ledger    `json:"denominations"`
		Attendance   Attendance `json:"attendance"`
		MessageTitle string     `json:"messageTitle"`
		Preacher     string     `json:"preacher"`
		ZonalPastor  string     `json:"zonalPastor"`
		Counters     []string   `json:"counters"`
	}

	// ServiceRecord is the income and attendance return for one service.
	ServiceRecord struct {
		ID              string      `json:"id"`
		SchemaVersion   int         `json:"schemaVersion"`
		ServiceID       string      `json:"serviceId"`
		BranchID        string      `json:"branchId"`
		ServiceDate     Date        `json:"serviceDate"`
		Ledger          *Ledger     `json:"denominations"`
		Attendance      Attendance  `json:"attendance"`
		MessageTitle    string      `json:"messageTitle"`
		Preacher        string      `json:"preacher"`
		ZonalPastor     string      `json:"zonalPastor"`
		Counters        []string    `json:"counters"`
		Status          Status      `json:"status"`
		Signatures      []Signature `json:"signatures,omitempty"`
		ApprovedBy      string      `json:"approvedBy,omitempty"`
		ApprovedAt      *time.Time  `json:"approvedAt,omitempty"`
		RejectedBy      string      `json:"rejectedBy,omitempty"`
		RejectedAt      *time.Time  `json:"rejectedAt,omitempty"`
		RejectionReason string      `json:"rejectionReason,omitempty"`
		CreatedBy       string      `json:"createdBy"`
		CreatedAt       time.Time   `json:"createdAt"`
		UpdatedAt       time.Time   `json:"updatedAt"`
		Version         int64       `json:"version"`
		SyncStatus      SyncStatus  `json:"syncStatus,omitempty"`
	}
)

// NewDate creates a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, NewValidationError("date", "expected YYYY-MM-DD")
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD, empty when zero.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		// Accept full timestamps from older documents.
		t, terr := time.Parse(time.RFC3339, s)
		if terr != nil {
			return err
		}
		parsed = Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
	}
	*d = parsed
	return nil
}

// ParseRole maps stored role names, including the legacy "counter".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "counting_unit", "counter":
		return RoleCountingUnit, nil
	case "approver":
		return RoleApprover, nil
	case "receiver":
		return RoleReceiver, nil
	}
	return "", NewValidationError("role", fmt.Sprintf("unknown role %q", s))
}

// CounterName is how the actor appears in a record's counters list.
func (a Actor) CounterName() string {
	switch {
	case strings.TrimSpace(a.Name) != "":
		return strings.TrimSpace(a.Name)
	case strings.TrimSpace(a.Email) != "":
		return strings.TrimSpace(a.Email)
	}
	return a.ID
}

func (b Branch) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return NewValidationError("name", "branch name is required")
	}
	if len(b.Name) > maxTextLen {
		return NewValidationError("name", "too long (max 200 characters)")
	}
	return nil
}

func (s Service) Validate() error {
	if strings.TrimSpace(s.BranchID) == "" {
		return NewValidationError("branchId", "service must belong to a branch")
	}
	if strings.TrimSpace(s.Title) == "" {
		return NewValidationError("title", "service title is required")
	}
	if len(s.Title) > maxTextLen {
		return NewValidationError("title", "too long (max 200 characters)")
	}
	return nil
}

func (u User) Validate() error {
	if !strings.Contains(u.Email, "@") {
		return NewValidationError("email", "invalid email")
	}
	if _, err := ParseRole(string(u.Role)); err != nil {
		return err
	}
	return nil
}

// Validate checks a draft before any store write.
func (d RecordDraft) Validate() error {
	if d.Ledger == nil {
		return NewValidationError("denominations", "ledger is required")
	}
	for _, line := range d.Ledger.Lines() {
		if err := checkValue(line.Value); err != nil {
			return err
		}
		for fund, c := range line.Counts {
			if c < 0 {
				return &ValidationError{Field: string(fund), Reason: "count is negative", Err: ErrNegativeCount}
			}
			if c > MaxCount {
				return NewValidationError(string(fund), fmt.Sprintf("count %d exceeds %d", c, MaxCount))
			}
		}
	}
	if total := d.Ledger.GrandTotal(); total > MaxTotal {
		return NewValidationError("denominations", fmt.Sprintf("ledger total %d exceeds %d", total, MaxTotal))
	}
	if err := d.Attendance.Validate(); err != nil {
		return err
	}
	for field, v := range map[string]string{
		"messageTitle": d.MessageTitle,
		"preacher":     d.Preacher,
		"zonalPastor":  d.ZonalPastor,
	} {
		if len(v) > maxTextLen {
			return NewValidationError(field, "too long (max 200 characters)")
		}
	}
	for _, c := range d.Counters {
		if len(c) > maxTextLen {
			return NewValidationError("counters", "counter name too long")
		}
	}
	return nil
}

// Normalized trims text fields and drops blank or repeated counter names.
func (d RecordDraft) Normalized() RecordDraft {
	out := d
	out.MessageTitle = strings.TrimSpace(d.MessageTitle)
	out.Preacher = strings.TrimSpace(d.Preacher)
	out.ZonalPastor = strings.TrimSpace(d.ZonalPastor)
	out.Counters = nil
	for _, c := range d.Counters {
		out.Counters = appendUnique(out.Counters, strings.TrimSpace(c))
	}
	if d.Ledger != nil {
		out.Ledger = d.Ledger.Clone()
	}
	return out
}

// Apply copies the draft's fields onto the record.
func (r *ServiceRecord) Apply(d RecordDraft) {
	r.Ledger = d.Ledger
	r.Attendance = d.Attendance
	r.MessageTitle = d.MessageTitle
	r.Preacher = d.Preacher
	r.ZonalPastor = d.ZonalPastor
	for _, c := range d.Counters {
		r.Counters = appendUnique(r.Counters, c)
	}
}

// AddCounter appends name to the counters list unless already present.
func (r *ServiceRecord) AddCounter(name string) {
	r.Counters = appendUnique(r.Counters, strings.TrimSpace(name))
}

// Signed reports whether role has signed the record.
func (r *ServiceRecord) Signed(role Role) bool {
	for _, s := range r.Signatures {
		if s.Role == role {
			return true
		}
	}
	return false
}

// Reopen moves a rejected record back to pending and forgets the rejection.
func (r *ServiceRecord) Reopen() {
	r.Status = StatusPending
	r.RejectedBy = ""
	r.RejectedAt = nil
	r.RejectionReason = ""
}

// Editable reports whether counting-unit edits are still allowed.
func (r *ServiceRecord) Editable() bool {
	return r.Status != StatusApproved
}

// Validate checks the full persisted shape at a write boundary.
func (r *ServiceRecord) Validate() error {
	var errs []error
	if strings.TrimSpace(r.ServiceID) == "" {
		errs = append(errs, NewValidationError("serviceId", "record must reference a service"))
	}
	if strings.TrimSpace(r.BranchID) == "" {
		errs = append(errs, NewValidationError("branchId", "record must belong to a branch"))
	}
	switch r.Status {
	case StatusPending, StatusApproved, StatusRejected:
	default:
		errs = append(errs, NewValidationError("status", fmt.Sprintf("unknown status %q", r.Status)))
	}
	if err := (RecordDraft{
		Ledger:       r.Ledger,
		Attendance:   r.Attendance,
		MessageTitle: r.MessageTitle,
		Preacher:     r.Preacher,
		ZonalPastor:  r.ZonalPastor,
		Counters:     r.Counters,
	}).Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (r *ServiceRecord) Clone() *ServiceRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Ledger != nil {
		out.Ledger = r.Ledger.Clone()
	}
	out.Counters = append([]string(nil), r.Counters...)
	out.Signatures = append([]Signature(nil), r.Signatures...)
	if r.ApprovedAt != nil {
		t := *r.ApprovedAt
		out.ApprovedAt = &t
	}
	if r.RejectedAt != nil {
		t := *r.RejectedAt
		out.RejectedAt = &t
	}
	return &out
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
