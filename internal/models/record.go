package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RecordStatus is the review lifecycle state. Values are stored and transmitted with this exact casing.
type RecordStatus string

const (
	StatusPending  RecordStatus = "Pending"
	StatusAccepted RecordStatus = "Accepted"
	StatusRejected RecordStatus = "Rejected"
)

// RecordStatuses lists every status in reporting order.
var RecordStatuses = []RecordStatus{StatusAccepted, StatusPending, StatusRejected}

// Valid reports whether s is one of the three literal statuses.
func (s RecordStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s RecordStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Record is one submitted item of faculty activity. Everything except the review fields is
// fixed at creation.
type Record struct {
	ID              string         `db:"id" json:"id"`
	Type            RecordType     `db:"record_type" json:"recordType"`
	EmployeeID      string         `db:"employee_id" json:"employeeId"`
	Title           string         `db:"title" json:"title"`
	Details         types.JSONText `db:"details" json:"details"`
	Status          RecordStatus   `db:"status" json:"status"`
	RejectionReason string         `db:"rejection_reason" json:"rejectionReason"`
	AcademicYear    string         `db:"academic_year" json:"academicYear"`
	AttachmentRef   string         `db:"attachment_ref" json:"attachmentRef"`
	ReviewedBy      *string        `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time     `db:"reviewed_at" json:"reviewedAt,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updatedAt"`
}

// RecordView is a record annotated with its owner's directory entry.
type RecordView struct {
	Record
	OwnerName       string     `json:"ownerName"`
	OwnerDepartment Department `json:"ownerDepartment"`
}

// RecordFilter narrows record queries. When Restricted is set only EmployeeIDs match, so an
// empty set matches nothing.
type RecordFilter struct {
	Type         RecordType
	Status       *RecordStatus
	AcademicYear string
	EventType    string
	Restricted   bool
	EmployeeIDs  []string
}

// StatusUpdate is the single terminal transition applied to a pending record.
type StatusUpdate struct {
	ID              string       `db:"id"`
	Type            RecordType   `db:"record_type"`
	Status          RecordStatus `db:"status"`
	RejectionReason string       `db:"rejection_reason"`
	ReviewedBy      string       `db:"reviewed_by"`
	ReviewedAt      time.Time    `db:"reviewed_at"`
}

// StatusCounts is the four-count shape reported per record type.
type StatusCounts struct {
	Total    int `json:"total"`
	Accepted int `json:"accepted"`
	Pending  int `json:"pending"`
	Rejected int `json:"rejected"`
}

// Set stores n under the given status and recomputes the total.
func (c *StatusCounts) Set(status RecordStatus, n int) {
	switch status {
	case StatusAccepted:
		c.Accepted = n
	case StatusPending:
		c.Pending = n
	case StatusRejected:
		c.Rejected = n
	}
	c.Total = c.Accepted + c.Pending + c.Rejected
}

// TypeSummary holds counts for one record type plus an optional subtype breakdown.
type TypeSummary struct {
	Label string `json:"label"`
	StatusCounts
	Subtypes map[string]StatusCounts `json:"subtypes,omitempty"`
}

// Summary is the dashboard aggregate for a scope and academic year.
type Summary struct {
	AcademicYear string                     `json:"academicYear,omitempty"`
	Department   Department                 `json:"department,omitempty"`
	Types        map[RecordType]TypeSummary `json:"types"`
	GeneratedAt  time.Time                  `json:"generatedAt"`
}
