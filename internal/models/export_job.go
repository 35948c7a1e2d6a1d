package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportKind enumerates what an asynchronous export renders.
type ExportKind string

const (
	ExportKindRecords ExportKind = "records"
	ExportKindSummary ExportKind = "summary"
)

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob is persisted background export metadata.
type ExportJob struct {
	ID           string          `db:"id" json:"id"`
	Kind         ExportKind      `db:"kind" json:"kind"`
	Params       ExportJobParams `db:"params" json:"params"`
	Status       ExportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultPath   *string         `db:"result_path" json:"-"`
	CreatedBy    string          `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finishedAt,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"errorMessage,omitempty"`
}

// ExportJobParams stores the filters and the requester identity the worker re-scopes with.
type ExportJobParams struct {
	RecordType   RecordType    `json:"recordType,omitempty"`
	Format       string        `json:"format"`
	Status       *RecordStatus `json:"status,omitempty"`
	AcademicYear string        `json:"academicYear,omitempty"`
	Department   string        `json:"department,omitempty"`
	EventType    string        `json:"eventType,omitempty"`

	RequesterUserID     string     `json:"requesterUserId"`
	RequesterEmployeeID string     `json:"requesterEmployeeId"`
	RequesterRole       UserRole   `json:"requesterRole"`
	RequesterDepartment Department `json:"requesterDepartment"`
}

// Requester rebuilds the identity that queued the job.
func (p ExportJobParams) Requester() Requester {
	return Requester{
		UserID:     p.RequesterUserID,
		EmployeeID: p.RequesterEmployeeID,
		Role:       p.RequesterRole,
		Department: p.RequesterDepartment,
	}
}

// Value marshals params to JSON for persistence.
func (p ExportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal export job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ExportJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = ExportJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ExportJobParams", value)
	}
	if len(data) == 0 {
		*p = ExportJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal export job params: %w", err)
	}
	return nil
}
