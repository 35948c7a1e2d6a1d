package dto

import (
	"encoding/json"
	"io"
	"time"
)

// SubmitRecordInput is the decoded multipart submission for POST /records/:type.
type SubmitRecordInput struct {
	Title       string
	Details     json.RawMessage
	FileName    string
	ContentType string
	Size        int64
	File        io.Reader
}

// RecordQuery mirrors the supported listing filters.
type RecordQuery struct {
	Status       string `form:"status"`
	AcademicYear string `form:"academicYear"`
	Department   string `form:"department"`
	EventType    string `form:"eventType"`
}

// ReviewRecordRequest captures the reviewer's decision.
type ReviewRecordRequest struct {
	Status          string `json:"status" binding:"required"`
	RejectionReason string `json:"rejectionReason"`
}

// AttachmentLink is a short-lived download link for a record attachment.
type AttachmentLink struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
