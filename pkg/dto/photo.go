package dto

import "github.com/google/uuid"

type PhotoResponse struct {
	ID          uuid.UUID        `json:"id"`
	Filename    string           `json:"filename"`
	ContentType string           `json:"content_type"`
	URL         string           `json:"url"`
	Persons     []PhotoPersonRef `json:"persons,omitempty"`
	CreatedAt   string           `json:"created_at"`
}

type PhotoPersonRef struct {
	PersonID uuid.UUID `json:"person_id"`
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
}

// UploadItem reports what happened to one file of a multipart upload. Status
// is "routed", "queued" or "rejected".
type UploadItem struct {
	Filename string     `json:"filename"`
	Status   string     `json:"status"`
	TaskID   *uuid.UUID `json:"task_id,omitempty"`
	Error    string     `json:"error,omitempty"`
	Result   any        `json:"result,omitempty"`
}

type UploadResponse struct {
	Items    []UploadItem `json:"items"`
	Accepted int          `json:"accepted"`
	Rejected int          `json:"rejected"`
}
