package models

type FileStatus struct {
	Name        string `json:"name"`
	Size        uint64 `json:"size"`
	StartOffset uint64 `json:"start_offset"`
	Written     uint64 `json:"written"`
}

type UploadResponse struct {
	Message       string       `json:"message"`
	UploadID      string       `json:"upload_id,omitempty"`
	Files         []FileStatus `json:"files,omitempty"`
	BytesReceived uint64       `json:"bytes_received"`
	BytesExpected uint64       `json:"bytes_expected"`
	Truncated     bool         `json:"truncated"`
	Overflow      bool         `json:"overflow,omitempty"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

// WebSocket control frames travel as text messages; file bytes only ever
// travel as binary messages.
const (
	FrameEnd      = "end"
	FrameAbort    = "abort"
	FrameProgress = "progress"
	FrameResult   = "result"
	FrameError    = "error"
)

type WSFrame struct {
	Type     string          `json:"type" validate:"oneof=end abort progress result error"`
	Received uint64          `json:"received,omitempty"`
	Total    uint64          `json:"total,omitempty"`
	Message  string          `json:"message,omitempty"`
	Result   *UploadResponse `json:"result,omitempty"`
}
