package models

// These structs define the JSON payloads exchanged between the OCR cloud
// function and the downstream Cloud Workflow.

// GCSEvent is the payload of a storage object finalize event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// OCRCompletedPayload is passed as the argument of the downstream workflow execution.
type OCRCompletedPayload struct {
	JobID      string   `json:"jobId"`
	SourceURI  string   `json:"sourceUri"`
	OutputURI  string   `json:"outputUri"`
	ResultFile string   `json:"resultFile"`
	Objects    []string `json:"objects"`
}
