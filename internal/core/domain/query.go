package domain

import "time"

// EventQuery filters the submitted-events lookups.
type EventQuery struct {
	EventType string
	From      time.Time
	To        time.Time
}

// BatchStatus interprets the registry's cdResposta answer codes.
type BatchStatus string

const (
	BatchProcessed  BatchStatus = "processed"
	BatchProcessing BatchStatus = "processing"
	BatchRejected   BatchStatus = "rejected"
	BatchFailed     BatchStatus = "failed"
	BatchUnknown    BatchStatus = "unknown"
)
