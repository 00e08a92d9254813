package domain

import "encoding/json"

// Job is the client-side view of one unit of backend work.
type Job struct {
	ID           string
	Type         JobType
	Phase        Phase
	Progress     int
	Result       any
	ErrorMessage string
	Epoch        uint64
}

// Snapshot is one status observation returned by a poll.
type Snapshot struct {
	JobID      string
	Phase      Phase
	Progress   int
	Message    string
	Result     json.RawMessage
	LowBalance bool
	// Value is the type-specific decoded result, set on completion
	Value any
}
