package fuzz

import "time"

// Severity classifies a display record.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
	SeveritySuccess Severity = "SUCCESS"
)

// Record is one displayable log entry emitted by a parser or by the
// session controller. Parsers return nil instead of a Record for lines
// that mutate statistics silently.
type Record struct {
	Time     time.Time
	Severity Severity
	Message  string
}

// NewRecord builds a record stamped with the current time.
func NewRecord(sev Severity, msg string) *Record {
	return &Record{Time: time.Now(), Severity: sev, Message: msg}
}

// RecordSink receives display records. Implementations must tolerate
// being called from the goroutine that owns the session.
type RecordSink func(*Record)
