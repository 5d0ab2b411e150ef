package model

import "time"

// Severity is the closed error-level enumeration for messages. No other
// value is accepted anywhere in the service.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityMinor Severity = "minor"
	SeverityMajor Severity = "major"
)

// ParseSeverity validates a raw error level string.
func ParseSeverity(raw string) (Severity, bool) {
	switch Severity(raw) {
	case SeverityInfo, SeverityMinor, SeverityMajor:
		return Severity(raw), true
	default:
		return "", false
	}
}

// TimestampLayout is the fixed textual format messages carry on the
// wire, both inbound and in list responses.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Message mirrors the `messages` table. The read flag is monotonic
// false-to-true except for the dedup-refresh path, which resets it when
// an unresolved alert repeats.
type Message struct {
	ID         string    // messages.id (uuid)
	Name       string    // messages.name (producer)
	Body       string    // messages.message
	ErrorLevel Severity  // messages.errorlevel
	TimeRaised time.Time // messages.time_raised
	Read       bool      // messages.read_flag
}
