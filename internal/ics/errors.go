package ics

import "fmt"

// ValidationError reports the first data-model invariant a document
// violates. It names the offending field and, when the violation is inside
// an event, that event's UID.
type ValidationError struct {
	UID    string // empty for document-level violations
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.UID == "" {
		return fmt.Sprintf("invalid calendar: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid event %q: %s: %s", e.UID, e.Field, e.Reason)
}

// ParseError reports malformed input text during decoding, with the
// 1-based physical line number the error was detected on.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ics: parse error at line %d: %s", e.Line, e.Message)
}

// UnsupportedFeatureError reports a property combination that has no
// defined serialization, e.g. an event carrying both an end time and a
// duration. It is never silently dropped into a best-effort output.
type UnsupportedFeatureError struct {
	UID     string
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("event %q: unsupported combination: %s", e.UID, e.Feature)
}

func parseErrorf(line int, format string, args ...any) error {
	return &ParseError{Line: line, Message: fmt.Sprintf(format, args...)}
}
