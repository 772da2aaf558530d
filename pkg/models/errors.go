package models

import "fmt"

// ValidationError reports a pattern that references schema elements absent
// from the summary, or that is structurally malformed. Fatal, no retry.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Reason)
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// FormatError reports a summary file whose version tag or structural
// checksum does not match. No partial deserialization is attempted.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("format error: %s", e.Reason)
	}
	return fmt.Sprintf("format error in %s: %s", e.Path, e.Reason)
}

// Formatf builds a FormatError for the given file.
func Formatf(path, format string, args ...interface{}) error {
	return &FormatError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
