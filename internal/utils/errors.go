package utils

import (
	"errors"
	"fmt"
)

// Severity classifies how far an error propagates through a run.
type Severity int

const (
	// SeverityRecoverable errors drop the offending observation and the run continues.
	SeverityRecoverable Severity = iota
	// SeverityFatal errors abort the whole run.
	SeverityFatal
)

func (s Severity) String() string {
	if s == SeverityFatal {
		return "fatal"
	}
	return "recoverable"
}

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op       string
	Msg      string
	Err      error
	Severity Severity
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewRecoverable reports a per-observation failure that should drop the file and continue.
func NewRecoverable(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err, Severity: SeverityRecoverable}
}

// NewFatal reports a failure that must abort the run.
func NewFatal(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err, Severity: SeverityFatal}
}

// IsFatal reports whether any AppError in err's chain is fatal.
func IsFatal(err error) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Severity == SeverityFatal {
			return true
		}
		err = appErr.Err
	}
	return false
}
