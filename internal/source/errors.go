package source

import (
	"errors"
	"fmt"
)

// ErrInvalidEntry marks a well-formed JSON line that lacks required fields.
var ErrInvalidEntry = errors.New("invalid log entry")

// ErrLineTooLong marks a line longer than the reader accepts. The rest of
// the line is discarded and reading resumes at the next one.
var ErrLineTooLong = errors.New("line too long")

// LineError reports one skipped log line. Never fatal.
type LineError struct {
	Path string
	Line int
	Err  error
}

func (e *LineError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// FileError reports a log file that could not be read.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
