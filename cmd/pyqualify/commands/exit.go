package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

var (
	// ErrUsage marks invalid flags or arguments.
	ErrUsage = errors.New("invalid usage")
	// ErrWouldChange is returned by --check when files would be rewritten.
	ErrWouldChange = errors.New("files would be rewritten")
	// ErrFilesFailed is returned when at least one file could not be processed.
	ErrFilesFailed = errors.New("some files could not be processed")
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

func usageError(format string, args ...any) error {
	return &ExitError{Code: ExitUsage, Err: fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))}
}

func configError(err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

// flagError turns cobra flag parsing errors into usage errors.
func flagError(_ *cobra.Command, err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return ExitFailure
}

// Quiet reports whether the error was already reported by the command and
// should not be printed again.
func Quiet(err error) bool {
	return errors.Is(err, ErrWouldChange) || errors.Is(err, ErrFilesFailed)
}
