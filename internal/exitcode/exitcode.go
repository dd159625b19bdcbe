package exitcode

import (
	"os"

	"github.com/drover-dev/drover/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution (run completed)
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// Halted indicates the run stopped before all features were done
	Halted = 3

	// CorruptState indicates persisted run state could not be read
	CorruptState = 4

	// EnvironmentError indicates the project environment is broken
	EnvironmentError = 5

	// Interrupted indicates the process was cancelled by the user
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error classification
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps an error to a process exit code using the
// orchestrator's failure taxonomy.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	switch errors.ClassificationOf(err) {
	case errors.ClassCorruptState:
		return CorruptState
	case errors.ClassEnvironment:
		return EnvironmentError
	default:
		return GeneralError
	}
}
