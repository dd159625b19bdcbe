package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// State errors (STATE-001 to STATE-099)
	ErrCodeStateNotFound     ErrorCode = "STATE-001"
	ErrCodeStateCorrupt      ErrorCode = "STATE-002"
	ErrCodeStateWriteFailed  ErrorCode = "STATE-003"
	ErrCodeStateSingleFlight ErrorCode = "STATE-004"
	ErrCodeStateUnknownID    ErrorCode = "STATE-005"

	// Ledger errors (LEDGER-001 to LEDGER-099)
	ErrCodeLedgerAppendFailed ErrorCode = "LEDGER-001"
	ErrCodeLedgerUnreadable   ErrorCode = "LEDGER-002"

	// Agent errors (AGENT-001 to AGENT-099)
	ErrCodeAgentNotFound   ErrorCode = "AGENT-001"
	ErrCodeAgentTimeout    ErrorCode = "AGENT-002"
	ErrCodeAgentFailed     ErrorCode = "AGENT-003"
	ErrCodeAgentBadOutput  ErrorCode = "AGENT-004"
	ErrCodeAgentExhausted  ErrorCode = "AGENT-005"
	ErrCodeAgentCancelled  ErrorCode = "AGENT-006"

	// Tool server errors (TOOL-001 to TOOL-099)
	ErrCodeToolServerUnavailable ErrorCode = "TOOL-001"
	ErrCodeToolServerBlocked     ErrorCode = "TOOL-002"

	// Workspace errors (WORKSPACE-001 to WORKSPACE-099)
	ErrCodeWorkspaceInit       ErrorCode = "WORKSPACE-001"
	ErrCodeWorkspaceNotGitRepo ErrorCode = "WORKSPACE-002"
	ErrCodeWorkspaceCommit     ErrorCode = "WORKSPACE-003"

	// Config errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigNotFound ErrorCode = "CONFIG-001"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG-002"
	ErrCodeConfigBlocked  ErrorCode = "CONFIG-003"

	// Spec parsing errors (SPEC-001 to SPEC-099)
	ErrCodeSpecNotFound ErrorCode = "SPEC-001"
	ErrCodeSpecEmpty    ErrorCode = "SPEC-002"

	// Status errors (STATUS-001 to STATUS-099)
	ErrCodeStatusStale ErrorCode = "STATUS-001"
)

// Classification places a failure in the orchestrator's error taxonomy.
// The loop's state machine branches on this closed set, never on error
// strings.
type Classification int

const (
	// ClassUnknown is the zero value; treated as permanent by callers.
	ClassUnknown Classification = iota

	// ClassTransient failures are eligible for bounded automatic retry
	// (network, timeout, tool server unavailable).
	ClassTransient

	// ClassPermanent failures are terminal for the feature; the run
	// continues with the next one.
	ClassPermanent

	// ClassEnvironment failures are fatal for the whole run (broken
	// project environment, failed init script).
	ClassEnvironment

	// ClassCorruptState means persisted state is unreadable. Fatal and
	// never auto-repaired: silent repair could discard progress.
	ClassCorruptState
)

// String returns the classification name for logs and ledger entries.
func (c Classification) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassEnvironment:
		return "environment"
	case ClassCorruptState:
		return "corrupt_state"
	default:
		return "unknown"
	}
}

// DroverError represents an enhanced error with code, classification,
// suggestions, and documentation
type DroverError struct {
	Code        ErrorCode
	Class       Classification
	Message     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *DroverError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *DroverError) Unwrap() error {
	return e.Cause
}

// New creates a new DroverError
func New(code ErrorCode, message string) *DroverError {
	return &DroverError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new DroverError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *DroverError {
	return &DroverError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithClass sets the failure classification
func (e *DroverError) WithClass(class Classification) *DroverError {
	e.Class = class
	return e
}

// WithSuggestion adds a suggestion to the error
func (e *DroverError) WithSuggestion(suggestion string) *DroverError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *DroverError) WithSuggestions(suggestions ...string) *DroverError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// ClassificationOf extracts the classification from an error chain.
// Non-DroverError values classify as unknown.
func ClassificationOf(err error) Classification {
	var derr *DroverError
	if stderrors.As(err, &derr) {
		return derr.Class
	}
	return ClassUnknown
}

// IsTransient reports whether the error is eligible for automatic retry
func IsTransient(err error) bool {
	return ClassificationOf(err) == ClassTransient
}

// IsEnvironment reports whether the error is fatal for the whole run
func IsEnvironment(err error) bool {
	return ClassificationOf(err) == ClassEnvironment
}

// IsCorruptState reports whether the error indicates unreadable persisted state
func IsCorruptState(err error) bool {
	return ClassificationOf(err) == ClassCorruptState
}

// Common error constructors for frequently used errors

// NewStateNotFoundError creates a features file not found error
func NewStateNotFoundError(path string) *DroverError {
	return New(ErrCodeStateNotFound, fmt.Sprintf("features file not found: %s", path)).
		WithClass(ClassPermanent).
		WithSuggestion("Run 'drover parse-spec <spec.md> -o <features file>' to create one").
		WithSuggestion("Check the features_file path in drover.yaml")
}

// NewStateCorruptError creates a corrupt state error. Never auto-repaired.
func NewStateCorruptError(path string, cause error) *DroverError {
	return Wrap(ErrCodeStateCorrupt, fmt.Sprintf("features file is unreadable: %s", path), cause).
		WithClass(ClassCorruptState).
		WithSuggestion("Inspect the file by hand; it may be mid-edit or truncated").
		WithSuggestion("Restore the file from version control before re-running")
}

// NewToolServerUnavailableError creates a tool server readiness error
func NewToolServerUnavailableError(name string, cause error) *DroverError {
	return Wrap(ErrCodeToolServerUnavailable, fmt.Sprintf("tool server %q is not reachable", name), cause).
		WithClass(ClassTransient).
		WithSuggestion(fmt.Sprintf("Check the %q command and arguments in drover.yaml", name)).
		WithSuggestion("Verify the tool server binary is installed and on PATH")
}

// NewAgentTimeoutError creates a per-invocation timeout error
func NewAgentTimeoutError(featureID string, timeout string) *DroverError {
	return New(ErrCodeAgentTimeout, fmt.Sprintf("agent invocation for feature %s exceeded %s", featureID, timeout)).
		WithClass(ClassTransient).
		WithSuggestion("Increase invocation_timeout in drover.yaml for long features").
		WithSuggestion("Split the feature into smaller units of work")
}

// NewEnvironmentError creates a fatal run-level environment error
func NewEnvironmentError(message string, cause error) *DroverError {
	return Wrap(ErrCodeWorkspaceInit, message, cause).
		WithClass(ClassEnvironment).
		WithSuggestion("Fix the project environment and re-run; completed features are preserved")
}
