// Package output provides JSON/styled output formatting and error handling.
package output

// Exit codes. ExitRetry follows sysexits EX_TEMPFAIL so job runners can
// tell "try again later" apart from hard failures.
const (
	ExitOK         = 0  // Success, ESI healthy
	ExitUsage      = 1  // Invalid arguments, flags or configuration
	ExitOffline    = 2  // ESI offline or in daily downtime
	ExitErrorLimit = 3  // Error budget at or below the threshold
	ExitAPI        = 7  // Unexpected failure
	ExitRetry      = 75 // Guarded task must be retried later
)

// Error codes for JSON envelope.
const (
	CodeUsage      = "usage"
	CodeOffline    = "offline"
	CodeErrorLimit = "error_limit"
	CodeAPI        = "api_error"
	CodeRetry      = "retry"
)

// ExitCodeFor returns the exit code for a given error code.
func ExitCodeFor(code string) int {
	switch code {
	case CodeUsage:
		return ExitUsage
	case CodeOffline:
		return ExitOffline
	case CodeErrorLimit:
		return ExitErrorLimit
	case CodeRetry:
		return ExitRetry
	case CodeAPI:
		return ExitAPI
	default:
		return ExitAPI
	}
}
