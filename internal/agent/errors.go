package agent

import "fmt"

// ErrorType classifies a lifecycle failure for self-correction.
type ErrorType string

const (
	// ErrInvalidInput means a required context field was missing; the
	// lifecycle aborted before calling the provider.
	ErrInvalidInput ErrorType = "invalid_input"
	// ErrValidationFailed means the buffered provider output was empty,
	// whitespace-only, or carried the literal error marker.
	ErrValidationFailed ErrorType = "validation_failed"
	// ErrRuleViolation means rule enforcement reported one or more
	// violations.
	ErrRuleViolation ErrorType = "rule_violation"
	// ErrPersistenceFailed means the artifact store rejected the write or
	// update.
	ErrPersistenceFailed ErrorType = "persistence_failed"
	// ErrTransportFailure means the provider or a collaborator call
	// raised (including per-call timeouts).
	ErrTransportFailure ErrorType = "transport_failure"
	// ErrUnknownOperation means the operation_type context field held an
	// unrecognized value.
	ErrUnknownOperation ErrorType = "unknown_operation"
	// ErrRecoveryFailed classifies the coordinator's terminal failure,
	// emitted when no correction attempt remains or none can run.
	ErrRecoveryFailed ErrorType = "recovery_failed"
)

// ErrorReport describes a lifecycle failure for the coordinator.
type ErrorReport struct {
	Type     ErrorType
	Details  string
	Guidance string
	// Timeout marks transport failures caused by a per-call deadline. A
	// fix-agent timeout must not recurse into another correction.
	Timeout bool
}

func report(t ErrorType, guidance, format string, args ...any) *ErrorReport {
	return &ErrorReport{Type: t, Details: fmt.Sprintf(format, args...), Guidance: guidance}
}

// Standardized error codes, kept stable for log scrapers and clients.
var errorCodes = map[string]string{
	"E001": "Invalid input",
	"E002": "Config validation failed",
	"E003": "LLM call failed or timed out",
	"E004": "Artifact operation error",
	"E005": "Agent self-correction attempt failed",
	"E999": "Unknown error",
}

// ErrorMessage formats a standardized error message from an error code.
func ErrorMessage(code, detail string) string {
	message, ok := errorCodes[code]
	if !ok {
		code, message = "E999", errorCodes["E999"]
	}
	if detail == "" {
		return fmt.Sprintf("[%s] %s", code, message)
	}
	return fmt.Sprintf("[%s] %s: %s", code, message, detail)
}
