package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Plan errors (PLAN-001 to PLAN-099)
	ErrCodePlanNotFound    ErrorCode = "PLAN-001"
	ErrCodePlanInvalid     ErrorCode = "PLAN-002"
	ErrCodePlanStepMissing ErrorCode = "PLAN-003"
	ErrCodePlanDupStepID   ErrorCode = "PLAN-004"
	ErrCodePlanForwardDep  ErrorCode = "PLAN-005"

	// Patch errors (PATCH-001 to PATCH-099)
	ErrCodePatchUnknownOp     ErrorCode = "PATCH-001"
	ErrCodePatchBadPayload    ErrorCode = "PATCH-002"
	ErrCodePatchBadScope      ErrorCode = "PATCH-003"
	ErrCodePatchUnknownUnit   ErrorCode = "PATCH-004"
	ErrCodePatchScopeTooLarge ErrorCode = "PATCH-005"

	// Step/scheduling errors (STEP-001 to STEP-099)
	ErrCodeStepNoWorker     ErrorCode = "STEP-001"
	ErrCodeStepBlocked      ErrorCode = "STEP-002"
	ErrCodeStepBudgetSpent  ErrorCode = "STEP-003"
	ErrCodeStepClarifyUser  ErrorCode = "STEP-004"
	ErrCodeStepDispatchFail ErrorCode = "STEP-005"

	// Asset errors (ASSET-001 to ASSET-099)
	ErrCodeAssetNotFound   ErrorCode = "ASSET-001"
	ErrCodeAssetFetchFail  ErrorCode = "ASSET-002"
	ErrCodeAssetBadRequest ErrorCode = "ASSET-003"

	// Research errors (RESEARCH-001 to RESEARCH-099)
	ErrCodeResearchDecompose ErrorCode = "RESEARCH-001"
	ErrCodeResearchTaskFail  ErrorCode = "RESEARCH-002"

	// Provider errors (PROVIDER-001 to PROVIDER-099)
	ErrCodeProviderNotFound  ErrorCode = "PROVIDER-001"
	ErrCodeProviderConfig    ErrorCode = "PROVIDER-002"
	ErrCodeProviderAuth      ErrorCode = "PROVIDER-003"
	ErrCodeProviderTransport ErrorCode = "PROVIDER-004"
	ErrCodeProviderRateLimit ErrorCode = "PROVIDER-005"
	ErrCodeProviderTimeout   ErrorCode = "PROVIDER-006"
	ErrCodeProviderParse     ErrorCode = "PROVIDER-007"
	ErrCodeProviderSchema    ErrorCode = "PROVIDER-008"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeFileUnmarshal   ErrorCode = "IO-004"
	ErrCodeFileMarshal     ErrorCode = "IO-005"
)

// StoryboardError represents an enhanced error with code, suggestions, and documentation
type StoryboardError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *StoryboardError) Error() string {
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

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *StoryboardError) Unwrap() error {
	return e.Cause
}

// New creates a new StoryboardError
func New(code ErrorCode, message string) *StoryboardError {
	return &StoryboardError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new StoryboardError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *StoryboardError {
	return &StoryboardError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *StoryboardError) WithSuggestion(suggestion string) *StoryboardError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *StoryboardError) WithSuggestions(suggestions ...string) *StoryboardError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *StoryboardError) WithDocs(url string) *StoryboardError {
	e.DocsURL = url
	return e
}

// HasCode reports whether err carries the given error code
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	if sbErr, ok := err.(*StoryboardError); ok {
		return sbErr.Code == code
	}
	return false
}

// Common error constructors for frequently used errors

// NewPatchUnknownOpError creates an unknown patch op error
func NewPatchUnknownOpError(op string) *StoryboardError {
	return New(ErrCodePatchUnknownOp, fmt.Sprintf("unknown patch op: %s", op)).
		WithSuggestion("Use one of: edit_pending, split_pending, append_tail").
		WithDocs("https://github.com/felixgeelhaar/storyboard#patch-operations")
}

// NewPatchBadPayloadError creates a malformed patch payload error
func NewPatchBadPayloadError(details string) *StoryboardError {
	return New(ErrCodePatchBadPayload, fmt.Sprintf("malformed patch payload: %s", details)).
		WithSuggestion("Check that 'steps' is a list of step objects").
		WithSuggestion("Check the patch op schema requirements").
		WithDocs("https://github.com/felixgeelhaar/storyboard#patch-operations")
}

// NewStepNoWorkerError creates an unresolvable capability error
func NewStepNoWorkerError(capability string) *StoryboardError {
	return New(ErrCodeStepNoWorker, fmt.Sprintf("no worker registered for capability: %s", capability)).
		WithSuggestion("Use one of: writer, visualizer, researcher, data_analyst").
		WithDocs("https://github.com/felixgeelhaar/storyboard#capabilities")
}

// NewProviderAuthError creates a provider authentication error
func NewProviderAuthError(provider string) *StoryboardError {
	return New(ErrCodeProviderAuth, fmt.Sprintf("authentication failed for provider: %s", provider)).
		WithSuggestion(fmt.Sprintf("Set the %s_API_KEY environment variable", strings.ToUpper(provider))).
		WithSuggestion("Check if your API key is valid and not expired").
		WithDocs("https://github.com/felixgeelhaar/storyboard#provider-configuration")
}

// NewProviderTransportError creates a provider transport failure error
func NewProviderTransportError(provider string, cause error) *StoryboardError {
	return Wrap(ErrCodeProviderTransport, fmt.Sprintf("transport failure calling provider: %s", provider), cause).
		WithSuggestion("Check network connectivity and provider status").
		WithSuggestion("The call may be retried safely")
}

// NewProviderParseError creates a structured-output parse error.
// Parse failures are distinct from transport failures so the orchestration
// layer can apply its own repair-and-retry policy.
func NewProviderParseError(provider string, cause error) *StoryboardError {
	return Wrap(ErrCodeProviderParse, fmt.Sprintf("provider %s returned unparseable structured output", provider), cause).
		WithSuggestion("The raw response did not contain valid JSON").
		WithSuggestion("Retry with a repair prompt rather than the same request")
}

// NewProviderSchemaError creates a structured-output schema validation error
func NewProviderSchemaError(provider string, cause error) *StoryboardError {
	return Wrap(ErrCodeProviderSchema, fmt.Sprintf("provider %s output failed schema validation", provider), cause).
		WithSuggestion("The JSON parsed but did not match the expected schema").
		WithSuggestion("Retry with a repair prompt rather than the same request")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *StoryboardError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
