package exitcode

import (
	"errors"
	"testing"
)

func TestDetermineExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, Success},
		{"clarification escalation", errors.New("user clarification required: missing research"), ClarificationNeeded},
		{"budget exhausted", errors.New("rethink budget exhausted for step 5"), BudgetExhausted},
		{"auth failure", errors.New("authentication failed for provider: anthropic"), AuthError},
		{"api key missing", errors.New("api key not configured"), AuthError},
		{"network failure", errors.New("connection refused"), NetworkError},
		{"timeout", errors.New("request timeout"), NetworkError},
		{"usage error", errors.New("required flag not set"), UsageError},
		{"generic error", errors.New("something else went wrong"), GeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineExitCode(tt.err); got != tt.want {
				t.Errorf("DetermineExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetExitCodeDescription(t *testing.T) {
	if got := GetExitCodeDescription(ClarificationNeeded); got != "User clarification required" {
		t.Errorf("unexpected description: %q", got)
	}
	if got := GetExitCodeDescription(99); got != "Unknown error" {
		t.Errorf("unexpected description for unknown code: %q", got)
	}
}
