package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestStoryboardError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *StoryboardError
		contains []string
	}{
		{
			name:     "code and message",
			err:      New(ErrCodePlanInvalid, "plan has no steps"),
			contains: []string{"[PLAN-002]", "plan has no steps"},
		},
		{
			name:     "with cause",
			err:      Wrap(ErrCodeFileUnmarshal, "failed to parse artifact", stderrors.New("unexpected end of JSON input")),
			contains: []string{"[IO-004]", "failed to parse artifact", "unexpected end of JSON input"},
		},
		{
			name: "with suggestions",
			err: New(ErrCodePatchUnknownOp, "unknown patch op: merge").
				WithSuggestion("Use one of: edit_pending, split_pending, append_tail"),
			contains: []string{"Suggestions:", "edit_pending"},
		},
		{
			name:     "with docs",
			err:      New(ErrCodeStepNoWorker, "no worker").WithDocs("https://example.com/docs"),
			contains: []string{"Documentation: https://example.com/docs"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, want substring %q", msg, want)
				}
			}
		})
	}
}

func TestStoryboardError_Unwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := Wrap(ErrCodeProviderTransport, "transport failure", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestHasCode(t *testing.T) {
	err := NewProviderParseError("anthropic", stderrors.New("bad json"))

	if !HasCode(err, ErrCodeProviderParse) {
		t.Error("HasCode should match ErrCodeProviderParse")
	}
	if HasCode(err, ErrCodeProviderTransport) {
		t.Error("HasCode should not match a different code")
	}
	if HasCode(nil, ErrCodeProviderParse) {
		t.Error("HasCode on nil should be false")
	}
	if HasCode(stderrors.New("plain"), ErrCodeProviderParse) {
		t.Error("HasCode on a plain error should be false")
	}
}

func TestParseVsTransportDistinct(t *testing.T) {
	parse := NewProviderParseError("anthropic", stderrors.New("x"))
	transport := NewProviderTransportError("anthropic", stderrors.New("x"))

	if parse.Code == transport.Code {
		t.Error("parse and transport failures must carry distinct codes")
	}
}
