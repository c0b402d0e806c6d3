package supervisor

import (
	"encoding/json"
	"strings"

	"github.com/felixgeelhaar/storyboard/internal/plan"
)

// failureTokens is the fixed vocabulary matched against result summaries,
// case-insensitive, with localized equivalents. A match reclassifies a
// nominally completed step as needing retry.
var failureTokens = []string{
	"error", "failed", "exception", "timeout", "not found", "missing",
	"unable", "cannot", "invalid",
	"エラー", "失敗", "例外", "タイムアウト", "見つかりません", "不足", "できません", "無効",
}

// inspect checks a finished step for failure signals: failure tokens in the
// result summary, an error field or failed_checks in the artifact, or a
// visualizer batch with zero successful items.
func inspect(step *plan.PlanStep, raw json.RawMessage) plan.QualityReport {
	report := plan.QualityReport{StepID: step.ID, Passed: true}

	if token := matchFailureToken(step.ResultSummary); token != "" {
		report.Passed = false
		report.FailedChecks = append(report.FailedChecks, "failure_token:"+token)
		report.Notes = step.ResultSummary
	}

	var body struct {
		Error        json.RawMessage `json:"error"`
		FailedChecks []string        `json:"failed_checks"`
		Items        []struct {
			Success bool `json:"success"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if len(body.Error) > 0 && string(body.Error) != "null" && string(body.Error) != `""` {
			report.Passed = false
			report.FailedChecks = append(report.FailedChecks, "artifact_error")
		}
		if len(body.FailedChecks) > 0 {
			report.Passed = false
			report.FailedChecks = append(report.FailedChecks, body.FailedChecks...)
		}
		if step.Capability == plan.CapabilityVisualizer && len(body.Items) > 0 {
			success := 0
			for _, item := range body.Items {
				if item.Success {
					success++
				}
			}
			if success == 0 {
				report.Passed = false
				report.FailedChecks = append(report.FailedChecks, "zero_successful_outputs")
			}
		}
	}

	return report
}

func matchFailureToken(summary string) string {
	if summary == "" {
		return ""
	}
	lowered := strings.ToLower(summary)
	for _, token := range failureTokens {
		if strings.Contains(lowered, token) {
			return token
		}
	}
	return ""
}
