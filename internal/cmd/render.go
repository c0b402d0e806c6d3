package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/storyboard/internal/orchestrate"
	"github.com/felixgeelhaar/storyboard/internal/plan"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3"))
)

func statusStyle(status plan.Status) lipgloss.Style {
	switch status {
	case plan.StatusCompleted:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case plan.StatusInProgress:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	case plan.StatusBlocked:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	}
}

// renderPlan formats the plan as a step table for terminal output.
func renderPlan(p *plan.Plan) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Plan"))
	b.WriteString("\n")

	for i := range p.Steps {
		step := &p.Steps[i]
		title := step.Title
		if title == "" {
			title = step.Instruction
		}
		b.WriteString(fmt.Sprintf("  %s %s %s",
			labelStyle.Render(fmt.Sprintf("#%d", step.ID)),
			statusStyle(step.Status).Render(fmt.Sprintf("[%s]", step.Status)),
			title))
		if len(step.DependsOn) > 0 {
			deps := make([]string, len(step.DependsOn))
			for j, d := range step.DependsOn {
				deps[j] = fmt.Sprintf("#%d", d)
			}
			b.WriteString(labelStyle.Render(fmt.Sprintf("  (after %s)", strings.Join(deps, ", "))))
		}
		b.WriteString("\n")
		if step.ResultSummary != "" {
			b.WriteString(labelStyle.Render(fmt.Sprintf("      %s", step.ResultSummary)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderTurn formats the outcome of one conversation turn.
func renderTurn(result *orchestrate.TurnResult) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Turn: %s (%s)", result.Route, result.Intent)))
	b.WriteString("\n")
	if result.Tick != nil {
		b.WriteString(fmt.Sprintf("  %s\n", result.Tick.Summary))
	}
	for _, w := range result.Warnings {
		b.WriteString(warnStyle.Render(fmt.Sprintf("  warning: %s", w)))
		b.WriteString("\n")
	}
	return b.String()
}
