package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/storyboard/internal/log"
	"github.com/felixgeelhaar/storyboard/internal/supervisor"
)

var runCmd = &cobra.Command{
	Use:   "run [message]",
	Short: "Drive one conversation turn against the plan",
	Long: `Run routes one user message through the plan manager, updates the plan
(fresh plan, patch, or pass-through), and executes steps until the plan
finishes, escalates, or halts. Session state persists between turns.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTurn,
}

var runSessionPath string

func init() {
	runCmd.Flags().StringVar(&runSessionPath, "session", defaultSessionPath, "session state file")
	rootCmd.AddCommand(runCmd)
}

func runTurn(cmd *cobra.Command, args []string) error {
	logger := log.DefaultLogger()
	message := strings.Join(args, " ")

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	sess, err := loadSession(runSessionPath)
	if err != nil {
		return err
	}

	result, err := engine.Turn(cmd.Context(), sess, message)
	// the session survives a failed turn so partial progress is never lost
	if saveErr := saveSession(runSessionPath, sess); saveErr != nil {
		logger.WithError(saveErr).Warn("could not persist session")
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderTurn(result))
	if sess.HasPlan() {
		fmt.Fprintln(cmd.OutOrStdout(), renderPlan(sess.Plan))
	}

	if result.Tick != nil && result.Tick.State == supervisor.TickEscalated {
		return fmt.Errorf("clarification needed: %s", result.Tick.Summary)
	}
	if result.Tick != nil && result.Tick.State == supervisor.TickHalted {
		return fmt.Errorf("plan halted: %s", result.Tick.Summary)
	}
	return nil
}
