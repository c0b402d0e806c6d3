package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Inspect the current plan",
}

var planShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the plan from the persisted session",
	RunE:  runPlanShow,
}

var (
	planSessionPath string
	planJSON        bool
)

func init() {
	planShowCmd.Flags().StringVar(&planSessionPath, "session", defaultSessionPath, "session state file")
	planShowCmd.Flags().BoolVar(&planJSON, "json", false, "output the plan as JSON")

	planCmd.AddCommand(planShowCmd)
	rootCmd.AddCommand(planCmd)
}

func runPlanShow(cmd *cobra.Command, args []string) error {
	sess, err := loadSession(planSessionPath)
	if err != nil {
		return err
	}
	if !sess.HasPlan() {
		return fmt.Errorf("no plan in session %s", planSessionPath)
	}

	if planJSON {
		data, err := json.MarshalIndent(sess.Plan, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal plan: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderPlan(sess.Plan))
	return nil
}
