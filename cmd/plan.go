package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mverdier/parley/internal/broker"
	"github.com/mverdier/parley/internal/client"
	"github.com/mverdier/parley/internal/ui"
)

var planTitle string

var planCmd = &cobra.Command{
	Use:   "plan [file]",
	Short: "Submit a plan for review and wait for the decision",
	Long: `Send a plan to the server for human review and block until the
reviewer decides. The plan body is read from the given file, or from
stdin when no file is passed.

The decision is printed on the first line (approved, approvedWithComments,
recreateWithChanges, or cancelled), followed by any reviewer comments.

Examples:
  parley plan PLAN.md
  git diff --stat | parley plan --title "release cut"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planTitle, "title", "", "title shown to the reviewer")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	var body []byte
	var err error

	if len(args) == 1 {
		body, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read plan: %w", err)
		}
		if planTitle == "" {
			planTitle = filepath.Base(args[0])
		}
	} else {
		body, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read plan from stdin: %w", err)
		}
	}

	plan := strings.TrimSpace(string(body))
	if plan == "" {
		return fmt.Errorf("plan is empty")
	}

	c := client.New(serverURL)
	res, err := c.ReviewPlan(cmd.Context(), planTitle, plan)
	if err != nil {
		return err
	}

	if res.Source == broker.SourceCancelled {
		return fmt.Errorf("review cancelled: %s", res.Value)
	}

	decision, comments, _ := strings.Cut(res.Value, "\n")
	switch decision {
	case broker.PlanApproved, broker.PlanApprovedWithComments:
		fmt.Println(ui.Success("Plan " + decision))
	default:
		fmt.Println(ui.Warning("Plan " + decision))
	}
	if comments != "" {
		fmt.Println(comments)
	}
	return nil
}
