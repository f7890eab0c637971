package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mverdier/parley/internal/broker"
	"github.com/mverdier/parley/internal/client"
	"github.com/mverdier/parley/internal/ui"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently settled requests",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum entries to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)

	entries, err := c.History(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	fmt.Println(ui.Header("📜", "History"))
	if len(entries) == 0 {
		fmt.Println(ui.StyleDim.Render("No settled requests yet."))
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		prompt := e.Prompt
		if e.Kind == broker.KindPlanReview && e.Title != "" {
			prompt = e.Title
		}
		if len(prompt) > 50 {
			prompt = prompt[:47] + "..."
		}
		value := e.Value
		if len(value) > 30 {
			value = value[:27] + "..."
		}
		rows = append(rows, []string{e.ResolvedAt, string(e.Kind), string(e.Source), prompt, value})
	}
	fmt.Print(ui.Table([]string{"When", "Kind", "By", "Prompt", "Answer"}, rows))
	return nil
}
