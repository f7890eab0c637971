package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mverdier/parley/internal/client"
	"github.com/mverdier/parley/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the pending request and queue",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)

	state, err := c.State(cmd.Context())
	if err != nil {
		return fmt.Errorf("server unreachable at %s: %w", serverURL, err)
	}

	fmt.Println(ui.Header("🗨️", "Parley"))

	if state.Request == nil {
		fmt.Println(ui.StyleDim.Render("No pending request."))
	} else {
		fmt.Print(ui.RenderRequest(state.Request))
		fmt.Println(ui.StyleDim.Render("id: " + state.Request.ID))
	}

	fmt.Print(renderQueueState(state.Queue))
	return nil
}
