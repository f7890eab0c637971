package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mverdier/parley/internal/client"
	"github.com/mverdier/parley/internal/ui"
)

var (
	respondRequestID   string
	respondAttachments []string
	respondCancel      bool
)

var respondCmd = &cobra.Command{
	Use:   "respond [value]",
	Short: "Answer the pending request",
	Long: `Answer the request currently waiting on the server. With a value
argument the answer is submitted directly; without one the request is
rendered and answered interactively. If another client got there first,
nothing happens and the command reports it.

Examples:
  parley respond
  parley respond "use Postgres"
  parley respond yes --attach notes.md
  parley respond --cancel`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRespond,
}

func init() {
	respondCmd.Flags().StringVar(&respondRequestID, "request", "", "only answer this request id")
	respondCmd.Flags().StringArrayVar(&respondAttachments, "attach", nil, "attachment path or reference (repeatable)")
	respondCmd.Flags().BoolVar(&respondCancel, "cancel", false, "cancel the pending request instead of answering")
	rootCmd.AddCommand(respondCmd)
}

func runRespond(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)

	cur, err := c.Current(cmd.Context())
	if err != nil {
		return err
	}
	if cur == nil {
		return fmt.Errorf("no pending request")
	}
	if respondRequestID != "" && cur.ID != respondRequestID {
		return fmt.Errorf("pending request is %s, not %s", cur.ID, respondRequestID)
	}

	if respondCancel {
		if err := c.Cancel(cmd.Context(), cur.ID, "cancelled from CLI"); err != nil {
			return err
		}
		fmt.Println(ui.Success("Request cancelled"))
		return nil
	}

	value := strings.Join(args, " ")
	if value == "" {
		fmt.Print(ui.RenderRequest(cur))
		value, err = ui.AnswerRequest(cur)
		if err != nil {
			return err
		}
	}

	accepted, err := c.Respond(cmd.Context(), cur.ID, value, respondAttachments)
	if err != nil {
		return err
	}
	if !accepted {
		fmt.Println(ui.Warning("Not accepted: the request was already answered or replaced"))
		return nil
	}
	fmt.Println(ui.Success("Answer accepted"))
	return nil
}
