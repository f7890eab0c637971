package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mverdier/parley/internal/broker"
	"github.com/mverdier/parley/internal/choices"
	"github.com/mverdier/parley/internal/client"
)

var (
	askContext  string
	askChoices  []string
	askApproval bool
	askTimeout  int
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question and wait for the answer",
	Long: `Submit a question to the running server and block until a human
answers it. The answer is printed to stdout, so agents can capture it
directly.

Examples:
  parley ask "Which database should we use?"
  parley ask "Which region?" --choice us-east-1 --choice eu-west-1
  parley ask "Run the migration now?" --approval
  parley ask "Delete the old branches?" --context "12 branches, all merged"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askContext, "context", "", "background shown alongside the question")
	askCmd.Flags().StringArrayVar(&askChoices, "choice", nil, "explicit answer choice (repeatable)")
	askCmd.Flags().BoolVar(&askApproval, "approval", false, "ask for a yes/no approval instead of free text")
	askCmd.Flags().IntVar(&askTimeout, "timeout", -1, "seconds to wait for an answer (0 = forever, -1 = config default)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	spec := broker.Spec{
		Kind:    broker.KindQuestion,
		Prompt:  args[0],
		Context: askContext,
	}
	if askApproval {
		spec.Kind = broker.KindApproval
	}
	for _, label := range askChoices {
		spec.Choices = append(spec.Choices, choices.Choice{Label: label, Value: label})
	}

	ctx, cancel := askWaitContext(cmd.Context())
	defer cancel()

	c := client.New(serverURL)
	res, err := c.Ask(ctx, spec)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("timed out waiting for an answer")
		}
		return err
	}

	switch res.Source {
	case broker.SourceCancelled:
		return fmt.Errorf("request cancelled: %s", res.Value)
	case broker.SourceSuperseded:
		return fmt.Errorf("request superseded by a newer one")
	}

	fmt.Println(res.Value)
	if len(res.Attachments) > 0 {
		fmt.Println(strings.Join(res.Attachments, "\n"))
	}
	return nil
}

// askWaitContext applies the effective wait timeout: the --timeout flag
// when set, otherwise the configured agent timeout. Zero waits forever.
func askWaitContext(parent context.Context) (context.Context, context.CancelFunc) {
	seconds := askTimeout
	if seconds < 0 {
		seconds = 0
		if cfg, err := loadConfig(); err == nil {
			seconds = cfg.Agent.ProcessTimeoutSeconds
		}
	}
	if seconds <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, time.Duration(seconds)*time.Second)
}
