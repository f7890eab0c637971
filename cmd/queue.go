package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mverdier/parley/internal/client"
	"github.com/mverdier/parley/internal/queue"
	"github.com/mverdier/parley/internal/ui"
)

var queueAddAttachments []string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage queued answers",
	Long: `Manage the answer queue. Queued prompts are consumed in order:
whenever the agent asks and the queue is enabled and not paused, the
head of the queue answers immediately without waiting for a human.`,
	RunE: runQueueList,
}

var queueAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Queue an answer for the next request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		item, err := c.QueueAdd(cmd.Context(), args[0], queueAddAttachments)
		if err != nil {
			return err
		}
		fmt.Println(ui.Success("Queued " + item.ID))
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued answers",
	RunE:  runQueueList,
}

var queueEditCmd = &cobra.Command{
	Use:   "edit <id> <text>",
	Short: "Edit a queued answer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		if err := c.QueueEdit(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Println(ui.Success("Updated"))
		return nil
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a queued answer",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		if err := c.QueueRemove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println(ui.Success("Removed"))
		return nil
	},
}

var queueReorderCmd = &cobra.Command{
	Use:   "reorder <from> <to>",
	Short: "Move a queued answer to a new position",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid from index %q", args[0])
		}
		to, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid to index %q", args[1])
		}
		c := client.New(serverURL)
		if err := c.QueueReorder(cmd.Context(), from, to); err != nil {
			return err
		}
		fmt.Println(ui.Success("Reordered"))
		return nil
	},
}

var queuePauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause queue consumption",
	RunE:  queueFlagRunner(func(c *client.Client, cmd *cobra.Command) (queue.State, error) { return c.QueueSetPaused(cmd.Context(), true) }),
}

var queueResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume queue consumption",
	RunE:  queueFlagRunner(func(c *client.Client, cmd *cobra.Command) (queue.State, error) { return c.QueueSetPaused(cmd.Context(), false) }),
}

var queueEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable the queue",
	RunE:  queueFlagRunner(func(c *client.Client, cmd *cobra.Command) (queue.State, error) { return c.QueueSetEnabled(cmd.Context(), true) }),
}

var queueDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable the queue",
	RunE:  queueFlagRunner(func(c *client.Client, cmd *cobra.Command) (queue.State, error) { return c.QueueSetEnabled(cmd.Context(), false) }),
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all queued answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		if err := c.QueueClear(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(ui.Success("Queue cleared"))
		return nil
	},
}

func init() {
	queueAddCmd.Flags().StringArrayVar(&queueAddAttachments, "attach", nil, "attachment path or reference (repeatable)")

	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueEditCmd)
	queueCmd.AddCommand(queueRemoveCmd)
	queueCmd.AddCommand(queueReorderCmd)
	queueCmd.AddCommand(queuePauseCmd)
	queueCmd.AddCommand(queueResumeCmd)
	queueCmd.AddCommand(queueEnableCmd)
	queueCmd.AddCommand(queueDisableCmd)
	queueCmd.AddCommand(queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}

func queueFlagRunner(set func(*client.Client, *cobra.Command) (queue.State, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		state, err := set(c, cmd)
		if err != nil {
			return err
		}
		fmt.Print(renderQueueState(state))
		return nil
	}
}

func runQueueList(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)
	state, err := c.Queue(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Print(renderQueueState(state))
	return nil
}

func renderQueueState(state queue.State) string {
	var b strings.Builder

	flags := "enabled"
	if !state.Enabled {
		flags = "disabled"
	}
	if state.Paused {
		flags += ", paused"
	}
	b.WriteString(ui.Header("📋", fmt.Sprintf("Queue (%s)", flags)))

	if len(state.Items) == 0 {
		b.WriteString(ui.StyleDim.Render("No queued answers.") + "\n")
		return b.String()
	}

	rows := make([][]string, 0, len(state.Items))
	for i, item := range state.Items {
		text := item.Text
		if len(text) > 60 {
			text = text[:57] + "..."
		}
		rows = append(rows, []string{strconv.Itoa(i), item.ID, text})
	}
	b.WriteString(ui.Table([]string{"#", "ID", "Text"}, rows))
	return b.String()
}
