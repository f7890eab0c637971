package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mverdier/parley/internal/broker"
	"github.com/mverdier/parley/internal/client"
	"github.com/mverdier/parley/internal/queue"
	"github.com/mverdier/parley/internal/ui"
)

var watchCode string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream server events to the terminal",
	Long: `Connect to the server's websocket as a remote client and print
events as they happen: pending requests, answers, and queue changes.
Pairing requires the code the server printed at startup.

Examples:
  parley watch --code 123456`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchCode, "code", "", "pairing code shown by the server (required)")
	_ = watchCmd.MarkFlagRequired("code")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)
	c.OnMessage = printEventFrame

	if err := c.ConnectEvents(watchCode); err != nil {
		return err
	}
	defer c.Close()

	fmt.Println(ui.Success("Connected, watching for events (Ctrl+C to stop)"))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	return nil
}

func printEventFrame(msg client.Message) {
	switch msg.Type {
	case "state":
		var snap broker.Snapshot
		if err := json.Unmarshal(msg.Payload, &snap); err != nil {
			return
		}
		if snap.Request != nil {
			fmt.Print(ui.RenderRequest(snap.Request))
		} else {
			fmt.Println(ui.StyleDim.Render("No pending request."))
		}
		fmt.Printf("Queue: %d item(s)\n", len(snap.Queue.Items))

	case "pendingRequest":
		var req broker.Request
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return
		}
		fmt.Print(ui.RenderRequest(&req))

	case "requestResolved":
		var payload struct {
			Request    *broker.Request    `json:"request"`
			Resolution *broker.Resolution `json:"resolution"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Resolution == nil {
			return
		}
		fmt.Printf("%s %s answered by %s: %s\n",
			ui.CheckMark(""), payload.Resolution.RequestID, payload.Resolution.Source, payload.Resolution.Value)

	case "queueUpdated":
		var state queue.State
		if err := json.Unmarshal(msg.Payload, &state); err != nil {
			return
		}
		fmt.Printf("Queue updated: %d item(s)\n", len(state.Items))

	case "error":
		fmt.Println(ui.Error(string(msg.Payload)))
	}
}
