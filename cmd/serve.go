package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mverdier/parley/internal/broker"
	"github.com/mverdier/parley/internal/config"
	"github.com/mverdier/parley/internal/history"
	"github.com/mverdier/parley/internal/hub"
	"github.com/mverdier/parley/internal/logger"
	"github.com/mverdier/parley/internal/ui"
)

var serveHeadless bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Parley server",
	Long: `Start the broker server. Agents ask questions through the HTTP API,
remote clients pair over the websocket with the printed auth code, and
pending requests are answered right here in the terminal unless
--headless is set.

Examples:
  parley serve
  parley serve --headless`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", false, "serve without the local answer surface")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New()
	log.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	log.SetJSON(cfg.Logging.JSON)

	recorder, err := openHistory(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer recorder.Close()

	h := hub.New(hub.Config{
		Port:     cfg.Server.Port,
		AuthCode: cfg.Server.AuthCode,
	}, recorder, log)

	b := h.Broker()
	if !cfg.Queue.Enabled {
		b.SetQueueEnabled(false)
	}
	if cfg.Queue.StartPaused {
		b.SetQueuePaused(true)
	}

	var surface *localSurface
	if !serveHeadless {
		surface = newLocalSurface(b)
		h.LocalNotify = surface.notify
	}

	fmt.Println(ui.Header("🗨️", "Parley"))
	fmt.Printf("Listening on port %d\n", cfg.Server.Port)
	fmt.Printf("Pairing code: %s\n\n", ui.StyleBold.Render(h.AuthCode()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.Start(ctx)
	}()
	if surface != nil {
		go surface.run(ctx)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return h.Stop(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func openHistory(ctx context.Context, cfg *config.Config) (history.Recorder, error) {
	switch cfg.History.Backend {
	case "redis":
		return history.DialRedisStore(ctx, cfg.History.RedisAddr, cfg.History.RedisKey, int64(cfg.History.MaxEntries))
	default:
		return history.NewMemoryStore(cfg.History.MaxEntries), nil
	}
}

// localSurface renders pending requests in the serving terminal and
// feeds the human's answer back as the local submission. Remote wins
// simply make the prompt go stale; its answer then loses the race and
// is dropped.
type localSurface struct {
	broker  *broker.Broker
	pending chan *broker.Request
}

func newLocalSurface(b *broker.Broker) *localSurface {
	return &localSurface{
		broker:  b,
		pending: make(chan *broker.Request, 8),
	}
}

func (s *localSurface) notify(e broker.Event) {
	if e.Type != broker.EventRequestPending || e.Request == nil {
		return
	}
	select {
	case s.pending <- e.Request:
	default:
	}
}

func (s *localSurface) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.pending:
			// The request may already be settled by a remote client or
			// the queue by the time it reaches the terminal.
			cur := s.broker.Current()
			if cur == nil || cur.ID != req.ID {
				continue
			}

			fmt.Print(ui.RenderRequest(req))
			value, err := ui.AnswerRequest(req)
			if err != nil {
				continue
			}
			if !s.broker.SubmitLocal(req.ID, value, nil) {
				fmt.Println(ui.StyleDim.Render("Already answered elsewhere."))
			}
		}
	}
}
