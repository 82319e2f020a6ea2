package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-status-gateway/internal/config"
	transport "quiz-status-gateway/internal/transport/http"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the gateway.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the websocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	g, err := newGateway(ctx, configPath)
	if err != nil {
		return err
	}
	defer g.Close()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = g.cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	wsHandler := transport.NewWSHandler(g.manager, g.cfg.API.RetryCount, g.log.Named("ws"))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	replayCtx, stopReplay := context.WithCancel(ctx)
	defer stopReplay()
	go replayLoop(replayCtx, g, config.Duration(g.cfg.Replay.Interval, time.Minute))

	go func() {
		g.log.Info("starting quiz status gateway", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.log.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		g.log.Info("shutting down server")
	case <-ctx.Done():
		g.log.Info("context canceled, shutting down server")
	}
	stopReplay()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)

	// Hijacked websockets outlive server.Shutdown; closing them reports partial
	// sessions through the unload path before the drain below.
	if werr := wsHandler.Shutdown(shutdownCtx); werr != nil {
		g.log.Warn("websocket handlers still running", "error", werr)
	}

	// Give fire-and-forget deliveries a chance before the process exits.
	g.manager.Wait()
	if werr := g.beacon.Wait(shutdownCtx); werr != nil {
		g.log.Warn("beacon deliveries abandoned", "error", werr)
	}
	return err
}

func replayLoop(ctx context.Context, g *gateway, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := g.manager.ReplayPending(ctx, g.cfg.Replay.Concurrency); err != nil && ctx.Err() == nil {
				g.log.Warn("replay pending statuses", "error", err)
			}
		}
	}
}
