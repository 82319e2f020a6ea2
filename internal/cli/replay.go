package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewReplayCmd drains the pending status store once and exits.
func NewReplayCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Re-send status updates that previously failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), *configPath)
		},
	}
}

func runReplay(ctx context.Context, configPath string) error {
	g, err := newGateway(ctx, configPath)
	if err != nil {
		return err
	}
	defer g.Close()

	report, err := g.manager.ReplayPending(ctx, g.cfg.Replay.Concurrency)
	if err != nil {
		return err
	}
	g.log.Info("replay finished",
		"attempted", report.Attempted,
		"synced", report.Synced,
		"failed", report.Failed,
		"dropped", report.Dropped)
	return nil
}
