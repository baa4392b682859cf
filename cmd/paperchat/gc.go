package main

import (
	"fmt"

	"github.com/liliang-cn/paperchat/internal/scheduler"
	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove orphaned chunk generations once",
	Args:  cobra.NoArgs,
	RunE:  runGC,
}

func init() {
	rootCmd.AddCommand(gcCmd)
}

func runGC(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	removed, err := scheduler.NewGC(a.store, cfg.Vector.GCGrace, logger).RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d orphaned chunk rows\n", removed)
	return nil
}
