package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newPruneCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Expire cached responses and evict stale tracks once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.pruner.Run(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "expired responses: %s\n", humanize.Comma(report.ExpiredResponses))
			fmt.Fprintf(out, "evicted tracks:    %s\n", humanize.Comma(report.EvictedTracks))
			fmt.Fprintf(out, "deleted blobs:     %s\n", humanize.Comma(int64(report.DeletedBlobs)))
			fmt.Fprintf(out, "removed temp files: %d\n", report.RemovedTempFiles)
			fmt.Fprintf(out, "took %s\n", report.Duration)
			return err
		},
	}
}
