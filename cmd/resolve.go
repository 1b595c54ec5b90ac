package main

import (
	"encoding/json"
	"fmt"

	"github.com/MimeLyc/synced-lyrics/internal/service"
	"github.com/spf13/cobra"
)

const (
	formatJSON = "json"
	formatLRC  = "lrc"
)

func newResolveCommand(flags *globalFlags) *cobra.Command {
	var (
		req    service.Request
		format string
	)
	cmd := &cobra.Command{
		Use:   "resolve <artist> <song>",
		Short: "Resolve lyrics for one track and print them",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatJSON && format != formatLRC {
				return fmt.Errorf("unknown format %q", format)
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			req.Artist, req.Song = args[0], args[1]
			lyrics, err := a.lyrics.GetLyrics(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == formatLRC {
				_, err = fmt.Fprint(out, bestLyrics(lyrics))
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(lyrics)
		},
	}
	cmd.Flags().StringVar(&req.Album, "album", "", "Album name")
	cmd.Flags().StringVar(&req.Duration, "duration", "", "Track duration in seconds, used by the fallback provider")
	cmd.Flags().StringVar(&req.Platform, "platform", "", "Source platform (spotify, apple_music, youtube_music)")
	cmd.Flags().StringVar(&req.SourceTrackID, "track-id", "", "Track id on the source platform")
	cmd.Flags().BoolVar(&req.Enhanced, "enhanced", true, "Prefer word-level rich sync")
	cmd.Flags().BoolVar(&req.Debug, "debug", false, "Include debug info in JSON output")
	cmd.Flags().StringVar(&format, "format", formatJSON, "Output format: json or lrc")
	return cmd
}

// bestLyrics picks the most detailed text available.
func bestLyrics(l *service.Lyrics) string {
	switch {
	case l.RichSynced != "":
		return l.RichSynced
	case l.Synced != "":
		return l.Synced
	default:
		return l.Unsynced
	}
}
