package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newMetadataCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "metadata <url>",
		Short: "Prints video information without downloading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.app == nil {
				return errors.New("application services not initialized")
			}
			meta, err := c.app.Session().FetchMetadata(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(meta); err != nil {
					return fmt.Errorf("encode metadata: %w", err)
				}
				return nil
			}
			fmt.Fprintf(out, "Title:     %s\n", meta.Title)
			fmt.Fprintf(out, "Uploader:  %s\n", meta.Uploader)
			fmt.Fprintf(out, "Duration:  %s\n", meta.DurationValue())
			fmt.Fprintf(out, "Views:     %d\n", meta.ViewCount)
			if meta.ThumbnailURL != "" {
				fmt.Fprintf(out, "Thumbnail: %s\n", meta.ThumbnailURL)
			}
			if len(meta.AvailableSubtitles) > 0 {
				fmt.Fprintf(out, "Subtitles: %s\n", strings.Join(meta.AvailableSubtitles, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the metadata as JSON")
	return cmd
}
