package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/ytdl-client/internal/tui"
)

const tuiCommand = "tui"

func newTUICmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   tuiCommand,
		Short: "Starts the interactive terminal UI",
		Long: `Starts the interactive terminal UI. Logs are written to logging.file so
they do not corrupt the screen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.app == nil {
				return errors.New("application services not initialized")
			}
			ctx := cmd.Context()
			c.app.StartServer(ctx)
			c.app.StartHeartbeat(ctx)
			return tui.Run(ctx, c.app.Session(), c.app, c.tuiSink)
		},
	}
}
