// Package cmd defines and implements the CLI commands for the ytdl executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/ytdl-client/internal/app"
	"github.com/JakeFAU/ytdl-client/internal/config"
	"github.com/JakeFAU/ytdl-client/internal/logging"
	"github.com/JakeFAU/ytdl-client/internal/telemetry"
	"github.com/JakeFAU/ytdl-client/internal/tui"
)

const (
	closeTimeout = 10 * time.Second
	serviceName  = "ytdl-client"
	version      = "1.0"
)

// cli carries state shared by the root hooks and the subcommands.
type cli struct {
	cfgFile string
	app     *app.App
	tracer  *sdktrace.TracerProvider
	tuiSink *tui.Sink
	// options are appended to every app.New call.
	options []app.Option
}

func newCLI() *cli {
	return &cli{tuiSink: tui.NewSink()}
}

// newRootCmd creates and configures the root command.
func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ytdl",
		Short: "Client for the YouTube download service.",
		Long: `ytdl submits download jobs to the download service, follows their progress
over the live event stream (falling back to status polling), and saves the
finished artifact locally or to Google Cloud Storage.`,
		SilenceUsage: true,

		// Builds the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},

		PersistentPostRunE: func(*cobra.Command, []string) error {
			return c.close()
		},
	}

	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(
		newDownloadCmd(c),
		newMetadataCmd(c),
		newHealthCmd(c),
		newTUICmd(c),
	)
	return cmd
}

func (c *cli) init(cmd *cobra.Command) error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := append([]app.Option(nil), c.options...)
	var logger *zap.Logger
	if cmd.Name() == tuiCommand {
		// The terminal UI owns stdout.
		logger, err = logging.NewFile(cfg.Logging.Development, cfg.Logging.Level, cfg.Logging.File)
		opts = append(opts, app.WithSinks(c.tuiSink))
	} else {
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
	}
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	tp, err := telemetry.InitTracerProvider(cmd.Context(), serviceName, version)
	if err != nil {
		_ = logger.Sync()
		return fmt.Errorf("init tracing: %w", err)
	}
	c.tracer = tp

	a, err := app.New(cmd.Context(), cfg, logger, opts...)
	if err != nil {
		_ = logger.Sync()
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	c.app = a
	return nil
}

// close shuts the application down. It is safe to call more than once.
func (c *cli) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if c.tracer != nil {
		_ = c.tracer.Shutdown(ctx)
		c.tracer = nil
	}
	if c.app == nil {
		return nil
	}
	a := c.app
	c.app = nil
	err := a.Close(ctx)
	if err != nil {
		a.Logger().Warn("error shutting down services", zap.Error(err))
	}
	// Sync fails on some terminals; nothing useful can be done about it.
	_ = a.Logger().Sync()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	c := newCLI()
	err := newRootCmd(c).ExecuteContext(ctx)
	// PersistentPostRunE is skipped when a command fails.
	if cerr := c.close(); cerr != nil && err == nil {
		fmt.Fprintln(os.Stderr, "Error:", cerr)
		err = cerr
	}
	stop()
	if err != nil {
		os.Exit(1)
	}
}
