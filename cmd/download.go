package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/ytdl-client/internal/job"
	"github.com/JakeFAU/ytdl-client/internal/session"
)

const watchInterval = 200 * time.Millisecond

type downloadFlags struct {
	format    string
	subtitles bool
	options   []string
	save      bool
}

func newDownloadCmd(c *cli) *cobra.Command {
	var f downloadFlags
	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Submits a download job and follows it to completion",
		Long: `Submits the video at <url> to the download service and prints the session
log while progress arrives over the live stream or, after a stream failure,
from status polling. With --save the finished file is written to the
configured storage backend.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.app == nil {
				return errors.New("application services not initialized")
			}
			c.app.StartServer(cmd.Context())
			c.app.StartHeartbeat(cmd.Context())
			return runDownload(cmd.Context(), c.app.Session(), cmd.OutOrStdout(), args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.format, "format", "f", string(job.FormatVideo),
		"output format: video, audio_mp3, audio_wav or metadata")
	cmd.Flags().BoolVar(&f.subtitles, "subtitles", false, "download subtitles when available")
	cmd.Flags().StringArrayVarP(&f.options, "option", "o", nil,
		"advanced option as key=value (cookies, proxy, output_template); repeatable")
	cmd.Flags().BoolVar(&f.save, "save", false, "save the finished file to the configured storage")
	return cmd
}

// downloader is the controller surface the command uses.
type downloader interface {
	SetURL(rawURL string) error
	SetOptions(format job.Format, includeSubtitles bool, advanced job.AdvancedOptions) error
	Submit() error
	Snapshot() session.State
	Logs() []job.LogEntry
	SaveArtifact(ctx context.Context) (string, error)
}

func runDownload(ctx context.Context, sess downloader, out io.Writer, rawURL string, f downloadFlags) error {
	format, err := job.ParseFormat(f.format)
	if err != nil {
		return err
	}
	advanced, err := parseOptions(f.options)
	if err != nil {
		return err
	}
	if err := sess.SetURL(rawURL); err != nil {
		return err
	}
	if err := sess.SetOptions(format, f.subtitles, advanced); err != nil {
		return err
	}
	if err := sess.Submit(); err != nil {
		return err
	}

	w := &logWriter{out: out}
	snap, err := waitTerminal(ctx, sess, w)
	if err != nil {
		return err
	}
	if snap.Status == job.StatusFailed {
		reason := snap.Error
		if reason == "" {
			reason = snap.Message
		}
		return fmt.Errorf("download failed: %s", reason)
	}
	fmt.Fprintln(out, snap.Message)

	if !f.save {
		return nil
	}
	uri, err := sess.SaveArtifact(ctx)
	w.flush(sess.Logs())
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	fmt.Fprintf(out, "Saved to %s\n", uri)
	return nil
}

func waitTerminal(ctx context.Context, sess downloader, w *logWriter) (session.State, error) {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()
	lastProgress := -1
	for {
		w.flush(sess.Logs())
		snap := sess.Snapshot()
		if snap.Status.IsTerminal() {
			w.flush(sess.Logs())
			return snap, nil
		}
		if snap.Progress != lastProgress && snap.Status == job.StatusDownloading {
			lastProgress = snap.Progress
			fmt.Fprintf(w.out, "%s\n", snap.Message)
		}
		select {
		case <-ctx.Done():
			return snap, fmt.Errorf("wait for job: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// logWriter prints session log entries not yet printed.
type logWriter struct {
	out     io.Writer
	printed int
}

func (w *logWriter) flush(logs []job.LogEntry) {
	if len(logs) < w.printed {
		w.printed = 0
	}
	for _, entry := range logs[w.printed:] {
		fmt.Fprintf(w.out, "%s [%s] %s\n", entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Message)
	}
	w.printed = len(logs)
}

func parseOptions(raw []string) (job.AdvancedOptions, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	opts := make(job.AdvancedOptions, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --option %q: want key=value", kv)
		}
		opts[key] = strings.TrimSpace(value)
	}
	return opts, nil
}
