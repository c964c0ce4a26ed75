package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tradelens/backend/internal/logger"
	"github.com/tradelens/backend/internal/session"
	"github.com/tradelens/backend/internal/watcher"
)

var (
	watchAnalyze bool
	watchSettle  time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Upload journals as they are saved into a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchAnalyze, "analyze", true, "analyze each journal after uploading it")
	watchCmd.Flags().DurationVar(&watchSettle, "settle", watcher.DefaultSettle, "how long a file must be unchanged before it is uploaded")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := watcher.New(watchSettle)
	if err != nil {
		return err
	}
	defer w.Stop()

	// one journal at a time; Analyze is single-flight
	paths := make(chan string, 64)
	if err := w.Watch(args[0], func(path string) {
		select {
		case paths <- path:
		case <-ctx.Done():
		}
	}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "watching %s, press Ctrl+C to stop\n", args[0])

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-paths:
			f, err := session.NewFileFromPath(path, now())
			if err == nil {
				err = a.session.Upload(ctx, f)
			}
			if err != nil {
				logger.WithError(err, "watch").WithField("path", path).Error("Auto-upload failed")
				fmt.Fprintf(out, "✗ %s: %v\n", path, err)
				continue
			}
			fmt.Fprintf(out, "↑ %s uploaded as %s\n", path, f.ID)

			if !watchAnalyze {
				continue
			}
			if err := a.session.Analyze(ctx); err != nil {
				fmt.Fprintf(out, "✗ analysis of %s failed: %v\n", f.ID, err)
				continue
			}
			if r := a.session.Snapshot().DisplayedResult(); r != nil {
				fmt.Fprintf(out, "✓ %s analyzed in %s\n", f.ID, time.Duration(r.ProcessingTimeMs)*time.Millisecond)
			}
		}
	}
}
