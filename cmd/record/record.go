// Package record implements the record command.
package record

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/longrec/internal/app"
	"github.com/tphakala/longrec/internal/conf"
	"github.com/tphakala/longrec/internal/recorder"
)

type options struct {
	discard bool
}

// Command creates the record command.
func Command(settings *conf.Settings) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "record [path]",
		Short: "Record from the capture device until stopped",
		Long: `Record audio until interrupted or until --max-duration elapses.
Without a path a timestamped file is created in recorder.outputdir.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			return run(cmd.Context(), cmd.OutOrStdout(), settings, name, opts)
		},
	}

	if err := setupFlags(cmd, settings, &opts); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings, opts *options) error {
	cmd.Flags().DurationVar(&settings.Recorder.MaxDuration, "max-duration", settings.Recorder.MaxDuration, "Stop automatically after this long (0 records until interrupted)")
	cmd.Flags().BoolVar(&settings.Recorder.Partition, "partition", settings.Recorder.Partition, "Write each flush to its own numbered file")
	cmd.Flags().StringVar(&settings.Recorder.MemoryThreshold, "threshold", settings.Recorder.MemoryThreshold, "Queued audio that triggers a flush (\"64MB\", or -1 to write only at stop)")
	cmd.Flags().StringVar(&settings.Recorder.DefaultFormat, "format", settings.Recorder.DefaultFormat, "Container for timestamped names and unknown suffixes")
	cmd.Flags().BoolVar(&settings.Audio.Monitor, "monitor", settings.Audio.Monitor, "Play captured audio back through the output device")
	cmd.Flags().BoolVar(&opts.discard, "discard", false, "Capture without writing any file")

	for key, flag := range map[string]string{
		"recorder.maxduration":     "max-duration",
		"recorder.partition":       "partition",
		"recorder.memorythreshold": "threshold",
		"recorder.defaultformat":   "format",
		"audio.monitor":            "monitor",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// stopWatcher captures the stop event of the session it watches.
type stopWatcher struct {
	once sync.Once
	done chan struct{}
	last recorder.StopEvent
}

func newStopWatcher() *stopWatcher {
	return &stopWatcher{done: make(chan struct{})}
}

func (w *stopWatcher) SessionStarted(recorder.SessionInfo) {}
func (w *stopWatcher) Flushed(recorder.FlushEvent)         {}

func (w *stopWatcher) SessionStopped(e recorder.StopEvent) {
	w.once.Do(func() {
		w.last = e
		close(w.done)
	})
}

func run(parent context.Context, out io.Writer, settings *conf.Settings, name string, opts options) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := newStopWatcher()
	a, err := app.New(ctx, settings, watcher)
	if err != nil {
		return err
	}
	defer a.Close()

	var path string
	if !opts.discard {
		path = settings.Recorder.TargetPath(name, time.Now())
	}
	if err := a.Recorder.Start(path, settings.Recorder.MaxDuration); err != nil {
		return err
	}

	desc := a.Recorder.Descriptor()
	target := path
	if target == "" {
		target = "(discarding audio)"
	}
	fmt.Fprintf(out, "Recording %s at %d Hz, %d channel(s) to %s\n", desc.Name, desc.SampleRate, desc.Channels, target)
	if settings.Recorder.MaxDuration > 0 {
		fmt.Fprintf(out, "Stopping automatically after %s. Press Ctrl+C to stop earlier.\n", settings.Recorder.MaxDuration)
	} else {
		fmt.Fprintln(out, "Press Ctrl+C to stop.")
	}

	var stopErr error
	select {
	case <-ctx.Done():
		stopErr = a.Recorder.Stop()
		<-watcher.done
	case <-watcher.done:
	}

	printSummary(out, watcher.last, settings.Recorder.Partition)
	if stopErr != nil {
		return stopErr
	}
	return watcher.last.Err
}

func printSummary(out io.Writer, e recorder.StopEvent, partitioned bool) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Stopped (%s) after %s\n", e.Reason, e.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "Blocks: %d captured, %d written, %d skipped in %d flush(es)\n",
		e.BlocksCaptured, e.BlocksWritten, e.BlocksSkipped, e.Flushes)
	if e.Path == "" {
		return
	}
	if partitioned {
		fmt.Fprintf(out, "Files: numbered parts of %s\n", e.Path)
		return
	}
	if fi, err := os.Stat(e.Path); err == nil {
		fmt.Fprintf(out, "File: %s (%s)\n", e.Path, units.HumanSize(float64(fi.Size())))
	}
}
