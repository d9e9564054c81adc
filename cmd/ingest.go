package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/acled-ingest/internal/ingest"
)

type ingestOptions struct {
	file   string
	watch  bool
	dryRun bool
	format string
}

var ingestOpts ingestOptions

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load ACLED exports from the incoming directory",
	Long: `Processes every file in the incoming directory that matches the
configured pattern, then moves each successful file to the archive directory.
Failed files stay in place and are retried on the next run.

With --file, a single export is processed and left where it is.
With --watch, the directory is rescanned on the configured interval until
interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runIngest(ctx, os.Stdout, ingestOpts)
	},
}

func runIngest(ctx context.Context, out io.Writer, opts ingestOptions) error {
	if err := validFormat(opts.format); err != nil {
		return err
	}
	if opts.file != "" && opts.watch {
		return eris.New("--file and --watch cannot be combined")
	}

	validate := cfg.Validate
	if opts.file != "" {
		validate = cfg.ValidateStore
	}
	if err := validate(); err != nil {
		return err
	}

	runner, closeFn, err := buildRunner(ctx, opts.dryRun, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	if opts.watch {
		return runner.Watch(ctx, cfg.Ingest.Interval)
	}

	var report *ingest.RunReport
	if opts.file != "" {
		res := runner.ProcessPath(ctx, opts.file)
		report = &ingest.RunReport{Files: []ingest.FileResult{res}}
	} else {
		report, err = runner.RunOnce(ctx)
		if err != nil {
			return err
		}
	}

	if err := writeReport(out, opts.format, report); err != nil {
		return eris.Wrap(err, "write report")
	}
	// Failed files stay in place for the next run; they never fail the command.
	if n := report.Failed(); n > 0 {
		zap.L().Warn("ingest: files left for retry",
			zap.Int("failed", n),
			zap.Int("files", len(report.Files)),
		)
	}
	return nil
}

// buildRunner wires a Runner to the configured store. A dry run never opens
// the store. The returned func releases the store.
func buildRunner(ctx context.Context, dryRun bool, metrics *ingest.Metrics) (*ingest.Runner, func(), error) {
	var (
		writer ingest.EventWriter
		runs   *ingest.RunLog
	)
	closeFn := func() {}

	if !dryRun {
		st, err := initStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		writer = st
		runs = ingest.NewRunLog(st)
		closeFn = func() { st.Close() } //nolint:errcheck
	}

	proc := ingest.NewProcessor(writer,
		ingest.WithSniffBytes(cfg.Ingest.SniffBytes),
		ingest.WithDryRun(dryRun),
		ingest.WithMetrics(metrics),
	)
	runner := ingest.NewRunner(proc, runs, metrics, ingest.RunnerConfig{
		IncomingDir: cfg.Ingest.IncomingDir,
		ArchiveDir:  cfg.Ingest.ArchiveDir,
		Pattern:     cfg.Ingest.Pattern,
	})
	return runner, closeFn, nil
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestOpts.file, "file", "", "process a single export instead of scanning the incoming directory")
	f.BoolVar(&ingestOpts.watch, "watch", false, "rescan the incoming directory every ingest.interval")
	f.BoolVar(&ingestOpts.dryRun, "dry-run", false, "parse and validate without writing to the store")
	f.StringVar(&ingestOpts.format, "format", formatText, "report format: text, json, or yaml")
	rootCmd.AddCommand(ingestCmd)
}
