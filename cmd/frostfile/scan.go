package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appscanning "github.com/ahrav/frostfile/internal/app/scanning"
	"github.com/ahrav/frostfile/internal/config"
	"github.com/ahrav/frostfile/internal/domain/scanning"
	"github.com/ahrav/frostfile/internal/infra/eventbus/memory"
	"github.com/ahrav/frostfile/internal/infra/hasher"
	"github.com/ahrav/frostfile/internal/infra/reporter"
	"github.com/ahrav/frostfile/internal/infra/walker"
)

func newScanCmd(a *app) *cobra.Command {
	var verbose, noColor bool

	cmd := &cobra.Command{
		Use:   "scan PATH",
		Short: "Scan a file or directory tree",
		Long: "Scan hashes every regular file under PATH and reports files whose digest\n" +
			"matches a known signature. Exit status is 0 when nothing was found, 1 when\n" +
			"an infected file was found, 2 on fatal errors and 130 when interrupted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.scan(cmd, args[0], verbose, noColor)
		},
	}

	f := cmd.Flags()
	f.Int("workers", 0, "number of parallel scan workers (default: GOMAXPROCS)")
	f.Int("chunk-size", config.DefaultChunkSize, "read buffer size in bytes")
	f.Duration("progress-every", config.DefaultProgressEvery, "minimum interval between progress lines, 0 prints all")
	f.BoolVarP(&verbose, "verbose", "v", false, "also list clean files")
	f.BoolVar(&noColor, "no-color", false, "disable coloured output")

	return cmd
}

func (a *app) scan(cmd *cobra.Command, root string, verbose, noColor bool) error {
	ctx := cmd.Context()
	log := a.log.With("command", "scan")

	db, err := a.loadSignatures(ctx)
	if err != nil {
		return err
	}

	h := hasher.New(a.fs, hasher.WithChunkSize(a.cfg.Scanner.ChunkSize))
	fileScanner, err := appscanning.NewFileScanner(db, h, log, a.metrics, a.tracer)
	if err != nil {
		return &exitError{code: exitFatal, err: err}
	}

	w := walker.New(a.fs, walker.WithOnError(func(path string, err error) {
		log.Warn(ctx, "Skipping unreadable entry", "path", path, "error", err)
	}))

	broker := memory.NewBroker()
	opts := []reporter.Option{
		reporter.WithProgressEvery(a.cfg.Scanner.ProgressEvery),
		reporter.WithVerbose(verbose),
	}
	if noColor {
		opts = append(opts, reporter.WithoutColor())
	}
	rep := reporter.New(cmd.OutOrStdout(), a.fs, opts...)

	// The subscription must outlive an interrupted ctx so the summary of a
	// cancelled job still reaches the reporter.
	subCtx, unsubscribe := context.WithCancel(context.WithoutCancel(ctx))
	defer unsubscribe()
	if err := rep.Subscribe(subCtx, broker); err != nil {
		return &exitError{code: exitFatal, err: err}
	}

	coord, err := appscanning.NewCoordinator(fileScanner, w, broker, a.cfg.Scanner.Workers, log, a.metrics, a.tracer)
	if err != nil {
		return &exitError{code: exitFatal, err: err}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	log.Debug(ctx, "Starting scan", "root", root, "signatures", db.Len(), "workers", coord.Workers())
	if _, err := coord.Start(ctx, root); err != nil {
		return &exitError{code: exitFatal, err: err}
	}

	summary := awaitSummary(ctx, coord, rep.Summaries(), sigCh)
	<-coord.Drained()

	return exitFor(summary)
}

// awaitSummary blocks until the job's summary arrives. An interrupt or a
// cancelled ctx requests cooperative cancellation and keeps waiting.
func awaitSummary(
	ctx context.Context,
	coord *appscanning.Coordinator,
	summaries <-chan scanning.SummaryEvent,
	sigCh <-chan os.Signal,
) scanning.SummaryEvent {
	done := ctx.Done()
	cancelCtx := context.WithoutCancel(ctx)
	for {
		select {
		case s := <-summaries:
			return s
		case <-sigCh:
			coord.Cancel(cancelCtx)
			sigCh = nil
		case <-done:
			coord.Cancel(cancelCtx)
			done = nil
		}
	}
}

func exitFor(s scanning.SummaryEvent) error {
	switch {
	case s.Cancelled:
		return &exitError{code: exitCancelled}
	case s.AnyInfected:
		return &exitError{code: exitInfected}
	default:
		return nil
	}
}
