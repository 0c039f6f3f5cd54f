package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/automaxprocs/maxprocs"

	appscanning "github.com/ahrav/frostfile/internal/app/scanning"
	"github.com/ahrav/frostfile/internal/config"
	"github.com/ahrav/frostfile/internal/config/viperloader"
	"github.com/ahrav/frostfile/internal/domain/signatures"
	sigloader "github.com/ahrav/frostfile/internal/infra/signatures"
	"github.com/ahrav/frostfile/pkg/common/logger"
	"github.com/ahrav/frostfile/pkg/common/otel"
)

const serviceType = "cli"

// app holds the dependencies shared by every subcommand. It is populated in
// the root command's PersistentPreRunE.
type app struct {
	configFile string
	fs         afero.Fs

	cfg      *config.Config
	log      *logger.Logger
	tracer   trace.Tracer
	metrics  appscanning.ScanMetrics
	teardown func(context.Context)
}

func newApp() *app {
	return &app{fs: afero.NewOsFs(), teardown: func(context.Context) {}}
}

// shutdown flushes telemetry. It runs whether or not the command failed.
func (a *app) shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	a.teardown(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "frostfile",
		Short:         "Signature-based malware scanner",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "path to a YAML config file")
	flags.String("log-level", config.DefaultLogLevel, "log level: debug, info, warn or error")
	flags.String("signatures", "", "signature file, one SHA-256 hex digest per line (default: bundled database)")

	root.AddCommand(newScanCmd(a), newHashCmd(a), newSignaturesCmd(a))
	return root
}

// init resolves configuration and builds the logger and telemetry.
func (a *app) init(cmd *cobra.Command) error {
	opts := []viperloader.Option{
		viperloader.WithFlag("log.level", cmd.Flags().Lookup("log-level")),
		viperloader.WithFlag("signatures.path", cmd.Flags().Lookup("signatures")),
		viperloader.WithFlag("scanner.workers", cmd.Flags().Lookup("workers")),
		viperloader.WithFlag("scanner.chunk_size", cmd.Flags().Lookup("chunk-size")),
		viperloader.WithFlag("scanner.progress_every", cmd.Flags().Lookup("progress-every")),
	}
	if a.configFile != "" {
		opts = append(opts, viperloader.WithFile(a.configFile))
	}

	cfg, err := viperloader.New(a.fs, opts...).Load(cmd.Context())
	if err != nil {
		return &exitError{code: exitFatal, err: err}
	}
	a.cfg = cfg
	a.log = newLogger(cmd.ErrOrStderr(), cfg)

	stdLog := logger.NewStdLogger(a.log.With("component", "maxprocs"), logger.LevelDebug)
	if _, err := maxprocs.Set(maxprocs.Logger(stdLog.Printf)); err != nil {
		a.log.Warn(cmd.Context(), "Failed to set GOMAXPROCS", "error", err)
	}

	hostname, _ := os.Hostname()
	providers, teardown, err := otel.InitTelemetry(a.log, otel.Config{
		ServiceName:      cfg.Telemetry.ServiceName,
		ExporterEndpoint: cfg.Telemetry.Endpoint,
		Probability:      cfg.Telemetry.SamplingRatio,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"host.name":        hostname,
			"app":              serviceType,
		},
		InsecureExporter: cfg.Telemetry.Insecure,
	})
	if err != nil {
		return &exitError{code: exitFatal, err: fmt.Errorf("failed to initialize telemetry: %w", err)}
	}
	a.teardown = teardown
	a.tracer = providers.Tracer.Tracer(cfg.Telemetry.ServiceName)

	metrics, err := appscanning.NewScanMetrics(providers.Meter)
	if err != nil {
		return &exitError{code: exitFatal, err: fmt.Errorf("failed to create metrics: %w", err)}
	}
	a.metrics = metrics

	return nil
}

// loadSignatures loads the configured database. Failure is fatal.
func (a *app) loadSignatures(ctx context.Context) (*signatures.Database, error) {
	db, err := sigloader.ForPath(a.fs, a.cfg.Signatures.Path, a.log, a.tracer).Load(ctx)
	if err != nil {
		return nil, &exitError{code: exitFatal, err: err}
	}
	return db, nil
}

func newLogger(w io.Writer, cfg *config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.Log.Level)
	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	if !cfg.Log.JSON {
		h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.Level(level)})
		return logger.NewWithHandler(h)
	}

	return logger.NewWithMetadata(w, level, cfg.Telemetry.ServiceName, traceIDFn, logger.Events{}, map[string]string{
		"app": serviceType,
	})
}
