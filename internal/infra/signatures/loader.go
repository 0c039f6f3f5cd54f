// Package signatures provides the sources a signature database can be built
// from: the asset bundled into the binary and plain files on disk.
package signatures

import (
	"context"
	"embed"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/frostfile/internal/domain/signatures"
	"github.com/ahrav/frostfile/pkg/common/logger"
)

//go:embed assets/sha256.txt
var assets embed.FS

const bundledAsset = "assets/sha256.txt"

// Loader builds a signature database from some source. Every failure is a
// *signatures.LoadError.
type Loader interface {
	Load(ctx context.Context) (*signatures.Database, error)
}

// EmbeddedLoader loads the signature list compiled into the binary.
type EmbeddedLoader struct {
	logger *logger.Logger
	tracer trace.Tracer
}

// NewEmbeddedLoader creates a loader for the bundled signature asset.
func NewEmbeddedLoader(logger *logger.Logger, tracer trace.Tracer) *EmbeddedLoader {
	return &EmbeddedLoader{logger: logger.With("component", "signatures.embedded"), tracer: tracer}
}

// Load parses the bundled asset.
func (l *EmbeddedLoader) Load(ctx context.Context) (*signatures.Database, error) {
	ctx, span := l.tracer.Start(ctx, "signatures.embedded.load")
	defer span.End()

	f, err := assets.Open(bundledAsset)
	if err != nil {
		err = &signatures.LoadError{Source: "embedded:" + bundledAsset, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open bundled signatures")
		return nil, err
	}
	defer f.Close()

	return load(ctx, l.logger, span, "embedded:"+bundledAsset, f)
}

// FileLoader loads a signature list from a path on fs.
type FileLoader struct {
	fs     afero.Fs
	path   string
	logger *logger.Logger
	tracer trace.Tracer
}

// NewFileLoader creates a loader reading path from fs.
func NewFileLoader(fs afero.Fs, path string, logger *logger.Logger, tracer trace.Tracer) *FileLoader {
	return &FileLoader{
		fs:     fs,
		path:   path,
		logger: logger.With("component", "signatures.file", "path", path),
		tracer: tracer,
	}
}

// Load reads and parses the signature file.
func (l *FileLoader) Load(ctx context.Context) (*signatures.Database, error) {
	ctx, span := l.tracer.Start(ctx, "signatures.file.load",
		trace.WithAttributes(attribute.String("path", l.path)))
	defer span.End()

	f, err := l.fs.Open(l.path)
	if err != nil {
		err = &signatures.LoadError{Source: l.path, Err: fmt.Errorf("open: %w", err)}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open signature file")
		l.logger.Error(ctx, "Failed to open signature file", "error", err)
		return nil, err
	}
	defer f.Close()

	return load(ctx, l.logger, span, l.path, f)
}

// ForPath returns a FileLoader when path is set and the bundled loader
// otherwise.
func ForPath(fs afero.Fs, path string, logger *logger.Logger, tracer trace.Tracer) Loader {
	if path == "" {
		return NewEmbeddedLoader(logger, tracer)
	}
	return NewFileLoader(fs, path, logger, tracer)
}

func load(ctx context.Context, log *logger.Logger, span trace.Span, source string, r io.Reader) (*signatures.Database, error) {
	start := time.Now()
	db, err := signatures.Load(source, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse signatures")
		log.Error(ctx, "Failed to load signatures", "source", source, "error", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("signature_count", db.Len()))
	span.SetStatus(codes.Ok, "signatures loaded")
	log.Info(ctx, "Signatures loaded",
		"source", source,
		"count", db.Len(),
		"duration", time.Since(start),
	)
	return db, nil
}
