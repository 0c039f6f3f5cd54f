// Package scanning provides the engine that classifies files against the
// signature database and coordinates parallel scans of whole trees.
package scanning

import (
	"context"
	"errors"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/ahrav/frostfile/internal/domain/scanning"
	"github.com/ahrav/frostfile/internal/domain/signatures"
	"github.com/ahrav/frostfile/internal/infra/hasher"
	"github.com/ahrav/frostfile/pkg/common/logger"
)

var (
	// ErrNoDatabase is returned when a scanner is built without signatures.
	ErrNoDatabase = errors.New("signature database is required")
	// ErrNoScanner is returned when a coordinator is built without a scanner.
	ErrNoScanner = errors.New("file scanner is required")
)

// maxOpenRetries bounds how often a file is reopened after the process ran
// out of descriptors.
const maxOpenRetries = 5

// FileScanner classifies a single path. It holds only read-only state, so a
// single instance is shared by every worker.
type FileScanner struct {
	db     *signatures.Database
	hasher *hasher.Hasher

	newBackOff func() backoff.BackOff

	logger  *logger.Logger
	metrics ScanMetrics
	tracer  trace.Tracer
}

// NewFileScanner creates a FileScanner. It fails only when db is nil.
func NewFileScanner(
	db *signatures.Database,
	h *hasher.Hasher,
	logger *logger.Logger,
	metrics ScanMetrics,
	tracer trace.Tracer,
) (*FileScanner, error) {
	if db == nil {
		return nil, ErrNoDatabase
	}

	return &FileScanner{
		db:     db,
		hasher: h,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			return backoff.WithMaxRetries(b, maxOpenRetries)
		},
		logger:  logger.With("component", "file_scanner"),
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

// Scan hashes path and looks the digest up. It never fails: open and read
// errors become an ErrorResult.
func (s *FileScanner) Scan(ctx context.Context, path string) domain.Result {
	ctx, span := s.tracer.Start(ctx, "file_scanner.scanning.scan",
		trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	start := time.Now()
	digest, n, err := s.hashWithRetry(ctx, path)

	var result domain.Result
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to hash file")
		s.logger.Debug(ctx, "File could not be read", "path", path, "error", err)
		result = domain.NewErrorResult(path, err)
	} else {
		hex := digest.String()
		span.SetAttributes(attribute.String("digest", hex))
		if s.db.Lookup(hex) {
			s.logger.Warn(ctx, "Signature match", "path", path, "digest", hex)
			result = domain.NewInfectedResult(path, hex)
		} else {
			result = domain.NewCleanResult(path, hex)
		}
		span.SetStatus(codes.Ok, "file scanned")
	}

	span.SetAttributes(attribute.String("verdict", result.Verdict().String()))
	s.metrics.ObserveFile(ctx, result.Verdict(), n, time.Since(start))

	return result
}

func (s *FileScanner) hashWithRetry(ctx context.Context, path string) (hasher.Digest, int64, error) {
	b := backoff.WithContext(s.newBackOff(), ctx)
	for {
		digest, n, err := s.hasher.HashFile(ctx, path)
		if err == nil || !isDescriptorExhaustion(err) {
			return digest, n, err
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return digest, n, err
		}
		s.logger.Debug(ctx, "Out of file descriptors, retrying open", "path", path, "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return digest, n, err
		case <-timer.C:
		}
	}
}

func isDescriptorExhaustion(err error) bool {
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE)
}
