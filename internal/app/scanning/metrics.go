package scanning

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/ahrav/frostfile/internal/domain/scanning"
)

// ScanMetrics defines metrics operations needed by the scanning engine.
type ScanMetrics interface {
	// File metrics
	ObserveFile(ctx context.Context, verdict domain.Verdict, bytes int64, d time.Duration)

	// Worker metrics
	AddActiveWorkers(ctx context.Context, delta int)

	// Job metrics
	ObserveEnumeration(ctx context.Context, files int, d time.Duration)
	IncJobs(ctx context.Context, status domain.JobStatus)
}

// scanMetrics implements ScanMetrics.
type scanMetrics struct {
	// File metrics
	filesScanned metric.Int64Counter
	bytesHashed  metric.Int64Counter
	scanTime     metric.Float64Histogram

	// Worker metrics
	activeWorkers metric.Int64UpDownCounter

	// Job metrics
	jobs            metric.Int64Counter
	filesEnumerated metric.Int64Histogram
	enumerationTime metric.Float64Histogram
}

const namespace = "frostfile_scanner"

// NewScanMetrics creates a new ScanMetrics instance.
func NewScanMetrics(mp metric.MeterProvider) (*scanMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	s := new(scanMetrics)
	var err error

	if s.filesScanned, err = meter.Int64Counter(
		"files_scanned_total",
		metric.WithDescription("Total number of files scanned, by verdict"),
	); err != nil {
		return nil, err
	}

	if s.bytesHashed, err = meter.Int64Counter(
		"bytes_hashed_total",
		metric.WithDescription("Total number of content bytes fed to the hasher"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if s.scanTime, err = meter.Float64Histogram(
		"file_scan_duration_seconds",
		metric.WithDescription("Time taken to hash and classify a single file"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if s.activeWorkers, err = meter.Int64UpDownCounter(
		"active_workers",
		metric.WithDescription("Number of scan workers currently running"),
	); err != nil {
		return nil, err
	}

	if s.jobs, err = meter.Int64Counter(
		"jobs_total",
		metric.WithDescription("Total number of scan jobs that reached a terminal status"),
	); err != nil {
		return nil, err
	}

	if s.filesEnumerated, err = meter.Int64Histogram(
		"files_enumerated",
		metric.WithDescription("Number of files found per job"),
	); err != nil {
		return nil, err
	}

	if s.enumerationTime, err = meter.Float64Histogram(
		"enumeration_duration_seconds",
		metric.WithDescription("Time taken to enumerate a job's files"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return s, nil
}

func (m *scanMetrics) ObserveFile(ctx context.Context, verdict domain.Verdict, bytes int64, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("verdict", verdict.String()))
	m.filesScanned.Add(ctx, 1, attrs)
	m.bytesHashed.Add(ctx, bytes)
	m.scanTime.Record(ctx, d.Seconds(), attrs)
}

func (m *scanMetrics) AddActiveWorkers(ctx context.Context, delta int) {
	m.activeWorkers.Add(ctx, int64(delta))
}

func (m *scanMetrics) ObserveEnumeration(ctx context.Context, files int, d time.Duration) {
	m.filesEnumerated.Record(ctx, int64(files))
	m.enumerationTime.Record(ctx, d.Seconds())
}

func (m *scanMetrics) IncJobs(ctx context.Context, status domain.JobStatus) {
	m.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.String())))
}
