package scanning

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	domain "github.com/ahrav/frostfile/internal/domain/scanning"
	"github.com/ahrav/frostfile/internal/domain/signatures"
	"github.com/ahrav/frostfile/internal/infra/hasher"
	"github.com/ahrav/frostfile/internal/infra/walker"
	"github.com/ahrav/frostfile/pkg/common/logger"
)

const (
	emptyDigest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	helloDigest = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
)

func testMetrics(t *testing.T) ScanMetrics {
	t.Helper()
	m, err := NewScanMetrics(metricnoop.NewMeterProvider())
	require.NoError(t, err)
	return m
}

func testTracer() trace.Tracer { return noop.NewTracerProvider().Tracer("test") }

func newTestScanner(t *testing.T, fs afero.Fs, digests ...string) *FileScanner {
	t.Helper()
	db, err := signatures.New("test", digests...)
	require.NoError(t, err)

	s, err := NewFileScanner(db, hasher.New(fs), logger.Noop(), testMetrics(t), testTracer())
	require.NoError(t, err)
	return s
}

func newTestCoordinator(t *testing.T, fs afero.Fs, scanner Scanner, workers int) (*Coordinator, *recordingSink) {
	t.Helper()
	sink := newRecordingSink()
	c, err := NewCoordinator(scanner, walker.New(fs), sink, workers, logger.Noop(), testMetrics(t), testTracer())
	require.NoError(t, err)
	return c, sink
}

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
}

// recordingSink captures every event a coordinator delivers.
type recordingSink struct {
	mu        sync.Mutex
	results   []domain.ResultEvent
	progress  []domain.ProgressEvent
	summaries chan domain.SummaryEvent
}

func newRecordingSink() *recordingSink {
	return &recordingSink{summaries: make(chan domain.SummaryEvent, 8)}
}

func (s *recordingSink) PublishResult(_ context.Context, evt domain.ResultEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, evt)
	return nil
}

func (s *recordingSink) PublishProgress(_ context.Context, evt domain.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, evt)
	return nil
}

func (s *recordingSink) PublishSummary(_ context.Context, evt domain.SummaryEvent) error {
	s.summaries <- evt
	return nil
}

func (s *recordingSink) Results() []domain.ResultEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ResultEvent(nil), s.results...)
}

func (s *recordingSink) Progress() []domain.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ProgressEvent(nil), s.progress...)
}

func (s *recordingSink) waitSummary(t *testing.T) domain.SummaryEvent {
	t.Helper()
	select {
	case evt := <-s.summaries:
		return evt
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for summary event")
		return domain.SummaryEvent{}
	}
}

// openFailFs refuses to open the listed paths.
type openFailFs struct {
	afero.Fs
	fail map[string]error
}

func (f *openFailFs) Open(name string) (afero.File, error) {
	if err, ok := f.fail[name]; ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	return f.Fs.Open(name)
}

// gatedScanner blocks every scan until release is closed and reports each
// start on started.
type gatedScanner struct {
	started chan string
	release chan struct{}
}

func newGatedScanner() *gatedScanner {
	return &gatedScanner{started: make(chan string, 64), release: make(chan struct{})}
}

func (g *gatedScanner) Scan(_ context.Context, path string) domain.Result {
	g.started <- path
	<-g.release
	return domain.NewCleanResult(path, emptyDigest)
}
