package scanning

import (
	"context"
	"iter"
	"os"

	domain "github.com/ahrav/frostfile/internal/domain/scanning"
)

// EventSink receives the events a scan job produces. Calls for a single job
// arrive in order from one goroutine: every ResultEvent is followed by the
// ProgressEvent it caused, and the SummaryEvent is always last.
type EventSink interface {
	PublishResult(ctx context.Context, evt domain.ResultEvent) error
	PublishProgress(ctx context.Context, evt domain.ProgressEvent) error
	PublishSummary(ctx context.Context, evt domain.SummaryEvent) error
}

// Scanner classifies a single path.
type Scanner interface {
	Scan(ctx context.Context, path string) domain.Result
}

// Enumerator lists the files a scan of root must cover.
type Enumerator interface {
	Stat(root string) (os.FileInfo, error)
	Walk(ctx context.Context, root string) iter.Seq[string]
}
