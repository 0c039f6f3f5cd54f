// Package reporter renders scan events for a terminal.
package reporter

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/h2non/filetype"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/ahrav/frostfile/internal/domain/scanning"
)

// Subscriber is the part of the event bus the reporter listens on.
type Subscriber interface {
	SubscribeResults(ctx context.Context, handler func(scanning.ResultEvent) error) error
	SubscribeProgress(ctx context.Context, handler func(scanning.ProgressEvent) error) error
	SubscribeSummaries(ctx context.Context, handler func(scanning.SummaryEvent) error) error
}

// Reporter prints detections and errors as they arrive, throttled progress
// lines, and a final summary.
type Reporter struct {
	mu  sync.Mutex
	out io.Writer
	fs  afero.Fs

	progress *rate.Limiter
	verbose  bool

	infected *color.Color
	failed   *color.Color
	clean    *color.Color
	faint    *color.Color

	summaries chan scanning.SummaryEvent
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithProgressEvery limits progress lines to one per interval. Zero prints
// every update.
func WithProgressEvery(interval time.Duration) Option {
	return func(r *Reporter) {
		if interval <= 0 {
			r.progress = rate.NewLimiter(rate.Inf, 1)
			return
		}
		r.progress = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// WithVerbose also prints clean files.
func WithVerbose(v bool) Option {
	return func(r *Reporter) { r.verbose = v }
}

// WithoutColor disables ANSI colour codes.
func WithoutColor() Option {
	return func(r *Reporter) {
		for _, c := range []*color.Color{r.infected, r.failed, r.clean, r.faint} {
			c.DisableColor()
		}
	}
}

// New creates a Reporter writing to out. fs is used to sniff the file type
// of detections.
func New(out io.Writer, fs afero.Fs, opts ...Option) *Reporter {
	r := &Reporter{
		out:       out,
		fs:        fs,
		progress:  rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
		infected:  color.New(color.FgRed, color.Bold),
		failed:    color.New(color.FgYellow),
		clean:     color.New(color.FgGreen),
		faint:     color.New(color.Faint),
		summaries: make(chan scanning.SummaryEvent, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers the reporter's handlers until ctx is done.
func (r *Reporter) Subscribe(ctx context.Context, bus Subscriber) error {
	if err := bus.SubscribeResults(ctx, r.onResult); err != nil {
		return fmt.Errorf("subscribing to results: %w", err)
	}
	if err := bus.SubscribeProgress(ctx, r.onProgress); err != nil {
		return fmt.Errorf("subscribing to progress: %w", err)
	}
	if err := bus.SubscribeSummaries(ctx, r.onSummary); err != nil {
		return fmt.Errorf("subscribing to summaries: %w", err)
	}
	return nil
}

// Summaries delivers the summary of each finished job.
func (r *Reporter) Summaries() <-chan scanning.SummaryEvent { return r.summaries }

func (r *Reporter) onResult(evt scanning.ResultEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch res := evt.Result.(type) {
	case scanning.InfectedResult:
		r.infected.Fprintf(r.out, "INFECTED %s", res.Path())
		fmt.Fprintf(r.out, " sha256=%s kind=%s\n", res.Digest(), r.kind(res.Path()))
	case scanning.ErrorResult:
		r.failed.Fprintf(r.out, "ERROR    %s: %s\n", res.Path(), res.Message())
	case scanning.CleanResult:
		if r.verbose {
			r.clean.Fprintf(r.out, "CLEAN    %s\n", res.Path())
		}
	}
	return nil
}

func (r *Reporter) onProgress(evt scanning.ProgressEvent) error {
	p := evt.Progress
	if p.Status != scanning.JobStatusScanning || !r.progress.Allow() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.faint.Fprintf(r.out, "[%3.0f%%] %d/%d files, %d infected, %d errors\n",
		p.Fraction()*100, p.Scanned, p.Total, p.Infected, p.Errors)
	return nil
}

func (r *Reporter) onSummary(evt scanning.SummaryEvent) error {
	r.mu.Lock()
	fmt.Fprintf(r.out, "\nScanned %d of %d files in %s (%d errors)\n",
		evt.Scanned, evt.Total, evt.Elapsed.Round(time.Millisecond), evt.Errors)
	if evt.Cancelled {
		r.failed.Fprintln(r.out, "Scan cancelled; results are partial.")
	}
	switch {
	case evt.AnyInfected:
		r.infected.Fprintf(r.out, "%d infected file(s) found:\n", len(evt.InfectedPaths))
		for _, p := range evt.InfectedPaths {
			fmt.Fprintf(r.out, "  %s\n", p)
		}
	case !evt.Cancelled:
		r.clean.Fprintln(r.out, "No threats found.")
	}
	r.mu.Unlock()

	select {
	case r.summaries <- evt:
	default:
	}
	return nil
}

// kind sniffs the leading bytes of path. Detections are rare, so the extra
// open only happens for infected files.
func (r *Reporter) kind(path string) string {
	f, err := r.fs.Open(path)
	if err != nil {
		return filetype.Unknown.Extension
	}
	defer f.Close()

	head := make([]byte, 262)
	n, _ := io.ReadFull(f, head)
	t, err := filetype.Match(head[:n])
	if err != nil || t == filetype.Unknown {
		return filetype.Unknown.Extension
	}
	return t.MIME.Value
}
