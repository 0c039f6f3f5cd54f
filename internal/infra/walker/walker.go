// Package walker enumerates the regular files beneath a root path.
//
// Symlink policy: symbolic links to directories are never followed, which
// keeps every walk finite even when links form cycles. Symbolic links to
// regular files are yielded because their target is content that can be
// scanned. A root that is itself a symlink is resolved once, since the caller
// named it explicitly. Devices, fifos and sockets are skipped.
package walker

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// errStop unwinds afero.Walk when the consumer stops early or ctx ends.
var errStop = errors.New("walk stopped")

// ErrorFunc receives paths that could not be listed or inspected. The walk
// always continues past them.
type ErrorFunc func(path string, err error)

// Walker produces lazy sequences of file paths. A Walker holds no per-walk
// state, so every call to Walk starts a fresh traversal.
type Walker struct {
	fs      afero.Fs
	onError ErrorFunc
}

// Option configures a Walker.
type Option func(*Walker)

// WithOnError registers a callback for unreadable entries.
func WithOnError(fn ErrorFunc) Option {
	return func(w *Walker) { w.onError = fn }
}

// New creates a Walker over fs.
func New(fs afero.Fs, opts ...Option) *Walker {
	w := &Walker{fs: fs}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Walk returns a sequence of regular file paths under root in lexical order.
// If root is a regular file the sequence holds exactly root. Iteration stops
// when ctx is done or the consumer breaks out of the loop.
func (w *Walker) Walk(ctx context.Context, root string) iter.Seq[string] {
	return func(yield func(string) bool) {
		info, err := w.fs.Stat(root)
		if err != nil {
			w.reportError(root, err)
			return
		}

		if !info.IsDir() {
			if info.Mode().IsRegular() {
				yield(root)
			}
			return
		}

		walkErr := afero.Walk(w.fs, w.resolveRoot(root), func(path string, fi os.FileInfo, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return errStop
			}

			if err != nil {
				w.reportError(path, err)
				if fi != nil && fi.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if !w.isScannable(path, fi) {
				return nil
			}
			if !yield(path) {
				return errStop
			}
			return nil
		})
		if walkErr != nil && !errors.Is(walkErr, errStop) && !errors.Is(walkErr, filepath.SkipDir) {
			w.reportError(root, walkErr)
		}
	}
}

// Stat reports whether root exists and can be inspected.
func (w *Walker) Stat(root string) (os.FileInfo, error) {
	return w.fs.Stat(root)
}

// Collect drains a walk into a slice.
func (w *Walker) Collect(ctx context.Context, root string) []string {
	var paths []string
	for p := range w.Walk(ctx, root) {
		paths = append(paths, p)
	}
	return paths
}

// isScannable decides whether an entry reported by afero.Walk, which uses
// Lstat where available, should be yielded.
func (w *Walker) isScannable(path string, fi os.FileInfo) bool {
	mode := fi.Mode()
	switch {
	case mode.IsRegular():
		return true
	case mode&fs.ModeSymlink != 0:
		target, err := w.fs.Stat(path)
		if err != nil {
			// Dangling link; nothing to read.
			w.reportError(path, err)
			return false
		}
		return target.Mode().IsRegular()
	default:
		return false
	}
}

// resolveRoot follows a symlinked root once so afero.Walk descends into its
// target rather than reporting the link itself.
func (w *Walker) resolveRoot(root string) string {
	lstater, ok := w.fs.(afero.Lstater)
	if !ok {
		return root
	}
	fi, _, err := lstater.LstatIfPossible(root)
	if err != nil || fi.Mode()&fs.ModeSymlink == 0 {
		return root
	}

	reader, ok := w.fs.(afero.LinkReader)
	if !ok {
		return root
	}
	target, err := reader.ReadlinkIfPossible(root)
	if err != nil {
		return root
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(root), target)
	}
	return target
}

func (w *Walker) reportError(path string, err error) {
	if w.onError != nil {
		w.onError(path, err)
	}
}
