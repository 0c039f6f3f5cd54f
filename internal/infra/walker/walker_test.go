package walker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memTree(t *testing.T, files ...string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fs, f, []byte(f), 0o644))
	}
	return fs
}

type errorRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *errorRecorder) record(path string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func TestWalk(t *testing.T) {
	fs := memTree(t,
		"/scan/b.txt",
		"/scan/a.txt",
		"/scan/sub/c.bin",
		"/scan/sub/deeper/d.exe",
		"/other/ignored.txt",
	)
	require.NoError(t, fs.MkdirAll("/scan/emptydir", 0o755))

	got := New(fs).Collect(context.Background(), "/scan")
	assert.Equal(t, []string{
		filepath.FromSlash("/scan/a.txt"),
		filepath.FromSlash("/scan/b.txt"),
		filepath.FromSlash("/scan/sub/c.bin"),
		filepath.FromSlash("/scan/sub/deeper/d.exe"),
	}, got)
}

func TestWalkSingleFileRoot(t *testing.T) {
	fs := memTree(t, "/scan/only.txt")
	got := New(fs).Collect(context.Background(), "/scan/only.txt")
	assert.Equal(t, []string{"/scan/only.txt"}, got)
}

func TestWalkEmptyDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/empty", 0o755))

	assert.Empty(t, New(fs).Collect(context.Background(), "/empty"))
}

func TestWalkMissingRoot(t *testing.T) {
	rec := new(errorRecorder)
	got := New(afero.NewMemMapFs(), WithOnError(rec.record)).Collect(context.Background(), "/nope")

	assert.Empty(t, got)
	assert.Equal(t, []string{"/nope"}, rec.paths)
}

func TestWalkSkipsUnreadableSubtree(t *testing.T) {
	base := memTree(t,
		"/scan/ok.txt",
		"/scan/locked/secret.txt",
		"/scan/zzz/last.txt",
	)
	fs := &lockedDirFs{Fs: base, locked: filepath.FromSlash("/scan/locked")}
	rec := new(errorRecorder)

	got := New(fs, WithOnError(rec.record)).Collect(context.Background(), "/scan")

	assert.Equal(t, []string{
		filepath.FromSlash("/scan/ok.txt"),
		filepath.FromSlash("/scan/zzz/last.txt"),
	}, got)
	assert.Equal(t, []string{filepath.FromSlash("/scan/locked")}, rec.paths)
}

func TestWalkIsLazyAndStopsOnBreak(t *testing.T) {
	fs := memTree(t, "/scan/1", "/scan/2", "/scan/3")

	var seen []string
	for p := range New(fs).Walk(context.Background(), "/scan") {
		seen = append(seen, p)
		break
	}
	assert.Len(t, seen, 1)
}

func TestWalkStopsWhenContextDone(t *testing.T) {
	fs := memTree(t, "/scan/1", "/scan/2", "/scan/3")

	ctx, cancel := context.WithCancel(context.Background())
	var seen []string
	for p := range New(fs).Walk(ctx, "/scan") {
		seen = append(seen, p)
		cancel()
	}
	assert.Len(t, seen, 1)
}

func TestWalkIsRestartable(t *testing.T) {
	fs := memTree(t, "/scan/a", "/scan/b/c")
	w := New(fs)

	first := w.Collect(context.Background(), "/scan")
	second := w.Collect(context.Background(), "/scan")
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestWalkDoesNotFollowSymlinkedDirectories(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "file.txt"), []byte("x"), 0o644))
	// A cycle back to the root and a link to a regular file.
	require.NoError(t, os.Symlink(root, filepath.Join(root, "a", "loop")))
	require.NoError(t, os.Symlink(filepath.Join(root, "a", "file.txt"), filepath.Join(root, "link.txt")))
	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "dangling")))

	rec := new(errorRecorder)
	got := New(afero.NewOsFs(), WithOnError(rec.record)).Collect(context.Background(), root)

	assert.Equal(t, []string{
		filepath.Join(root, "a", "file.txt"),
		filepath.Join(root, "link.txt"),
	}, got)
	assert.Equal(t, []string{filepath.Join(root, "dangling")}, rec.paths)
}

func TestWalkFollowsSymlinkedRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}

	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "f"), []byte("x"), 0o644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	got := New(afero.NewOsFs()).Collect(context.Background(), link)
	assert.Equal(t, []string{filepath.Join(target, "f")}, got)
}

// lockedDirFs refuses to open one directory, as a permission error would.
type lockedDirFs struct {
	afero.Fs
	locked string
}

func (l *lockedDirFs) Open(name string) (afero.File, error) {
	if filepath.Clean(name) == l.locked {
		return nil, &os.PathError{Op: "open", Path: name, Err: errors.New("permission denied")}
	}
	return l.Fs.Open(name)
}
