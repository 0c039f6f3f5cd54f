// Package hasher computes SHA-256 content digests of files by streaming them
// through a fixed-size buffer, so memory use does not depend on file size.
package hasher

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/minio/sha256-simd"
	"github.com/spf13/afero"
)

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = 64 * 1024

// Digest is a SHA-256 digest.
type Digest [sha256.Size]byte

// String returns the lowercase hex encoding used by the signature database.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IOError reports a failure to open or read a file. The partial digest of a
// failed read is always discarded.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

// Hasher streams content through SHA-256. It is safe for concurrent use;
// buffers are pooled per call.
type Hasher struct {
	fs        afero.Fs
	chunkSize int
	bufs      sync.Pool
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithChunkSize sets the read buffer size. Non-positive values are ignored.
func WithChunkSize(n int) Option {
	return func(h *Hasher) {
		if n > 0 {
			h.chunkSize = n
		}
	}
}

// New creates a Hasher reading files from fs.
func New(fs afero.Fs, opts ...Option) *Hasher {
	h := &Hasher{fs: fs, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(h)
	}
	h.bufs.New = func() any {
		b := make([]byte, h.chunkSize)
		return &b
	}
	return h
}

// ChunkSize returns the configured read size.
func (h *Hasher) ChunkSize() int { return h.chunkSize }

// Hash digests everything readable from r.
func (h *Hasher) Hash(r io.Reader) (Digest, error) {
	return h.hash(context.Background(), r)
}

// HashFile opens path and digests its content. Open and read failures are
// returned as *IOError tagged with path. Cancellation is checked between
// chunks.
func (h *Hasher) HashFile(ctx context.Context, path string) (Digest, int64, error) {
	f, err := h.fs.Open(path)
	if err != nil {
		return Digest{}, 0, &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	cr := &countingReader{r: f}
	d, err := h.hash(ctx, cr)
	if err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			ioErr.Path = path
			return Digest{}, cr.n, ioErr
		}
		return Digest{}, cr.n, &IOError{Op: "read", Path: path, Err: err}
	}
	return d, cr.n, nil
}

func (h *Hasher) hash(ctx context.Context, r io.Reader) (Digest, error) {
	bp := h.bufs.Get().(*[]byte)
	defer h.bufs.Put(bp)
	buf := *bp

	sum := sha256.New()
	for {
		if err := ctx.Err(); err != nil {
			return Digest{}, err
		}

		n, err := r.Read(buf)
		if n > 0 {
			sum.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Digest{}, &IOError{Op: "read", Err: err}
		}
	}

	var d Digest
	copy(d[:], sum.Sum(nil))
	return d, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
