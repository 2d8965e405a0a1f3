package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// maxEntryBytes bounds a single entry held in memory.
const maxEntryBytes = 512 << 20

// guardedFile checks an operation-scoped context before every read so a
// stalled or cancelled caller stops consuming the archive.
type guardedFile struct {
	f    *os.File
	size int64
	ctx  context.Context
}

func openGuarded(path string) (*guardedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &guardedFile{f: f, size: info.Size(), ctx: context.Background()}, nil
}

// scope derives the context for one adaptor I/O operation.
func scope(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// bind scopes subsequent reads to ctx plus timeout until the returned
// release is called.
func (g *guardedFile) bind(ctx context.Context, timeout time.Duration) func() {
	ctx, cancel := scope(ctx, timeout)
	g.ctx = ctx
	return func() {
		cancel()
		g.ctx = context.Background()
	}
}

func (g *guardedFile) ReadAt(p []byte, off int64) (int, error) {
	if err := g.ctx.Err(); err != nil {
		return 0, err
	}
	return g.f.ReadAt(p, off)
}

// cancelSignal is satisfied by context.Context and *stepDeadline.
type cancelSignal interface {
	Err() error
}

// view returns a sequential reader over the whole file with its own offset.
// Views never disturb each other, so a lazy scan survives interleaved reads.
func (g *guardedFile) view(sig cancelSignal) *io.SectionReader {
	return io.NewSectionReader(scopedReaderAt{f: g.f, sig: sig}, 0, g.size)
}

type scopedReaderAt struct {
	f   *os.File
	sig cancelSignal
}

func (r scopedReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if err := r.sig.Err(); err != nil {
		return 0, err
	}
	return r.f.ReadAt(p, off)
}

// stepDeadline restarts the I/O timeout at each step of a lazy scan, so time
// the consumer spends between entries is not charged to the archive.
type stepDeadline struct {
	parent  context.Context
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

func newStepDeadline(parent context.Context, timeout time.Duration) *stepDeadline {
	d := &stepDeadline{parent: parent, timeout: timeout}
	d.step()
	return d
}

func (d *stepDeadline) step() {
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx, d.cancel = scope(d.parent, d.timeout)
}

func (d *stepDeadline) Err() error { return d.ctx.Err() }

func (d *stepDeadline) stop() { d.cancel() }

// guardedWriter refuses writes once its bound context is done.
type guardedWriter struct {
	w   io.Writer
	ctx context.Context
}

func newGuardedWriter(w io.Writer) *guardedWriter {
	return &guardedWriter{w: w, ctx: context.Background()}
}

func (g *guardedWriter) bind(ctx context.Context, timeout time.Duration) func() {
	ctx, cancel := scope(ctx, timeout)
	g.ctx = ctx
	return func() {
		cancel()
		g.ctx = context.Background()
	}
}

func (g *guardedWriter) Write(p []byte) (int, error) {
	if err := g.ctx.Err(); err != nil {
		return 0, err
	}
	return g.w.Write(p)
}

func (g *guardedFile) Close() error {
	return g.f.Close()
}

// options shared by the built-in adaptors.
type options struct {
	ioTimeout time.Duration
}

// Option configures a built-in adaptor.
type Option func(*options)

// WithIOTimeout bounds each open, read and write operation. Zero disables the deadline.
func WithIOTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.ioTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
