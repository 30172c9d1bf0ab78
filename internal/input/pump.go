// Package input feeds a byte source into a blaster: chunked reads, an
// optional rate limit and human readable sizes for flags and summaries.
package input

import (
	"context"
	"errors"
	"io"
)

// DefaultChunkSize is the read size used when Pump is given chunkSize <= 0.
const DefaultChunkSize = 64 * 1024

// ContextWriter is implemented by writers whose blocking Write can be
// cancelled, such as *blast.Blaster.
type ContextWriter interface {
	WriteContext(ctx context.Context, p []byte) (int, error)
}

// Pump copies r into w in chunks of at most chunkSize bytes until r is
// exhausted or ctx is cancelled. It does not close w. The returned count is
// the number of bytes w accepted.
func Pump(ctx context.Context, r io.Reader, w io.Writer, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	write := w.Write
	if cw, ok := w.(ContextWriter); ok {
		write = func(p []byte) (int, error) {
			return cw.WriteContext(ctx, p)
		}
	}

	buf := make([]byte, chunkSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			wn, werr := write(buf[:n])
			total += int64(wn)
			if werr != nil {
				return total, werr
			}
			if wn != n {
				return total, io.ErrShortWrite
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return total, nil
			}
			return total, rerr
		}
	}
}
