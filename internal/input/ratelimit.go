package input

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// burstSize bounds a single read so WaitN never asks for more than the bucket holds.
const burstSize = 16 * 1024

// RateLimitedReader wraps an io.Reader with a token bucket limiting
// throughput to bytesPerSecond.
type RateLimitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

// NewRateLimitedReader creates a rate-limited reader.
// If bytesPerSecond is 0 or negative, r is returned unwrapped.
func NewRateLimitedReader(ctx context.Context, r io.Reader, bytesPerSecond int64) io.Reader {
	if bytesPerSecond <= 0 {
		return r
	}

	return &RateLimitedReader{
		r:       r,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burstSize),
		ctx:     ctx,
	}
}

// Read implements io.Reader. It waits for tokens after reading, so the
// producer is slowed down rather than the data truncated.
func (r *RateLimitedReader) Read(p []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	default:
	}

	if len(p) > burstSize {
		p = p[:burstSize]
	}

	n, err := r.r.Read(p)
	if n <= 0 {
		return n, err
	}

	if waitErr := r.limiter.WaitN(r.ctx, n); waitErr != nil {
		return n, waitErr
	}

	return n, err
}
