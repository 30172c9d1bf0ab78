package input

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"
)

func TestRateLimitedReader_Unlimited(t *testing.T) {
	r := bytes.NewReader([]byte("hello world"))

	// With 0 rate limit, should return unwrapped reader
	if limited := NewRateLimitedReader(context.Background(), r, 0); limited != r {
		t.Error("expected unwrapped reader for 0 rate limit")
	}
	if limited := NewRateLimitedReader(context.Background(), r, -100); limited != r {
		t.Error("expected unwrapped reader for negative rate limit")
	}
}

func TestRateLimitedReader_Read(t *testing.T) {
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i % 256)
	}

	limited := NewRateLimitedReader(context.Background(), bytes.NewReader(data), 1024*1024)

	result, err := io.ReadAll(limited)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(result, data) {
		t.Error("data mismatch")
	}
}

func TestRateLimitedReader_LargeBufferIsCapped(t *testing.T) {
	data := make([]byte, 40*1024)
	limited := NewRateLimitedReader(context.Background(), bytes.NewReader(data), 1024*1024*1024)

	buf := make([]byte, len(data))
	n, err := limited.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != burstSize {
		t.Errorf("Read() = %d bytes, want %d", n, burstSize)
	}
}

func TestRateLimitedReader_RateLimiting(t *testing.T) {
	// 32KB of data against a 16KB burst, limited to 8KB/s
	data := make([]byte, 32*1024)
	limited := NewRateLimitedReader(context.Background(), bytes.NewReader(data), 8*1024)

	start := time.Now()
	result, err := io.ReadAll(limited)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != len(data) {
		t.Errorf("read %d bytes, want %d", len(result), len(data))
	}

	// Remaining 16KB at 8KB/s takes about 2 seconds; use 1 second to avoid flakes
	if elapsed < 1*time.Second {
		t.Errorf("expected at least 1s for rate limiting, got %v", elapsed)
	}
}

func TestRateLimitedReader_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	limited := NewRateLimitedReader(ctx, bytes.NewReader(make([]byte, 100)), 1024)

	if _, err := limited.Read(make([]byte, 10)); err != context.Canceled {
		t.Errorf("Read() error = %v, want context.Canceled", err)
	}
}
