package blast

import "bytes"

// accumulator holds bytes written but not yet shipped.
// Only the run loop touches it.
type accumulator struct {
	buf bytes.Buffer
}

func (a *accumulator) Append(p []byte) {
	a.buf.Write(p)
}

func (a *accumulator) Len() int {
	return a.buf.Len()
}

// Slice returns the first n bytes without removing them. The view is only
// valid until the next Append or Consume.
func (a *accumulator) Slice(n int) []byte {
	return a.buf.Bytes()[:n]
}

// Consume drops the first n bytes.
func (a *accumulator) Consume(n int) {
	a.buf.Next(n)
}
