// Package blast turns a byte stream into fixed-size UDP datagrams.
//
// A Blaster is an io.WriteCloser bound to one destination. Bytes written to it
// are collected in an accumulator and shipped as datagrams of exactly
// PacketSize bytes. Whatever is left when the stream ends goes out as one
// final, shorter datagram.
//
// # Lifecycle
//
//  1. The first Write triggers host resolution and socket setup (Binding).
//     Writes arriving meanwhile are queued, not dropped.
//  2. Once the socket is bound and its TTL/broadcast options are applied the
//     queued writes are replayed in order (Ready).
//  3. Close flushes the remainder (Draining), closes the socket and fires
//     OnClose (Closed).
//
// Resolution, bind and option failures move the Blaster to Errored. That is
// terminal: later writes fail with the same error and OnClose never fires.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Datagram sends for one
// Blaster are always serialized on its run loop goroutine.
package blast
