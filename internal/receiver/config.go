package receiver

import "time"

// Config holds configuration for a Receiver.
type Config struct {
	// Address is host:port to listen on. A multicast host joins that group
	// and binds the wildcard address on the group port.
	Address string

	// Interface names the interface used for multicast joins.
	// Empty lets the OS choose.
	Interface string

	// MaxDatagramSize is the read buffer size. Larger datagrams are truncated.
	MaxDatagramSize int

	// PollInterval bounds how long a read blocks before ctx is rechecked.
	PollInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Address:         "127.0.0.1:1234",
		MaxDatagramSize: 65535,
		PollInterval:    time.Second,
	}
}
